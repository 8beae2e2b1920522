package service

import (
	"github.com/samber/lo"

	"github.com/punchamoorthee/invoicesync/internal/domain"
)

// BuildRecords pairs every priced line with the booking's client.
func BuildRecords(bookingID string, client domain.Client, lines []domain.InvoiceLine) []domain.InvoiceRecord {
	return lo.Map(lines, func(l domain.InvoiceLine, _ int) domain.InvoiceRecord {
		return domain.InvoiceRecord{
			BookingID:     bookingID,
			LessonID:      l.LessonID,
			ClientName:    client.Name,
			ClientEmail:   client.Email,
			ClientTaxID:   client.TaxID,
			ClientAddress: client.Address,
			ServiceName:   l.LessonName,
			Amount:        l.TotalPrice.InexactFloat64(),
			TaxBase:       l.TaxBase.InexactFloat64(),
			TaxAmount:     l.TaxAmount.InexactFloat64(),
			BookingTime:   l.DateTime,
			RawData:       l.RawLesson,
		}
	})
}
