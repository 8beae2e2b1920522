package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/logger"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
)

var linesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "invoicesync_invoice_lines_skipped_total",
	Help: "Lessons left out of an invoice because their price could not be used",
})

const moneyPlaces = 2

// TaxCalculator splits gross lesson prices into tax base and tax amount.
type TaxCalculator struct {
	rate     decimal.Decimal
	location *time.Location
}

// NewTaxCalculator uses rate as the gross/net ratio, e.g. 1.21 for 21% VAT.
// Lesson start times are read in loc.
func NewTaxCalculator(rate float64, loc *time.Location) *TaxCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return &TaxCalculator{rate: decimal.NewFromFloat(rate), location: loc}
}

// Split returns round2(total/rate) and the remainder, so base+tax == round2(total).
func (c *TaxCalculator) Split(total decimal.Decimal) (base, tax decimal.Decimal) {
	total = total.Round(moneyPlaces)
	base = total.Div(c.rate).Round(moneyPlaces)
	tax = total.Sub(base)
	return base, tax
}

// ComputeLine prices one lesson. The error is marked ErrLineComputation when the
// lesson has no usable price. A lesson whose start time cannot be read is still
// billed, dated receivedAt.
func (c *TaxCalculator) ComputeLine(ctx context.Context, lesson simplybook.BookingDetail, receivedAt time.Time) (domain.InvoiceLine, error) {
	text, ok := lesson.PriceText()
	if !ok {
		return domain.InvoiceLine{}, ierr.NewErrorf("lesson %s has no price", lesson.ID).
			Mark(ierr.ErrLineComputation)
	}
	total, err := decimal.NewFromString(text)
	if err != nil {
		return domain.InvoiceLine{}, ierr.WithError(err).
			WithMessagef("lesson %s price %q is not a number", lesson.ID, text).
			Mark(ierr.ErrLineComputation)
	}
	if !total.Round(moneyPlaces).IsPositive() {
		return domain.InvoiceLine{}, ierr.NewErrorf("lesson %s price %s is not positive", lesson.ID, text).
			Mark(ierr.ErrLineComputation)
	}
	start, err := lesson.StartTime(c.location)
	if err != nil {
		start = receivedAt.In(c.location)
		logger.FromContext(ctx).Warn().Err(err).
			Str("lesson_id", lesson.ID.String()).
			Time("booking_time", start).
			Msg("lesson start time unreadable, dating it at receipt")
	}

	base, tax := c.Split(total)
	return domain.InvoiceLine{
		LessonID:   lesson.ID.String(),
		LessonName: lesson.EventName,
		DateTime:   start,
		TotalPrice: total.Round(moneyPlaces),
		TaxBase:    base,
		TaxAmount:  tax,
		RawLesson:  lesson.Raw,
	}, nil
}

// ComputeLines prices every lesson in order, dropping the ones that cannot be billed.
func (c *TaxCalculator) ComputeLines(ctx context.Context, lessons []simplybook.BookingDetail, receivedAt time.Time) (lines []domain.InvoiceLine, skipped int) {
	lines = make([]domain.InvoiceLine, 0, len(lessons))
	for _, lesson := range lessons {
		line, err := c.ComputeLine(ctx, lesson, receivedAt)
		if err != nil {
			skipped++
			linesSkippedTotal.Inc()
			logger.FromContext(ctx).Warn().Err(err).
				Str("lesson_id", lesson.ID.String()).
				Msg("skipping lesson")
			continue
		}
		lines = append(lines, line)
	}
	return lines, skipped
}
