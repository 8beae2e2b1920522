package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TaxIDNotAvailable is stored when a client has no tax identifier on file.
const TaxIDNotAvailable = "N/A"

// FlexString decodes a JSON string or number into its textual form. The provider
// sends ids both ways depending on the endpoint.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Empty treats "", "0" and null alike: none of them identify anything upstream.
func (f FlexString) Empty() bool {
	if f == "" {
		return true
	}
	if n, err := strconv.ParseFloat(string(f), 64); err == nil && n == 0 {
		return true
	}
	return false
}

// Client is the billing view of a provider client.
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

// InvoiceLine is one billable lesson split into tax base and tax amount.
// TotalPrice always equals TaxBase + TaxAmount.
type InvoiceLine struct {
	LessonID   string          `json:"lesson_id"`
	LessonName string          `json:"lesson_name"`
	DateTime   time.Time       `json:"date_time"`
	TotalPrice decimal.Decimal `json:"total_price"`
	TaxBase    decimal.Decimal `json:"tax_base"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	RawLesson  json.RawMessage `json:"raw_lesson,omitempty"`
}

// InvoiceRecord is the persisted, append-only row for one billed lesson.
// (BookingID, LessonID) identifies a row across webhook redeliveries.
type InvoiceRecord struct {
	ID            int64           `json:"id,omitempty"`
	BookingID     string          `json:"booking_id"`
	LessonID      string          `json:"lesson_id"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientTaxID   string          `json:"client_tax_id"`
	ClientAddress string          `json:"client_address"`
	ServiceName   string          `json:"service_name"`
	Amount        float64         `json:"amount"`
	TaxBase       float64         `json:"tax_base"`
	TaxAmount     float64         `json:"tax_amount"`
	BookingTime   time.Time       `json:"booking_time"`
	RawData       json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DedupKey is the identity used to drop redelivered rows.
func (r InvoiceRecord) DedupKey() string {
	return r.BookingID + "/" + r.LessonID
}
