package simplybook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/invoicesync/internal/domain"
)

// Layouts the provider uses for start_date_time.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// BookingRef points at a sub-booking of a batch booking.
type BookingRef struct {
	ID domain.FlexString `json:"id"`
}

// BookingDetail is the result of getBookingDetails. When BatchBookings is not
// empty the record is a container and only the referenced bookings are billable.
type BookingDetail struct {
	ID            domain.FlexString `json:"id"`
	ClientID      domain.FlexString `json:"client_id"`
	EventName     string            `json:"event_name"`
	StartDateTime string            `json:"start_date_time"`
	EventPrice    json.RawMessage   `json:"event_price,omitempty"`
	BatchBookings []BookingRef      `json:"batch_bookings,omitempty"`

	// Raw is the payload exactly as received.
	Raw json.RawMessage `json:"-"`
}

func (b *BookingDetail) UnmarshalJSON(data []byte) error {
	type plain BookingDetail
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BookingDetail(p)
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the received payload so snapshots and raw_data show what
// the provider actually sent.
func (b BookingDetail) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	type plain BookingDetail
	return json.Marshal(plain(b))
}

// IsBatch reports whether the booking groups several billable sub-bookings.
func (b BookingDetail) IsBatch() bool {
	return len(b.BatchBookings) > 0
}

// PriceText returns event_price as text whether it was sent as a string or a number.
func (b BookingDetail) PriceText() (string, bool) {
	raw := bytes.TrimSpace(b.EventPrice)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	return string(raw), true
}

// StartTime parses start_date_time in loc.
func (b BookingDetail) StartTime(loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(b.StartDateTime)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start_date_time %q", b.StartDateTime)
}

// ClientField is one entry of the client's custom fields. Value is kept raw:
// empty fields come back as false, [] or {} as often as "".
type ClientField struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Text returns the field as text. Anything but a string or a number reads as "".
func (f ClientField) Text() string {
	raw := bytes.TrimSpace(f.Value)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	}
	return ""
}

// ClientInfo is the result of getClientInfo.
type ClientInfo struct {
	ID               domain.FlexString `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone"`
	Address1         string            `json:"address1"`
	Address2         string            `json:"address2"`
	City             string            `json:"city"`
	Zip              string            `json:"zip"`
	AdditionalFields []ClientField     `json:"additional_fields,omitempty"`
}

// TaxID returns the custom field at position, which holds the national tax id.
func (c ClientInfo) TaxID(position int) (string, bool) {
	if position < 0 || position >= len(c.AdditionalFields) {
		return "", false
	}
	v := c.AdditionalFields[position].Text()
	return v, v != ""
}

// Address joins the non-empty address parts.
func (c ClientInfo) Address() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{c.Address1, c.Address2, c.City, c.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
