package domain

import (
	"fmt"
	"strings"
	"time"
)

// SearchDateLayout is the format of the startSearch/endSearch query parameters.
const SearchDateLayout = "2006-01-02"

// DateRange selects invoices with From <= booking_time < Until.
// The zero value selects everything.
type DateRange struct {
	From  time.Time
	Until time.Time
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.Until.IsZero()
}

func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	return !t.Before(r.From) && t.Before(r.Until)
}

// ResolveDateRange applies the listing defaults to optional calendar-day bounds:
//   - both given: used as-is
//   - only start: end is today
//   - only end: start is January 1 of the end's year
//   - neither: no filter
//
// The end day is inclusive. Days are taken in now's location.
func ResolveDateRange(start, end *time.Time, now time.Time) DateRange {
	if start == nil && end == nil {
		return DateRange{}
	}
	loc := now.Location()

	var endDay time.Time
	if end != nil {
		endDay = startOfDay(*end, loc)
	} else {
		endDay = startOfDay(now, loc)
	}

	var startDay time.Time
	if start != nil {
		startDay = startOfDay(*start, loc)
	} else {
		startDay = time.Date(endDay.Year(), time.January, 1, 0, 0, 0, 0, loc)
	}

	return DateRange{From: startDay, Until: endDay.AddDate(0, 0, 1)}
}

// ParseSearchDate parses a YYYY-MM-DD query value in loc. Empty input yields nil.
func ParseSearchDate(value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(SearchDateLayout, value, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return &t, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
