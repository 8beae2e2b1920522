package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
)

type fakeProvider struct {
	tokenErr    error
	bookings    map[string]*simplybook.BookingDetail
	clients     map[string]*simplybook.ClientInfo
	failing     map[string]bool
	fetched     []string
	tokens      int
	invalidated int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bookings: map[string]*simplybook.BookingDetail{},
		clients:  map[string]*simplybook.ClientInfo{},
		failing:  map[string]bool{},
	}
}

func (f *fakeProvider) AcquireToken(context.Context) (string, error) {
	f.tokens++
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "tok", nil
}

func (f *fakeProvider) Invalidate() { f.invalidated++ }

func (f *fakeProvider) FetchBookingDetail(_ context.Context, _ string, id string) (*simplybook.BookingDetail, error) {
	f.fetched = append(f.fetched, "booking:"+id)
	b, ok := f.bookings[id]
	if !ok || f.failing[id] {
		return nil, ierr.NewErrorf("booking %s unavailable", id).Mark(ierr.ErrUpstreamData)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeProvider) FetchClientInfo(_ context.Context, _ string, id string) (*simplybook.ClientInfo, error) {
	f.fetched = append(f.fetched, "client:"+id)
	c, ok := f.clients[id]
	if !ok {
		return nil, ierr.NewErrorf("client %s unavailable", id).Mark(ierr.ErrUpstreamData)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeProvider) addBooking(t *testing.T, id, payload string) {
	t.Helper()
	var b simplybook.BookingDetail
	require.NoError(t, json.Unmarshal([]byte(payload), &b))
	f.bookings[id] = &b
}

func (f *fakeProvider) addClient(t *testing.T, id, payload string) {
	t.Helper()
	var c simplybook.ClientInfo
	require.NoError(t, json.Unmarshal([]byte(payload), &c))
	f.clients[id] = &c
}

// withBatchBooking loads booking 42 grouping lessons 43 and 44 for client 7.
func withBatchBooking(t *testing.T, f *fakeProvider) {
	t.Helper()
	f.addBooking(t, "42", `{"id":"42","client_id":"7","event_name":"Course","start_date_time":"2024-05-10 09:00:00","event_price":"181.50","batch_bookings":[{"id":43},{"id":"44"}]}`)
	f.addBooking(t, "43", `{"id":"43","client_id":"7","event_name":"Lesson 1","start_date_time":"2024-05-10 10:00:00","event_price":"121.00"}`)
	f.addBooking(t, "44", `{"id":"44","client_id":"7","event_name":"Lesson 2","start_date_time":"2024-05-17 10:00:00","event_price":60.50}`)
	f.addClient(t, "7", `{"id":"7","name":"Ana Garcia","email":"ana@example.com","phone":"600","address1":"Calle Mayor 1","city":"Madrid","additional_fields":[{"name":"NIF","value":"12345678Z"}]}`)
}
