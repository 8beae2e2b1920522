package service

import (
	"context"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/logger"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
)

// TokenSource issues provider tokens. Invalidate is called after a token was
// used for a failed call so a cached one is not reused.
type TokenSource interface {
	AcquireToken(ctx context.Context) (string, error)
	Invalidate()
}

// BookingSource reads bookings and clients from the provider.
type BookingSource interface {
	FetchBookingDetail(ctx context.Context, token, bookingID string) (*simplybook.BookingDetail, error)
	FetchClientInfo(ctx context.Context, token, clientID string) (*simplybook.ClientInfo, error)
}

// Aggregation is everything needed to invoice one webhook event.
type Aggregation struct {
	BookingID string
	Client    domain.Client
	Lessons   []simplybook.BookingDetail
}

type Aggregator struct {
	tokens        TokenSource
	bookings      BookingSource
	taxIDPosition int
}

func NewAggregator(tokens TokenSource, bookings BookingSource, taxIDPosition int) *Aggregator {
	return &Aggregator{tokens: tokens, bookings: bookings, taxIDPosition: taxIDPosition}
}

// Aggregate expands bookingID into its client and billable lessons. A batch
// booking yields its sub-bookings in provider order; any failed lookup discards
// the whole result.
func (a *Aggregator) Aggregate(ctx context.Context, bookingID string) (*Aggregation, error) {
	log := logger.FromContext(ctx)

	token, err := a.tokens.AcquireToken(ctx)
	if err != nil {
		return nil, err
	}

	agg, err := a.aggregate(ctx, token, bookingID)
	if err != nil {
		a.tokens.Invalidate()
		return nil, err
	}

	log.Debug().
		Str("client_id", agg.Client.ID).
		Int("lessons", len(agg.Lessons)).
		Msg("booking aggregated")
	return agg, nil
}

func (a *Aggregator) aggregate(ctx context.Context, token, bookingID string) (*Aggregation, error) {
	root, err := a.bookings.FetchBookingDetail(ctx, token, bookingID)
	if err != nil {
		return nil, err
	}
	if root.ClientID.Empty() {
		return nil, ierr.NewErrorf("booking %s has no client_id", bookingID).
			WithHint("The booking is not linked to a client").
			Mark(ierr.ErrDataIntegrity)
	}

	info, err := a.bookings.FetchClientInfo(ctx, token, root.ClientID.String())
	if err != nil {
		return nil, err
	}

	var lessons []simplybook.BookingDetail
	if root.IsBatch() {
		lessons = make([]simplybook.BookingDetail, 0, len(root.BatchBookings))
		for _, ref := range root.BatchBookings {
			if ref.ID.Empty() {
				return nil, ierr.NewErrorf("booking %s references a sub-booking without id", bookingID).
					WithHint("The batch booking is malformed").
					Mark(ierr.ErrDataIntegrity)
			}
			lesson, err := a.bookings.FetchBookingDetail(ctx, token, ref.ID.String())
			if err != nil {
				return nil, err
			}
			if lesson.ID.Empty() {
				lesson.ID = ref.ID
			}
			lessons = append(lessons, *lesson)
		}
	} else {
		if root.ID.Empty() {
			root.ID = domain.FlexString(bookingID)
		}
		lessons = []simplybook.BookingDetail{*root}
	}

	return &Aggregation{
		BookingID: bookingID,
		Client:    a.buildClient(ctx, root.ClientID.String(), info),
		Lessons:   lessons,
	}, nil
}

func (a *Aggregator) buildClient(ctx context.Context, clientID string, info *simplybook.ClientInfo) domain.Client {
	taxID, ok := info.TaxID(a.taxIDPosition)
	if !ok {
		logger.FromContext(ctx).Warn().
			Str("client_id", clientID).
			Int("field_position", a.taxIDPosition).
			Msg("client has no tax id, using placeholder")
		taxID = domain.TaxIDNotAvailable
	}

	id := info.ID.String()
	if id == "" {
		id = clientID
	}
	return domain.Client{
		ID:      id,
		Name:    info.Name,
		Email:   info.Email,
		Phone:   info.Phone,
		TaxID:   taxID,
		Address: info.Address(),
	}
}
