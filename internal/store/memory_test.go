package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
)

func TestMemoryStoreDedupsRedeliveries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.InsertBatch(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.InsertBatch(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := s.Query(ctx, domain.DateRange{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreDedupsWithinBatch(t *testing.T) {
	s := NewMemoryStore()
	recs := sampleRecords()
	recs = append(recs, recs[0])

	n, err := s.InsertBatch(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStoreQueryOrderAndRange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	var recs []domain.InvoiceRecord
	for i, offset := range []int{0, 29, 30, 10} {
		recs = append(recs, domain.InvoiceRecord{
			BookingID:   "b",
			LessonID:    string(rune('a' + i)),
			Amount:      10,
			BookingTime: base.AddDate(0, 0, offset),
		})
	}
	_, err := s.InsertBatch(ctx, recs)
	require.NoError(t, err)

	all, err := s.Query(ctx, domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].BookingTime.After(all[i-1].BookingTime))
	}

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	june, err := s.Query(ctx, domain.ResolveDateRange(&start, &end, base))
	require.NoError(t, err)
	require.Len(t, june, 3)
	assert.Equal(t, "b", june[0].LessonID)
	assert.Equal(t, "a", june[2].LessonID)
}

func TestMemoryStoreFailure(t *testing.T) {
	s := NewMemoryStore()
	s.FailWith(errors.New("disk full"))

	_, err := s.InsertBatch(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.True(t, ierr.IsPersistence(err))

	_, err = s.Query(context.Background(), domain.DateRange{})
	assert.True(t, ierr.IsPersistence(err))

	s.FailWith(nil)
	assert.NoError(t, s.Ping(context.Background()))
}
