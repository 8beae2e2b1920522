package store

import (
	"context"

	"github.com/punchamoorthee/invoicesync/internal/domain"
)

// InvoiceStore is the append-only home of invoice rows.
type InvoiceStore interface {
	// InsertBatch writes recs atomically and returns how many were new.
	// Rows whose (booking_id, lesson_id) already exists are skipped.
	InsertBatch(ctx context.Context, recs []domain.InvoiceRecord) (int, error)
	// Query returns rows inside r, newest booking first.
	Query(ctx context.Context, r domain.DateRange) ([]domain.InvoiceRecord, error)
	Ping(ctx context.Context) error
	Close()
}
