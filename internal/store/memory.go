package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/punchamoorthee/invoicesync/internal/domain"
)

// MemoryStore keeps invoices in process memory with the same dedup and ordering
// rules as PostgresStore. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    []domain.InvoiceRecord
	keys    map[string]struct{}
	nextID  int64
	now     func() time.Time
	failErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]struct{}),
		now:  time.Now,
	}
}

// FailWith makes every following call return err marked as a persistence error.
// A nil err restores normal operation.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryStore) InsertBatch(ctx context.Context, recs []domain.InvoiceRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}

	// Dedup within the batch as well, so a repeated key in recs counts once.
	fresh := lo.UniqBy(lo.Filter(recs, func(r domain.InvoiceRecord, _ int) bool {
		_, seen := m.keys[r.DedupKey()]
		return !seen
	}), func(r domain.InvoiceRecord) string { return r.DedupKey() })

	created := m.now()
	for _, r := range fresh {
		m.nextID++
		r.ID = m.nextID
		r.CreatedAt = created
		m.rows = append(m.rows, r)
		m.keys[r.DedupKey()] = struct{}{}
	}
	return len(fresh), nil
}

func (m *MemoryStore) Query(ctx context.Context, r domain.DateRange) ([]domain.InvoiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	out := lo.Filter(m.rows, func(rec domain.InvoiceRecord, _ int) bool {
		return r.Contains(rec.BookingTime)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].BookingTime.Equal(out[j].BookingTime) {
			return out[i].BookingTime.After(out[j].BookingTime)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return persistenceError(err, "memory store")
	}
	if m.failErr != nil {
		return persistenceError(m.failErr, "memory store")
	}
	return nil
}
