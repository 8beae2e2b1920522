package service

import (
	"sync"
	"time"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
)

// Snapshot is the last aggregation seen by this process. Debug only; nothing
// that produces invoices reads it.
type Snapshot struct {
	BookingID   string                     `json:"booking_id"`
	Client      domain.Client              `json:"client"`
	Lessons     []simplybook.BookingDetail `json:"lessons"`
	ProcessedAt time.Time                  `json:"processed_at"`
}

// SnapshotStore holds one Snapshot, last writer wins.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
}

func (s *SnapshotStore) Get() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, false
	}
	return *s.snap, true
}
