package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/logger"
)

var (
	invoiceRowsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoicesync_invoice_rows_persisted_total",
		Help: "Invoice rows newly written to storage",
	})

	persistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoicesync_persistence_failures_total",
		Help: "Invoice batches that could not be written and were dropped",
	})
)

// Stage is how far a booking got through the pipeline.
type Stage string

const (
	StageReceived          Stage = "received"
	StageTokenAcquired     Stage = "token_acquired"
	StageBookingAggregated Stage = "booking_aggregated"
	StageLinesComputed     Stage = "lines_computed"
	StagePersisted         Stage = "persisted"
	StageAcknowledged      Stage = "acknowledged"
	StageFailed            Stage = "failed"
)

// Result describes one ProcessBooking run.
type Result struct {
	BookingID string
	// Stage is the last stage completed, or StageFailed.
	Stage Stage
	// FailedAt is the last stage completed before a failure.
	FailedAt Stage
	Lines    int
	Skipped  int
	Inserted int
	// PersistErr is set when rows were computed but could not be stored.
	// The booking still counts as processed.
	PersistErr error
}

// InvoiceStore is the storage the service writes to and lists from.
type InvoiceStore interface {
	InsertBatch(ctx context.Context, recs []domain.InvoiceRecord) (int, error)
	Query(ctx context.Context, r domain.DateRange) ([]domain.InvoiceRecord, error)
}

type InvoiceService struct {
	aggregator *Aggregator
	tax        *TaxCalculator
	store      InvoiceStore
	snapshots  *SnapshotStore
	location   *time.Location
	now        func() time.Time
}

func NewInvoiceService(aggregator *Aggregator, tax *TaxCalculator, store InvoiceStore, snapshots *SnapshotStore, loc *time.Location) *InvoiceService {
	if loc == nil {
		loc = time.UTC
	}
	if snapshots == nil {
		snapshots = NewSnapshotStore()
	}
	return &InvoiceService{
		aggregator: aggregator,
		tax:        tax,
		store:      store,
		snapshots:  snapshots,
		location:   loc,
		now:        time.Now,
	}
}

// ProcessBooking turns one webhook event into stored invoice rows.
// Errors are returned only when the booking could not be aggregated; a storage
// failure is reported in Result.PersistErr.
func (s *InvoiceService) ProcessBooking(ctx context.Context, bookingID string) (*Result, error) {
	log := logger.FromContext(ctx)
	receivedAt := s.now()
	res := &Result{BookingID: bookingID, Stage: StageReceived}

	agg, err := s.aggregator.Aggregate(ctx, bookingID)
	if err != nil {
		res.FailedAt = failedStage(err)
		res.Stage = StageFailed
		return res, err
	}
	res.Stage = StageBookingAggregated

	s.snapshots.Set(Snapshot{
		BookingID:   bookingID,
		Client:      agg.Client,
		Lessons:     agg.Lessons,
		ProcessedAt: receivedAt,
	})

	lines, skipped := s.tax.ComputeLines(ctx, agg.Lessons, receivedAt)
	res.Lines, res.Skipped = len(lines), skipped
	res.Stage = StageLinesComputed

	records := BuildRecords(bookingID, agg.Client, lines)
	if len(records) == 0 {
		log.Warn().Int("skipped", skipped).Msg("booking has no billable lessons")
		res.Stage = StagePersisted
		return res, nil
	}

	inserted, err := s.store.InsertBatch(ctx, records)
	if err != nil {
		persistenceFailures.Inc()
		log.Error().Err(err).Int("rows", len(records)).Msg("failed to persist invoice rows")
		res.PersistErr = err
		return res, nil
	}

	invoiceRowsPersisted.Add(float64(inserted))
	res.Inserted = inserted
	res.Stage = StagePersisted

	if duplicates := len(records) - inserted; duplicates > 0 {
		log.Info().Int("duplicates", duplicates).Msg("ignored rows already stored by an earlier delivery")
	}
	return res, nil
}

// ListInvoices returns stored rows between two optional calendar days, end
// inclusive, newest first.
func (s *InvoiceService) ListInvoices(ctx context.Context, start, end *time.Time) ([]domain.InvoiceRecord, error) {
	r := domain.ResolveDateRange(start, end, s.now().In(s.location))
	return s.store.Query(ctx, r)
}

func (s *InvoiceService) LastProcessed() (Snapshot, bool) {
	return s.snapshots.Get()
}

// Location is the zone query dates are read in.
func (s *InvoiceService) Location() *time.Location {
	return s.location
}

// failedStage maps an aggregation error to the last stage that completed.
func failedStage(err error) Stage {
	switch {
	case ierr.IsUpstreamData(err), ierr.IsDataIntegrity(err):
		return StageTokenAcquired
	default:
		return StageReceived
	}
}
