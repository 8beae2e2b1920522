package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
)

var invoiceColumns = []string{
	"id", "booking_id", "lesson_id", "client_name", "client_email", "client_tax_id",
	"client_address", "service_name", "amount", "tax_base", "tax_amount", "booking_time", "raw_data", "created_at",
}

func sampleRecords() []domain.InvoiceRecord {
	at := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	return []domain.InvoiceRecord{
		{BookingID: "42", LessonID: "43", ClientName: "Ana", ServiceName: "Lesson", Amount: 121, TaxBase: 100, TaxAmount: 21, BookingTime: at, RawData: json.RawMessage(`{"id":"43"}`)},
		{BookingID: "42", LessonID: "44", ClientName: "Ana", ServiceName: "Lesson", Amount: 60.5, TaxBase: 50, TaxAmount: 10.5, BookingTime: at.Add(time.Hour)},
	}
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithDB(mock), mock
}

func TestPostgresInsertBatchCommitsAllRows(t *testing.T) {
	s, mock := newMockStore(t)
	recs := sampleRecords()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs("42", "43", "Ana", "", "", "", "Lesson", 121.0, 100.0, 21.0, recs[0].BookingTime, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs("42", "44", "Ana", "", "", "", "Lesson", 60.5, 50.0, 10.5, recs[1].BookingTime, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.InsertBatch(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertBatchCountsOnlyNewRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("ON CONFLICT \\(booking_id, lesson_id\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("ON CONFLICT \\(booking_id, lesson_id\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := s.InsertBatch(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertBatchRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO invoices").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check constraint violated"})
	mock.ExpectRollback()

	n, err := s.InsertBatch(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, ierr.IsPersistence(err))
	assert.Contains(t, ierr.Hint(err, ""), "23514")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertBatchEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuery(t *testing.T) {
	created := time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC)
	later := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	t.Run("unfiltered", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("FROM invoices\\s+ORDER BY booking_time DESC").
			WillReturnRows(mock.NewRows(invoiceColumns).
				AddRow(int64(2), "42", "44", "Ana", "ana@example.com", "N/A", "", "Lesson", 60.5, 50.0, 10.5, later, []byte(`{"id":"44"}`), created).
				AddRow(int64(1), "42", "43", "Ana", "ana@example.com", "N/A", "", "Lesson", 121.0, 100.0, 21.0, earlier, []byte(nil), created))

		got, err := s.Query(context.Background(), domain.DateRange{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "44", got[0].LessonID)
		assert.Equal(t, 60.5, got[0].Amount)
		assert.JSONEq(t, `{"id":"44"}`, string(got[0].RawData))
		assert.Nil(t, got[1].RawData)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("date range", func(t *testing.T) {
		s, mock := newMockStore(t)
		r := domain.DateRange{From: earlier.Truncate(24 * time.Hour), Until: earlier.Truncate(24 * time.Hour).AddDate(0, 0, 1)}
		mock.ExpectQuery("WHERE booking_time >= \\$1 AND booking_time < \\$2").
			WithArgs(r.From, r.Until).
			WillReturnRows(mock.NewRows(invoiceColumns))

		got, err := s.Query(context.Background(), r)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("FROM invoices").WillReturnError(errors.New("connection refused"))

		_, err := s.Query(context.Background(), domain.DateRange{})
		require.Error(t, err)
		assert.True(t, ierr.IsPersistence(err))
		assert.Equal(t, "Invoice storage is unavailable", ierr.Hint(err, ""))
	})
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS invoices").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, Schema, "UNIQUE (booking_id, lesson_id)")
}
