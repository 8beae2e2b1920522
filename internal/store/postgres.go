package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
)

//go:embed schema.sql
var Schema string

const (
	insertInvoiceSQL = `INSERT INTO invoices
    (booking_id, lesson_id, client_name, client_email, client_tax_id, client_address,
     service_name, amount, tax_base, tax_amount, booking_time, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (booking_id, lesson_id) DO NOTHING`

	selectInvoicesSQL = `SELECT id, booking_id, lesson_id, client_name, client_email, client_tax_id,
    client_address, service_name, amount, tax_base, tax_amount, booking_time, raw_data, created_at
FROM invoices`
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool, pool: pool}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, such as a transaction-scoped
// pool or a mock.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Migrate creates the invoices table and its indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, recs []domain.InvoiceRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, persistenceError(err, "tx begin failed")
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, r := range recs {
		tag, err := tx.Exec(ctx, insertInvoiceSQL,
			r.BookingID, r.LessonID, r.ClientName, r.ClientEmail, r.ClientTaxID, r.ClientAddress,
			r.ServiceName, r.Amount, r.TaxBase, r.TaxAmount, r.BookingTime, rawJSON(r.RawData),
		)
		if err != nil {
			return 0, persistenceError(err, fmt.Sprintf("insert %s failed", r.DedupKey()))
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, persistenceError(err, "tx commit failed")
	}
	return inserted, nil
}

func (s *PostgresStore) Query(ctx context.Context, r domain.DateRange) ([]domain.InvoiceRecord, error) {
	sql := selectInvoicesSQL
	var args []any
	if !r.IsZero() {
		sql += "\nWHERE booking_time >= $1 AND booking_time < $2"
		args = append(args, r.From, r.Until)
	}
	sql += "\nORDER BY booking_time DESC, id DESC"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistenceError(err, "invoice query failed")
	}
	defer rows.Close()

	invoices := make([]domain.InvoiceRecord, 0)
	for rows.Next() {
		var rec domain.InvoiceRecord
		var raw []byte
		if err := rows.Scan(
			&rec.ID, &rec.BookingID, &rec.LessonID, &rec.ClientName, &rec.ClientEmail, &rec.ClientTaxID,
			&rec.ClientAddress, &rec.ServiceName, &rec.Amount, &rec.TaxBase, &rec.TaxAmount,
			&rec.BookingTime, &raw, &rec.CreatedAt,
		); err != nil {
			return nil, persistenceError(err, "invoice scan failed")
		}
		if len(raw) > 0 {
			rec.RawData = json.RawMessage(raw)
		}
		invoices = append(invoices, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "invoice iteration failed")
	}
	return invoices, nil
}

// rawJSON keeps an absent payload NULL instead of an invalid empty jsonb.
func rawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func persistenceError(err error, msg string) error {
	b := ierr.WithError(err).WithMessage(msg)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		b = b.WithHintf("Database rejected the invoice rows (SQLSTATE %s)", pgErr.Code)
	} else {
		b = b.WithHint("Invoice storage is unavailable")
	}
	return b.Mark(ierr.ErrPersistence)
}
