// Package postgres implements store.Store on PostgreSQL through database/sql
// and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/store"
)

type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and waits up to attempts*2s for the database to
// accept connections.
func Open(ctx context.Context, dsn string, attempts int, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	for i := 0; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			logger.Info("Database connection established")
			break
		}
		if i+1 >= attempts {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return New(db, logger), nil
}

func New(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Users() store.UserRepository         { return users{s.db} }
func (s *Store) Products() store.ProductRepository   { return products{s.db} }
func (s *Store) Orders() store.OrderRepository       { return orders{s.db} }
func (s *Store) Reviews() store.ReviewRepository     { return reviews{s.db} }
func (s *Store) Gallery() store.GalleryRepository    { return gallery{s.db} }
func (s *Store) Schedules() store.ScheduleRepository { return schedules{s.db} }
func (s *Store) Pricing() store.PricingRepository    { return pricing{s.db} }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	uniqueViolation    = "23505"
	paymentIntentIndex = "idx_orders_payment_intent"
)

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == paymentIntentIndex {
			return store.ErrIntentInUse
		}
		return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Constraint)
	}
	return err
}

// expectOne returns ErrNotFound when an UPDATE touched no rows.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
