// Package store implements persistence on PostgreSQL: the channel registry,
// job deduplication, failed extractions and subscriber profiles.
//
// It is transport-agnostic and never touches the scraping session.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed store.
type Postgres struct {
	db     DB
	logger *zap.Logger
}

// New returns a Postgres store.
func New(db DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger.Named("store")}
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a row is missing.
var ErrNotFound = errors.New("not found")

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
