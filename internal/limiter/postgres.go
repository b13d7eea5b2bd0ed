package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/billix-app/billix/internal/repository/postgres"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PG is a PostgreSQL-backed weekly usage store. The increment is a single call to
// increment_rentcast_usage, which does the check-and-increment inside the server.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a store over the shared repository pool.
func NewPG(db *postgres.DB) *PG {
	return &PG{pool: db.Pool}
}

// NewPGWithQuerier constructs a PostgreSQL-backed store over any querier.
func NewPGWithQuerier(q pgxQuerier) *PG {
	return &PG{pool: q}
}

// Count returns the call count for (user, week); a missing row is zero.
func (l *PG) Count(ctx context.Context, userID uuid.UUID, weekStart time.Time) (int, error) {
	const q = `SELECT call_count FROM rentcast_usage WHERE user_id=$1 AND week_start=$2`
	var n int
	err := l.pool.QueryRow(ctx, q, userID, weekStart.UTC()).Scan(&n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	default:
		return 0, postgres.Classify(err)
	}
}

// Increment consumes points through the remote atomic function.
func (l *PG) Increment(ctx context.Context, userID uuid.UUID, weekStart time.Time, points, limit int) (bool, int, error) {
	const q = `SELECT allowed, new_count FROM increment_rentcast_usage($1, $2, $3, $4)`
	var (
		allowed  bool
		newCount int
	)
	if err := l.pool.QueryRow(ctx, q, userID, weekStart.UTC(), points, limit).Scan(&allowed, &newCount); err != nil {
		return false, 0, postgres.Classify(err)
	}
	return allowed, newCount, nil
}
