package postgres

import (
	"context"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token ledger repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// GetOrCreate returns the ledger row, inserting an empty one if needed.
func (r *TokenRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, resetAt time.Time) (*model.TokenLedger, error) {
	const q = `
INSERT INTO token_balances (user_id, balance, free_tokens_used, free_tokens_reset_date)
VALUES ($1, 0, 0, $2)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING user_id, balance, free_tokens_used, free_tokens_reset_date, updated_at`
	var l model.TokenLedger
	err := r.db.Pool.QueryRow(ctx, q, userID, resetAt.UTC()).
		Scan(&l.UserID, &l.Balance, &l.FreeTokensUsed, &l.FreeTokensResetDate, &l.UpdatedAt)
	if err != nil {
		return nil, Classify(err)
	}
	return &l, nil
}

// SetFreeUsed updates free_tokens_used only if it still equals old.
func (r *TokenRepo) SetFreeUsed(ctx context.Context, userID uuid.UUID, old, new int) error {
	const q = `
UPDATE token_balances
SET free_tokens_used = $3, updated_at = now()
WHERE user_id = $1 AND free_tokens_used = $2`
	return r.compareAndSet(ctx, q, userID, old, new)
}

// SetBalance updates balance only if it still equals old.
func (r *TokenRepo) SetBalance(ctx context.Context, userID uuid.UUID, old, new int) error {
	const q = `
UPDATE token_balances
SET balance = $3, updated_at = now()
WHERE user_id = $1 AND balance = $2`
	return r.compareAndSet(ctx, q, userID, old, new)
}

func (r *TokenRepo) compareAndSet(ctx context.Context, q string, userID uuid.UUID, old, new int) error {
	tag, err := r.db.Pool.Exec(ctx, q, userID, old, new)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConflict
	}
	return nil
}

// ResetFree zeroes the monthly usage unless another writer got there first.
func (r *TokenRepo) ResetFree(ctx context.Context, userID uuid.UUID, prevReset, now time.Time) (bool, error) {
	const q = `
UPDATE token_balances
SET free_tokens_used = 0, free_tokens_reset_date = $3, updated_at = now()
WHERE user_id = $1 AND free_tokens_reset_date = $2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, prevReset.UTC(), now.UTC())
	if err != nil {
		return false, Classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertTransaction appends an immutable audit row.
func (r *TokenRepo) InsertTransaction(ctx context.Context, tx model.TokenTransaction) error {
	const q = `
INSERT INTO token_transactions (id, user_id, amount, type, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, tx.ID, tx.UserID, tx.Amount, string(tx.Type), tx.ReferenceID, tx.CreatedAt.UTC())
	return Classify(err)
}

// MarkRefunded flags the most recent unrefunded use of referenceID.
func (r *TokenRepo) MarkRefunded(ctx context.Context, userID uuid.UUID, referenceID string) error {
	const q = `
UPDATE token_transactions SET refunded = true
WHERE id = (
  SELECT id FROM token_transactions
  WHERE user_id = $1 AND reference_id = $2 AND type = 'use' AND amount < 0 AND NOT refunded
  ORDER BY created_at DESC
  LIMIT 1
)`
	tag, err := r.db.Pool.Exec(ctx, q, userID, referenceID)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
