package repository

import (
	"context"
	"time"

	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository provides access to the remote token ledger and its audit log.
//
// Ledger writes are compare-and-set on the previously read value; a lost race
// returns errs.ErrConflict instead of silently overwriting another device's write.
type TokenRepository interface {
	// GetOrCreate returns the ledger row, creating an empty one stamped resetAt if missing.
	GetOrCreate(ctx context.Context, userID uuid.UUID, resetAt time.Time) (*model.TokenLedger, error)
	// SetFreeUsed moves free_tokens_used from old to new.
	SetFreeUsed(ctx context.Context, userID uuid.UUID, old, new int) error
	// SetBalance moves the purchased balance from old to new.
	SetBalance(ctx context.Context, userID uuid.UUID, old, new int) error
	// ResetFree zeroes free_tokens_used if the reset date is still prevReset.
	// It reports false when another writer already performed the reset.
	ResetFree(ctx context.Context, userID uuid.UUID, prevReset, now time.Time) (bool, error)
	// InsertTransaction appends an audit record.
	InsertTransaction(ctx context.Context, tx model.TokenTransaction) error
	// MarkRefunded flags the latest unrefunded use record for referenceID.
	MarkRefunded(ctx context.Context, userID uuid.UUID, referenceID string) error
}
