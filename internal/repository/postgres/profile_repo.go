package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetSubscription selects the subscription fields of a profile.
func (r *ProfileRepo) GetSubscription(ctx context.Context, userID uuid.UUID) (model.Subscription, error) {
	const q = `
SELECT COALESCE(subscription_tier, 'free'), subscription_expires_at
FROM profiles WHERE id=$1`
	var (
		tier    string
		expires *time.Time
	)
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&tier, &expires); err != nil {
		return model.Subscription{}, Classify(err)
	}
	return model.Subscription{Tier: model.Tier(tier), ExpiresAt: expires}, nil
}

// GetTutorialSettings selects and decodes the tutorial_settings document.
func (r *ProfileRepo) GetTutorialSettings(ctx context.Context, userID uuid.UUID) (model.TutorialSettings, error) {
	const q = `SELECT tutorial_settings FROM profiles WHERE id=$1`
	var raw []byte
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&raw); err != nil {
		return model.TutorialSettings{}, Classify(err)
	}
	if len(raw) == 0 {
		return model.DefaultTutorialSettings(), nil
	}
	var s model.TutorialSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.TutorialSettings{}, fmt.Errorf("%w: tutorial_settings: %w", errs.ErrDatabase, err)
	}
	return s, nil
}
