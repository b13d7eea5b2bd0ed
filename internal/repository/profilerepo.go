// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository reads server-mirrored profile fields.
type ProfileRepository interface {
	// GetSubscription loads (subscription_tier, subscription_expires_at).
	GetSubscription(ctx context.Context, userID uuid.UUID) (model.Subscription, error)
	// GetTutorialSettings loads the onboarding settings document.
	GetTutorialSettings(ctx context.Context, userID uuid.UUID) (model.TutorialSettings, error)
}

// RewardsRepository invokes the server-defined rewards functions.
type RewardsRepository interface {
	GetStreakStatus(ctx context.Context, userID uuid.UUID) (model.StreakStatus, error)
	UpdateUserStreak(ctx context.Context, userID uuid.UUID) (model.StreakStatus, error)
	CheckInDaily(ctx context.Context, userID uuid.UUID) (model.CheckInResult, error)
	GetTodaysNews(ctx context.Context) ([]model.NewsItem, error)
	GetUserTasks(ctx context.Context, userID uuid.UUID) ([]model.RewardTask, error)
	IncrementTaskProgress(ctx context.Context, userID uuid.UUID, taskID string, amount int) (model.RewardTask, error)
	ClaimTaskReward(ctx context.Context, userID uuid.UUID, taskID string) (model.ClaimResult, error)
}
