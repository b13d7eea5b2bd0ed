package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RewardsRepo calls the server-side rewards functions. Each function returns a
// single json document; the client treats them as opaque atomic operations.
type RewardsRepo struct{ db *DB }

// NewRewardsRepo constructs a rewards repository.
func NewRewardsRepo(db *DB) *RewardsRepo { return &RewardsRepo{db: db} }

// GetStreakStatus calls get_streak_status.
func (r *RewardsRepo) GetStreakStatus(ctx context.Context, userID uuid.UUID) (model.StreakStatus, error) {
	var out model.StreakStatus
	err := r.callJSON(ctx, `SELECT get_streak_status($1)::json`, &out, userID)
	return out, err
}

// UpdateUserStreak calls update_user_streak.
func (r *RewardsRepo) UpdateUserStreak(ctx context.Context, userID uuid.UUID) (model.StreakStatus, error) {
	var out model.StreakStatus
	err := r.callJSON(ctx, `SELECT update_user_streak($1)::json`, &out, userID)
	return out, err
}

// CheckInDaily calls check_in_daily.
func (r *RewardsRepo) CheckInDaily(ctx context.Context, userID uuid.UUID) (model.CheckInResult, error) {
	var out model.CheckInResult
	err := r.callJSON(ctx, `SELECT check_in_daily($1)::json`, &out, userID)
	return out, err
}

// GetTodaysNews calls get_todays_news.
func (r *RewardsRepo) GetTodaysNews(ctx context.Context) ([]model.NewsItem, error) {
	var out []model.NewsItem
	err := r.callJSON(ctx, `SELECT get_todays_news()::json`, &out)
	return out, err
}

// GetUserTasks calls get_user_tasks.
func (r *RewardsRepo) GetUserTasks(ctx context.Context, userID uuid.UUID) ([]model.RewardTask, error) {
	var out []model.RewardTask
	err := r.callJSON(ctx, `SELECT get_user_tasks($1)::json`, &out, userID)
	return out, err
}

// IncrementTaskProgress calls increment_task_progress.
func (r *RewardsRepo) IncrementTaskProgress(ctx context.Context, userID uuid.UUID, taskID string, amount int) (model.RewardTask, error) {
	var out model.RewardTask
	err := r.callJSON(ctx, `SELECT increment_task_progress($1, $2, $3)::json`, &out, userID, taskID, amount)
	return out, err
}

// ClaimTaskReward calls claim_task_reward.
func (r *RewardsRepo) ClaimTaskReward(ctx context.Context, userID uuid.UUID, taskID string) (model.ClaimResult, error) {
	var out model.ClaimResult
	err := r.callJSON(ctx, `SELECT claim_task_reward($1, $2)::json`, &out, userID, taskID)
	return out, err
}

func (r *RewardsRepo) callJSON(ctx context.Context, q string, dst any, args ...any) error {
	var raw []byte
	if err := r.db.Pool.QueryRow(ctx, q, args...).Scan(&raw); err != nil {
		return Classify(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode rpc result: %w", errs.ErrDatabase, err)
	}
	return nil
}
