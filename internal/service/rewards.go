package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/repository"
	"go.uber.org/zap"
)

// fallbackNews is shown when today's news cannot be loaded.
var fallbackNews = []model.NewsItem{
	{Title: "Review your recurring bills", Summary: "Subscriptions you no longer use are the easiest savings."},
	{Title: "Compare utility plans", Summary: "Many providers offer cheaper rates to customers who ask."},
	{Title: "Set a monthly budget", Summary: "Tracking bills against a budget makes spikes easy to spot."},
}

// RewardsService wraps the streak, check-in and news functions.
type RewardsService struct {
	repo repository.RewardsRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewRewardsService constructs the service.
func NewRewardsService(repo repository.RewardsRepository, log *zap.Logger) *RewardsService {
	return &RewardsService{repo: repo, log: log, now: time.Now}
}

// Streak returns the user's check-in streak.
func (s *RewardsService) Streak(ctx context.Context) (model.StreakStatus, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.StreakStatus{}, err
	}
	return s.repo.GetStreakStatus(ctx, userID)
}

// TouchStreak advances the streak for today's activity.
func (s *RewardsService) TouchStreak(ctx context.Context) (model.StreakStatus, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.StreakStatus{}, err
	}
	return s.repo.UpdateUserStreak(ctx, userID)
}

// Tasks lists the user's reward tasks.
func (s *RewardsService) Tasks(ctx context.Context) ([]model.RewardTask, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.repo.GetUserTasks(ctx, userID)
}

// Progress adds amount to a task's progress.
func (s *RewardsService) Progress(ctx context.Context, taskID string, amount int) (model.RewardTask, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.RewardTask{}, err
	}
	if strings.TrimSpace(taskID) == "" || amount <= 0 {
		return model.RewardTask{}, fmt.Errorf("%w: task id and positive amount required", errs.ErrValidation)
	}
	return s.repo.IncrementTaskProgress(ctx, userID, taskID, amount)
}

// Claim collects a completed task's points.
func (s *RewardsService) Claim(ctx context.Context, taskID string) (model.ClaimResult, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.ClaimResult{}, err
	}
	if strings.TrimSpace(taskID) == "" {
		return model.ClaimResult{}, fmt.Errorf("%w: task id required", errs.ErrValidation)
	}
	return s.repo.ClaimTaskReward(ctx, userID, taskID)
}

// CheckIn records today's check-in; the server decides points and streak.
func (s *RewardsService) CheckIn(ctx context.Context) (model.CheckInResult, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.CheckInResult{}, err
	}
	return s.repo.CheckInDaily(ctx, userID)
}

// News returns today's news, or a fixed list when it cannot be loaded.
func (s *RewardsService) News(ctx context.Context) []model.NewsItem {
	items, err := s.repo.GetTodaysNews(ctx)
	if err != nil || len(items) == 0 {
		if err != nil {
			s.log.Warn("news unavailable; using fallback", zap.Error(err))
		}
		metrics.FallbacksTotal.WithLabelValues("news").Inc()
		return append([]model.NewsItem(nil), fallbackNews...)
	}
	return items
}
