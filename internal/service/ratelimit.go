package service

import (
	"context"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/limiter"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/state"
	"go.uber.org/zap"
)

// TierSource reports the user's current subscription tier.
type TierSource interface {
	CurrentTier() model.Tier
}

// RateLimitConfig sets weekly point limits per tier and the status thresholds.
type RateLimitConfig struct {
	FreeWeeklyLimit  int
	PrimeWeeklyLimit int
	WarnRatio        float64
	CritRatio        float64
}

// DefaultRateLimitConfig returns the production limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		FreeWeeklyLimit:  10,
		PrimeWeeklyLimit: 50,
		WarnRatio:        limiter.DefaultWarnRatio,
		CritRatio:        limiter.DefaultCritRatio,
	}
}

// RateLimitService mirrors the server-enforced weekly point quota.
// Atomicity is owned by the remote increment; the pre-check only saves a round trip.
type RateLimitService struct {
	store limiter.Store
	tiers TierSource
	cfg   RateLimitConfig
	log   *zap.Logger
	now   func() time.Time

	state *state.Store[model.UsageSnapshot]
}

// NewRateLimitService constructs the service.
func NewRateLimitService(store limiter.Store, tiers TierSource, cfg RateLimitConfig, log *zap.Logger) *RateLimitService {
	return &RateLimitService{
		store: store,
		tiers: tiers,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: state.New(model.UsageSnapshot{}),
	}
}

// State exposes the published usage state.
func (s *RateLimitService) State() *state.Store[model.UsageSnapshot] { return s.state }

// CheckAndRecordUsage consumes points from this week's quota.
func (s *RateLimitService) CheckAndRecordUsage(ctx context.Context, points int) error {
	now := s.now()
	userID, err := auth.RequireUser(ctx, now)
	if err != nil {
		return err
	}
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", errs.ErrValidation)
	}
	limit := s.limit()
	week := limiter.WeekStart(now)

	current, err := s.store.Count(ctx, userID, week)
	if err != nil {
		metrics.QuotaChecksTotal.WithLabelValues("error").Inc()
		return err
	}
	if current+points > limit {
		s.publish(current, limit, week)
		metrics.QuotaChecksTotal.WithLabelValues("denied_precheck").Inc()
		return &errs.RateLimitExceededError{Remaining: limiter.Remaining(limit, current), Limit: limit}
	}

	allowed, newCount, err := s.store.Increment(ctx, userID, week, points, limit)
	if err != nil {
		metrics.QuotaChecksTotal.WithLabelValues("error").Inc()
		return err
	}
	s.publish(newCount, limit, week)
	if !allowed {
		s.log.Info("weekly quota denied by server",
			zap.String("user_id", userID.String()),
			zap.Int("count", newCount),
			zap.Int("limit", limit))
		metrics.QuotaChecksTotal.WithLabelValues("denied_server").Inc()
		return &errs.RateLimitExceededError{Remaining: limiter.Remaining(limit, newCount), Limit: limit}
	}
	metrics.QuotaChecksTotal.WithLabelValues("allowed").Inc()
	metrics.QuotaPointsConsumed.Add(float64(points))
	return nil
}

// GetRemainingCalls reads this week's usage without consuming any points.
func (s *RateLimitService) GetRemainingCalls(ctx context.Context) (int, error) {
	now := s.now()
	userID, err := auth.RequireUser(ctx, now)
	if err != nil {
		return 0, err
	}
	limit := s.limit()
	week := limiter.WeekStart(now)
	current, err := s.store.Count(ctx, userID, week)
	if err != nil {
		return 0, err
	}
	s.publish(current, limit, week)
	return limiter.Remaining(limit, current), nil
}

// Status classifies the published remaining quota.
func (s *RateLimitService) Status() limiter.Status {
	snap := s.state.Get()
	return limiter.Classify(snap.RemainingCalls, snap.WeeklyLimit, s.cfg.WarnRatio, s.cfg.CritRatio)
}

func (s *RateLimitService) limit() int {
	if s.tiers != nil && s.tiers.CurrentTier() == model.TierPrime {
		return s.cfg.PrimeWeeklyLimit
	}
	return s.cfg.FreeWeeklyLimit
}

func (s *RateLimitService) publish(used, limit int, week time.Time) {
	s.state.Set(model.UsageSnapshot{
		CurrentUsage:   used,
		RemainingCalls: limiter.Remaining(limit, used),
		WeeklyLimit:    limit,
		WeekStart:      week,
	})
}
