package service

import (
	"context"
	"errors"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/repository"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// settingsAttempts is the total number of fetches before falling back.
const settingsAttempts = 3

// SettingsService reads onboarding settings with retry and a safe default.
type SettingsService struct {
	profiles repository.ProfileRepository
	backoff  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewSettingsService constructs the service. backoff is the first wait and doubles per attempt.
func NewSettingsService(profiles repository.ProfileRepository, backoff time.Duration, log *zap.Logger) *SettingsService {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &SettingsService{profiles: profiles, backoff: backoff, log: log, now: time.Now}
}

// TutorialSettings never fails: after the last attempt the default is returned.
func (s *SettingsService) TutorialSettings(ctx context.Context) model.TutorialSettings {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.DefaultTutorialSettings()
	}

	var out model.TutorialSettings
	attempt := 0
	b := retry.WithMaxRetries(settingsAttempts-1, retry.NewExponential(s.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		v, err := s.profiles.GetTutorialSettings(ctx, userID)
		switch {
		case err == nil:
			out = v
			return nil
		case errors.Is(err, errs.ErrNotFound), errors.Is(err, context.Canceled):
			return err
		default:
			if attempt > 1 {
				metrics.RetriesTotal.WithLabelValues("tutorial_settings").Inc()
			}
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		s.log.Warn("tutorial settings unavailable; using defaults",
			zap.Int("attempts", attempt),
			zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("tutorial_settings").Inc()
		return model.DefaultTutorialSettings()
	}
	return out
}
