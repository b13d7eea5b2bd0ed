// Package service implements the client-side quota, token and membership logic.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/purchase"
	"github.com/billix-app/billix/internal/repository"
	"github.com/billix-app/billix/internal/state"
	"go.uber.org/zap"
)

// EntitlementService decides membership from the platform purchase records and
// the server profile row. Both must agree; when the server cannot be reached
// the platform signal is trusted alone.
type EntitlementService struct {
	platform purchase.Platform
	profiles repository.ProfileRepository
	log      *zap.Logger
	now      func() time.Time

	state *state.Store[model.EntitlementSnapshot]
}

// NewEntitlementService constructs the service with a non-member initial state.
func NewEntitlementService(platform purchase.Platform, profiles repository.ProfileRepository, log *zap.Logger) *EntitlementService {
	return &EntitlementService{
		platform: platform,
		profiles: profiles,
		log:      log,
		now:      time.Now,
		state:    state.New(model.EntitlementSnapshot{Tier: model.TierFree, Source: model.SourceNone}),
	}
}

// State exposes the published membership state.
func (s *EntitlementService) State() *state.Store[model.EntitlementSnapshot] { return s.state }

// IsMember reports the last published membership decision.
func (s *EntitlementService) IsMember() bool { return s.state.Get().IsMember }

// CurrentTier reports the last published tier.
func (s *EntitlementService) CurrentTier() model.Tier { return s.state.Get().Tier }

// Refresh re-evaluates membership and publishes the result.
func (s *EntitlementService) Refresh(ctx context.Context) (bool, error) {
	now := s.now()

	ents, err := s.platform.CurrentEntitlements(ctx)
	if err != nil {
		s.publish(model.EntitlementSnapshot{Tier: model.TierFree, Source: model.SourceNone, CheckedAt: now})
		return false, err
	}
	platformTx, ok := membership(ents, now)
	if !ok {
		return s.deny(now), nil
	}

	userID, err := auth.RequireUser(ctx, now)
	if err != nil {
		s.log.Info("platform entitlement without session; treating as non-member")
		return s.deny(now), nil
	}

	sub, err := s.profiles.GetSubscription(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return false, err
	case errors.Is(err, errs.ErrNotFound):
		return s.deny(now), nil
	default:
		s.log.Warn("server subscription check failed; trusting platform entitlement",
			zap.String("user_id", userID.String()),
			zap.String("transaction", platformTx.ID),
			zap.Error(err))
		metrics.EntitlementFallbacksTotal.Inc()
		s.publish(model.EntitlementSnapshot{
			IsMember:  true,
			Tier:      model.TierPrime,
			ExpiresAt: platformTx.ExpiresDate,
			Source:    model.SourcePlatformOnly,
			CheckedAt: now,
		})
		return true, nil
	}

	if !sub.Active(now) {
		s.log.Info("platform entitlement not confirmed by server",
			zap.String("user_id", userID.String()),
			zap.String("tier", string(sub.Tier)))
		return s.deny(now), nil
	}
	s.publish(model.EntitlementSnapshot{
		IsMember:  true,
		Tier:      model.TierPrime,
		ExpiresAt: sub.ExpiresAt,
		Source:    model.SourceVerified,
		CheckedAt: now,
	})
	return true, nil
}

// PurchaseMembership runs the platform purchase for the membership product,
// finishes it so it becomes an entitlement, and re-evaluates membership.
func (s *EntitlementService) PurchaseMembership(ctx context.Context) (bool, error) {
	tx, err := s.platform.Purchase(ctx, purchase.ProductMembership)
	if err != nil {
		return false, err
	}
	if err := s.platform.Finish(ctx, tx.ID); err != nil {
		return false, err
	}
	return s.Refresh(ctx)
}

func (s *EntitlementService) deny(now time.Time) bool {
	s.publish(model.EntitlementSnapshot{Tier: model.TierFree, Source: model.SourceNone, CheckedAt: now})
	return false
}

func (s *EntitlementService) publish(snap model.EntitlementSnapshot) {
	metrics.EntitlementChecksTotal.WithLabelValues(string(snap.Source)).Inc()
	s.state.Set(snap)
}

func membership(txs []purchase.Transaction, now time.Time) (purchase.Transaction, bool) {
	for _, tx := range txs {
		if tx.ProductID == purchase.ProductMembership && tx.Active(now) {
			return tx, true
		}
	}
	return purchase.Transaction{}, false
}
