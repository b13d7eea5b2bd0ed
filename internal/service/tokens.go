package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/metrics"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/purchase"
	"github.com/billix-app/billix/internal/repository"
	"github.com/billix-app/billix/internal/state"
	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// MemberSource reports whether the user has unlimited tokens.
type MemberSource interface {
	IsMember() bool
}

// TokenConfig sets the monthly free allowance and the purchasable pack size.
type TokenConfig struct {
	FreeMonthlyAllowance int
	PackSize             int
	// CreditBackoff is the first wait before re-applying a credit that lost a
	// compare-and-set race.
	CreditBackoff time.Duration
}

// DefaultTokenConfig returns the production allowance and pack size.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{FreeMonthlyAllowance: 2, PackSize: 3, CreditBackoff: 50 * time.Millisecond}
}

// TokenService manages the free-plus-purchased token balance.
//
// The in-memory snapshot is a read-through cache; the remote ledger is the
// source of truth and is reloaded on every operation.
type TokenService struct {
	repo     repository.TokenRepository
	members  MemberSource
	platform purchase.Platform
	cfg      TokenConfig
	log      *zap.Logger
	now      func() time.Time
	newID    func() (uuid.UUID, error)

	state *state.Store[model.TokenSnapshot]
}

// NewTokenService constructs the service.
func NewTokenService(repo repository.TokenRepository, members MemberSource, platform purchase.Platform, cfg TokenConfig, log *zap.Logger) *TokenService {
	if cfg.CreditBackoff <= 0 {
		cfg.CreditBackoff = DefaultTokenConfig().CreditBackoff
	}
	return &TokenService{
		repo:     repo,
		members:  members,
		platform: platform,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewV4,
		state:    state.New(model.TokenSnapshot{FreeAllowance: cfg.FreeMonthlyAllowance}),
	}
}

// State exposes the published token state.
func (s *TokenService) State() *state.Store[model.TokenSnapshot] { return s.state }

// Balance loads the ledger, applying the monthly reset if due.
func (s *TokenService) Balance(ctx context.Context) (model.TokenSnapshot, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.TokenSnapshot{}, err
	}
	l, err := s.load(ctx, userID)
	if err != nil {
		return model.TokenSnapshot{}, err
	}
	return s.publish(l), nil
}

// UseToken spends one token for referenceID. Members are never charged but
// still get an audit record. It returns false when no token is available.
func (s *TokenService) UseToken(ctx context.Context, referenceID string) (bool, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return false, err
	}

	if s.isMember() {
		if err := s.record(ctx, userID, 0, model.TxUse, referenceID); err != nil {
			return false, err
		}
		metrics.TokenOpsTotal.WithLabelValues("use", "member").Inc()
		s.state.Update(func(v *model.TokenSnapshot) { v.Unlimited = true })
		return true, nil
	}

	l, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}

	var source string
	switch {
	case s.freeRemaining(l) > 0:
		if err := s.repo.SetFreeUsed(ctx, userID, l.FreeTokensUsed, l.FreeTokensUsed+1); err != nil {
			return false, err
		}
		l.FreeTokensUsed++
		source = "free"
	case l.Balance > 0:
		if err := s.repo.SetBalance(ctx, userID, l.Balance, l.Balance-1); err != nil {
			return false, err
		}
		l.Balance--
		source = "balance"
	default:
		s.publish(l)
		metrics.TokenOpsTotal.WithLabelValues("use", "none").Inc()
		return false, nil
	}

	s.publish(l)
	metrics.TokenOpsTotal.WithLabelValues("use", source).Inc()
	if err := s.record(ctx, userID, -1, model.TxUse, referenceID); err != nil {
		s.log.Error("token spent but audit record failed",
			zap.String("user_id", userID.String()),
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return true, err
	}
	return true, nil
}

// RefundToken returns one token to the purchased balance for a failed use of
// referenceID. The originating use record is flagged first so a refund
// applies at most once. Members are a no-op.
func (s *TokenService) RefundToken(ctx context.Context, referenceID string) error {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return err
	}
	if s.isMember() {
		return nil
	}
	if err := s.repo.MarkRefunded(ctx, userID, referenceID); err != nil {
		return err
	}
	if err := s.credit(ctx, userID, 1); err != nil {
		return err
	}
	metrics.TokenOpsTotal.WithLabelValues("refund", "balance").Inc()
	return s.record(ctx, userID, 1, model.TxRefund, referenceID)
}

// PurchaseTokenPack buys a token pack through the platform and credits it.
// The platform transaction id is the unique reference, so a replayed receipt
// returns errs.ErrAlreadyExists without crediting. The platform transaction is
// finished only once its purchase record exists; until then the platform hands
// it out again.
func (s *TokenService) PurchaseTokenPack(ctx context.Context) (model.TokenSnapshot, error) {
	userID, err := auth.RequireUser(ctx, s.now())
	if err != nil {
		return model.TokenSnapshot{}, err
	}
	tx, err := s.platform.Purchase(ctx, purchase.ProductTokenPack)
	if err != nil {
		return model.TokenSnapshot{}, err
	}
	err = s.record(ctx, userID, s.cfg.PackSize, model.TxPurchase, tx.ID)
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		s.finish(ctx, tx)
		return model.TokenSnapshot{}, err
	case err != nil:
		s.log.Warn("purchase not recorded; transaction left unfinished",
			zap.String("transaction", tx.ID),
			zap.Error(err))
		return model.TokenSnapshot{}, err
	}
	s.finish(ctx, tx)

	if err := s.credit(ctx, userID, s.cfg.PackSize); err != nil {
		s.log.Error("purchase recorded but credit failed",
			zap.String("user_id", userID.String()),
			zap.String("transaction", tx.ID),
			zap.Error(err))
		return model.TokenSnapshot{}, err
	}
	metrics.TokenOpsTotal.WithLabelValues("purchase", "platform").Inc()
	return s.state.Get(), nil
}

// finish acknowledges a recorded transaction. A failure leaves it unfinished;
// the next purchase replays it into the unique reference and finishes it then.
func (s *TokenService) finish(ctx context.Context, tx purchase.Transaction) {
	if err := s.platform.Finish(ctx, tx.ID); err != nil {
		s.log.Warn("finish transaction", zap.String("transaction", tx.ID), zap.Error(err))
	}
}

// credit adds n to the purchased balance. A credit follows an already claimed
// receipt or refund flag, so a lost compare-and-set is re-applied on a fresh read.
func (s *TokenService) credit(ctx context.Context, userID uuid.UUID, n int) error {
	b := retry.WithMaxRetries(2, retry.NewExponential(s.cfg.CreditBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		l, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		err = s.repo.SetBalance(ctx, userID, l.Balance, l.Balance+n)
		if errors.Is(err, errs.ErrConflict) {
			metrics.RetriesTotal.WithLabelValues("token_credit").Inc()
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		l.Balance += n
		s.publish(l)
		return nil
	})
}

// load reads the ledger row and applies the monthly reset when the stored
// reset date falls in an earlier (year, month) than now, both in UTC.
func (s *TokenService) load(ctx context.Context, userID uuid.UUID) (*model.TokenLedger, error) {
	now := s.now().UTC()
	l, err := s.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !resetDue(l.FreeTokensResetDate, now) {
		return l, nil
	}

	done, err := s.repo.ResetFree(ctx, userID, l.FreeTokensResetDate, now)
	if err != nil {
		return nil, err
	}
	if !done {
		// another device reset first
		return s.repo.GetOrCreate(ctx, userID, now)
	}
	l.FreeTokensUsed = 0
	l.FreeTokensResetDate = now
	metrics.MonthlyResetsTotal.Inc()
	s.log.Info("monthly free tokens reset", zap.String("user_id", userID.String()))
	if err := s.record(ctx, userID, s.cfg.FreeMonthlyAllowance, model.TxFreeMonthly, now.Format("2006-01")); err != nil {
		return nil, err
	}
	return l, nil
}

func resetDue(last, now time.Time) bool {
	ly, lm, _ := last.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	return ly != ny || lm != nm
}

func (s *TokenService) freeRemaining(l *model.TokenLedger) int {
	if r := s.cfg.FreeMonthlyAllowance - l.FreeTokensUsed; r > 0 {
		return r
	}
	return 0
}

func (s *TokenService) isMember() bool {
	return s.members != nil && s.members.IsMember()
}

func (s *TokenService) record(ctx context.Context, userID uuid.UUID, amount int, typ model.TransactionType, ref string) error {
	id, err := s.newID()
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	return s.repo.InsertTransaction(ctx, model.TokenTransaction{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		ReferenceID: ref,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *TokenService) publish(l *model.TokenLedger) model.TokenSnapshot {
	snap := model.TokenSnapshot{
		Balance:             l.Balance,
		FreeTokensRemaining: s.freeRemaining(l),
		FreeAllowance:       s.cfg.FreeMonthlyAllowance,
		Unlimited:           s.isMember(),
	}
	s.state.Set(snap)
	return snap
}
