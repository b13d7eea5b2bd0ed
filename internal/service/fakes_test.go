package service

import (
	"context"
	"sync"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/limiter"
	"github.com/billix-app/billix/internal/model"
	"github.com/billix-app/billix/internal/purchase"
	"github.com/billix-app/billix/internal/repository"
	"github.com/gofrs/uuid/v5"
)

func userCtx(now time.Time) (context.Context, uuid.UUID) {
	id := uuid.Must(uuid.NewV4())
	return auth.WithSession(context.Background(), auth.Session{
		AccessToken: "tok",
		UserID:      id,
		ExpiresAt:   now.Add(time.Hour),
	}), id
}

func fixed(t time.Time) func() time.Time { return func() time.Time { return t } }

/************ usage store ************/

type fakeUsage struct {
	count     int
	countErr  error
	incErr    error
	denyAt    int // server denies when count+points would exceed this; 0 = use limit
	incCalls  int
	lastWeek  time.Time
	lastLimit int
}

var _ limiter.Store = (*fakeUsage)(nil)

func (f *fakeUsage) Count(_ context.Context, _ uuid.UUID, week time.Time) (int, error) {
	f.lastWeek = week
	return f.count, f.countErr
}

func (f *fakeUsage) Increment(_ context.Context, _ uuid.UUID, week time.Time, points, limit int) (bool, int, error) {
	f.incCalls++
	f.lastWeek, f.lastLimit = week, limit
	if f.incErr != nil {
		return false, 0, f.incErr
	}
	ceiling := limit
	if f.denyAt > 0 {
		ceiling = f.denyAt
	}
	if f.count+points > ceiling {
		return false, f.count, nil
	}
	f.count += points
	return true, f.count, nil
}

type staticTier model.Tier

func (t staticTier) CurrentTier() model.Tier { return model.Tier(t) }

type staticMember bool

func (m staticMember) IsMember() bool { return bool(m) }

/************ token repo ************/

type fakeTokens struct {
	mu sync.Mutex

	ledger        *model.TokenLedger
	txs           []model.TokenTransaction
	resets        int
	getErr        error
	conflictsLeft int // SetBalance returns ErrConflict this many times
	beforeReset   func(*model.TokenLedger)
	insertErr     error // InsertTransaction fails with this once
}

var _ repository.TokenRepository = (*fakeTokens)(nil)

func (f *fakeTokens) GetOrCreate(_ context.Context, userID uuid.UUID, resetAt time.Time) (*model.TokenLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.ledger == nil {
		f.ledger = &model.TokenLedger{UserID: userID, FreeTokensResetDate: resetAt}
	}
	cp := *f.ledger
	return &cp, nil
}

func (f *fakeTokens) SetFreeUsed(_ context.Context, _ uuid.UUID, old, new int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledger.FreeTokensUsed != old {
		return errs.ErrConflict
	}
	f.ledger.FreeTokensUsed = new
	return nil
}

func (f *fakeTokens) SetBalance(_ context.Context, _ uuid.UUID, old, new int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return errs.ErrConflict
	}
	if f.ledger.Balance != old {
		return errs.ErrConflict
	}
	f.ledger.Balance = new
	return nil
}

func (f *fakeTokens) ResetFree(_ context.Context, _ uuid.UUID, prev, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beforeReset != nil {
		f.beforeReset(f.ledger)
		f.beforeReset = nil
	}
	if !f.ledger.FreeTokensResetDate.Equal(prev) {
		return false, nil
	}
	f.ledger.FreeTokensUsed = 0
	f.ledger.FreeTokensResetDate = now
	f.resets++
	return true, nil
}

func (f *fakeTokens) InsertTransaction(_ context.Context, tx model.TokenTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		err := f.insertErr
		f.insertErr = nil
		return err
	}
	if tx.Type == model.TxPurchase {
		for _, t := range f.txs {
			if t.Type == model.TxPurchase && t.ReferenceID == tx.ReferenceID {
				return errs.ErrAlreadyExists
			}
		}
	}
	f.txs = append(f.txs, tx)
	return nil
}

func (f *fakeTokens) MarkRefunded(_ context.Context, _ uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.txs) - 1; i >= 0; i-- {
		t := &f.txs[i]
		if t.Type == model.TxUse && t.Amount < 0 && t.ReferenceID == ref && !t.Refunded {
			t.Refunded = true
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeTokens) ofType(typ model.TransactionType) []model.TokenTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TokenTransaction
	for _, t := range f.txs {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

/************ profiles ************/

type fakeProfiles struct {
	sub      model.Subscription
	subErr   error
	subCalls int

	settings      model.TutorialSettings
	settingsErr   []error // consumed per call; nil entry = success
	settingsCalls int
}

var _ repository.ProfileRepository = (*fakeProfiles)(nil)

func (f *fakeProfiles) GetSubscription(context.Context, uuid.UUID) (model.Subscription, error) {
	f.subCalls++
	return f.sub, f.subErr
}

func (f *fakeProfiles) GetTutorialSettings(context.Context, uuid.UUID) (model.TutorialSettings, error) {
	f.settingsCalls++
	if len(f.settingsErr) > 0 {
		err := f.settingsErr[0]
		f.settingsErr = f.settingsErr[1:]
		if err != nil {
			return model.TutorialSettings{}, err
		}
	}
	return f.settings, nil
}

/************ platform ************/

type fakePlatform struct {
	ents    []purchase.Transaction
	entsErr error

	pending   []purchase.Transaction
	bought    []string
	finished  []string
	finishErr error
}

var _ purchase.Platform = (*fakePlatform)(nil)

func (f *fakePlatform) CurrentEntitlements(context.Context) ([]purchase.Transaction, error) {
	return f.ents, f.entsErr
}

func (f *fakePlatform) Purchase(_ context.Context, productID string) (purchase.Transaction, error) {
	for _, tx := range f.pending {
		if tx.ProductID == productID {
			f.bought = append(f.bought, productID)
			return tx, nil
		}
	}
	return purchase.Transaction{}, errs.ErrPurchaseCancelled
}

func (f *fakePlatform) Finish(_ context.Context, txID string) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	for i, tx := range f.pending {
		if tx.ID == txID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			f.finished = append(f.finished, txID)
			if tx.ExpiresDate != nil {
				f.ents = append(f.ents, tx)
			}
			return nil
		}
	}
	return nil
}

/************ rewards ************/

type fakeRewards struct {
	streak  model.StreakStatus
	checkIn model.CheckInResult
	news    []model.NewsItem
	tasks   []model.RewardTask
	claim   model.ClaimResult
	err     error

	lastTask   string
	lastAmount int
}

var _ repository.RewardsRepository = (*fakeRewards)(nil)

func (f *fakeRewards) GetStreakStatus(context.Context, uuid.UUID) (model.StreakStatus, error) {
	return f.streak, f.err
}

func (f *fakeRewards) CheckInDaily(context.Context, uuid.UUID) (model.CheckInResult, error) {
	return f.checkIn, f.err
}

func (f *fakeRewards) GetTodaysNews(context.Context) ([]model.NewsItem, error) {
	return f.news, f.err
}

func (f *fakeRewards) UpdateUserStreak(context.Context, uuid.UUID) (model.StreakStatus, error) {
	f.streak.CurrentStreak++
	return f.streak, f.err
}

func (f *fakeRewards) GetUserTasks(context.Context, uuid.UUID) ([]model.RewardTask, error) {
	return f.tasks, f.err
}

func (f *fakeRewards) IncrementTaskProgress(_ context.Context, _ uuid.UUID, taskID string, amount int) (model.RewardTask, error) {
	f.lastTask, f.lastAmount = taskID, amount
	return model.RewardTask{ID: taskID, Progress: amount}, f.err
}

func (f *fakeRewards) ClaimTaskReward(_ context.Context, _ uuid.UUID, taskID string) (model.ClaimResult, error) {
	f.lastTask = taskID
	return f.claim, f.err
}
