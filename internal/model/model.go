// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree  Tier = "free"
	TierPrime Tier = "prime"
)

// WeeklyUsage is the server-side per-user, per-week point counter (rentcast_usage).
type WeeklyUsage struct {
	UserID    uuid.UUID
	WeekStart time.Time // Monday 00:00 UTC
	CallCount int
}

// UsageSnapshot is the client mirror of the weekly quota shown to the user.
type UsageSnapshot struct {
	CurrentUsage   int       `json:"current_usage"`
	RemainingCalls int       `json:"remaining_calls"`
	WeeklyLimit    int       `json:"weekly_limit"`
	WeekStart      time.Time `json:"week_start"`
}

// TokenLedger is the server row holding a user's purchased and free tokens.
type TokenLedger struct {
	UserID              uuid.UUID
	Balance             int       // purchased tokens
	FreeTokensUsed      int       // consumed from this month's allowance
	FreeTokensResetDate time.Time // last monthly reset
	UpdatedAt           time.Time
}

// TransactionType classifies a token ledger movement.
type TransactionType string

const (
	TxPurchase    TransactionType = "purchase"
	TxFreeMonthly TransactionType = "free_monthly"
	TxUse         TransactionType = "use"
	TxRefund      TransactionType = "refund"
)

// TokenTransaction is an append-only audit record of a ledger movement.
type TokenTransaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      int // signed: + credit, - debit, 0 for member bypass
	Type        TransactionType
	ReferenceID string
	Refunded    bool
	CreatedAt   time.Time
}

// TokenSnapshot is the client mirror of the token balance.
type TokenSnapshot struct {
	Balance             int  `json:"balance"`
	FreeTokensRemaining int  `json:"free_tokens_remaining"`
	FreeAllowance       int  `json:"free_allowance"`
	Unlimited           bool `json:"unlimited"`
}

// Available returns free plus purchased tokens.
func (s TokenSnapshot) Available() int { return s.FreeTokensRemaining + s.Balance }

// Subscription is the server-mirrored subscription fields of a profile row.
type Subscription struct {
	Tier      Tier
	ExpiresAt *time.Time // nil = no expiry
}

// Active reports whether the server row grants membership at now.
func (s Subscription) Active(now time.Time) bool {
	if s.Tier != TierPrime {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// EntitlementSource records which signals decided the member state.
type EntitlementSource string

const (
	SourceNone         EntitlementSource = "none"
	SourceVerified     EntitlementSource = "platform+server"
	SourcePlatformOnly EntitlementSource = "platform_only"
)

// EntitlementSnapshot is the client mirror of membership status.
type EntitlementSnapshot struct {
	IsMember  bool              `json:"is_member"`
	Tier      Tier              `json:"tier"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Source    EntitlementSource `json:"source"`
	CheckedAt time.Time         `json:"checked_at"`
}

// TutorialSettings controls which onboarding hints are shown.
type TutorialSettings struct {
	ShowHomeTour    bool `json:"show_home_tour"`
	ShowUploadTips  bool `json:"show_upload_tips"`
	ShowRewardsTour bool `json:"show_rewards_tour"`
}

// DefaultTutorialSettings is used when the profile cannot be read.
func DefaultTutorialSettings() TutorialSettings {
	return TutorialSettings{ShowHomeTour: true, ShowUploadTips: true, ShowRewardsTour: true}
}

// StreakStatus is the typed result of get_streak_status.
type StreakStatus struct {
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastCheckIn    *time.Time `json:"last_check_in"`
	CheckedInToday bool       `json:"checked_in_today"`
}

// CheckInResult is the typed result of check_in_daily.
type CheckInResult struct {
	Success       bool   `json:"success"`
	PointsAwarded int    `json:"points_awarded"`
	NewStreak     int    `json:"new_streak"`
	Message       string `json:"message"`
}

// NewsItem is one entry of get_todays_news.
type NewsItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// RewardTask is one entry of get_user_tasks.
type RewardTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	Target      int    `json:"target"`
	Points      int    `json:"points"`
	Completed   bool   `json:"completed"`
	Claimed     bool   `json:"claimed"`
}

// ClaimResult is the typed result of claim_task_reward.
type ClaimResult struct {
	Success       bool   `json:"success"`
	PointsAwarded int    `json:"points_awarded"`
	Message       string `json:"message"`
}
