// Package purchase verifies and reads platform in-app purchase records.
package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/billix-app/billix/internal/errs"
)

// Product identifiers sold in the app.
const (
	ProductMembership = "com.billix.prime.monthly"
	ProductTokenPack  = "com.billix.tokens.pack3"
)

// Transaction is a verified platform purchase record.
type Transaction struct {
	ID             string     `json:"transaction_id"`
	OriginalID     string     `json:"original_transaction_id"`
	ProductID      string     `json:"product_id"`
	BundleID       string     `json:"bundle_id"`
	PurchaseDate   time.Time  `json:"purchase_date"`
	ExpiresDate    *time.Time `json:"expires_date,omitempty"`
	RevocationDate *time.Time `json:"revocation_date,omitempty"`
}

// Active reports whether the transaction still grants its product at now.
func (t Transaction) Active(now time.Time) bool {
	if t.RevocationDate != nil {
		return false
	}
	return t.ExpiresDate == nil || t.ExpiresDate.After(now)
}

// Platform is the in-app purchase surface of the device.
type Platform interface {
	// CurrentEntitlements lists verified transactions the user is entitled to now.
	CurrentEntitlements(ctx context.Context) ([]Transaction, error)
	// Purchase runs the purchase flow for productID and returns the verified transaction.
	// A cancelled flow returns errs.ErrPurchaseCancelled.
	// The transaction stays unfinished and is returned again until Finish.
	Purchase(ctx context.Context, productID string) (Transaction, error)
	// Finish acknowledges delivery of txID. It is idempotent.
	Finish(ctx context.Context, txID string) error
}

// NoPlatform is used when no purchase records are configured: it reports no
// entitlements and every purchase is cancelled.
type NoPlatform struct{}

func (NoPlatform) CurrentEntitlements(context.Context) ([]Transaction, error) { return nil, nil }

func (NoPlatform) Finish(context.Context, string) error { return nil }

func (NoPlatform) Purchase(_ context.Context, productID string) (Transaction, error) {
	return Transaction{}, fmt.Errorf("%w: purchases are not configured (%s)", errs.ErrPurchaseCancelled, productID)
}
