package purchase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"go.uber.org/zap"
)

const (
	entitlementsFile = "entitlements.jws"
	pendingFile      = "pending.jws"
)

// ReceiptStore is a file-backed Platform. entitlements.jws holds the signed
// transactions the device owns; pending.jws holds signed transactions handed
// out, in order, by Purchase. One compact JWS per line.
type ReceiptStore struct {
	dir string
	v   *Verifier
	log *zap.Logger
	now func() time.Time

	mu sync.Mutex
}

// NewReceiptStore constructs a store rooted at dir.
func NewReceiptStore(dir string, v *Verifier, log *zap.Logger) *ReceiptStore {
	return &ReceiptStore{dir: dir, v: v, log: log, now: time.Now}
}

// CurrentEntitlements returns active, verified entitlements. Lines that fail
// verification are skipped and logged.
func (s *ReceiptStore) CurrentEntitlements(ctx context.Context) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, entitlementsFile))
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []Transaction
	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx, err := s.v.Verify(l)
		if err != nil {
			s.log.Warn("skipping unverifiable entitlement", zap.Error(err))
			continue
		}
		if tx.Active(now) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Purchase returns the first pending transaction for productID. The
// transaction stays pending until Finish, so a purchase whose delivery fails
// is handed out again. No pending record means the flow was cancelled.
func (s *ReceiptStore) Purchase(ctx context.Context, productID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, tx, _, err := s.findPending(ctx, func(tx Transaction) bool { return tx.ProductID == productID })
	if errors.Is(err, errNoPending) {
		return Transaction{}, fmt.Errorf("%w: no pending %s purchase", errs.ErrPurchaseCancelled, productID)
	}
	return tx, err
}

// Finish marks txID delivered: it leaves pending.jws and, for expiring
// products, becomes an entitlement. Finishing an unknown or already finished
// transaction is a no-op.
func (s *ReceiptStore) Finish(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, tx, lines, err := s.findPending(ctx, func(tx Transaction) bool { return tx.ID == txID })
	if errors.Is(err, errNoPending) {
		return nil
	}
	if err != nil {
		return err
	}
	if tx.ExpiresDate != nil {
		if err := appendLine(filepath.Join(s.dir, entitlementsFile), lines[i]); err != nil {
			return err
		}
	}
	rest := append(append([]string{}, lines[:i]...), lines[i+1:]...)
	if err := writeLines(filepath.Join(s.dir, pendingFile), rest); err != nil {
		return err
	}
	s.log.Info("purchase finished", zap.String("product", tx.ProductID), zap.String("transaction", tx.ID))
	return nil
}

var errNoPending = errors.New("no matching pending transaction")

func (s *ReceiptStore) findPending(ctx context.Context, match func(Transaction) bool) (int, Transaction, []string, error) {
	lines, err := readLines(filepath.Join(s.dir, pendingFile))
	if err != nil {
		return 0, Transaction{}, nil, err
	}
	for i, l := range lines {
		if err := ctx.Err(); err != nil {
			return 0, Transaction{}, nil, err
		}
		tx, err := s.v.Verify(l)
		if err != nil {
			return 0, Transaction{}, nil, err
		}
		if match(tx) {
			return i, tx, lines, nil
		}
	}
	return 0, Transaction{}, nil, errNoPending
}

func readLines(p string) ([]string, error) {
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			out = append(out, l)
		}
	}
	return out, sc.Err()
}

func writeLines(p string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return os.WriteFile(p, buf.Bytes(), 0o600)
}

func appendLine(p, line string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
