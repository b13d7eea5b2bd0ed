package purchase

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/billix-app/billix/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

// signedClaims is the payload of a signed transaction. Dates are unix milliseconds.
type signedClaims struct {
	jwt.RegisteredClaims
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	BundleID              string `json:"bundleId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate,omitempty"`
	RevocationDate        int64  `json:"revocationDate,omitempty"`
}

// Verifier checks ES256 signed transactions whose x5c header chains to a trusted root.
type Verifier struct {
	roots    *x509.CertPool
	bundleID string
	now      func() time.Time
}

// NewVerifier constructs a verifier. An empty bundleID accepts any bundle.
func NewVerifier(roots *x509.CertPool, bundleID string) *Verifier {
	return &Verifier{roots: roots, bundleID: bundleID, now: time.Now}
}

// LoadRoots reads PEM certificates from path into a pool.
func LoadRoots(path string) (*x509.CertPool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	found := false
	for {
		var blk *pem.Block
		blk, b = pem.Decode(b)
		if blk == nil {
			break
		}
		c, err := x509.ParseCertificate(blk.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse root: %w", err)
		}
		pool.AddCert(c)
		found = true
	}
	if !found {
		return nil, errors.New("no certificates in root file")
	}
	return pool, nil
}

// Verify checks the signature and chain of a signed transaction and returns its contents.
func (v *Verifier) Verify(signed string) (Transaction, error) {
	var c signedClaims
	_, err := jwt.ParseWithClaims(signed, &c, v.keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %w", errs.ErrVerification, err)
	}
	if c.TransactionID == "" || c.ProductID == "" {
		return Transaction{}, fmt.Errorf("%w: missing transaction fields", errs.ErrVerification)
	}
	if v.bundleID != "" && c.BundleID != v.bundleID {
		return Transaction{}, fmt.Errorf("%w: bundle %q", errs.ErrVerification, c.BundleID)
	}
	tx := Transaction{
		ID:           c.TransactionID,
		OriginalID:   c.OriginalTransactionID,
		ProductID:    c.ProductID,
		BundleID:     c.BundleID,
		PurchaseDate: time.UnixMilli(c.PurchaseDate).UTC(),
		ExpiresDate:  millis(c.ExpiresDate),
	}
	tx.RevocationDate = millis(c.RevocationDate)
	if tx.OriginalID == "" {
		tx.OriginalID = tx.ID
	}
	return tx, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	raw, ok := t.Header["x5c"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("missing x5c header")
	}
	certs := make([]*x509.Certificate, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, errors.New("bad x5c entry")
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("x5c decode: %w", err)
		}
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("x5c parse: %w", err)
		}
		certs = append(certs, c)
	}
	inter := x509.NewCertPool()
	for _, c := range certs[1:] {
		inter.AddCert(c)
	}
	leaf := certs[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: inter,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("leaf key is not ECDSA")
	}
	return pub, nil
}

func millis(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
