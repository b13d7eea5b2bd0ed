package clientcrypto

import (
	"bytes"
	"crypto/subtle"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveFromPassphrase_DeterministicAndSaltDependent(t *testing.T) {
	t.Parallel()
	pw := []byte("secret-pass")
	k1 := DeriveFromPassphrase(pw, []byte("salt-1"))
	k2 := DeriveFromPassphrase(pw, []byte("salt-1"))
	if subtle.ConstantTimeCompare(k1, k2) != 1 {
		t.Fatalf("not deterministic")
	}
	if subtle.ConstantTimeCompare(k1, DeriveFromPassphrase(pw, []byte("salt-2"))) != 0 {
		t.Fatalf("must change with salt")
	}
	if len(k1) != KeyLen {
		t.Fatalf("len=%d", len(k1))
	}
}

func TestDeriveKey_PurposeBound(t *testing.T) {
	t.Parallel()
	root, _ := Rand(KeyLen)
	a, err := DeriveKey(root, "session")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	b, _ := DeriveKey(root, "session")
	c, _ := DeriveKey(root, "receipts")
	if !bytes.Equal(a, b) {
		t.Fatalf("not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Fatalf("purpose must change key")
	}
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	aad := []byte("billix/session/v1")
	pt := []byte(`{"access_token":"x"}`)

	blob, err := Seal(key, aad, pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	out, err := Open(key, aad, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("roundtrip mismatch")
	}

	if _, err := Open(key, []byte("other"), blob); err == nil {
		t.Fatalf("expected aad mismatch")
	}
	other, _ := Rand(KeyLen)
	if _, err := Open(other, aad, blob); err == nil {
		t.Fatalf("expected wrong key failure")
	}
	blob[len(blob)-1] ^= 0xFF
	if _, err := Open(key, aad, blob); err == nil {
		t.Fatalf("expected tamper detection")
	}
	if _, err := Open(key, aad, []byte("short")); err != ErrShortBlob {
		t.Fatalf("want ErrShortBlob, got %v", err)
	}
}
