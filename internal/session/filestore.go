// Package session persists the authenticated session on the local device.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/billix-app/billix/internal/auth"
	clientcrypto "github.com/billix-app/billix/internal/crypto/clientcrypto"
	"github.com/billix-app/billix/internal/errs"
)

const (
	sessionFile = "session.bin"
	keyFile     = "device.key"
	saltFile    = "device.salt"

	purpose = "billix/session/v1"
)

// DefaultDir returns the per-user config directory.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "billix")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "billix")
}

// FileStore keeps the session sealed with a device key. When a passphrase is
// set the root key is derived from it instead of a random key file.
type FileStore struct {
	dir        string
	passphrase []byte
}

// NewFileStore constructs a store rooted at dir.
func NewFileStore(dir, passphrase string) *FileStore {
	st := &FileStore{dir: dir}
	if passphrase != "" {
		st.passphrase = []byte(passphrase)
	}
	return st
}

// Save seals and writes the session.
func (s *FileStore) Save(sess auth.Session) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	key, err := s.key(true)
	if err != nil {
		return err
	}
	pt, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	blob, err := clientcrypto.Seal(key, []byte(purpose), pt)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, sessionFile), blob, 0o600)
}

// Load reads the session. A missing, unreadable or expired session yields
// errs.ErrNotAuthenticated.
func (s *FileStore) Load(now time.Time) (auth.Session, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return auth.Session{}, fmt.Errorf("%w: login required", errs.ErrNotAuthenticated)
	}
	if err != nil {
		return auth.Session{}, err
	}
	key, err := s.key(false)
	if err != nil {
		return auth.Session{}, fmt.Errorf("%w: device key: %w", errs.ErrNotAuthenticated, err)
	}
	pt, err := clientcrypto.Open(key, []byte(purpose), blob)
	if err != nil {
		return auth.Session{}, fmt.Errorf("%w: session unreadable", errs.ErrNotAuthenticated)
	}
	var sess auth.Session
	if err := json.Unmarshal(pt, &sess); err != nil {
		return auth.Session{}, fmt.Errorf("%w: session corrupt", errs.ErrNotAuthenticated)
	}
	if sess.AccessToken == "" || sess.Expired(now) {
		return auth.Session{}, fmt.Errorf("%w: session expired", errs.ErrNotAuthenticated)
	}
	return sess, nil
}

// Clear removes the stored session; the device key is kept.
func (s *FileStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) key(create bool) ([]byte, error) {
	var root []byte
	if s.passphrase != nil {
		salt, err := s.readOrCreate(saltFile, 16, create)
		if err != nil {
			return nil, err
		}
		root = clientcrypto.DeriveFromPassphrase(s.passphrase, salt)
	} else {
		k, err := s.readOrCreate(keyFile, clientcrypto.KeyLen, create)
		if err != nil {
			return nil, err
		}
		root = k
	}
	return clientcrypto.DeriveKey(root, purpose)
}

func (s *FileStore) readOrCreate(name string, n int, create bool) ([]byte, error) {
	p := filepath.Join(s.dir, name)
	b, err := os.ReadFile(p)
	if err == nil {
		if len(b) != n {
			return nil, fmt.Errorf("%s: bad length %d", name, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || !create {
		return nil, err
	}
	b, err = clientcrypto.Rand(n)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return nil, err
	}
	return b, nil
}
