package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// CredentialKey is the fixed key under which persistent stores keep the
// credential.
const CredentialKey = "session.credential"

// ErrUnreadableCredential is wrapped by TokenStore implementations whose
// stored value can no longer be decoded. The manager treats such a credential
// as expired and clears it.
var ErrUnreadableCredential = errors.New("stored credential is unreadable")

// TokenStore persists the one session credential. It holds no policy:
// freshness is decided by the manager after Load. Clear must leave nothing
// behind even when it races a Save; the last writer wins.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the credential in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = token != ""
	return nil
}

func (s *MemoryTokenStore) Load(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}
