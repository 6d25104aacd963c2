package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedCorrupt is returned when a stored credential cannot be opened. It
// wraps lifecycle.ErrUnreadableCredential.
var ErrSealedCorrupt = fmt.Errorf("%w: sealed credential is corrupt or was sealed with another key", lifecycle.ErrUnreadableCredential)

// Sealed encrypts the credential with XChaCha20-Poly1305 before it reaches
// the wrapped store.
type Sealed struct {
	inner lifecycle.TokenStore
	key   []byte
	aad   []byte
}

var _ lifecycle.TokenStore = (*Sealed)(nil)

// NewSealed wraps inner with a 32 byte key.
func NewSealed(inner lifecycle.TokenStore, key []byte) (*Sealed, error) {
	if inner == nil {
		return nil, errors.New("tokenstore: sealed store needs an inner store")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("tokenstore: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealed{
		inner: inner,
		key:   append([]byte(nil), key...),
		aad:   []byte(lifecycle.CredentialKey),
	}, nil
}

// NewSealedFromPassphrase derives the key from passphrase with Argon2id.
// salt should be stable per installation.
func NewSealedFromPassphrase(inner lifecycle.TokenStore, passphrase, salt string) (*Sealed, error) {
	if passphrase == "" {
		return nil, errors.New("tokenstore: passphrase is required")
	}
	if salt == "" {
		salt = lifecycle.CredentialKey
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
	return NewSealed(inner, key)
}

func (s *Sealed) Save(ctx context.Context, token string) error {
	if token == "" {
		return s.inner.Clear(ctx)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	sealed := aead.Seal(nonce, nonce, []byte(token), s.aad)
	return s.inner.Save(ctx, base64.RawURLEncoding.EncodeToString(sealed))
}

func (s *Sealed) Load(ctx context.Context) (string, bool, error) {
	encoded, ok, err := s.inner.Load(ctx)
	if err != nil || !ok {
		return "", false, err
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrSealedCorrupt, err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", false, err
	}

	if len(raw) < aead.NonceSize() {
		return "", false, ErrSealedCorrupt
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, s.aad)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrSealedCorrupt, err)
	}

	return string(plain), len(plain) > 0, nil
}

func (s *Sealed) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}
