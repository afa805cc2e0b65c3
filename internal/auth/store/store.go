package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/pkg/cryptox"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// StateStore holds single-use authorization state between login start and
// provider callback. Drivers: memory, redis, sqlite.
type StateStore interface {
	// Create stores a fresh record and returns its one-time key.
	Create(ctx context.Context, provider domain.Provider, redirectURL string, scopes []string) (string, error)

	// Consume atomically removes and returns the record for key. Unknown,
	// already consumed and expired keys all yield ErrNotFound. Of any number
	// of concurrent calls for one key at most one succeeds.
	Consume(ctx context.Context, key string) (domain.AuthorizationState, error)

	// DeleteExpired sweeps orphaned records and reports how many went.
	DeleteExpired(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Options are shared by every driver.
type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = domain.DefaultStateTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewKey returns a random state key and the fingerprint drivers index on.
func NewKey() (key, fingerprint string, err error) {
	key, err = cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", fmt.Errorf("store: generate state key: %w", err)
	}
	return key, cryptox.FingerprintToken(key), nil
}

// Fingerprint hashes a presented key for lookup.
func Fingerprint(key string) string {
	return cryptox.FingerprintToken(key)
}

// NewState builds the record Create persists.
func NewState(provider domain.Provider, redirectURL string, scopes []string, o Options) domain.AuthorizationState {
	now := o.Now().UTC()
	return domain.AuthorizationState{
		Provider:    provider,
		RedirectURL: redirectURL,
		Scopes:      domain.NormalizeScopes(scopes),
		CreatedAt:   now,
		ExpiresAt:   now.Add(o.TTL),
	}
}
