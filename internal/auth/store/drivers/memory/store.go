// Package memory is a process-local StateStore. State does not survive a
// restart and is not shared between replicas.
package memory

import (
	"context"
	"sync"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/store"
)

type Store struct {
	opts store.Options

	mu     sync.Mutex
	states map[string]domain.AuthorizationState // keyed by fingerprint
}

var _ store.StateStore = (*Store)(nil)

func New(opts store.Options) *Store {
	return &Store{
		opts:   opts.WithDefaults(),
		states: make(map[string]domain.AuthorizationState),
	}
}

func (s *Store) Create(_ context.Context, provider domain.Provider, redirectURL string, scopes []string) (string, error) {
	key, fp, err := store.NewKey()
	if err != nil {
		return "", err
	}
	st := store.NewState(provider, redirectURL, scopes, s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[fp]; exists {
		return "", store.ErrAlreadyExists
	}
	s.states[fp] = st
	return key, nil
}

func (s *Store) Consume(_ context.Context, key string) (domain.AuthorizationState, error) {
	fp := store.Fingerprint(key)

	s.mu.Lock()
	st, ok := s.states[fp]
	delete(s.states, fp)
	s.mu.Unlock()

	if !ok || st.Expired(s.opts.Now()) {
		return domain.AuthorizationState{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) DeleteExpired(context.Context) (int64, error) {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, st := range s.states {
		if st.Expired(now) {
			delete(s.states, fp)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored states, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
