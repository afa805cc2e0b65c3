// Package storetest is a conformance suite every StateStore driver runs.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

// Factory opens a clean store using opts.
type Factory func(t *testing.T, opts store.Options) store.StateStore

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Suite tunes assertions for drivers with native expiry.
type Suite struct {
	// NativeExpiry drivers evict on their own, so DeleteExpired reports 0.
	NativeExpiry bool

	// AfterAdvance, when set, runs after the suite moves its clock forward,
	// letting a driver's backend catch up (e.g. miniredis.FastForward).
	AfterAdvance func(d time.Duration)
}

// Run exercises newStore against the StateStore contract.
func Run(t *testing.T, newStore Factory, suite Suite) {
	ctx := context.Background()
	const ttl = 10 * time.Minute

	open := func(t *testing.T) (store.StateStore, *Clock) {
		clock := NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
		s := newStore(t, store.Options{TTL: ttl, Now: clock.Now})
		t.Cleanup(func() { _ = s.Close() })
		return s, clock
	}

	advance := func(clock *Clock, d time.Duration) {
		clock.Advance(d)
		if suite.AfterAdvance != nil {
			suite.AfterAdvance(d)
		}
	}

	t.Run("create then consume", func(t *testing.T) {
		s, clock := open(t)

		key, err := s.Create(ctx, domain.ProviderGoogle, "https://app.comma.cm/home", []string{"read"})
		require.NoError(t, err)
		require.Len(t, key, 43)

		st, err := s.Consume(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.ProviderGoogle, st.Provider)
		require.Equal(t, "https://app.comma.cm/home", st.RedirectURL)
		require.Equal(t, []string{"read"}, st.Scopes)
		require.True(t, st.CreatedAt.Equal(clock.Now()))
		require.True(t, st.ExpiresAt.Equal(clock.Now().Add(ttl)))
	})

	t.Run("second consume fails", func(t *testing.T) {
		s, _ := open(t)

		key, err := s.Create(ctx, domain.ProviderMicrosoft, "", nil)
		require.NoError(t, err)

		st, err := s.Consume(ctx, key)
		require.NoError(t, err)
		require.Empty(t, st.RedirectURL)
		require.NotNil(t, st.Scopes)

		_, err = s.Consume(ctx, key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown key", func(t *testing.T) {
		s, _ := open(t)

		_, err := s.Consume(ctx, "never-issued")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Consume(ctx, "")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("keys are unique", func(t *testing.T) {
		s, _ := open(t)

		seen := make(map[string]struct{})
		for range 100 {
			key, err := s.Create(ctx, domain.ProviderGoogle, "", []string{"read"})
			require.NoError(t, err)
			_, dup := seen[key]
			require.False(t, dup)
			seen[key] = struct{}{}
		}
	})

	t.Run("expired state is not consumable", func(t *testing.T) {
		s, clock := open(t)

		key, err := s.Create(ctx, domain.ProviderGoogle, "", []string{"read"})
		require.NoError(t, err)

		advance(clock, ttl)

		_, err = s.Consume(ctx, key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete expired keeps live states", func(t *testing.T) {
		s, clock := open(t)

		stale, err := s.Create(ctx, domain.ProviderGoogle, "", []string{"read"})
		require.NoError(t, err)

		advance(clock, ttl/2)
		live, err := s.Create(ctx, domain.ProviderApple, "", []string{"read"})
		require.NoError(t, err)

		advance(clock, ttl/2+time.Second)

		n, err := s.DeleteExpired(ctx)
		require.NoError(t, err)
		if !suite.NativeExpiry {
			require.EqualValues(t, 1, n)
		}

		_, err = s.Consume(ctx, stale)
		require.ErrorIs(t, err, store.ErrNotFound)

		st, err := s.Consume(ctx, live)
		require.NoError(t, err)
		require.Equal(t, domain.ProviderApple, st.Provider)
	})

	t.Run("concurrent consume succeeds exactly once", func(t *testing.T) {
		s, _ := open(t)

		key, err := s.Create(ctx, domain.ProviderGoogle, "", []string{"read"})
		require.NoError(t, err)

		const racers = 32
		var wins, losses atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := s.Consume(ctx, key); err == nil {
					wins.Add(1)
				} else if errors.Is(err, store.ErrNotFound) {
					losses.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, wins.Load())
		require.EqualValues(t, racers-1, losses.Load())
	})

	t.Run("ping", func(t *testing.T) {
		s, _ := open(t)
		require.NoError(t, s.Ping(ctx))
	})
}
