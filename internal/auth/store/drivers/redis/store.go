// Package redis stores authorization state in Redis so it survives restarts
// and is shared across replicas. Expiry is native; DeleteExpired is a no-op.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/store"
)

// DefaultKeyPrefix namespaces state keys.
const DefaultKeyPrefix = "comma-auth:state:"

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	opts   store.Options
	owned  bool
}

var _ store.StateStore = (*Store)(nil)

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, opts store.Options) (*Store, error) {
	cfg = cfg.withDefaults()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	s := New(rdb, cfg.KeyPrefix, opts)
	s.owned = true
	return s, nil
}

// New wraps an existing client. Close leaves a caller-supplied client open.
func New(rdb goredis.UniversalClient, prefix string, opts store.Options) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, opts: opts.WithDefaults()}
}

func (s *Store) key(fp string) string { return s.prefix + fp }

func (s *Store) Create(ctx context.Context, provider domain.Provider, redirectURL string, scopes []string) (string, error) {
	key, fp, err := store.NewKey()
	if err != nil {
		return "", err
	}

	blob, err := store.EncodeState(store.NewState(provider, redirectURL, scopes, s.opts))
	if err != nil {
		return "", fmt.Errorf("redis: encode state: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(fp), blob, s.opts.TTL).Result()
	if err != nil {
		return "", fmt.Errorf("redis: set state: %w", err)
	}
	if !ok {
		return "", store.ErrAlreadyExists
	}
	return key, nil
}

// Consume relies on GETDEL so two racing callbacks cannot both read the value.
func (s *Store) Consume(ctx context.Context, key string) (domain.AuthorizationState, error) {
	if key == "" {
		return domain.AuthorizationState{}, store.ErrNotFound
	}

	blob, err := s.rdb.GetDel(ctx, s.key(store.Fingerprint(key))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.AuthorizationState{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("redis: consume state: %w", err)
	}

	st, err := store.DecodeState(blob)
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("redis: decode state: %w", err)
	}
	if st.Expired(s.opts.Now()) {
		return domain.AuthorizationState{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

// TTL reports the remaining server-side lifetime of key. Used in tests.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, s.key(store.Fingerprint(key))).Result()
}
