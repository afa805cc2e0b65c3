// Package sqlite persists authorization state in a SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	q    *queries
	opts store.Options
}

var _ store.StateStore = (*Store)(nil)

// NewStore opens dsn (a file path or ":memory:") and applies migrations.
func NewStore(dsn string, opts store.Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer keeps DELETE ... RETURNING serialised and lets ":memory:"
	// behave as a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, q: &queries{db: db}, opts: opts.WithDefaults()}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, provider domain.Provider, redirectURL string, scopes []string) (string, error) {
	key, fp, err := store.NewKey()
	if err != nil {
		return "", err
	}
	st := store.NewState(provider, redirectURL, scopes, s.opts)

	err = s.q.InsertState(ctx, stateRow{
		KeyHash:     fp,
		Provider:    string(st.Provider),
		RedirectURL: st.RedirectURL,
		Scopes:      strings.Join(st.Scopes, " "),
		CreatedAt:   st.CreatedAt.UnixMilli(),
		ExpiresAt:   st.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", store.ErrAlreadyExists
		}
		return "", fmt.Errorf("sqlite: insert state: %w", err)
	}
	return key, nil
}

func (s *Store) Consume(ctx context.Context, key string) (domain.AuthorizationState, error) {
	if key == "" {
		return domain.AuthorizationState{}, store.ErrNotFound
	}

	row, err := s.q.ConsumeState(ctx, store.Fingerprint(key))
	if err != nil {
		return domain.AuthorizationState{}, mapNotFound(err)
	}

	st, err := mapState(row)
	if err != nil {
		return domain.AuthorizationState{}, err
	}
	if st.Expired(s.opts.Now()) {
		return domain.AuthorizationState{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.q.DeleteExpiredStates(ctx, s.opts.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired states: %w", err)
	}
	return n, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapState(r stateRow) (domain.AuthorizationState, error) {
	p, err := domain.ParseProvider(r.Provider)
	if err != nil {
		return domain.AuthorizationState{}, fmt.Errorf("sqlite: stored provider %q: %w", r.Provider, err)
	}
	return domain.AuthorizationState{
		Provider:    p,
		RedirectURL: r.RedirectURL,
		Scopes:      domain.NormalizeScopes(strings.Fields(r.Scopes)),
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:   time.UnixMilli(r.ExpiresAt).UTC(),
	}, nil
}
