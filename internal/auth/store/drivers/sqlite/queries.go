package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db DBTX
}

type stateRow struct {
	KeyHash     string
	Provider    string
	RedirectURL string
	Scopes      string
	CreatedAt   int64 // unix millis
	ExpiresAt   int64 // unix millis
}

const insertState = `
INSERT INTO authorization_states (key_hash, provider, redirect_url, scopes, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *queries) InsertState(ctx context.Context, r stateRow) error {
	_, err := q.db.ExecContext(ctx, insertState,
		r.KeyHash, r.Provider, r.RedirectURL, r.Scopes, r.CreatedAt, r.ExpiresAt)
	return err
}

const consumeState = `
DELETE FROM authorization_states
WHERE key_hash = ?
RETURNING key_hash, provider, redirect_url, scopes, created_at, expires_at`

func (q *queries) ConsumeState(ctx context.Context, keyHash string) (stateRow, error) {
	var r stateRow
	err := q.db.QueryRowContext(ctx, consumeState, keyHash).Scan(
		&r.KeyHash, &r.Provider, &r.RedirectURL, &r.Scopes, &r.CreatedAt, &r.ExpiresAt)
	return r, err
}

const deleteExpiredStates = `DELETE FROM authorization_states WHERE expires_at <= ?`

func (q *queries) DeleteExpiredStates(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredStates, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
