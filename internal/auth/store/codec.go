package store

import (
	"encoding/json"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
)

// record is the serialised form used by drivers that store blobs.
type record struct {
	Provider    string   `json:"provider"`
	RedirectURL string   `json:"redirect_url,omitempty"`
	Scopes      []string `json:"scopes"`
	CreatedAt   int64    `json:"created_at"` // unix millis
	ExpiresAt   int64    `json:"expires_at"` // unix millis
}

// EncodeState marshals s for blob storage.
func EncodeState(s domain.AuthorizationState) ([]byte, error) {
	return json.Marshal(record{
		Provider:    string(s.Provider),
		RedirectURL: s.RedirectURL,
		Scopes:      s.Scopes,
		CreatedAt:   s.CreatedAt.UnixMilli(),
		ExpiresAt:   s.ExpiresAt.UnixMilli(),
	})
}

// DecodeState reverses EncodeState.
func DecodeState(b []byte) (domain.AuthorizationState, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return domain.AuthorizationState{}, err
	}
	p, err := domain.ParseProvider(r.Provider)
	if err != nil {
		return domain.AuthorizationState{}, err
	}
	return domain.AuthorizationState{
		Provider:    p,
		RedirectURL: r.RedirectURL,
		Scopes:      domain.NormalizeScopes(r.Scopes),
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		ExpiresAt:   time.UnixMilli(r.ExpiresAt).UTC(),
	}, nil
}
