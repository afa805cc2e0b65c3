package domain

import "time"

// DefaultStateTTL bounds how long a login may sit between start and callback.
const DefaultStateTTL = 10 * time.Minute

// AuthorizationState correlates a login start with its callback. Each record
// is consumable once.
type AuthorizationState struct {
	Provider    Provider
	RedirectURL string // empty when the caller wants the token pair as JSON
	Scopes      []string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the state is unusable at now.
func (s AuthorizationState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
