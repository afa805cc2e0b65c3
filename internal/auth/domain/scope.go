package domain

import "slices"

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ScopePolicy is the escalation table. Base is granted at provider login,
// StepUp after a successful OTP check.
type ScopePolicy struct {
	Base   []string
	StepUp []string
}

func DefaultScopePolicy() ScopePolicy {
	return ScopePolicy{
		Base:   []string{ScopeRead},
		StepUp: []string{ScopeRead, ScopeWrite, ScopeAdmin},
	}
}

// NormalizeScopes removes blanks and duplicates, keeping first-seen order.
// The result is never nil.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// HasAllScopes reports whether have covers every scope in want.
func HasAllScopes(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}
