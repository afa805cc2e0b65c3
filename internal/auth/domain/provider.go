package domain

import (
	"errors"
	"strings"
)

// Provider tags the identity provider an identity came from.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderApple     Provider = "apple"
	ProviderMicrosoft Provider = "microsoft"
)

var ErrUnknownProvider = errors.New("domain: unknown provider")

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderGoogle, ProviderMicrosoft, ProviderApple}
}

// ParseProvider accepts s case-insensitively.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderApple, ProviderMicrosoft:
		return p, nil
	default:
		return "", ErrUnknownProvider
	}
}

func (p Provider) String() string { return string(p) }
