package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
)

var (
	ErrInvalidEmail     = errors.New("domain: invalid email address")
	ErrDomainNotAllowed = errors.New("domain: email domain not allowed")
)

// UserInfo is a normalised identity. It is never persisted and only lives
// long enough to mint a token.
type UserInfo struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Picture  *string  `json:"picture"`
	Domain   string   `json:"domain"`
	Provider Provider `json:"provider"`
}

// NewUserInfo validates email and enforces the allow-list. An identity whose
// domain is outside allow cannot be constructed.
func NewUserInfo(email, name, picture string, provider Provider, allow AllowList) (UserInfo, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return UserInfo{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	at := strings.LastIndex(email, "@")
	dom := strings.ToLower(email[at+1:])
	if !allow.Contains(dom) {
		return UserInfo{}, ErrDomainNotAllowed
	}

	if _, err := ParseProvider(string(provider)); err != nil {
		return UserInfo{}, err
	}

	u := UserInfo{
		Email:    email,
		Name:     strings.TrimSpace(name),
		Domain:   dom,
		Provider: provider,
	}
	if picture = strings.TrimSpace(picture); picture != "" {
		u.Picture = &picture
	}
	if u.Name == "" {
		u.Name = email[:at]
	}
	return u, nil
}

// AllowList is a case-insensitive set of email domains.
type AllowList struct {
	domains []string
}

// NewAllowList lower-cases, trims and dedupes domains. Empty entries are dropped.
func NewAllowList(domains ...string) AllowList {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return AllowList{domains: out}
}

// ParseAllowList splits a comma-separated list.
func ParseAllowList(csv string) AllowList {
	return NewAllowList(strings.Split(csv, ",")...)
}

func (a AllowList) Contains(domain string) bool {
	return slices.Contains(a.domains, strings.ToLower(strings.TrimSpace(domain)))
}

// Domains returns a copy of the configured domains.
func (a AllowList) Domains() []string {
	return slices.Clone(a.domains)
}

func (a AllowList) Len() int { return len(a.domains) }

func (a AllowList) String() string { return strings.Join(a.domains, ",") }
