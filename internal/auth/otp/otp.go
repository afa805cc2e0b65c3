// Package otp defines the step-up verifier used to escalate a provider
// login to full scope. Drivers never return errors for provider faults;
// they report an error Outcome instead.
package otp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Kind classifies an Outcome.
type Kind string

const (
	KindSent     Kind = "sent"
	KindApproved Kind = "approved"
	KindPending  Kind = "pending"
	KindError    Kind = "error"
)

// Outcome is the result of a send or check. Message is diagnostic and is
// only logged.
type Outcome struct {
	Kind    Kind
	Message string
	SID     string
}

// Approved reports whether the outcome authorises a step-up upgrade.
func (o Outcome) Approved() bool { return o.Kind == KindApproved }

func Errorf(format string, args ...any) Outcome {
	return Outcome{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

// Status is the latest verification attempt for a phone number.
type Status struct {
	SID       string    `json:"sid"`
	To        string    `json:"to"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"date_created"`
}

type Verifier interface {
	SendCode(ctx context.Context, phone string) Outcome
	CheckCode(ctx context.Context, phone, code string) Outcome

	// QueryStatus reports false when no attempt is known for phone.
	QueryStatus(ctx context.Context, phone string) (Status, bool)
}

var ErrInvalidPhone = errors.New("otp: phone number must be E.164")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidatePhone accepts E.164 numbers: a plus sign then 7 to 15 digits.
func ValidatePhone(phone string) error {
	if !e164.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// MaskPhone keeps the country prefix and last four digits for logs.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "***"
	}
	return phone[:3] + "***" + phone[len(phone)-4:]
}
