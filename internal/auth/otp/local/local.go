// Package local is an in-process step-up verifier for development and
// tests. Codes are TOTP values over a random per-challenge secret and are
// handed to a Deliverer instead of an SMS gateway.
package local

import (
	"context"
	"sync"
	"time"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/commacm/comma-auth/internal/auth/otp"
	"github.com/commacm/comma-auth/pkg/idx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultMaxAttempts = 5

	// Channel is reported by QueryStatus.
	Channel = "local"
)

// Deliverer hands a freshly generated code to the user.
type Deliverer interface {
	Deliver(ctx context.Context, phone, code string) error
}

type DelivererFunc func(ctx context.Context, phone, code string) error

func (f DelivererFunc) Deliver(ctx context.Context, phone, code string) error { return f(ctx, phone, code) }

// LogDeliverer writes codes to the request logger at info level.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, phone, code string) error {
	slogx.FromContext(ctx).Info("otp code issued", "phone", otp.MaskPhone(phone), "code", code)
	return nil
}

type Config struct {
	CodeTTL     time.Duration
	MaxAttempts int
	Deliverer   Deliverer
	Now         func() time.Time
}

type challenge struct {
	sid       string
	secret    string
	issuedAt  time.Time
	expiresAt time.Time
	attempts  int
	status    string
}

type Verifier struct {
	ttl         time.Duration
	maxAttempts int
	deliver     Deliverer
	now         func() time.Time

	mu         sync.Mutex
	challenges map[string]*challenge
}

var _ otp.Verifier = (*Verifier)(nil)

func New(cfg Config) *Verifier {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Deliverer == nil {
		cfg.Deliverer = LogDeliverer{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		ttl:         cfg.CodeTTL,
		maxAttempts: cfg.MaxAttempts,
		deliver:     cfg.Deliverer,
		now:         cfg.Now,
		challenges:  make(map[string]*challenge),
	}
}

func (v *Verifier) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(v.ttl / time.Second),
		Digits:    potp.DigitsSix,
		Algorithm: potp.AlgorithmSHA1,
	}
}

// SendCode replaces any pending challenge for phone.
func (v *Verifier) SendCode(ctx context.Context, phone string) otp.Outcome {
	if err := otp.ValidatePhone(phone); err != nil {
		return otp.Errorf("%v", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "comma-auth",
		AccountName: phone,
		Period:      uint(v.ttl / time.Second),
		Digits:      potp.DigitsSix,
		Algorithm:   potp.AlgorithmSHA1,
	})
	if err != nil {
		return otp.Errorf("local: generate secret: %v", err)
	}

	now := v.now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, v.opts())
	if err != nil {
		return otp.Errorf("local: generate code: %v", err)
	}

	ch := &challenge{
		sid:       "LV" + idx.NewAt(now),
		secret:    key.Secret(),
		issuedAt:  now,
		expiresAt: now.Add(v.ttl),
		status:    "pending",
	}

	if err := v.deliver.Deliver(ctx, phone, code); err != nil {
		return otp.Errorf("local: deliver: %v", err)
	}

	v.mu.Lock()
	v.challenges[phone] = ch
	v.mu.Unlock()
	return otp.Outcome{Kind: otp.KindSent, SID: ch.sid}
}

// CheckCode approves a matching code once. Wrong codes are pending until
// the attempt budget is spent, after which the challenge is closed.
func (v *Verifier) CheckCode(ctx context.Context, phone, code string) otp.Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.challenges[phone]
	if !ok || ch.status != "pending" {
		return otp.Errorf("local: no pending verification")
	}

	now := v.now()
	if !now.Before(ch.expiresAt) {
		ch.status = "expired"
		return otp.Errorf("local: verification expired")
	}

	ch.attempts++
	valid, _ := totp.ValidateCustom(code, ch.secret, ch.issuedAt, v.opts())
	if valid {
		ch.status = "approved"
		return otp.Outcome{Kind: otp.KindApproved, SID: ch.sid}
	}

	if ch.attempts >= v.maxAttempts {
		ch.status = "max_attempts_reached"
		slogx.FromContext(ctx).Warn("otp attempts exhausted", "phone", otp.MaskPhone(phone))
	}
	return otp.Outcome{Kind: otp.KindPending, SID: ch.sid, Message: ch.status}
}

func (v *Verifier) QueryStatus(_ context.Context, phone string) (otp.Status, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.challenges[phone]
	if !ok {
		return otp.Status{}, false
	}
	status := ch.status
	if status == "pending" && !v.now().Before(ch.expiresAt) {
		status = "expired"
	}
	return otp.Status{
		SID:       ch.sid,
		To:        phone,
		Channel:   Channel,
		Status:    status,
		CreatedAt: ch.issuedAt,
	}, true
}

// Sweep drops challenges past their expiry, whatever their status.
func (v *Verifier) Sweep(context.Context) (int64, error) {
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	var n int64
	for phone, ch := range v.challenges {
		if !now.Before(ch.expiresAt) {
			delete(v.challenges, phone)
			n++
		}
	}
	return n, nil
}

func (v *Verifier) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.challenges)
}
