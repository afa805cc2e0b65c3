// Package twilio delivers step-up codes through Twilio Verify v2.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	twiliogo "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	verify "github.com/twilio/twilio-go/rest/verify/v2"

	"github.com/commacm/comma-auth/internal/auth/otp"
	"github.com/commacm/comma-auth/pkg/slogx"
)

const (
	ChannelSMS   = "sms"
	ChannelVoice = "voice"

	DefaultTimeout = 5 * time.Second
)

var ErrNotConfigured = errors.New("twilio: account sid, auth token and verify service sid are required")

type Config struct {
	AccountSID string
	AuthToken  string
	ServiceSID string

	// Channel is sms unless set to voice.
	Channel string

	// Timeout bounds each SDK call. The SDK takes no context, so a call that
	// outlives it is abandoned rather than cancelled.
	Timeout time.Duration
}

// verifyAPI is the subset of the Verify v2 service the driver calls.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
	FetchVerification(serviceSid string, sid string) (*verify.VerifyV2Verification, error)
}

type Verifier struct {
	api     verifyAPI
	service string
	channel string
	timeout time.Duration

	mu sync.Mutex
	// Verify has no lookup by phone number, so the last sid is kept per phone.
	lastSID map[string]string
}

var _ otp.Verifier = (*Verifier)(nil)

func New(cfg Config) (*Verifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.ServiceSID == "" {
		return nil, ErrNotConfigured
	}
	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newVerifier(client.VerifyV2, cfg)
}

func newVerifier(api verifyAPI, cfg Config) (*Verifier, error) {
	switch cfg.Channel {
	case "":
		cfg.Channel = ChannelSMS
	case ChannelSMS, ChannelVoice:
	default:
		return nil, fmt.Errorf("twilio: unsupported channel %q", cfg.Channel)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Verifier{
		api:     api,
		service: cfg.ServiceSID,
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		lastSID: make(map[string]string),
	}, nil
}

func (v *Verifier) SendCode(ctx context.Context, phone string) otp.Outcome {
	if err := otp.ValidatePhone(phone); err != nil {
		return otp.Errorf("%v", err)
	}

	var out otp.Outcome
	err := v.call(ctx, func() error {
		params := &verify.CreateVerificationParams{}
		params.SetTo(phone).SetChannel(v.channel)

		ver, err := v.api.CreateVerification(v.service, params)
		if err != nil {
			return err
		}
		out = otp.Outcome{Kind: otp.KindSent, SID: deref(ver.Sid)}
		return nil
	})
	if err != nil {
		return v.failure(ctx, "send", phone, err)
	}

	if out.SID != "" {
		v.mu.Lock()
		v.lastSID[phone] = out.SID
		v.mu.Unlock()
	}
	return out
}

// CheckCode maps Verify's approved status to an approval. Every other status
// is pending; Verify reports a wrong code that way.
func (v *Verifier) CheckCode(ctx context.Context, phone, code string) otp.Outcome {
	if err := otp.ValidatePhone(phone); err != nil {
		return otp.Errorf("%v", err)
	}
	if code == "" {
		return otp.Errorf("twilio: empty code")
	}

	var out otp.Outcome
	err := v.call(ctx, func() error {
		params := &verify.CreateVerificationCheckParams{}
		params.SetTo(phone).SetCode(code)

		chk, err := v.api.CreateVerificationCheck(v.service, params)
		if err != nil {
			return err
		}
		out = otp.Outcome{Kind: otp.KindPending, SID: deref(chk.Sid), Message: deref(chk.Status)}
		if deref(chk.Status) == "approved" {
			out.Kind = otp.KindApproved
		}
		return nil
	})
	if err != nil {
		return v.failure(ctx, "check", phone, err)
	}
	return out
}

func (v *Verifier) QueryStatus(ctx context.Context, phone string) (otp.Status, bool) {
	v.mu.Lock()
	sid, ok := v.lastSID[phone]
	v.mu.Unlock()
	if !ok {
		return otp.Status{}, false
	}

	var st otp.Status
	err := v.call(ctx, func() error {
		ver, err := v.api.FetchVerification(v.service, sid)
		if err != nil {
			return err
		}
		st = otp.Status{
			SID:     deref(ver.Sid),
			To:      deref(ver.To),
			Channel: deref(ver.Channel),
			Status:  deref(ver.Status),
		}
		if ver.DateCreated != nil {
			st.CreatedAt = *ver.DateCreated
		}
		return nil
	})
	if err != nil {
		v.failure(ctx, "status", phone, err)
		return otp.Status{}, false
	}
	return st, true
}

// call runs fn under the driver timeout and turns panics into errors.
func (v *Verifier) call(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("twilio: sdk panic: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("twilio: %w", ctx.Err())
	}
}

func (v *Verifier) failure(ctx context.Context, op, phone string, err error) otp.Outcome {
	log := slogx.FromContext(ctx).With("op", op, "phone", otp.MaskPhone(phone))

	var rest *twclient.TwilioRestError
	if errors.As(err, &rest) {
		log.Warn("twilio verify rejected request", "code", rest.Code, "status", rest.Status)
		return otp.Errorf("twilio %d: %s", rest.Code, rest.Message)
	}
	log.Warn("twilio verify call failed", "err", err)
	return otp.Errorf("twilio: %v", err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
