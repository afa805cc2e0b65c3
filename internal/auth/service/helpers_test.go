package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/otp"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/internal/auth/store"
	"github.com/commacm/comma-auth/internal/auth/store/drivers/memory"
	"github.com/commacm/comma-auth/internal/auth/store/storetest"
	"github.com/commacm/comma-auth/pkg/jwtx"
)

var allow = domain.NewAllowList("comma.cm")

// fakeProvider accepts the code "good-code" and returns email for it.
type fakeProvider struct {
	name        domain.Provider
	email       string
	exchangeErr error
}

func (f *fakeProvider) Name() domain.Provider { return f.name }

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/" + string(f.name) + "/authorize?state=" + state
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if code != "good-code" {
		return nil, provider.ClassifyExchangeError(f.name, &oauth2.RetrieveError{ErrorCode: "invalid_grant"})
	}
	return &oauth2.Token{AccessToken: "idp-access"}, nil
}

func (f *fakeProvider) FetchIdentity(ctx context.Context, accessToken string) (domain.UserInfo, bool) {
	if accessToken != "idp-access" {
		return domain.UserInfo{}, false
	}
	return provider.Identity(ctx, f.email, "Alice Example", "", f.name, allow)
}

// idTokenProvider decodes "id:<email>" inline tokens; rawUser becomes the name.
type idTokenProvider struct{ fakeProvider }

func (p *idTokenProvider) ExchangeCode(context.Context, string) (*oauth2.Token, error) {
	return nil, provider.ErrNotImplemented
}

func (p *idTokenProvider) DecodeIdentityToken(ctx context.Context, raw, rawUser string) (domain.UserInfo, bool) {
	if len(raw) < 4 || raw[:3] != "id:" {
		return domain.UserInfo{}, false
	}
	return provider.Identity(ctx, raw[3:], rawUser, "", p.name, allow)
}

// fakeOTP approves 123456 for any phone it has sent to.
type fakeOTP struct {
	mu      sync.Mutex
	sent    map[string]bool
	sendErr bool
}

func (f *fakeOTP) SendCode(_ context.Context, phone string) otp.Outcome {
	if f.sendErr {
		return otp.Errorf("twilio 20003: authenticate")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[phone] = true
	return otp.Outcome{Kind: otp.KindSent, SID: "VE1"}
}

func (f *fakeOTP) CheckCode(_ context.Context, phone, code string) otp.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sent[phone] {
		return otp.Errorf("no pending verification")
	}
	if code != "123456" {
		return otp.Outcome{Kind: otp.KindPending}
	}
	return otp.Outcome{Kind: otp.KindApproved, SID: "VE1"}
}

func (f *fakeOTP) QueryStatus(_ context.Context, phone string) (otp.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sent[phone] {
		return otp.Status{}, false
	}
	return otp.Status{SID: "VE1", To: phone, Channel: "sms", Status: "pending"}, true
}

type fixture struct {
	clock    *storetest.Clock
	tokens   *service.TokenService
	states   store.StateStore
	otp      *fakeOTP
	google   *fakeProvider
	sessions *service.SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := storetest.NewClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	key, err := jwtx.NewHMACKey("HS256", []byte("test-secret-test-secret-test-secret"), jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	tokens := service.NewTokenService(key, 0, 0)
	tokens.Now = clock.Now

	states := memory.New(store.Options{Now: clock.Now})
	google := &fakeProvider{name: domain.ProviderGoogle, email: "alice@comma.cm"}
	apple := &idTokenProvider{fakeProvider{name: domain.ProviderApple}}
	fotp := &fakeOTP{sent: map[string]bool{}}

	return &fixture{
		clock:  clock,
		tokens: tokens,
		states: states,
		otp:    fotp,
		google: google,
		sessions: &service.SessionService{
			Providers:      provider.NewRegistry(google, apple),
			States:         states,
			Tokens:         tokens,
			OTP:            fotp,
			Policy:         domain.DefaultScopePolicy(),
			AllowedOrigins: []string{"https://app.comma.cm", "http://localhost:5173"},
		},
	}
}

func alice() domain.UserInfo {
	u, err := domain.NewUserInfo("alice@comma.cm", "Alice Example", "", domain.ProviderGoogle, allow)
	if err != nil {
		panic(err)
	}
	return u
}
