// Package metrics exposes Prometheus counters for the login, OTP and token
// flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services report to. Nop discards everything.
type Recorder interface {
	LoginStarted(provider string)
	CallbackCompleted(provider, outcome string)
	TokenIssued(kind string)
	OTPOperation(op, outcome string)
	TokenVerified(result string)
	StatesSwept(n int64)
	RateLimited(route string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	loginsStarted *prometheus.CounterVec
	callbacks     *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	otpOps        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	statesSwept   prometheus.Counter
	rateLimited   *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector registers the service's metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_logins_started_total",
			Help: "Provider logins started.",
		}, []string{"provider"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_callbacks_total",
			Help: "Provider callbacks by outcome.",
		}, []string{"provider", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_tokens_issued_total",
			Help: "Tokens minted by kind (access, step_up, refresh).",
		}, []string{"kind"}),
		otpOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_otp_operations_total",
			Help: "OTP send and check operations by outcome.",
		}, []string{"op", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_token_verifications_total",
			Help: "Access token verifications by result.",
		}, []string{"result"}),
		statesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comma_auth_states_swept_total",
			Help: "Expired authorization states removed by housekeeping.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comma_auth_rate_limited_total",
			Help: "Requests rejected by rate limiting.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.loginsStarted,
		c.callbacks,
		c.tokensIssued,
		c.otpOps,
		c.verifications,
		c.statesSwept,
		c.rateLimited,
	)
	return c
}

func (c *Collector) LoginStarted(provider string) {
	c.loginsStarted.WithLabelValues(provider).Inc()
}

func (c *Collector) CallbackCompleted(provider, outcome string) {
	c.callbacks.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) TokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

func (c *Collector) OTPOperation(op, outcome string) {
	c.otpOps.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) TokenVerified(result string) {
	c.verifications.WithLabelValues(result).Inc()
}

func (c *Collector) StatesSwept(n int64) {
	c.statesSwept.Add(float64(n))
}

func (c *Collector) RateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop is a Recorder that drops everything.
type Nop struct{}

func (Nop) LoginStarted(string)              {}
func (Nop) CallbackCompleted(string, string) {}
func (Nop) TokenIssued(string)               {}
func (Nop) OTPOperation(string, string)      {}
func (Nop) TokenVerified(string)             {}
func (Nop) StatesSwept(int64)                {}
func (Nop) RateLimited(string)               {}
