package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for login and session operations.
type Metrics struct {
	AttemptsStarted   prometheus.Counter
	AttemptsConsumed  prometheus.Counter
	AttemptsRejected  *prometheus.CounterVec
	AttemptsSwept     prometheus.Counter
	ProviderCalls     *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	PrincipalsCreated prometheus.Counter
	LoginsCompleted   *prometheus.CounterVec
	LoginFailures     *prometheus.CounterVec
	CodesSent         prometheus.Counter
	CodeVerifications *prometheus.CounterVec
	SessionsIssued    prometheus.Counter
	AuthFailures      *prometheus.CounterVec
	AccessDenied      *prometheus.CounterVec
}

// New registers auth collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		AttemptsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_login_attempts_started_total",
			Help: "Federated login attempts issued",
		}),
		AttemptsConsumed: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_login_attempts_consumed_total",
			Help: "Federated login attempts redeemed by a callback",
		}),
		AttemptsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_login_attempts_rejected_total",
			Help: "Callbacks rejected by the replay guard",
		}, []string{"reason"}),
		AttemptsSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_login_attempts_swept_total",
			Help: "Expired login attempts removed by the sweeper",
		}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_provider_calls_total",
			Help: "Calls to the identity provider by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medfayda_provider_call_duration_ms",
			Help:    "Identity provider call latency in milliseconds",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"endpoint"}),
		PrincipalsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_principals_created_total",
			Help: "Principals created on first login",
		}),
		LoginsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_logins_completed_total",
			Help: "Successful logins by method",
		}, []string{"method"}),
		LoginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_login_failures_total",
			Help: "Failed logins by method and error kind",
		}, []string{"method", "kind"}),
		CodesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_otp_codes_sent_total",
			Help: "One-time codes handed to the SMS sender",
		}),
		CodeVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_otp_verifications_total",
			Help: "One-time code verifications by outcome",
		}, []string{"outcome"}),
		SessionsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_sessions_issued_total",
			Help: "Session credentials issued",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_auth_failures_total",
			Help: "Rejected bearer credentials by kind",
		}, []string{"kind"}),
		AccessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_access_denied_total",
			Help: "Authorization denials by role and action",
		}, []string{"role", "action"}),
	}
}

func (m *Metrics) IncAttemptsStarted()  { m.AttemptsStarted.Inc() }
func (m *Metrics) IncAttemptsConsumed() { m.AttemptsConsumed.Inc() }

func (m *Metrics) IncAttemptsRejected(reason string) {
	m.AttemptsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddAttemptsSwept(n int) { m.AttemptsSwept.Add(float64(n)) }

// ObserveProviderCall records one identity provider round trip.
func (m *Metrics) ObserveProviderCall(endpoint, outcome string, start time.Time) {
	m.ProviderCalls.WithLabelValues(endpoint, outcome).Inc()
	m.ProviderDuration.WithLabelValues(endpoint).Observe(float64(time.Since(start).Milliseconds()))
}

func (m *Metrics) IncPrincipalsCreated() { m.PrincipalsCreated.Inc() }

func (m *Metrics) IncLoginCompleted(method string) {
	m.LoginsCompleted.WithLabelValues(method).Inc()
}

func (m *Metrics) IncLoginFailure(method, kind string) {
	m.LoginFailures.WithLabelValues(method, kind).Inc()
}

func (m *Metrics) IncCodesSent() { m.CodesSent.Inc() }

func (m *Metrics) IncCodeVerification(outcome string) {
	m.CodeVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSessionsIssued() { m.SessionsIssued.Inc() }

func (m *Metrics) IncAuthFailure(kind string) {
	m.AuthFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncAccessDenied(role, action string) {
	m.AccessDenied.WithLabelValues(role, action).Inc()
}
