// Package metrics defines the console's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsOpened prometheus.Counter
	LoginAttempts  *prometheus.CounterVec

	// Dashboard polling metrics
	Polls        *prometheus.CounterVec
	PollDuration *prometheus.HistogramVec

	// Panel metrics
	ChatMessages    prometheus.Counter
	FavoriteToggles *prometheus.CounterVec
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "secops_sessions_active",
			Help: "Number of tab sessions held in memory",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_sessions_opened_total",
			Help: "Total number of tab sessions opened",
		}),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"result"},
		),

		Polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_dashboard_polls_total",
				Help: "Dashboard endpoint polls by outcome",
			},
			[]string{"endpoint", "success"},
		),
		PollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secops_dashboard_poll_duration_seconds",
				Help:    "Dashboard endpoint poll latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),

		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "secops_chat_messages_total",
			Help: "Chat messages sent by operators",
		}),
		FavoriteToggles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_favorite_toggles_total",
				Help: "Favorite toggles by outcome",
			},
			[]string{"result"},
		),
	}
}

// NewRegistry creates a private registry with the collectors registered.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}

// HandlerFor returns the scrape handler for reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObservePoll(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(endpoint, strconv.FormatBool(err == nil)).Inc()
	m.PollDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// LoginAttempt records a login outcome: "ok", "invalid", "rejected" or "error".
func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ChatMessage() {
	if m == nil {
		return
	}
	m.ChatMessages.Inc()
}

// FavoriteToggle records "added", "removed", "full" or "invalid".
func (m *Metrics) FavoriteToggle(result string) {
	if m == nil {
		return
	}
	m.FavoriteToggles.WithLabelValues(result).Inc()
}
