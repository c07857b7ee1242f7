// Package metrics exports the service's Prometheus instruments. Every method
// is safe on a nil receiver so callers never need to check whether metrics
// are enabled.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for submissions.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics records wizard, submission and HTTP activity.
type Metrics struct {
	sessions       *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	uploadFailures *prometheus.CounterVec
	requests       *prometheus.HistogramVec
}

// New registers the onboarding metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_wizard_sessions_total",
		Help: "Wizard sessions by lifecycle event.",
	}, []string{"event"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_submissions_total",
		Help: "Vehicle submissions by outcome.",
	}, []string{"outcome"})
	uploadFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_upload_failures_total",
		Help: "Photo and document uploads that failed after the vehicle was created.",
	}, []string{"kind", "slot"})
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "onboarding_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(sessions, submissions, uploadFailures, requests)
	return &Metrics{
		sessions:       sessions,
		submissions:    submissions,
		uploadFailures: uploadFailures,
		requests:       requests,
	}
}

// SessionEvent counts a wizard session lifecycle event (opened, cancelled, expired, submitted).
func (m *Metrics) SessionEvent(event string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(event)).Inc()
}

// SessionsExpired counts n sessions dropped after their TTL ran out.
func (m *Metrics) SessionsExpired(n int) {
	if m == nil || m.sessions == nil || n <= 0 {
		return
	}
	m.sessions.WithLabelValues("expired").Add(float64(n))
}

// Submission counts a submission attempt with its outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// UploadFailure counts a best-effort upload that failed. kind is "photo" or "document".
func (m *Metrics) UploadFailure(kind, slot string) {
	if m == nil || m.uploadFailures == nil {
		return
	}
	m.uploadFailures.WithLabelValues(normalizeLabel(kind), normalizeLabel(slot)).Inc()
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
