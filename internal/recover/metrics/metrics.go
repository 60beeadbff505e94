// Package metrics collects the service's Prometheus counters. The workflow
// layer never imports this package; it reports through observer callbacks
// registered at construction.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varden/recover/internal/recover/domain"
)

// Metrics holds the service counters on a private registry, so tests can
// run multiple instances without collisions.
type Metrics struct {
	registry *prometheus.Registry

	tokensSigned     *prometheus.CounterVec
	smsSent          prometheus.Counter
	smsFiltered      prometheus.Counter
	smsErrors        prometheus.Counter
	apiErrors        *prometheus.CounterVec
	passwordsChanged prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensSigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recover_tokens_signed_total",
			Help: "Capability tokens signed, by namespace.",
		}, []string{"namespace"}),
		smsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recover_sms_sent_total",
			Help: "SMS messages accepted by the transport.",
		}),
		smsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recover_sms_filtered_total",
			Help: "SMS messages refused by number filtering.",
		}),
		smsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recover_sms_errors_total",
			Help: "SMS messages that failed in the transport.",
		}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recover_api_errors_total",
			Help: "API error responses, by error type.",
		}, []string{"type"}),
		passwordsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recover_passwords_changed_total",
			Help: "Successful password changes.",
		}),
	}

	m.registry.MustRegister(
		m.tokensSigned,
		m.smsSent,
		m.smsFiltered,
		m.smsErrors,
		m.apiErrors,
		m.passwordsChanged,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TokenSigned is the TokenService onSign observer.
func (m *Metrics) TokenSigned(ns domain.Namespace) {
	m.tokensSigned.WithLabelValues(string(ns)).Inc()
}

// SMSSent, SMSFiltered and SMSError are the dispatcher event observers.
func (m *Metrics) SMSSent(string)         { m.smsSent.Inc() }
func (m *Metrics) SMSFiltered(string)     { m.smsFiltered.Inc() }
func (m *Metrics) SMSError(string, error) { m.smsErrors.Inc() }

// APIError counts an error response by its wire error type.
func (m *Metrics) APIError(errorType string) {
	m.apiErrors.WithLabelValues(errorType).Inc()
}

// PasswordChanged counts a completed recovery.
func (m *Metrics) PasswordChanged() { m.passwordsChanged.Inc() }
