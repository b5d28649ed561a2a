package sdk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the Gateway.
// A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	RefreshesTotal *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the Gateway metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "console",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Protected admin API requests by final outcome",
			},
			[]string{"outcome"}, // ok, unauthorized, transport_error, refresh_failed
		),
		RefreshesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "console",
				Subsystem: "gateway",
				Name:      "refresh_total",
				Help:      "Access token refresh attempts by result",
			},
			[]string{"result"}, // success, failure, reused, no_refresh_token
		),
		RetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "console",
				Subsystem: "gateway",
				Name:      "retry_total",
				Help:      "Replays of requests that failed with 401, by result",
			},
			[]string{"result"}, // ok, unauthorized, error
		),
	}
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) retry(result string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(result).Inc()
}
