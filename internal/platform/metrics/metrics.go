package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared across features.
type Metrics struct {
	CodesIssued          prometheus.Counter
	CodesMatched         prometheus.Counter
	CodesExpired         prometheus.Counter
	CodeRetriesExhausted prometheus.Counter
	DecisionsRecorded    *prometheus.CounterVec
	DecisionsAdopted     prometheus.Counter
	NotificationFailures prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer; tests pass a fresh
// registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_codes_issued_total",
			Help: "Total verification codes issued.",
		}),
		CodesMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_codes_matched_total",
			Help: "Total verification codes successfully matched.",
		}),
		CodesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_codes_expired_total",
			Help: "Total submissions rejected because the code had expired.",
		}),
		CodeRetriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_code_retries_exhausted_total",
			Help: "Total submissions rejected because the retry budget was spent.",
		}),
		DecisionsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idecide_decisions_recorded_total",
			Help: "Total consent decisions recorded, by choice.",
		}, []string{"choice"}),
		DecisionsAdopted: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_decisions_adopted_total",
			Help: "Total decision adoptions recorded for consumers.",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "idecide_notification_failures_total",
			Help: "Total notification sends that failed (best-effort path).",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idecide_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
