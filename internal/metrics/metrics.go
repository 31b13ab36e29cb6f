package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_service_escalations_total",
		Help: "Escalations handled, by outcome (success, no_delivery, invalid)",
	}, []string{"outcome"})
	ChannelAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_service_channel_attempts_total",
		Help: "Single-channel delivery attempts, by channel and outcome",
	}, []string{"channel", "outcome"})
	AuditWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_service_audit_write_failures_total",
		Help: "Best-effort audit writes that failed and were only logged",
	}, []string{"step"})
	DuplicatesSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_service_duplicates_suppressed_total",
		Help: "Notifications skipped because an equivalent one already exists",
	}, []string{"meta_type"})
	EventsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escalation_service_events_ingested_total",
		Help: "Upstream events processed by the ingestion workers, by type and outcome",
	}, []string{"type", "outcome"})
)

func init() {
	prometheus.MustRegister(Escalations)
	prometheus.MustRegister(ChannelAttempts)
	prometheus.MustRegister(AuditWriteFailures)
	prometheus.MustRegister(DuplicatesSuppressed)
	prometheus.MustRegister(EventsIngested)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
