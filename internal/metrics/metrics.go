package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes sync counters. A nil Recorder records nothing.
type Recorder struct {
	registry  *prometheus.Registry
	messages  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	published *prometheus.CounterVec
	retries   *prometheus.CounterVec
	dlq       *prometheus.CounterVec
}

// New registers every counter on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Name:      "messages_total",
			Help:      "Inbound messages by entity and HTTP status.",
		}, []string{"entity", "status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Name:      "upsert_outcomes_total",
			Help:      "Upsert outcomes by entity.",
		}, []string{"entity", "outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Name:      "published_total",
			Help:      "Outbound publications by entity and result.",
		}, []string{"entity", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Name:      "retries_total",
			Help:      "Failed deliveries recorded by the retry tracker, by error kind.",
		}, []string{"kind"}),
		dlq: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitysync",
			Name:      "dead_letters_total",
			Help:      "Messages moved to the dead-letter store, by entity.",
		}, []string{"entity"}),
	}
	r.registry.MustRegister(r.messages, r.outcomes, r.published, r.retries, r.dlq)
	return r
}

func (r *Recorder) MessageHandled(entity string, status int) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(orUnknown(entity), http.StatusText(status)).Inc()
}

func (r *Recorder) UpsertOutcome(entity, outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(orUnknown(entity), outcome).Inc()
}

func (r *Recorder) Published(entity string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.published.WithLabelValues(orUnknown(entity), result).Inc()
}

func (r *Recorder) RetryRecorded(kind string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(kind).Inc()
}

func (r *Recorder) Quarantined(entity string) {
	if r == nil {
		return
	}
	r.dlq.WithLabelValues(orUnknown(entity)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

func orUnknown(entity string) string {
	if entity == "" {
		return "unknown"
	}
	return entity
}
