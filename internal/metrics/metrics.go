package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketsync"

// Log outcomes recorded by the dispatcher.
const (
	OutcomeApplied       = "applied"
	OutcomeNotApplicable = "not_applicable"
	OutcomeUnmonitored   = "unmonitored"
	OutcomeRemoved       = "removed"
	OutcomeUnhandled     = "unhandled"
	OutcomeFailed        = "failed"
)

// Pipeline holds the instruments shared by the dispatcher, coordinator and webhook path.
type Pipeline struct {
	Logs              *prometheus.CounterVec
	HandlerFailures   *prometheus.CounterVec
	CursorBlock       prometheus.Gauge
	ChunkDuration     prometheus.Histogram
	SyncAborts        *prometheus.CounterVec
	WebhookDeliveries prometheus.Counter
}

// NewPipeline creates the instruments and registers them on reg. A nil reg
// leaves them unregistered.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		Logs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_total",
			Help:      "Raw logs seen by the dispatcher, by outcome.",
		}, []string{"outcome"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Per-log decode or handler failures, by event type.",
		}, []string{"event"}),
		CursorBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_block",
			Help:      "Last block whose logs were fully applied.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Time to fetch and apply one block chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SyncAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_aborts_total",
			Help:      "Sync passes stopped early, by reason.",
		}, []string{"reason"}),
		WebhookDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook payloads accepted for ingestion.",
		}),
	}

	if reg == nil {
		return p, nil
	}
	for _, c := range []prometheus.Collector{
		p.Logs, p.HandlerFailures, p.CursorBlock, p.ChunkDuration, p.SyncAborts, p.WebhookDeliveries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Nop returns unregistered instruments for callers that do not export metrics.
func Nop() *Pipeline {
	p, _ := NewPipeline(nil)
	return p
}
