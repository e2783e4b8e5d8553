// Package metrics defines the Prometheus collectors of the attendance daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

// Recorder groups the collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	events         *prometheus.CounterVec
	skipped        prometheus.Counter
	nameFallbacks  prometheus.Counter
	replyFailures  prometheus.Counter
	flushDurations *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Handled chat messages by command and outcome.",
		}, []string{"command", "outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Webhook events that were not text messages from a user.",
		}),
		nameFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_fallbacks_total",
			Help:      "Profile lookups that fell back to a synthesized name.",
		}),
		replyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_failures_total",
			Help:      "Replies that could not be delivered.",
		}),
		flushDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_flush_seconds",
			Help:      "Time spent flushing the session store to disk.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		r.events,
		r.skipped,
		r.nameFallbacks,
		r.replyFailures,
		r.flushDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Event counts one handled message.
func (r *Recorder) Event(command, outcome string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(command, outcome).Inc()
}

// Skipped counts one ignored webhook event.
func (r *Recorder) Skipped() {
	if r == nil {
		return
	}
	r.skipped.Inc()
}

// NameFallback counts one synthesized display name.
func (r *Recorder) NameFallback() {
	if r == nil {
		return
	}
	r.nameFallbacks.Inc()
}

// ReplyFailed counts one undelivered reply.
func (r *Recorder) ReplyFailed() {
	if r == nil {
		return
	}
	r.replyFailures.Inc()
}

// Flush observes one store flush. Its signature matches engine.FlushObserver.
func (r *Recorder) Flush(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.flushDurations.WithLabelValues(result).Observe(d.Seconds())
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
