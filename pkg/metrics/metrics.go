// Package metrics turns fetch events into Prometheus counters.
package metrics

import (
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/glorpus-work/bagfetch/pkg/events"
)

// Recorder is an events.Sink that records metrics.
type Recorder interface {
	events.Sink
	// WriteTextfile dumps the current values in the node_exporter textfile
	// format.
	WriteTextfile(path string) error
}

// Noop implements Recorder without recording anything.
type Noop struct{}

// Emit does nothing.
func (Noop) Emit(events.Event) {}

// WriteTextfile does nothing.
func (Noop) WriteTextfile(string) error { return nil }

// Prom implements Recorder backed by Prometheus collectors on a private
// registry.
type Prom struct {
	registry *prometheus.Registry
	fetches  *prometheus.CounterVec
	retries  *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewProm creates the collectors under namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Finished manifest entries by scheme and outcome",
		}, []string{"scheme", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Retried attempts by scheme and error kind",
		}, []string{"scheme", "kind"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes written by successful fetches",
		}, []string{"scheme"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall-clock time per finished entry",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"scheme"}),
	}
	p.registry.MustRegister(p.fetches, p.retries, p.bytes, p.duration)
	return p
}

// Registry exposes the private registry, for example to serve it.
func (p *Prom) Registry() *prometheus.Registry { return p.registry }

// Emit updates the collectors from a terminal or retry event.
func (p *Prom) Emit(e events.Event) {
	scheme := schemeOf(e.URL)
	switch e.Phase {
	case events.PhaseDone:
		p.fetches.WithLabelValues(scheme, "ok").Inc()
		p.bytes.WithLabelValues(scheme).Add(float64(e.Bytes))
		p.duration.WithLabelValues(scheme).Observe(e.Elapsed.Seconds())
	case events.PhaseSkipped:
		p.fetches.WithLabelValues(scheme, "skipped").Inc()
	case events.PhaseFailed:
		p.fetches.WithLabelValues(scheme, e.Kind.String()).Inc()
		p.duration.WithLabelValues(scheme).Observe(e.Elapsed.Seconds())
	case events.PhaseRetrying:
		p.retries.WithLabelValues(scheme, e.Kind.String()).Inc()
	}
}

// WriteTextfile writes the registry to path atomically.
func (p *Prom) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return strings.ToLower(u.Scheme)
}
