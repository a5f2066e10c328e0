// Package metrics exposes Prometheus counters for chat turns and the stores behind them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Turns                 *prometheus.CounterVec
	TurnFailures          *prometheus.CounterVec
	StageDuration         *prometheus.HistogramVec
	RetrievalDegradations prometheus.Counter
	MemorySyncFailures    prometheus.Counter
	NodesAdded            prometheus.Counter
	EdgesAdded            prometheus.Counter
	DuplicatesDropped     *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Chat turns by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),
		TurnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turn_failures_total",
				Help:      "Failed chat turns by error kind and stage",
			},
			[]string{"kind", "stage"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_stage_duration_seconds",
				Help:      "Duration of each turn stage in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		RetrievalDegradations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_degraded_total",
				Help:      "Turns that proceeded with empty context after a retrieval failure",
			},
		),
		MemorySyncFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_sync_failures_total",
				Help:      "Memory point upserts that failed",
			},
		),
		NodesAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_added_total",
				Help:      "Nodes added to maps by merges",
			},
		),
		EdgesAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_added_total",
				Help:      "Edges added to maps by merges",
			},
		),
		DuplicatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_dropped_total",
				Help:      "Proposed nodes or edges dropped by id collision",
			},
			[]string{"element"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
	}

	registry.MustRegister(
		c.Turns,
		c.TurnFailures,
		c.StageDuration,
		c.RetrievalDegradations,
		c.MemorySyncFailures,
		c.NodesAdded,
		c.EdgesAdded,
		c.DuplicatesDropped,
		c.HTTPRequests,
	)
	return c
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordTurn(intent, outcome string) {
	if c == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	c.Turns.WithLabelValues(intent, outcome).Inc()
}

func (c *Collector) RecordFailure(kind, stage string) {
	if c == nil {
		return
	}
	c.TurnFailures.WithLabelValues(kind, stage).Inc()
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) RecordRetrievalDegraded() {
	if c == nil {
		return
	}
	c.RetrievalDegradations.Inc()
}

func (c *Collector) RecordMemorySyncFailure() {
	if c == nil {
		return
	}
	c.MemorySyncFailures.Inc()
}

// RecordMerge counts what one merge added and dropped
func (c *Collector) RecordMerge(nodesAdded, edgesAdded, nodesDropped, edgesDropped int) {
	if c == nil {
		return
	}
	c.NodesAdded.Add(float64(nodesAdded))
	c.EdgesAdded.Add(float64(edgesAdded))
	if nodesDropped > 0 {
		c.DuplicatesDropped.WithLabelValues("node").Add(float64(nodesDropped))
	}
	if edgesDropped > 0 {
		c.DuplicatesDropped.WithLabelValues("edge").Add(float64(edgesDropped))
	}
}

func (c *Collector) RecordHTTPRequest(method, route, status string) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
}
