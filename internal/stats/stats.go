// Package stats aggregates per-component counters for the runtime:
// requests received/served/failed, bytes served, origin fetch
// accounting, and cache hit/miss rates. Grounded on the Python
// predecessor's models/stats.py (the counter shape).
package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/KathyBarabash/asg-runtime/internal/cachefacade"
	"github.com/KathyBarabash/asg-runtime/internal/origin"
)

const namespace = "asgrun"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total endpoint data requests, by outcome",
		},
		[]string{"outcome"}, // "served" or "failed"
	)

	bytesServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_served_total",
			Help:      "Total bytes of encoded response data served",
		},
	)

	processingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_processing_seconds",
			Help:      "End-to-end request processing time",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_ops_total",
			Help:      "Cache operations by cache and outcome",
		},
		[]string{"cache", "op"}, // cache = "response"|"origin"; op = "hit"|"miss"|"set"|"delete"|"error"
	)

	originRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_requests_total",
			Help:      "Total HTTP requests issued against origin servers",
		},
	)
)

// AppStats tracks top-level request accounting, mirroring AppStats in
// the predecessor.
type AppStats struct {
	requestsReceived atomic.Int64
	requestsServed   atomic.Int64
	requestsFailed   atomic.Int64
	bytesServed      atomic.Int64
	processingTime   atomic.Int64 // nanoseconds
}

// IncReceived records the start of a new request.
func (a *AppStats) IncReceived() { a.requestsReceived.Add(1) }

// RecordServed records a successful request's outcome.
func (a *AppStats) RecordServed(bytesServed int, elapsed time.Duration) {
	a.requestsServed.Add(1)
	a.bytesServed.Add(int64(bytesServed))
	a.processingTime.Add(int64(elapsed))
	requestsTotal.WithLabelValues("served").Inc()
	bytesServedTotal.Add(float64(bytesServed))
	processingSeconds.Observe(elapsed.Seconds())
}

// RecordFailed records a failed request's outcome.
func (a *AppStats) RecordFailed(elapsed time.Duration) {
	a.requestsFailed.Add(1)
	a.processingTime.Add(int64(elapsed))
	requestsTotal.WithLabelValues("failed").Inc()
	processingSeconds.Observe(elapsed.Seconds())
}

// AppSnapshot is a point-in-time, JSON-friendly view of AppStats.
type AppSnapshot struct {
	RequestsReceived int64   `json:"requests_received"`
	RequestsServed   int64   `json:"requests_served"`
	RequestsFailed   int64   `json:"requests_failed"`
	BytesServed      int64   `json:"bytes_served"`
	ProcessingTime   float64 `json:"processing_time"`
}

// Snapshot returns the current counter values.
func (a *AppStats) Snapshot() AppSnapshot {
	return AppSnapshot{
		RequestsReceived: a.requestsReceived.Load(),
		RequestsServed:   a.requestsServed.Load(),
		RequestsFailed:   a.requestsFailed.Load(),
		BytesServed:      a.bytesServed.Load(),
		ProcessingTime:   time.Duration(a.processingTime.Load()).Seconds(),
	}
}

// CacheSnapshot adapts a cachefacade.Stats snapshot for the stats
// endpoint.
type CacheSnapshot struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	SetOps int64 `json:"set_ops"`
	DelOps int64 `json:"del_ops"`
	Errors int64 `json:"errors"`
}

// RecordCacheStats converts a facade's stats snapshot into the
// JSON-friendly view. It records nothing in Prometheus and does not use
// cacheName; the per-operation cache series come from NoteCacheOp.
func RecordCacheStats(cacheName string, s cachefacade.Stats) CacheSnapshot {
	return CacheSnapshot{Hits: s.Hits, Misses: s.Misses, SetOps: s.SetOps, DelOps: s.DelOps, Errors: s.Errors}
}

// NoteCacheOp increments the Prometheus counter for a single cache
// operation as it happens (called by the executor at the point of
// decision, since the facade's own counters are snapshot only).
func NoteCacheOp(cacheName, op string) { cacheOpsTotal.WithLabelValues(cacheName, op).Inc() }

// RestSnapshot is a JSON-friendly view of accumulated origin-fetch
// accounting, mirroring RestClientStats.
type RestSnapshot struct {
	RequestsIssued int64   `json:"requests_issued"`
	BytesReceived  int64   `json:"bytes_received"`
	FetchingTime   float64 `json:"fetching_time"`
}

// originRequestsReported is the RequestsIssued total already added to
// originRequestsTotal, so each RecordOriginStats call adds only the
// increase since the previous one.
var originRequestsReported atomic.Int64

// RecordOriginStats reports an origin.Stats snapshot to Prometheus and
// returns the JSON-friendly view.
func RecordOriginStats(s origin.Stats) RestSnapshot {
	if prev := originRequestsReported.Swap(s.RequestsIssued); s.RequestsIssued > prev {
		originRequestsTotal.Add(float64(s.RequestsIssued - prev))
	}
	return RestSnapshot{
		RequestsIssued: s.RequestsIssued,
		BytesReceived:  s.BytesReceived,
		FetchingTime:   s.FetchingTime.Seconds(),
	}
}

// Snapshot is the full describe() payload the management endpoint
// returns, mirroring Stats in the predecessor.
type Snapshot struct {
	App            AppSnapshot    `json:"app"`
	Rest           RestSnapshot   `json:"rest"`
	ResponseCache  *CacheSnapshot `json:"response_cache,omitempty"`
	OriginCache    *CacheSnapshot `json:"origin_cache,omitempty"`
}
