package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics mirrors Counters and each backend's live state as
// Prometheus collectors (SPEC_FULL.md §4.10). It is an additive view:
// the atomics in Counters and backend.Backend remain the one source of
// truth; these gauges/counters are refreshed from them on every scrape.
type PromMetrics struct {
	totalRequests  prometheus.Counter
	failedRequests prometheus.Counter
	bytesUp        prometheus.Counter
	bytesDown      prometheus.Counter

	backendHealthy             *prometheus.GaugeVec
	backendActiveConnections   *prometheus.GaugeVec
	backendConsecutiveFailures *prometheus.GaugeVec
}

// NewPromMetrics registers the collectors against reg and returns the
// handle used to refresh them before each scrape.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		totalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_total_requests",
			Help: "Total number of accepted client connections whose first read returned at least one byte.",
		}),
		failedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_failed_requests",
			Help: "Total number of 404 and 503 responses plus failed upstream forwarding attempts.",
		}),
		bytesUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_up_total",
			Help: "Total bytes written to upstream backends.",
		}),
		bytesDown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_down_total",
			Help: "Total bytes read from upstream backends.",
		}),
		backendHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_backend_healthy",
			Help: "1 if the backend is currently UP, 0 if DOWN.",
		}, []string{"service", "backend"}),
		backendActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_backend_active_connections",
			Help: "Current in-flight request count for the backend.",
		}, []string{"service", "backend"}),
		backendConsecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_backend_consecutive_failures",
			Help: "Current consecutive failure streak for the backend.",
		}, []string{"service", "backend"}),
	}

	reg.MustRegister(
		m.totalRequests, m.failedRequests, m.bytesUp, m.bytesDown,
		m.backendHealthy, m.backendActiveConnections, m.backendConsecutiveFailures,
	)
	return m
}

// Refresh syncs the collectors from the current counter/backend state.
// Counters are monotone so Add(delta) against the last-seen totals keeps
// the Prometheus counter type's semantics (never decreasing) intact.
func (m *PromMetrics) Refresh(c *Counters, services []ServiceView, last *Counters) {
	advance := func(dst prometheus.Counter, seen *int64, cur int64) {
		for prev := atomic.LoadInt64(seen); cur > prev; prev = atomic.LoadInt64(seen) {
			if atomic.CompareAndSwapInt64(seen, prev, cur) {
				dst.Add(float64(cur - prev))
				return
			}
		}
	}
	advance(m.totalRequests, &last.totalRequests, c.TotalRequests())
	advance(m.failedRequests, &last.failedRequests, c.FailedRequests())
	advance(m.bytesUp, &last.totalBytesUp, c.TotalBytesUp())
	advance(m.bytesDown, &last.totalBytesDown, c.TotalBytesDown())

	m.backendHealthy.Reset()
	m.backendActiveConnections.Reset()
	m.backendConsecutiveFailures.Reset()
	for _, svc := range services {
		for _, be := range svc.Backends {
			healthy := 0.0
			if be.Healthy {
				healthy = 1
			}
			m.backendHealthy.WithLabelValues(svc.PathPrefix, be.Name).Set(healthy)
			m.backendActiveConnections.WithLabelValues(svc.PathPrefix, be.Name).Set(float64(be.ActiveConnections))
			m.backendConsecutiveFailures.WithLabelValues(svc.PathPrefix, be.Name).Set(float64(be.ConsecutiveFailures))
		}
	}
}
