// Package stats holds the process-wide request counters (spec.md §3)
// and serves the operational snapshot: an HTML page for humans and a
// Prometheus exposition endpoint for scrapers (SPEC_FULL.md §4.10).
package stats

import "sync/atomic"

// Counters are the four monotone process-wide integers spec.md §3
// names. All fields are mutated with atomic add and must never be
// accessed directly.
type Counters struct {
	totalRequests  int64
	failedRequests int64
	totalBytesUp   int64
	totalBytesDown int64
}

func (c *Counters) IncTotalRequests()          { atomic.AddInt64(&c.totalRequests, 1) }
func (c *Counters) IncFailedRequests()         { atomic.AddInt64(&c.failedRequests, 1) }
func (c *Counters) AddBytesUp(n int64)         { atomic.AddInt64(&c.totalBytesUp, n) }
func (c *Counters) AddBytesDown(n int64)       { atomic.AddInt64(&c.totalBytesDown, n) }
func (c *Counters) TotalRequests() int64       { return atomic.LoadInt64(&c.totalRequests) }
func (c *Counters) FailedRequests() int64      { return atomic.LoadInt64(&c.failedRequests) }
func (c *Counters) TotalBytesUp() int64        { return atomic.LoadInt64(&c.totalBytesUp) }
func (c *Counters) TotalBytesDown() int64      { return atomic.LoadInt64(&c.totalBytesDown) }

// SuccessRate returns the fraction of requests that did not fail, or 1
// when no requests have been served yet.
func (c *Counters) SuccessRate() float64 {
	total := c.TotalRequests()
	if total == 0 {
		return 1
	}
	failed := c.FailedRequests()
	return float64(total-failed) / float64(total)
}
