// Package backend models one upstream server and its health state.
package backend

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// Backend is one upstream endpoint. Identity fields are set once at
// registration; the rest is mutated concurrently by the proxy pipeline
// and the health checker.
type Backend struct {
	Name string
	Host string
	Port int

	MaxFails    int
	FailTimeout time.Duration

	activeConnections   int64
	healthy             int32 // 0 = down, 1 = up
	consecutiveFailures int64
	lastFailureAt       int64 // unix nanos, meaningful only if consecutiveFailures > 0
}

// Defaults mirrored from the reference configuration (spec.md §3).
const (
	DefaultMaxFails    = 3
	DefaultFailTimeout = 30 * time.Second
)

// New creates a Backend in the UP state with the given identity and
// thresholds. A zero maxFails or failTimeout falls back to the default.
func New(name, host string, port, maxFails int, failTimeout time.Duration) *Backend {
	if maxFails <= 0 {
		maxFails = DefaultMaxFails
	}
	if failTimeout <= 0 {
		failTimeout = DefaultFailTimeout
	}
	return &Backend{
		Name:        name,
		Host:        host,
		Port:        port,
		MaxFails:    maxFails,
		FailTimeout: failTimeout,
		healthy:     1,
	}
}

// Healthy reports the current UP/DOWN flag.
func (b *Backend) Healthy() bool {
	return atomic.LoadInt32(&b.healthy) == 1
}

// ActiveConnections returns the current in-flight request count.
func (b *Backend) ActiveConnections() int64 {
	return atomic.LoadInt64(&b.activeConnections)
}

// ConsecutiveFailures returns the current failure streak.
func (b *Backend) ConsecutiveFailures() int64 {
	return atomic.LoadInt64(&b.consecutiveFailures)
}

// BeginRequest increments the in-flight counter and must be paired with
// EndRequest regardless of the request's outcome.
func (b *Backend) BeginRequest() {
	atomic.AddInt64(&b.activeConnections, 1)
}

// EndRequest decrements the in-flight counter.
func (b *Backend) EndRequest() {
	atomic.AddInt64(&b.activeConnections, -1)
}

// RecordFailure implements the record_failure() transition of spec.md §4.1:
// it increments the failure streak and, once the streak reaches MaxFails
// while the backend is UP, flips it to DOWN.
func (b *Backend) RecordFailure(now time.Time) {
	atomic.StoreInt64(&b.lastFailureAt, now.UnixNano())
	failures := atomic.AddInt64(&b.consecutiveFailures, 1)
	if failures >= int64(b.MaxFails) {
		atomic.CompareAndSwapInt32(&b.healthy, 1, 0)
	}
}

// RecordSuccess implements record_success(): it clears the failure streak
// and, if the backend was DOWN, flips it back to UP. Returns true if this
// call caused a DOWN->UP transition, for diagnostic logging.
func (b *Backend) RecordSuccess() (transitionedUp bool) {
	atomic.StoreInt64(&b.consecutiveFailures, 0)
	return atomic.CompareAndSwapInt32(&b.healthy, 0, 1)
}

// ShouldRetry implements should_retry(): true if the backend is UP, or if
// it is DOWN but has been down at least FailTimeout, in which case it is
// admitted on probation (consecutiveFailures resets, health stays DOWN
// until the next recorded outcome).
func (b *Backend) ShouldRetry(now time.Time) bool {
	if b.Healthy() {
		return true
	}
	lastFail := atomic.LoadInt64(&b.lastFailureAt)
	if lastFail == 0 {
		return false
	}
	if now.Sub(time.Unix(0, lastFail)) >= b.FailTimeout {
		atomic.StoreInt64(&b.consecutiveFailures, 0)
		return true
	}
	return false
}

// Addr returns the host:port dial target.
func (b *Backend) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}
