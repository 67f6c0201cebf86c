// Package pool implements ServicePool: a named path-prefix owning an
// ordered set of backends and a selection policy.
package pool

import (
	"hash/crc32"
	"sync/atomic"
	"time"

	"load-balancer/internal/backend"
)

// Policy is one of the three selection strategies spec.md §3/§4.3 names.
type Policy int

const (
	RoundRobin Policy = iota
	LeastConnections
	IPHash
)

// String renders a Policy the way it appears in config and logs.
func (p Policy) String() string {
	switch p {
	case RoundRobin:
		return "round_robin"
	case LeastConnections:
		return "least_connections"
	case IPHash:
		return "ip_hash"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string to a Policy. Unknown names return
// false so the caller can fail config loading fatally.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "round_robin", "":
		return RoundRobin, true
	case "least_connections":
		return LeastConnections, true
	case "ip_hash":
		return IPHash, true
	default:
		return 0, false
	}
}

// ServicePool is a path prefix and its interchangeable backends.
// Backends is insertion-ordered and never mutated in place after
// construction; a config reload builds a fresh ServicePool instead
// (see SPEC_FULL.md §4.9).
type ServicePool struct {
	PathPrefix string
	Policy     Policy
	Backends   []*backend.Backend

	rrCursor uint64 // monotone counter, only ever fetch-and-incremented
}

// New creates a ServicePool over the given backends, in the given
// insertion order.
func New(pathPrefix string, policy Policy, backends []*backend.Backend) *ServicePool {
	return &ServicePool{
		PathPrefix: pathPrefix,
		Policy:     policy,
		Backends:   backends,
	}
}

// candidates returns the subset of Backends currently admitted by
// should_retry(), preserving insertion order. Computed fresh on every
// call; spec.md §4.3 accepts snapshot semantics here.
func (p *ServicePool) candidates(now time.Time) []*backend.Backend {
	out := make([]*backend.Backend, 0, len(p.Backends))
	for _, b := range p.Backends {
		if b.ShouldRetry(now) {
			out = append(out, b)
		}
	}
	return out
}

// Select returns a backend for the given client key (typically the
// client's address, used only by IPHash), or nil if no backend is
// currently selectable.
func (p *ServicePool) Select(clientKey string) *backend.Backend {
	now := time.Now()
	candidates := p.candidates(now)
	if len(candidates) == 0 {
		return nil
	}

	switch p.Policy {
	case RoundRobin:
		return p.selectRoundRobin(candidates)
	case LeastConnections:
		return p.selectLeastConnections(candidates)
	case IPHash:
		return p.selectIPHash(candidates, clientKey)
	default:
		return p.selectRoundRobin(candidates)
	}
}

func (p *ServicePool) selectRoundRobin(candidates []*backend.Backend) *backend.Backend {
	cursor := atomic.AddUint64(&p.rrCursor, 1) - 1
	return candidates[cursor%uint64(len(candidates))]
}

func (p *ServicePool) selectLeastConnections(candidates []*backend.Backend) *backend.Backend {
	best := candidates[0]
	bestConns := best.ActiveConnections()
	for _, cand := range candidates[1:] {
		if c := cand.ActiveConnections(); c < bestConns {
			best, bestConns = cand, c
		}
	}
	return best
}

func (p *ServicePool) selectIPHash(candidates []*backend.Backend, clientKey string) *backend.Backend {
	h := hashClientKey(clientKey)
	return candidates[h%uint32(len(candidates))]
}

// hashClientKey computes a deterministic, non-cryptographic hash of a
// client address string. crc32 over IEEE polynomial, same choice the
// teacher pack's mini0405-Dynamic_Load_Balancer/internal/lb/ip_hash.go
// makes; stable within one process run, which is all spec.md §4.3
// requires.
func hashClientKey(key string) uint32 {
	return crc32.ChecksumIEEE([]byte(key))
}
