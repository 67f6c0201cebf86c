// Package router implements longest-prefix matching over a fixed table
// of service pools (spec.md §4.5).
package router

import (
	"strings"

	"load-balancer/internal/pool"
)

// Table maps path prefixes to ServicePools. Built once at startup (or
// once per config reload generation) and read-only thereafter.
type Table struct {
	pools []*pool.ServicePool // ordered longest-prefix-first for a fast linear scan
}

// NewTable builds a Table from the given pools. Pools are sorted by
// descending prefix length so Match can return on the first hit.
func NewTable(pools []*pool.ServicePool) *Table {
	ordered := append([]*pool.ServicePool(nil), pools...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && len(ordered[j].PathPrefix) > len(ordered[j-1].PathPrefix); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return &Table{pools: ordered}
}

// Match returns the ServicePool whose PathPrefix is a prefix of path and
// whose length is maximal, or nil if none matches.
func (t *Table) Match(path string) *pool.ServicePool {
	for _, p := range t.pools {
		if strings.HasPrefix(path, p.PathPrefix) {
			return p
		}
	}
	return nil
}
