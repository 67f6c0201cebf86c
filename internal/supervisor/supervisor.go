// Package supervisor wires config, routing, health checking, and the
// two accept loops (proxy and stats) into one running process
// (spec.md §4.8/§5, SPEC_FULL.md §4.9). It owns the only mutable
// process-wide state: the live *router.Table, swapped atomically on
// every successful config reload.
package supervisor

import (
	"log"
	"net"
	"sync/atomic"

	"load-balancer/internal/config"
	"load-balancer/internal/healthcheck"
	"load-balancer/internal/pool"
	"load-balancer/internal/proxy"
	"load-balancer/internal/router"
	"load-balancer/internal/stats"

	"github.com/prometheus/client_golang/prometheus"
)

// Supervisor owns the proxy and stats listeners, the health checker,
// and the live routing table for one running load balancer process.
// table and pools are published with atomic.Pointer so the accept-loop
// goroutines, the config watcher, and the health checker can all read
// the current generation without a lock held across I/O.
type Supervisor struct {
	cfg      *config.Config
	table    atomic.Pointer[router.Table]
	pools    atomic.Pointer[[]*pool.ServicePool]
	counters *stats.Counters
	activity *stats.ActivityLog
	checker  *healthcheck.Checker
	prom     *stats.PromMetrics

	proxyListener net.Listener
	statsListener net.Listener
}

// New builds a Supervisor from an initial config. The proxy and stats
// listeners are opened immediately so the caller can fail fast on a
// bind error; Serve then runs the accept loops until done is closed.
func New(cfg *config.Config, reg prometheus.Registerer) (*Supervisor, error) {
	pools := config.BuildPools(cfg)

	proxyLn, err := net.Listen("tcp", net.JoinHostPort("", itoa(cfg.ProxyPort)))
	if err != nil {
		return nil, err
	}
	statsLn, err := net.Listen("tcp", net.JoinHostPort("", itoa(cfg.StatsPort)))
	if err != nil {
		proxyLn.Close()
		return nil, err
	}

	s := &Supervisor{
		cfg:           cfg,
		counters:      &stats.Counters{},
		activity:      stats.NewActivityLog(100),
		prom:          stats.NewPromMetrics(reg),
		proxyListener: proxyLn,
		statsListener: statsLn,
	}
	s.table.Store(router.NewTable(pools))
	s.pools.Store(&pools)

	s.checker = healthcheck.NewChecker(cfg.HealthCheckInterval, config.AllBackends(pools))
	s.checker.OnTransition = func(name, addr string, up bool) {
		level, state := stats.LevelWarning, "DOWN"
		if up {
			level, state = stats.LevelSuccess, "UP"
		}
		s.activity.Record(level, "healthcheck: "+name+" ("+addr+") is "+state)
	}
	return s, nil
}

// Serve runs the health checker and both accept loops until done is
// closed, then closes both listeners and stops the checker.
func (s *Supervisor) Serve(done <-chan struct{}) {
	go s.checker.Run(done)

	p := proxy.New(s.counters, s.activity, s.table.Load)
	st := stats.NewServer(s.counters, s.prom, s.activity, s.views)

	go acceptLoop(s.proxyListener, p.HandleConn)
	go acceptLoop(s.statsListener, st.HandleConn)

	<-done
	s.checker.Stop()
	s.proxyListener.Close()
	s.statsListener.Close()
}

// Reload replaces the live routing table and backend set wholesale
// (SPEC_FULL.md §4.9's "reload replaces the whole Router table"
// decision): in-flight requests keep using the table they already
// captured, and the health checker starts probing the new generation
// of *backend.Backend on its next cycle.
func (s *Supervisor) Reload(cfg *config.Config) error {
	pools := config.BuildPools(cfg)
	s.table.Store(router.NewTable(pools))
	s.pools.Store(&pools)
	s.checker.SetBackends(config.AllBackends(pools))
	s.cfg = cfg
	log.Printf("supervisor: reloaded config, %d services", len(cfg.Services))
	return nil
}

func (s *Supervisor) views() []stats.ServiceView {
	pools := *s.pools.Load()
	out := make([]stats.ServiceView, 0, len(pools))
	for _, p := range pools {
		views := stats.ServiceView{PathPrefix: p.PathPrefix, Policy: p.Policy.String()}
		for _, be := range p.Backends {
			views.Backends = append(views.Backends, stats.BackendView{
				Name:                be.Name,
				Addr:                be.Addr(),
				Healthy:             be.Healthy(),
				ActiveConnections:   be.ActiveConnections(),
				ConsecutiveFailures: be.ConsecutiveFailures(),
			})
		}
		out = append(out, views)
	}
	return out
}

func acceptLoop(ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go handle(conn)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	if neg {
		return "-" + digits
	}
	return digits
}
