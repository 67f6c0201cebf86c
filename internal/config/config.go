// Package config loads the YAML file describing listen ports, the
// health-check interval, and the (path_prefix, policy, backends[])
// service table (SPEC_FULL.md §3.1) — the external bootstrap spec.md
// places out of scope for the core, given a concrete shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"load-balancer/internal/backend"
	"load-balancer/internal/pool"
)

// Config is the parsed YAML document.
type Config struct {
	ProxyPort           int             `yaml:"proxy_port"`
	StatsPort           int             `yaml:"stats_port"`
	HealthCheckInterval time.Duration   `yaml:"-"`
	HealthCheckSeconds  int             `yaml:"health_check_interval_seconds"`
	Services            []ServiceConfig `yaml:"services"`
}

// ServiceConfig is one entry in the services list.
type ServiceConfig struct {
	PathPrefix string          `yaml:"path_prefix"`
	Policy     string          `yaml:"policy"`
	Backends   []BackendConfig `yaml:"backends"`
}

// BackendConfig is one backend entry within a service.
type BackendConfig struct {
	Name               string `yaml:"name"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	MaxFails           int    `yaml:"max_fails"`
	FailTimeoutSeconds int    `yaml:"fail_timeout_seconds"`
}

const (
	DefaultProxyPort           = 80
	DefaultStatsPort           = 8081
	DefaultHealthCheckInterval = 30
)

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ProxyPort == 0 {
		cfg.ProxyPort = DefaultProxyPort
	}
	if cfg.StatsPort == 0 {
		cfg.StatsPort = DefaultStatsPort
	}
	if cfg.HealthCheckSeconds == 0 {
		cfg.HealthCheckSeconds = DefaultHealthCheckInterval
	}
	cfg.HealthCheckInterval = time.Duration(cfg.HealthCheckSeconds) * time.Second

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return fmt.Errorf("config: no services defined")
	}
	seenPrefixes := make(map[string]bool, len(cfg.Services))
	for _, svc := range cfg.Services {
		if svc.PathPrefix == "" || svc.PathPrefix[0] != '/' {
			return fmt.Errorf("config: service path_prefix %q must start with /", svc.PathPrefix)
		}
		if seenPrefixes[svc.PathPrefix] {
			return fmt.Errorf("config: duplicate path_prefix %q", svc.PathPrefix)
		}
		seenPrefixes[svc.PathPrefix] = true
		if _, ok := pool.ParsePolicy(svc.Policy); !ok {
			return fmt.Errorf("config: service %q has invalid policy %q", svc.PathPrefix, svc.Policy)
		}
		if len(svc.Backends) == 0 {
			return fmt.Errorf("config: service %q has no backends", svc.PathPrefix)
		}
		for _, b := range svc.Backends {
			if b.Name == "" || b.Host == "" || b.Port == 0 {
				return fmt.Errorf("config: service %q has an incomplete backend entry", svc.PathPrefix)
			}
		}
	}
	return nil
}

// BuildPools materializes ServicePools (and their Backends) from the
// parsed config. Each call constructs a fresh generation of backends,
// per SPEC_FULL.md §4.9 — a reload never mutates a live *backend.Backend.
func BuildPools(cfg *Config) []*pool.ServicePool {
	pools := make([]*pool.ServicePool, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		policy, _ := pool.ParsePolicy(svc.Policy)
		backends := make([]*backend.Backend, 0, len(svc.Backends))
		for _, b := range svc.Backends {
			failTimeout := time.Duration(b.FailTimeoutSeconds) * time.Second
			backends = append(backends, backend.New(b.Name, b.Host, b.Port, b.MaxFails, failTimeout))
		}
		pools = append(pools, pool.New(svc.PathPrefix, policy, backends))
	}
	return pools
}

// AllBackends flattens every backend across every pool, the shape the
// health checker needs (spec.md §4.2 probes "the registered Backend set").
func AllBackends(pools []*pool.ServicePool) []*backend.Backend {
	var out []*backend.Backend
	for _, p := range pools {
		out = append(out, p.Backends...)
	}
	return out
}
