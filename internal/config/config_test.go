package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
proxy_port: 9000
stats_port: 9001
health_check_interval_seconds: 5
services:
  - path_prefix: /catalog/
    policy: round_robin
    backends:
      - name: catalog-1
        host: 127.0.0.1
        port: 9101
      - name: catalog-2
        host: 127.0.0.1
        port: 9102
  - path_prefix: /accounts/
    policy: ip_hash
    backends:
      - name: accounts-1
        host: 127.0.0.1
        port: 9201
`

func TestLoad_ParsesValidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProxyPort != 9000 || cfg.StatsPort != 9001 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(cfg.Services))
	}
}

func TestLoad_AppliesDefaultsWhenOmitted(t *testing.T) {
	path := writeTempConfig(t, `
services:
  - path_prefix: /x/
    policy: round_robin
    backends:
      - name: x-1
        host: 127.0.0.1
        port: 9301
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ProxyPort != DefaultProxyPort {
		t.Fatalf("expected default proxy port %d, got %d", DefaultProxyPort, cfg.ProxyPort)
	}
	if cfg.StatsPort != DefaultStatsPort {
		t.Fatalf("expected default stats port %d, got %d", DefaultStatsPort, cfg.StatsPort)
	}
	if cfg.HealthCheckSeconds != DefaultHealthCheckInterval {
		t.Fatalf("expected default health check interval %d, got %d", DefaultHealthCheckInterval, cfg.HealthCheckSeconds)
	}
}

func TestLoad_RejectsMissingServices(t *testing.T) {
	path := writeTempConfig(t, "proxy_port: 9000\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a config with no services")
	}
}

func TestLoad_RejectsBadPathPrefix(t *testing.T) {
	path := writeTempConfig(t, `
services:
  - path_prefix: catalog
    policy: round_robin
    backends:
      - name: c1
        host: 127.0.0.1
        port: 9101
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a path_prefix missing a leading slash")
	}
}

func TestLoad_RejectsDuplicatePrefixes(t *testing.T) {
	path := writeTempConfig(t, `
services:
  - path_prefix: /a/
    policy: round_robin
    backends:
      - {name: a1, host: 127.0.0.1, port: 9101}
  - path_prefix: /a/
    policy: round_robin
    backends:
      - {name: a2, host: 127.0.0.1, port: 9102}
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for duplicate path_prefix entries")
	}
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	path := writeTempConfig(t, `
services:
  - path_prefix: /a/
    policy: fastest
    backends:
      - {name: a1, host: 127.0.0.1, port: 9101}
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown policy name")
	}
}

func TestBuildPools_ConstructsOneServicePoolPerService(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	pools := BuildPools(cfg)
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	if len(pools[0].Backends) != 2 {
		t.Fatalf("expected first pool to have 2 backends, got %d", len(pools[0].Backends))
	}

	all := AllBackends(pools)
	if len(all) != 3 {
		t.Fatalf("expected 3 total backends, got %d", len(all))
	}
}
