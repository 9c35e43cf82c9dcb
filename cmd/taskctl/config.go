package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgetask/internal/handshake"
	"github.com/danmuck/edgetask/internal/tasks"
)

type fileConfig struct {
	HeartbeatInterval     string `toml:"heartbeat_interval"`
	HeartbeatIntervalMS   int64  `toml:"heartbeat_interval_ms"`
	HeartbeatInitialDelay string `toml:"heartbeat_initial_delay"`
	HandshakeTimeout      string `toml:"handshake_timeout"`
	MetricsListenAddr     string `toml:"metrics_listen_addr"`
	ManagedRunAttempts    int    `toml:"managed_run_attempts"`
	MemoryCheckInterval   string `toml:"memory_check_interval"`
}

// runtimeConfig is process tuning that is not part of the task document.
type runtimeConfig struct {
	Tasks             tasks.Options
	HandshakeTimeout  time.Duration
	MetricsListenAddr string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Tasks:            tasks.DefaultOptions(),
		HandshakeTimeout: handshake.DefaultTimeout,
	}
}

// loadRuntimeConfig overlays the keys defined in the TOML file at path on the
// defaults. An empty path yields the defaults.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load runtime config: %w", err)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Tasks.HeartbeatInterval},
		{"heartbeat_initial_delay", raw.HeartbeatInitialDelay, &cfg.Tasks.HeartbeatInitialDelay},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"memory_check_interval", raw.MemoryCheckInterval, &cfg.Tasks.MemoryCheckInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return runtimeConfig{}, fmt.Errorf("parse %s: negative duration %s", d.key, v)
		}
		*d.dst = v
	}

	if meta.IsDefined("heartbeat_interval_ms") {
		cfg.Tasks.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalMS) * time.Millisecond
	}

	if meta.IsDefined("metrics_listen_addr") {
		cfg.MetricsListenAddr = strings.TrimSpace(raw.MetricsListenAddr)
	}

	if meta.IsDefined("managed_run_attempts") {
		if raw.ManagedRunAttempts < 1 {
			return runtimeConfig{}, fmt.Errorf("managed_run_attempts must be at least 1, got %d", raw.ManagedRunAttempts)
		}
		cfg.Tasks.ManagedRunAttempts = raw.ManagedRunAttempts
	}

	if cfg.Tasks.HeartbeatInterval <= 0 {
		return runtimeConfig{}, fmt.Errorf("heartbeat interval must be positive")
	}
	return cfg, nil
}
