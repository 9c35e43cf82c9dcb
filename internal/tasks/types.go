// Package tasks defines the runner contract and the registry mapping work
// kinds to runner factories.
package tasks

import (
	"context"
	"time"

	"github.com/danmuck/edgetask/internal/backoff"
	"github.com/danmuck/edgetask/internal/handshake"
	"github.com/danmuck/edgetask/internal/heartbeat"
	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/telemetry"
	"github.com/danmuck/edgetask/internal/tools"
)

// Runner executes one task to completion.
type Runner interface {
	Run(ctx context.Context) error
}

// ManagedRunner is a runner with its own supervision. The dispatcher prefers
// ManagedRun when a runner implements it.
type ManagedRunner interface {
	Runner
	ManagedRun(ctx context.Context) error
}

// Factory builds the runner for one parsed configuration.
type Factory func(cfg taskconfig.Config, env Env) (Runner, error)

// Metadata is the registry identity of a factory.
type Metadata struct {
	ID          string
	Name        string
	Description string
}

// Options are the process-level knobs runners honor.
type Options struct {
	HeartbeatInterval     time.Duration
	HeartbeatInitialDelay time.Duration
	ManagedRunAttempts    int
	MemoryCheckInterval   time.Duration
	Backoff               backoff.Config
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:   heartbeat.DefaultInterval,
		ManagedRunAttempts:  3,
		MemoryCheckInterval: 10 * time.Second,
		Backoff:             backoff.DefaultConfig(),
	}
}

// Env is what the dispatcher hands a factory besides the configuration.
type Env struct {
	Telemetry *telemetry.Context
	Channels  handshake.Channels
	Options   Options
	Exec      tools.CommandRunner
}
