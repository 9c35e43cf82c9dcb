// Package toolrun provides the default runner for every work kind: it
// spawns the kind's tool in the setup directory while keeping the task's
// heartbeat, memory guard and agent channel alive around it.
package toolrun

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/edgetask/internal/backoff"
	"github.com/danmuck/edgetask/internal/heartbeat"
	"github.com/danmuck/edgetask/internal/ipc"
	"github.com/danmuck/edgetask/internal/observability"
	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/tasks"
	"github.com/danmuck/edgetask/internal/telemetry"
	"github.com/danmuck/edgetask/internal/tools"
	"github.com/rs/zerolog/log"
)

// Runner runs one tool invocation per Run.
type Runner struct {
	kind   taskconfig.Kind
	common *taskconfig.CommonConfig
	cmd    tools.Command
	env    tasks.Env
	exec   tools.CommandRunner
	guard  MemoryGuard
}

// ManagedRunner retries the tool with backoff and reports final failure.
type ManagedRunner struct {
	*Runner
	attempts int
	rng      *rand.Rand
}

func newRunner(cfg taskconfig.Config, env tasks.Env) *Runner {
	common := cfg.Common()
	spawner := env.Exec
	if spawner == nil {
		spawner = tools.ExecRunner{}
	}
	return &Runner{
		kind:   cfg.Kind,
		common: common,
		cmd:    command(common, cfg.Payload.Invocation()),
		env:    env,
		exec:   spawner,
		guard: MemoryGuard{
			ThresholdMB: common.MinAvailableMemoryMB,
			Interval:    env.Options.MemoryCheckInterval,
		},
	}
}

func (r *Runner) Run(ctx context.Context) error {
	return r.withTaskServices(ctx, r.runOnce)
}

func (m *ManagedRunner) ManagedRun(ctx context.Context) error {
	return m.withTaskServices(ctx, func(ctx context.Context) error {
		var err error
		for attempt := 1; attempt <= m.attempts; attempt++ {
			err = m.runRecovered(ctx)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil || errors.Is(err, ErrLowMemory) || attempt == m.attempts {
				break
			}
			delay := backoff.Next(m.env.Options.Backoff, attempt, m.rng)
			log.Warn().Err(err).
				Str("kind", string(m.kind)).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("toolrun.ManagedRunner.ManagedRun attempt failed")
			if !backoff.Sleep(ctx.Done(), delay) {
				break
			}
		}
		err = lowMemoryCause(ctx, err)
		if m.env.Telemetry != nil {
			m.env.Telemetry.Event(telemetry.EventTaskFailed, telemetry.Type(m.kind.EventType()), telemetry.Error(err))
		}
		return err
	})
}

func (m *ManagedRunner) runRecovered(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("toolrun: %s panicked: %v", m.kind, p)
		}
	}()
	return m.runOnce(ctx)
}

// withTaskServices runs fn with the heartbeat, memory guard and agent
// listener active for its duration.
func (r *Runner) withTaskServices(ctx context.Context, fn func(context.Context) error) error {
	hb, err := r.common.InitHeartbeat(ctx, r.env.Options.HeartbeatInitialDelay,
		heartbeat.WithInterval(r.env.Options.HeartbeatInterval),
		heartbeat.WithObserver(observability.RecordHeartbeat),
	)
	if err != nil {
		return err
	}
	if hb != nil {
		defer hb.Close()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go r.guard.Watch(runCtx, cancel)
	if rx := r.env.Channels.FromAgent; rx != nil {
		go forwardAgentMessages(runCtx, rx)
	}

	err = lowMemoryCause(runCtx, fn(runCtx))
	outcome := observability.OutcomeSucceeded
	if err != nil {
		outcome = observability.OutcomeFailed
	}
	observability.RecordTaskRun(string(r.kind), outcome)
	return err
}

// lowMemoryCause replaces err with the guard's cancellation cause when the
// memory guard stopped the run.
func lowMemoryCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrLowMemory) {
		return cause
	}
	return err
}

func (r *Runner) runOnce(ctx context.Context) error {
	start := time.Now()
	res, err := r.exec.Run(ctx, r.cmd)
	logger := log.With().Str("kind", string(r.kind)).Str("exe", r.cmd.Name).Logger()
	if err != nil {
		logger.Error().Err(err).
			Int32("exit_code", res.ExitCode).
			Str("stderr", tail(res.Stderr, 2048)).
			Msg("toolrun.Runner.runOnce tool failed")
		return fmt.Errorf("toolrun: %s exited with code %d: %w", r.cmd.Name, res.ExitCode, err)
	}
	logger.Info().Dur("took", time.Since(start)).Msg("toolrun.Runner.runOnce tool finished")
	return nil
}

func forwardAgentMessages(ctx context.Context, rx *ipc.Receiver) {
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("toolrun.forwardAgentMessages stopped")
			}
			return
		}
		log.Info().Str("message", msg).Msg("toolrun.forwardAgentMessages agent message")
	}
}

// command expands placeholders and resolves the executable against the
// setup directory.
func command(common *taskconfig.CommonConfig, inv taskconfig.Invocation) tools.Command {
	expand := placeholders(common)
	args := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		args[i] = expand.Replace(a)
	}
	var env map[string]string
	if len(inv.Env) > 0 {
		env = make(map[string]string, len(inv.Env))
		for k, v := range inv.Env {
			env[k] = expand.Replace(v)
		}
	}
	return tools.Command{
		Name: resolveExe(common.SetupDir, expand.Replace(inv.Exe)),
		Args: args,
		Env:  env,
		Dir:  common.SetupDir,
	}
}

func placeholders(common *taskconfig.CommonConfig) *strings.Replacer {
	return strings.NewReplacer(
		"{setup_dir}", common.SetupDir,
		"{job_id}", common.JobID.String(),
		"{task_id}", common.TaskID.String(),
		"{machine_id}", common.MachineIdentity.MachineID.String(),
	)
}

// resolveExe joins relative paths with a separator onto setupDir. Bare names
// are left for PATH lookup.
func resolveExe(setupDir, exe string) string {
	if exe == "" || filepath.IsAbs(exe) || setupDir == "" {
		return exe
	}
	if strings.ContainsRune(exe, '/') || strings.ContainsRune(exe, filepath.Separator) {
		return filepath.Join(setupDir, exe)
	}
	return exe
}

// requireTool fails unless name is an existing file or resolvable on PATH.
func requireTool(name string) error {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil {
			return fmt.Errorf("toolrun: tool %s: %w", name, err)
		}
		if info.IsDir() {
			return fmt.Errorf("toolrun: tool %s is a directory", name)
		}
		return nil
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("toolrun: tool %s: %w", name, err)
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
