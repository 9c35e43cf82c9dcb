// Package dispatch bootstraps one task: it initializes telemetry, performs
// the optional parent handshake, announces the start and hands control to
// the runner selected by the work kind.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/edgetask/internal/handshake"
	"github.com/danmuck/edgetask/internal/observability"
	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/tasks"
	"github.com/danmuck/edgetask/internal/telemetry"
	"github.com/danmuck/edgetask/internal/tools"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRun    = errors.New("dispatch: dispatcher already ran")
	ErrInvalidConfig = errors.New("dispatch: configuration has no payload")
)

// Phase is the bootstrap state. Transitions only move forward.
type Phase string

const (
	PhaseUnstarted            Phase = "unstarted"
	PhaseConfigured           Phase = "configured"
	PhaseLifecycleInitialized Phase = "lifecycle_initialized"
	PhaseHandshakeComplete    Phase = "handshake_complete"
	PhaseHandshakeSkipped     Phase = "handshake_skipped"
	PhaseDispatched           Phase = "dispatched"
	PhaseTerminal             Phase = "terminal"
)

// Stage names where a run failed.
type Stage string

const (
	StageConfigure Stage = "configure"
	StageHandshake Stage = "handshake"
	StageConstruct Stage = "construct"
	StageRun       Stage = "run"
)

// StageError reports the stage and work kind of a failure. Unwrap yields the
// underlying error unchanged.
type StageError struct {
	Stage Stage
	Kind  taskconfig.Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dispatch: %s %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config holds the process-level inputs the dispatcher passes through.
type Config struct {
	Version   string
	Handshake handshake.Options
	Options   tasks.Options
	Exec      tools.CommandRunner
}

type Dispatcher struct {
	cfg       Config
	registry  *tasks.Registry
	telemetry *telemetry.Context

	mu       sync.Mutex
	started  bool
	phase    Phase
	history  []Phase
	channels handshake.Channels
}

func New(registry *tasks.Registry, tel *telemetry.Context, cfg Config) *Dispatcher {
	if tel == nil {
		tel = telemetry.New()
	}
	if cfg.Handshake.Observe == nil {
		cfg.Handshake.Observe = observability.RecordHandshake
	}
	return &Dispatcher{
		cfg:       cfg,
		registry:  registry,
		telemetry: tel,
		phase:     PhaseUnstarted,
		history:   []Phase{PhaseUnstarted},
	}
}

func (d *Dispatcher) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// History returns every phase entered, in order.
func (d *Dispatcher) History() []Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Phase(nil), d.history...)
}

// Channels returns the ends kept from the handshake, including a partial
// result after a handshake failure.
func (d *Dispatcher) Channels() handshake.Channels {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels
}

func (d *Dispatcher) enter(p Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = p
	d.history = append(d.history, p)
	log.Debug().Str("phase", string(p)).Msg("dispatch.Dispatcher phase")
}

// Run bootstraps and runs the task described by cfg. It may be called once.
func (d *Dispatcher) Run(ctx context.Context, cfg taskconfig.Config) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyRun
	}
	d.started = true
	d.mu.Unlock()
	defer d.enter(PhaseTerminal)

	if cfg.Payload == nil {
		return &StageError{Stage: StageConfigure, Kind: cfg.Kind, Err: ErrInvalidConfig}
	}
	common := cfg.Common()
	d.enter(PhaseConfigured)

	d.telemetry.InitTaskProperties(common, d.cfg.Version)
	d.enter(PhaseLifecycleInitialized)

	endpoints := handshake.Endpoints{
		FromAgentToTask: common.FromAgentToTaskEndpoint,
		FromTaskToAgent: common.FromTaskToAgentEndpoint,
	}
	if endpoints.Enabled() {
		channels, err := handshake.Establish(ctx, endpoints, d.cfg.Handshake)
		d.mu.Lock()
		d.channels = channels
		d.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("kind", string(cfg.Kind)).Msg("dispatch.Dispatcher.Run handshake failed")
			return &StageError{Stage: StageHandshake, Kind: cfg.Kind, Err: err}
		}
		d.enter(PhaseHandshakeComplete)
	} else {
		d.enter(PhaseHandshakeSkipped)
	}

	d.telemetry.Event(telemetry.EventTaskStart, startData(cfg)...)

	runner, err := d.registry.Build(cfg, tasks.Env{
		Telemetry: d.telemetry,
		Channels:  d.Channels(),
		Options:   d.cfg.Options,
		Exec:      d.cfg.Exec,
	})
	if err != nil {
		log.Error().Err(err).Str("kind", string(cfg.Kind)).Msg("dispatch.Dispatcher.Run construct failed")
		observability.RecordTaskRun(string(cfg.Kind), observability.OutcomeRejected)
		return &StageError{Stage: StageConstruct, Kind: cfg.Kind, Err: err}
	}
	d.enter(PhaseDispatched)

	log.Info().
		Str("kind", string(cfg.Kind)).
		Str("task_id", common.TaskID.String()).
		Str("job_id", common.JobID.String()).
		Msg("dispatch.Dispatcher.Run dispatched")

	if managed, ok := runner.(tasks.ManagedRunner); ok {
		err = managed.ManagedRun(ctx)
	} else {
		err = runner.Run(ctx)
	}
	if err != nil {
		return &StageError{Stage: StageRun, Kind: cfg.Kind, Err: err}
	}
	return nil
}

func startData(cfg taskconfig.Config) []telemetry.Data {
	data := []telemetry.Data{telemetry.Type(cfg.Kind.EventType())}
	switch cfg.Kind {
	case taskconfig.KindGenericAnalysis, taskconfig.KindGenericGenerator:
		data = append(data, telemetry.ToolName(cfg.Payload.Invocation().Exe))
	}
	return data
}
