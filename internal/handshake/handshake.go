// Package handshake connects a task to its parent supervisor by handing
// channel ends to the parent's rendezvous servers.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/edgetask/internal/ipc"
	"github.com/rs/zerolog/log"
)

// ReadyMessage is sent once on the task-to-agent channel after it is handed
// over. Parents treat it as a liveness signal and discard it.
const ReadyMessage = "task.ready"

const (
	DirectionAgentToTask = "agent_to_task"
	DirectionTaskToAgent = "task_to_agent"

	DefaultTimeout = 30 * time.Second
)

var ErrHandshake = errors.New("handshake: failed")

// Endpoints are the rendezvous paths from the task document. Empty means the
// direction is not requested.
type Endpoints struct {
	FromAgentToTask string
	FromTaskToAgent string
}

// Enabled reports whether any direction is requested.
func (e Endpoints) Enabled() bool {
	return e.FromAgentToTask != "" || e.FromTaskToAgent != ""
}

type Options struct {
	// Timeout bounds each direction. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Observe receives the duration of each completed direction.
	Observe func(direction string, d time.Duration)
}

// Channels are the ends the task keeps. A field is nil when its direction was
// not requested or did not complete.
type Channels struct {
	FromAgent *ipc.Receiver
	ToAgent   *ipc.Sender
}

func (c Channels) Close() error {
	var errs []error
	if c.FromAgent != nil {
		errs = append(errs, c.FromAgent.Close())
	}
	if c.ToAgent != nil {
		errs = append(errs, c.ToAgent.Close())
	}
	return errors.Join(errs...)
}

// Establish performs the requested directions, agent-to-task first. Any
// failure is fatal and wraps ErrHandshake. A direction that completed before
// the failure is not undone: its end is returned alongside the error and the
// parent keeps whatever it received.
func Establish(ctx context.Context, ep Endpoints, opts Options) (Channels, error) {
	var out Channels
	if !ep.Enabled() {
		log.Debug().Msg("handshake.Establish skipped: no endpoints")
		return out, nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if ep.FromAgentToTask != "" {
		rx, err := agentToTask(ctx, ep.FromAgentToTask, opts)
		if err != nil {
			return out, err
		}
		out.FromAgent = rx
	}

	if ep.FromTaskToAgent != "" {
		tx, err := taskToAgent(ctx, ep.FromTaskToAgent, opts)
		if err != nil {
			return out, err
		}
		out.ToAgent = tx
	}
	return out, nil
}

func agentToTask(ctx context.Context, endpoint string, opts Options) (*ipc.Receiver, error) {
	start := time.Now()
	tx, rx, err := ipc.NewChannel()
	if err != nil {
		return nil, wrap(DirectionAgentToTask, endpoint, err)
	}
	if err := handOver(ctx, endpoint, opts.Timeout, func(o *ipc.OneShot) error { return o.SendSender(tx) }); err != nil {
		_ = tx.Close()
		_ = rx.Close()
		return nil, wrap(DirectionAgentToTask, endpoint, err)
	}
	observe(opts, DirectionAgentToTask, endpoint, start)
	return rx, nil
}

func taskToAgent(ctx context.Context, endpoint string, opts Options) (*ipc.Sender, error) {
	start := time.Now()
	tx, rx, err := ipc.NewChannel()
	if err != nil {
		return nil, wrap(DirectionTaskToAgent, endpoint, err)
	}
	if err := handOver(ctx, endpoint, opts.Timeout, func(o *ipc.OneShot) error { return o.SendReceiver(rx) }); err != nil {
		_ = tx.Close()
		_ = rx.Close()
		return nil, wrap(DirectionTaskToAgent, endpoint, err)
	}
	if err := tx.Send(ReadyMessage); err != nil {
		_ = tx.Close()
		return nil, wrap(DirectionTaskToAgent, endpoint, fmt.Errorf("send ready: %w", err))
	}
	observe(opts, DirectionTaskToAgent, endpoint, start)
	return tx, nil
}

func handOver(ctx context.Context, endpoint string, timeout time.Duration, send func(*ipc.OneShot) error) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	oneShot, err := ipc.Connect(dialCtx, endpoint)
	if err != nil {
		return err
	}
	defer oneShot.Close()
	return send(oneShot)
}

func observe(opts Options, direction, endpoint string, start time.Time) {
	d := time.Since(start)
	log.Info().Str("direction", direction).Str("endpoint", endpoint).Dur("took", d).Msg("handshake.Establish direction complete")
	if opts.Observe != nil {
		opts.Observe(direction, d)
	}
}

func wrap(direction, endpoint string, err error) error {
	return fmt.Errorf("%w: %s via %s: %w", ErrHandshake, direction, endpoint, err)
}
