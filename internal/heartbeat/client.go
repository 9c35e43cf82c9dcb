// Package heartbeat emits periodic task liveness messages to a queue.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 30 * time.Second

	TaskAlive = "TaskAlive"

	ResultSent   = "sent"
	ResultFailed = "failed"
)

var ErrConstruction = errors.New("heartbeat: client construction failed")

// Config binds a client to one task on one machine.
type Config struct {
	Queue        *url.URL
	TaskID       uuid.UUID
	JobID        uuid.UUID
	MachineID    uuid.UUID
	MachineName  string
	InitialDelay time.Duration
}

// Data is one liveness datum inside a heartbeat message.
type Data struct {
	Type string `json:"type"`
}

// Message is the queue payload.
type Message struct {
	TaskID      uuid.UUID `json:"task_id"`
	JobID       uuid.UUID `json:"job_id"`
	MachineID   uuid.UUID `json:"machine_id"`
	MachineName string    `json:"machine_name"`
	Data        []Data    `json:"data"`
}

type Option func(*options)

type options struct {
	interval   time.Duration
	queue      Queue
	httpClient *http.Client
	observe    func(result string)
}

// WithInterval sets the emission period.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithQueue bypasses address resolution.
func WithQueue(q Queue) Option {
	return func(o *options) { o.queue = q }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithObserver is called with ResultSent or ResultFailed after each send.
func WithObserver(fn func(result string)) Option {
	return func(o *options) { o.observe = fn }
}

// Client sends TaskAlive on its own schedule until Close or context end.
type Client struct {
	cfg      Config
	queue    Queue
	interval time.Duration
	observe  func(string)

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New resolves the queue and starts the emission loop. The first message is
// sent after cfg.InitialDelay, or immediately when it is zero.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	o := options{interval: DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}

	queue := o.queue
	if queue == nil {
		q, err := OpenQueue(ctx, cfg.Queue, o.httpClient)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
		}
		queue = q
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:      cfg,
		queue:    queue,
		interval: o.interval,
		observe:  o.observe,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.loop(loopCtx)

	log.Info().
		Str("task_id", cfg.TaskID.String()).
		Str("queue", redactedQueue(cfg.Queue)).
		Dur("interval", c.interval).
		Dur("initial_delay", cfg.InitialDelay).
		Msg("heartbeat.New started")
	return c, nil
}

// Beat sends one TaskAlive message now.
func (c *Client) Beat(ctx context.Context) error {
	payload, err := json.Marshal(Message{
		TaskID:      c.cfg.TaskID,
		JobID:       c.cfg.JobID,
		MachineID:   c.cfg.MachineID,
		MachineName: c.cfg.MachineName,
		Data:        []Data{{Type: TaskAlive}},
	})
	if err != nil {
		return err
	}
	err = c.queue.Append(ctx, payload)
	if c.observe != nil {
		if err != nil {
			c.observe(ResultFailed)
		} else {
			c.observe(ResultSent)
		}
	}
	return err
}

// Close stops the loop and releases the queue. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		err = c.queue.Close()
	})
	return err
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.done)

	if c.cfg.InitialDelay > 0 {
		timer := time.NewTimer(c.cfg.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Beat(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("task_id", c.cfg.TaskID.String()).Msg("heartbeat.Client.loop send failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func redactedQueue(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
