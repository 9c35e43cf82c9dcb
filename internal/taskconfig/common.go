package taskconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/edgetask/internal/heartbeat"
	"github.com/google/uuid"
)

const DefaultMinAvailableMemoryMB uint64 = 100

var (
	ErrIO     = errors.New("taskconfig: io error")
	ErrSchema = errors.New("taskconfig: schema error")
)

// MachineIdentity identifies the host executing the task.
type MachineIdentity struct {
	MachineID    uuid.UUID `json:"machine_id"`
	MachineName  string    `json:"machine_name"`
	ScalesetName string    `json:"scaleset_name,omitempty"`
}

// CommonConfig is the envelope every work kind carries under "common".
type CommonConfig struct {
	JobID      uuid.UUID
	TaskID     uuid.UUID
	InstanceID uuid.UUID

	HeartbeatQueue *url.URL

	InstanceTelemetryKey  string
	MicrosoftTelemetryKey string

	Logs *url.URL

	// SetupDir is owned by the caller. The loader replaces whatever the
	// document contained.
	SetupDir string

	// Lower bound on available system memory in MB. The task fails fast when
	// available memory drops below it. 0 disables the check.
	MinAvailableMemoryMB uint64

	MachineIdentity MachineIdentity

	FromAgentToTaskEndpoint string
	FromTaskToAgentEndpoint string

	decoded bool
}

type commonWire struct {
	JobID                   *uuid.UUID           `json:"job_id"`
	TaskID                  *uuid.UUID           `json:"task_id"`
	InstanceID              *uuid.UUID           `json:"instance_id"`
	HeartbeatQueue          *string              `json:"heartbeat_queue"`
	InstanceTelemetryKey    *string              `json:"instance_telemetry_key"`
	MicrosoftTelemetryKey   *string              `json:"microsoft_telemetry_key"`
	Logs                    *string              `json:"logs"`
	SetupDir                string               `json:"setup_dir"`
	MinAvailableMemoryMB    *uint64              `json:"min_available_memory_mb"`
	MachineIdentity         *machineIdentityWire `json:"machine_identity"`
	FromAgentToTaskEndpoint *string              `json:"from_agent_to_task_endpoint"`
	FromTaskToAgentEndpoint *string              `json:"from_task_to_agent_endpoint"`
}

type machineIdentityWire struct {
	MachineID    *uuid.UUID `json:"machine_id"`
	MachineName  *string    `json:"machine_name"`
	ScalesetName string     `json:"scaleset_name"`
}

// required reports the first required key absent from the document. Present
// values are taken as-is, including the nil UUID and an empty machine name.
func (w *commonWire) required() error {
	switch {
	case w.JobID == nil:
		return errors.New("common: missing job_id")
	case w.TaskID == nil:
		return errors.New("common: missing task_id")
	case w.InstanceID == nil:
		return errors.New("common: missing instance_id")
	case w.MachineIdentity == nil:
		return errors.New("common: missing machine_identity")
	case w.MachineIdentity.MachineID == nil:
		return errors.New("common: missing machine_identity.machine_id")
	case w.MachineIdentity.MachineName == nil:
		return errors.New("common: missing machine_identity.machine_name")
	}
	return nil
}

func (c *CommonConfig) UnmarshalJSON(data []byte) error {
	var w commonWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := w.required(); err != nil {
		return err
	}

	hb, err := parseOptionalURL("heartbeat_queue", w.HeartbeatQueue)
	if err != nil {
		return err
	}
	logs, err := parseOptionalURL("logs", w.Logs)
	if err != nil {
		return err
	}

	out := CommonConfig{
		JobID:                   *w.JobID,
		TaskID:                  *w.TaskID,
		InstanceID:              *w.InstanceID,
		HeartbeatQueue:          hb,
		InstanceTelemetryKey:    deref(w.InstanceTelemetryKey),
		MicrosoftTelemetryKey:   deref(w.MicrosoftTelemetryKey),
		Logs:                    logs,
		SetupDir:                w.SetupDir,
		MinAvailableMemoryMB:    DefaultMinAvailableMemoryMB,
		MachineIdentity: MachineIdentity{
			MachineID:    *w.MachineIdentity.MachineID,
			MachineName:  *w.MachineIdentity.MachineName,
			ScalesetName: w.MachineIdentity.ScalesetName,
		},
		FromAgentToTaskEndpoint: deref(w.FromAgentToTaskEndpoint),
		FromTaskToAgentEndpoint: deref(w.FromTaskToAgentEndpoint),
		decoded:                 true,
	}
	if w.MinAvailableMemoryMB != nil {
		out.MinAvailableMemoryMB = *w.MinAvailableMemoryMB
	}
	*c = out
	return nil
}

// Validate fails when the envelope was never decoded, which happens when a
// document has no "common" object. Required keys are checked while decoding.
func (c *CommonConfig) Validate() error {
	if !c.decoded {
		return errors.New("common: missing")
	}
	return nil
}

// InitHeartbeat builds the task heartbeat client. A missing heartbeat_queue
// is not an error: it returns a nil client.
func (c *CommonConfig) InitHeartbeat(
	ctx context.Context,
	initialDelay time.Duration,
	opts ...heartbeat.Option,
) (*heartbeat.Client, error) {
	if c.HeartbeatQueue == nil {
		return nil, nil
	}
	return heartbeat.New(ctx, heartbeat.Config{
		Queue:        c.HeartbeatQueue,
		TaskID:       c.TaskID,
		JobID:        c.JobID,
		MachineID:    c.MachineIdentity.MachineID,
		MachineName:  c.MachineIdentity.MachineName,
		InitialDelay: initialDelay,
	}, opts...)
}

func parseOptionalURL(field string, raw *string) (*url.URL, error) {
	if raw == nil {
		return nil, nil
	}
	u, err := url.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("common: invalid %s: %w", field, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("common: invalid %s: missing scheme in %q", field, *raw)
	}
	return u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
