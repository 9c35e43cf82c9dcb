// Package telemetry holds the process-wide task properties and routes
// events to sinks. The Context is created once per process and passed
// explicitly to the components that emit events.
package telemetry

import (
	"slices"
	"sync"
	"time"

	"github.com/danmuck/edgetask/internal/taskconfig"
)

const (
	EventTaskStart  = "task_start"
	EventTaskFailed = "task_failed"

	RoleAgent = "agent"
)

// Destination is a remote event collector selected by a configured key.
type Destination string

const (
	DestinationInstance  Destination = "instance"
	DestinationMicrosoft Destination = "microsoft"
)

// Event is one emitted telemetry record.
type Event struct {
	Name         string
	Time         time.Time
	Data         []Data
	Properties   []Data
	Destinations []Destination
}

// Sink consumes events. Emit must not block for long.
type Sink interface {
	Emit(Event)
}

type Context struct {
	mu         sync.Mutex
	properties map[Key]string
	keys       map[Destination]string
	sinks      []Sink
}

func New(sinks ...Sink) *Context {
	return &Context{
		properties: make(map[Key]string),
		keys:       make(map[Destination]string),
		sinks:      sinks,
	}
}

// AddSink registers s for subsequent events.
func (c *Context) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// SetKeys records the optional collector keys. Empty keys disable their
// destination.
func (c *Context) SetKeys(instance, microsoft string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	setOrDelete(c.keys, DestinationInstance, instance)
	setOrDelete(c.keys, DestinationMicrosoft, microsoft)
}

func setOrDelete(m map[Destination]string, d Destination, v string) {
	if v == "" {
		delete(m, d)
		return
	}
	m[d] = v
}

// Destinations lists the collectors events are routed to.
func (c *Context) Destinations() []Destination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destinationsLocked()
}

func (c *Context) destinationsLocked() []Destination {
	out := make([]Destination, 0, len(c.keys))
	for _, d := range []Destination{DestinationInstance, DestinationMicrosoft} {
		if _, ok := c.keys[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (c *Context) SetProperty(d Data) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[d.Key] = d.Value
}

// Properties returns the global properties sorted by key.
func (c *Context) Properties() []Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.propertiesLocked()
}

func (c *Context) propertiesLocked() []Data {
	out := make([]Data, 0, len(c.properties))
	for k, v := range c.properties {
		out = append(out, Data{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b Data) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

// InitTaskProperties sets the identity properties every later event carries.
func (c *Context) InitTaskProperties(common *taskconfig.CommonConfig, version string) {
	c.SetKeys(common.InstanceTelemetryKey, common.MicrosoftTelemetryKey)
	c.SetProperty(JobID(common.JobID))
	c.SetProperty(TaskID(common.TaskID))
	c.SetProperty(MachineID(common.MachineIdentity.MachineID))
	c.SetProperty(Version(version))
	c.SetProperty(InstanceID(common.InstanceID))
	c.SetProperty(Role(RoleAgent))
	if name := common.MachineIdentity.ScalesetName; name != "" {
		c.SetProperty(ScalesetID(name))
	}
}

// Event emits name with data to every sink. Events are still delivered to
// local sinks when no destination is configured.
func (c *Context) Event(name string, data ...Data) {
	c.mu.Lock()
	ev := Event{
		Name:         name,
		Time:         time.Now().UTC(),
		Data:         slices.Clone(data),
		Properties:   c.propertiesLocked(),
		Destinations: c.destinationsLocked(),
	}
	sinks := slices.Clone(c.sinks)
	c.mu.Unlock()

	for _, s := range sinks {
		s.Emit(ev)
	}
}
