package telemetry

import (
	"sync"

	"github.com/danmuck/edgetask/internal/observability"
	"github.com/rs/zerolog"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Emit(ev Event) {
	e := s.Logger.Info().Str("event", ev.Name)
	for _, d := range ev.Properties {
		e = e.Str(string(d.Key), d.Value)
	}
	for _, d := range ev.Data {
		e = e.Str(string(d.Key), d.Value)
	}
	dest := make([]string, 0, len(ev.Destinations))
	for _, d := range ev.Destinations {
		dest = append(dest, string(d))
	}
	e.Strs("destinations", dest).Msg("telemetry.Event")
}

// MetricsSink counts events by name and type.
type MetricsSink struct{}

func (MetricsSink) Emit(ev Event) {
	t, _ := Lookup(ev.Data, KeyType)
	observability.RecordTaskEvent(ev.Name, t)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events called name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
