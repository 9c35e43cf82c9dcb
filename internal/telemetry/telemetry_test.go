package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/testutil/testlog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testCommon() *taskconfig.CommonConfig {
	return &taskconfig.CommonConfig{
		JobID:      uuid.MustParse("11111111-1111-4111-8111-111111111111"),
		TaskID:     uuid.MustParse("22222222-2222-4222-8222-222222222222"),
		InstanceID: uuid.MustParse("33333333-3333-4333-8333-333333333333"),
		MachineIdentity: taskconfig.MachineIdentity{
			MachineID:   uuid.MustParse("44444444-4444-4444-8444-444444444444"),
			MachineName: "node-0",
		},
	}
}

func TestInitTaskProperties(t *testing.T) {
	testlog.Start(t)
	c := New()
	common := testCommon()
	c.InitTaskProperties(common, "1.2.3")

	props := c.Properties()
	want := map[Key]string{
		KeyJobID:      common.JobID.String(),
		KeyTaskID:     common.TaskID.String(),
		KeyMachineID:  common.MachineIdentity.MachineID.String(),
		KeyInstanceID: common.InstanceID.String(),
		KeyVersion:    "1.2.3",
		KeyRole:       RoleAgent,
	}
	if len(props) != len(want) {
		t.Fatalf("unexpected properties: %+v", props)
	}
	for k, v := range want {
		if got, ok := Lookup(props, k); !ok || got != v {
			t.Fatalf("property %s=%q want %q", k, got, v)
		}
	}
	if _, ok := Lookup(props, KeyScalesetID); ok {
		t.Fatalf("scaleset_id must be absent without scaleset_name")
	}

	common.MachineIdentity.ScalesetName = "pool-a"
	c.InitTaskProperties(common, "1.2.3")
	if got, _ := Lookup(c.Properties(), KeyScalesetID); got != "pool-a" {
		t.Fatalf("scaleset_id=%q", got)
	}
}

func TestEventCarriesPropertiesAndDestinations(t *testing.T) {
	testlog.Start(t)
	rec := &Recorder{}
	c := New(rec)
	common := testCommon()
	common.InstanceTelemetryKey = "instance-key"
	c.InitTaskProperties(common, "dev")

	c.Event(EventTaskStart, Type("generic_analysis"), ToolName("tool.exe"))

	events := rec.Named(EventTaskStart)
	if len(events) != 1 {
		t.Fatalf("expected one task_start, got %d", len(events))
	}
	ev := events[0]
	if got, _ := Lookup(ev.Data, KeyType); got != "generic_analysis" {
		t.Fatalf("type=%q", got)
	}
	if got, _ := Lookup(ev.Data, KeyToolName); got != "tool.exe" {
		t.Fatalf("tool_name=%q", got)
	}
	if got, _ := Lookup(ev.Properties, KeyTaskID); got != common.TaskID.String() {
		t.Fatalf("task_id property=%q", got)
	}
	if len(ev.Destinations) != 1 || ev.Destinations[0] != DestinationInstance {
		t.Fatalf("unexpected destinations: %v", ev.Destinations)
	}
}

func TestEventWithoutKeysStillReachesSinks(t *testing.T) {
	testlog.Start(t)
	rec := &Recorder{}
	var buf bytes.Buffer
	c := New(rec, LogSink{Logger: zerolog.New(&buf)}, MetricsSink{})

	c.Event(EventTaskFailed, Type("libfuzzer_crash_report"), Error(errors.New("boom")))

	if len(c.Destinations()) != 0 {
		t.Fatalf("expected no destinations")
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("expected recorded event")
	}
	line := buf.String()
	if !strings.Contains(line, `"event":"task_failed"`) || !strings.Contains(line, `"error":"boom"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestContextConcurrentUse(t *testing.T) {
	testlog.Start(t)
	rec := &Recorder{}
	c := New(rec)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SetProperty(Version("v"))
			c.Event("tick")
			_ = c.Properties()
		}()
	}
	wg.Wait()
	if got := len(rec.Named("tick")); got != 16 {
		t.Fatalf("expected 16 events, got %d", got)
	}
}
