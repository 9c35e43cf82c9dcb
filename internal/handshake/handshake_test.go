//go:build unix

package handshake

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgetask/internal/ipc"
	"github.com/danmuck/edgetask/internal/testutil/testlog"
)

type testParent struct {
	srv     *ipc.OneShotServer
	handles chan ipc.Handle
}

func startParent(t *testing.T, ctx context.Context) *testParent {
	t.Helper()
	srv, err := ipc.NewOneShotServer(t.TempDir())
	if err != nil {
		t.Fatalf("one-shot server: %v", err)
	}
	p := &testParent{srv: srv, handles: make(chan ipc.Handle, 1)}
	go func() {
		h, err := srv.Accept(ctx)
		if err != nil {
			close(p.handles)
			return
		}
		p.handles <- h
	}()
	return p
}

func (p *testParent) handle(t *testing.T) ipc.Handle {
	t.Helper()
	select {
	case h, ok := <-p.handles:
		if !ok {
			t.Fatalf("parent accept failed")
		}
		return h
	case <-time.After(5 * time.Second):
		t.Fatalf("parent never received a handle")
	}
	return ipc.Handle{}
}

func TestEstablishWithoutEndpointsIsNoop(t *testing.T) {
	testlog.Start(t)
	ch, err := Establish(context.Background(), Endpoints{}, Options{})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if ch.FromAgent != nil || ch.ToAgent != nil {
		t.Fatalf("expected no channels, got %+v", ch)
	}
}

func TestEstablishBothDirections(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agentToTask := startParent(t, ctx)
	taskToAgent := startParent(t, ctx)

	var mu sync.Mutex
	observed := map[string]int{}
	ch, err := Establish(ctx, Endpoints{
		FromAgentToTask: agentToTask.srv.Endpoint(),
		FromTaskToAgent: taskToAgent.srv.Endpoint(),
	}, Options{Observe: func(direction string, _ time.Duration) {
		mu.Lock()
		observed[direction]++
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	defer ch.Close()
	if ch.FromAgent == nil || ch.ToAgent == nil {
		t.Fatalf("expected both channel ends, got %+v", ch)
	}

	parentTx := agentToTask.handle(t).Sender
	if parentTx == nil {
		t.Fatalf("agent-to-task parent expected a sender")
	}
	defer parentTx.Close()
	if err := parentTx.Send("stop"); err != nil {
		t.Fatalf("parent send: %v", err)
	}
	if got, err := ch.FromAgent.Recv(ctx); err != nil || got != "stop" {
		t.Fatalf("task recv got=%q err=%v", got, err)
	}

	parentRx := taskToAgent.handle(t).Receiver
	if parentRx == nil {
		t.Fatalf("task-to-agent parent expected a receiver")
	}
	defer parentRx.Close()
	if got, err := parentRx.Recv(ctx); err != nil || got != ReadyMessage {
		t.Fatalf("parent first message got=%q err=%v", got, err)
	}

	// Exactly one placeholder: the next message is whatever the task sends.
	if err := ch.ToAgent.Send("progress"); err != nil {
		t.Fatalf("task send: %v", err)
	}
	if got, err := parentRx.Recv(ctx); err != nil || got != "progress" {
		t.Fatalf("parent second message got=%q err=%v", got, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if observed[DirectionAgentToTask] != 1 || observed[DirectionTaskToAgent] != 1 {
		t.Fatalf("unexpected observations: %v", observed)
	}
}

func TestEstablishUnreachableEndpoint(t *testing.T) {
	testlog.Start(t)
	missing := filepath.Join(t.TempDir(), "absent.sock")
	ch, err := Establish(context.Background(), Endpoints{FromTaskToAgent: missing}, Options{Timeout: time.Second})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if ch.ToAgent != nil {
		t.Fatalf("expected no sender on failure")
	}
}

func TestEstablishStopsAtUnreachableAgentToTask(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	taskToAgent := startParent(t, ctx)
	ch, err := Establish(ctx, Endpoints{
		FromAgentToTask: filepath.Join(t.TempDir(), "absent.sock"),
		FromTaskToAgent: taskToAgent.srv.Endpoint(),
	}, Options{Timeout: time.Second})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if ch.FromAgent != nil || ch.ToAgent != nil {
		t.Fatalf("expected no channels, got %+v", ch)
	}
	select {
	case h, ok := <-taskToAgent.handles:
		if ok {
			t.Fatalf("task-to-agent must not be attempted, parent got %+v", h)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEstablishKeepsCompletedDirectionOnFailure(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agentToTask := startParent(t, ctx)
	ch, err := Establish(ctx, Endpoints{
		FromAgentToTask: agentToTask.srv.Endpoint(),
		FromTaskToAgent: filepath.Join(t.TempDir(), "absent.sock"),
	}, Options{Timeout: time.Second})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	defer ch.Close()
	if ch.FromAgent == nil {
		t.Fatalf("completed agent-to-task direction must be returned")
	}
	if ch.ToAgent != nil {
		t.Fatalf("failed direction must not be returned")
	}
	h := agentToTask.handle(t)
	if h.Sender == nil {
		t.Fatalf("parent keeps the sender it received")
	}
	_ = h.Sender.Close()
}
