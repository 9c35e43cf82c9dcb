//go:build unix

package ipc

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/danmuck/edgetask/internal/testutil/testlog"
)

func TestChannelDeliversInOrder(t *testing.T) {
	testlog.Start(t)
	tx, rx, err := NewChannel()
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer rx.Close()

	for _, msg := range []string{"one", "two", ""} {
		if err := tx.Send(msg); err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
	}
	if err := tx.Close(); err != nil {
		t.Fatalf("close sender: %v", err)
	}

	ctx := context.Background()
	for _, want := range []string{"one", "two", ""} {
		got, err := rx.Recv(ctx)
		if err != nil || got != want {
			t.Fatalf("recv got=%q err=%v want %q", got, err, want)
		}
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after sender close, got %v", err)
	}
	if err := tx.Send("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRecvHonorsContext(t *testing.T) {
	testlog.Start(t)
	tx, rx, err := NewChannel()
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer tx.Close()
	defer rx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := rx.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if err := tx.Send("after-timeout"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := rx.Recv(context.Background())
	if err != nil || got != "after-timeout" {
		t.Fatalf("recv after timeout got=%q err=%v", got, err)
	}
}

func TestRendezvousPassesSender(t *testing.T) {
	testlog.Start(t)
	srv, err := NewOneShotServer(t.TempDir())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Handle, 1)
	errs := make(chan error, 1)
	go func() {
		h, err := srv.Accept(ctx)
		if err != nil {
			errs <- err
			return
		}
		accepted <- h
	}()

	tx, rx, err := NewChannel()
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer rx.Close()

	oneShot, err := Connect(ctx, srv.Endpoint())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer oneShot.Close()
	if err := oneShot.SendSender(tx); err != nil {
		t.Fatalf("send sender: %v", err)
	}

	var h Handle
	select {
	case h = <-accepted:
	case err := <-errs:
		t.Fatalf("accept: %v", err)
	}
	if h.Sender == nil || h.Receiver != nil {
		t.Fatalf("expected sender handle, got %+v", h)
	}
	if err := h.Sender.Send("from-parent"); err != nil {
		t.Fatalf("parent send: %v", err)
	}
	got, err := rx.Recv(ctx)
	if err != nil || got != "from-parent" {
		t.Fatalf("child recv got=%q err=%v", got, err)
	}

	// The child's local copy was released, so closing the parent's end is EOF.
	if err := h.Sender.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRendezvousPassesReceiver(t *testing.T) {
	testlog.Start(t)
	srv, err := NewOneShotServer(t.TempDir())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Handle, 1)
	go func() {
		h, _ := srv.Accept(ctx)
		accepted <- h
	}()

	tx, rx, err := NewChannel()
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer tx.Close()

	oneShot, err := Connect(ctx, srv.Endpoint())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer oneShot.Close()
	if err := oneShot.SendReceiver(rx); err != nil {
		t.Fatalf("send receiver: %v", err)
	}

	h := <-accepted
	if h.Receiver == nil {
		t.Fatalf("expected receiver handle, got %+v", h)
	}
	defer h.Receiver.Close()
	if err := tx.Send("to-parent"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := h.Receiver.Recv(ctx)
	if err != nil || got != "to-parent" {
		t.Fatalf("parent recv got=%q err=%v", got, err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	testlog.Start(t)
	if _, err := Connect(context.Background(), t.TempDir()+"/absent.sock"); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	testlog.Start(t)
	srv, err := NewOneShotServer(t.TempDir())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := srv.Accept(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
