// Package ipc provides one-way string channels between a task and its parent
// supervisor, and the one-shot rendezvous used to hand channel ends across
// process boundaries.
//
// A channel is a connected socket pair. Each frame is a fixed header followed
// by a msgpack payload. Handles travel as file descriptors attached to a
// handle frame.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrUnsupported = errors.New("ipc: not supported on this platform")
	ErrClosed      = errors.New("ipc: channel closed")
)

// Sender is the writing end of a channel.
type Sender struct {
	mu     sync.Mutex
	conn   net.Conn
	limits Limits
	closed bool
}

// Receiver is the reading end of a channel.
type Receiver struct {
	readMu    sync.Mutex
	conn      net.Conn
	r         *bufio.Reader
	limits    Limits
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSender(conn net.Conn) *Sender {
	return &Sender{conn: conn, limits: DefaultLimits()}
}

func newReceiver(conn net.Conn) *Receiver {
	return &Receiver{conn: conn, r: bufio.NewReader(conn), limits: DefaultLimits()}
}

// NewChannel creates a connected sender and receiver.
func NewChannel() (*Sender, *Receiver, error) {
	a, b, err := socketPair()
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: create channel: %w", err)
	}
	return newSender(a), newReceiver(b), nil
}

// Send writes one message. Messages are delivered in order.
func (s *Sender) Send(msg string) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return WriteFrame(s.conn, Frame{Header: Header{Type: TypeMessage}, Payload: payload}, s.limits)
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Recv blocks until a message arrives, the sender closes or ctx ends. A
// closed sender yields io.EOF.
func (r *Receiver) Recv(ctx context.Context) (string, error) {
	if r.closed.Load() {
		return "", ErrClosed
	}
	r.readMu.Lock()
	defer r.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			_ = r.conn.SetReadDeadline(time.Time{})
		}
	}()

	f, err := ReadFrame(r.r, r.limits)
	if err != nil {
		switch {
		case r.closed.Load():
			return "", ErrClosed
		case ctx.Err() != nil:
			return "", ctx.Err()
		}
		return "", err
	}
	return decodeMessage(f)
}

// Close releases the receiver and unblocks a pending Recv.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		err = r.conn.Close()
	})
	return err
}
