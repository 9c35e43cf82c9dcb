package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OneShot is a client connection to a parent's one-shot rendezvous server.
// It carries exactly one handle.
type OneShot struct {
	endpoint string
	conn     *net.UnixConn
}

// Connect dials the rendezvous server listening at endpoint.
func Connect(ctx context.Context, endpoint string) (*OneShot, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("ipc: connect %s: %w", endpoint, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("ipc: connect %s: unexpected connection type %T", endpoint, conn)
	}
	return &OneShot{endpoint: endpoint, conn: uc}, nil
}

// SendSender hands s to the parent. The local end is closed on success.
func (o *OneShot) SendSender(s *Sender) error {
	if err := sendHandle(o.conn, RoleSender, s.conn); err != nil {
		return fmt.Errorf("ipc: send sender to %s: %w", o.endpoint, err)
	}
	return s.Close()
}

// SendReceiver hands r to the parent. The local end is closed on success.
func (o *OneShot) SendReceiver(r *Receiver) error {
	if err := sendHandle(o.conn, RoleReceiver, r.conn); err != nil {
		return fmt.Errorf("ipc: send receiver to %s: %w", o.endpoint, err)
	}
	return r.Close()
}

func (o *OneShot) Close() error {
	return o.conn.Close()
}

// Handle is a channel end received through a rendezvous. Exactly one field
// is set.
type Handle struct {
	Sender   *Sender
	Receiver *Receiver
}

// OneShotServer is the parent side of a rendezvous. It accepts a single
// connection carrying a single handle and then stops listening.
type OneShotServer struct {
	endpoint string
	ln       *net.UnixListener
	once     sync.Once
}

// NewOneShotServer listens on a fresh socket path under dir.
func NewOneShotServer(dir string) (*OneShotServer, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	endpoint := filepath.Join(dir, "rendezvous-"+uuid.NewString()[:8]+".sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: endpoint, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", endpoint, err)
	}
	return &OneShotServer{endpoint: endpoint, ln: ln}, nil
}

// Endpoint is the path a child passes to Connect.
func (s *OneShotServer) Endpoint() string {
	return s.endpoint
}

// Accept waits for the child and returns the handle it sent.
func (s *OneShotServer) Accept(ctx context.Context) (Handle, error) {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()

	conn, err := s.ln.AcceptUnix()
	if err != nil {
		if ctx.Err() != nil {
			return Handle{}, ctx.Err()
		}
		return Handle{}, fmt.Errorf("ipc: accept %s: %w", s.endpoint, err)
	}
	defer conn.Close()

	role, c, err := recvHandle(conn)
	if err != nil {
		return Handle{}, fmt.Errorf("ipc: receive handle on %s: %w", s.endpoint, err)
	}
	log.Debug().Str("endpoint", s.endpoint).Str("role", role).Msg("ipc.OneShotServer.Accept received")

	switch role {
	case RoleSender:
		return Handle{Sender: newSender(c)}, nil
	default:
		return Handle{Receiver: newReceiver(c)}, nil
	}
}

// Close stops listening and removes the socket path.
func (s *OneShotServer) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		_ = os.Remove(s.endpoint)
	})
	return err
}
