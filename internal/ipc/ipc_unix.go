//go:build unix

package ipc

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func socketPair() (net.Conn, net.Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	a, err := fdConn(fds[0], "ipc-a")
	if err != nil {
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := fdConn(fds[1], "ipc-b")
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

// fdConn takes ownership of fd.
func fdConn(fd int, name string) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), name)
	if f == nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("invalid descriptor %d", fd)
	}
	defer f.Close()
	return net.FileConn(f)
}

type filer interface {
	File() (*os.File, error)
}

func sendHandle(via *net.UnixConn, role string, c net.Conn) error {
	fc, ok := c.(filer)
	if !ok {
		return fmt.Errorf("connection %T has no descriptor", c)
	}
	f, err := fc.File()
	if err != nil {
		return err
	}
	defer f.Close()

	payload, err := encodeHandle(handleDescriptor{Role: role, PID: os.Getpid()})
	if err != nil {
		return err
	}
	buf, err := encodeFrame(TypeHandle, payload, DefaultLimits())
	if err != nil {
		return err
	}
	n, oobn, err := via.WriteMsgUnix(buf, unix.UnixRights(int(f.Fd())), nil)
	if err != nil {
		return err
	}
	if n != len(buf) || oobn == 0 {
		return fmt.Errorf("short handle write: %d/%d bytes", n, len(buf))
	}
	return nil
}

func recvHandle(via *net.UnixConn) (string, net.Conn, error) {
	buf := make([]byte, 512)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := via.ReadMsgUnix(buf, oob)
	if err != nil {
		return "", nil, err
	}

	fd, err := parseRights(oob[:oobn])
	if err != nil {
		return "", nil, err
	}

	f, err := ReadFrame(io.MultiReader(bytes.NewReader(buf[:n]), via), DefaultLimits())
	if err != nil {
		_ = unix.Close(fd)
		return "", nil, err
	}
	d, err := decodeHandle(f)
	if err != nil {
		_ = unix.Close(fd)
		return "", nil, err
	}

	unix.CloseOnExec(fd)
	c, err := fdConn(fd, "ipc-"+d.Role)
	if err != nil {
		return "", nil, err
	}
	return d.Role, c, nil
}

func parseRights(oob []byte) (int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, err
	}
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		if len(fds) == 0 {
			continue
		}
		for _, extra := range fds[1:] {
			_ = unix.Close(extra)
		}
		return fds[0], nil
	}
	return -1, fmt.Errorf("no descriptor attached")
}
