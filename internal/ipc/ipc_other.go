//go:build !unix

package ipc

import "net"

func socketPair() (net.Conn, net.Conn, error) {
	return nil, nil, ErrUnsupported
}

func sendHandle(*net.UnixConn, string, net.Conn) error {
	return ErrUnsupported
}

func recvHandle(*net.UnixConn) (string, net.Conn, error) {
	return "", nil, ErrUnsupported
}
