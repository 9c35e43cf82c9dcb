package ipc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Handle roles carried in a handle descriptor.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

type messageEnvelope struct {
	Body string `msgpack:"body"`
}

type handleDescriptor struct {
	Role string `msgpack:"role"`
	PID  int    `msgpack:"pid,omitempty"`
}

func encodeMessage(body string) ([]byte, error) {
	return msgpack.Marshal(&messageEnvelope{Body: body})
}

func decodeMessage(f Frame) (string, error) {
	if f.Header.Type != TypeMessage {
		return "", fmt.Errorf("ipc: unexpected frame type %d", f.Header.Type)
	}
	var env messageEnvelope
	if err := msgpack.Unmarshal(f.Payload, &env); err != nil {
		return "", fmt.Errorf("ipc: decode message: %w", err)
	}
	return env.Body, nil
}

func encodeHandle(d handleDescriptor) ([]byte, error) {
	return msgpack.Marshal(&d)
}

func decodeHandle(f Frame) (handleDescriptor, error) {
	if f.Header.Type != TypeHandle {
		return handleDescriptor{}, fmt.Errorf("ipc: unexpected frame type %d", f.Header.Type)
	}
	var d handleDescriptor
	if err := msgpack.Unmarshal(f.Payload, &d); err != nil {
		return handleDescriptor{}, fmt.Errorf("ipc: decode handle: %w", err)
	}
	switch d.Role {
	case RoleSender, RoleReceiver:
		return d, nil
	default:
		return handleDescriptor{}, fmt.Errorf("ipc: unknown handle role %q", d.Role)
	}
}
