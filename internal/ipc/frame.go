package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0xED7A5C01
	Version        uint16 = 1
	FixedHeaderLen        = 12

	TypeMessage uint16 = 1
	TypeHandle  uint16 = 2
)

var (
	ErrShortHeader     = errors.New("ipc: short frame header")
	ErrBadMagic        = errors.New("ipc: bad frame magic")
	ErrBadVersion      = errors.New("ipc: unsupported frame version")
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

// Header is the fixed frame header.
type Header struct {
	Magic      uint32
	Version    uint16
	Type       uint16
	PayloadLen uint32
}

// Frame is one complete channel message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 4 * 1024 * 1024}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := encodeFrame(f.Header.Type, f.Payload, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// encodeFrame returns the header and payload as one buffer so a frame can
// travel in a single write alongside ancillary data.
func encodeFrame(typ uint16, payload []byte, limits Limits) ([]byte, error) {
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, ErrPayloadTooLarge
	}
	h := Header{Magic: Magic, Version: Version, Type: typ, PayloadLen: uint32(len(payload))}
	buf := make([]byte, 0, FixedHeaderLen+len(payload))
	buf = append(buf, EncodeHeader(h)...)
	return append(buf, payload...), nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Type)
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("ipc: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       binary.BigEndian.Uint16(b[6:8]),
		PayloadLen: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}
