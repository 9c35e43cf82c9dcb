package ipc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/edgetask/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	payload, err := encodeMessage("task.ready")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Header: Header{Type: TypeMessage}, Payload: payload}, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version || out.Header.Type != TypeMessage {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	msg, err := decodeMessage(out)
	if err != nil || msg != "task.ready" {
		t.Fatalf("decode message got=%q err=%v", msg, err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsForeignHeader(t *testing.T) {
	testlog.Start(t)
	badMagic := EncodeHeader(Header{Magic: 1, Version: Version, Type: TypeMessage})
	if _, err := ReadFrame(bytes.NewReader(badMagic), DefaultLimits()); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	badVersion := EncodeHeader(Header{Magic: Magic, Version: 9, Type: TypeMessage})
	if _, err := ReadFrame(bytes.NewReader(badVersion), DefaultLimits()); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestFramePayloadLimits(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 4}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Header: Header{Type: TypeMessage}, Payload: []byte("too long")}, limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on write, got %v", err)
	}
	oversized := EncodeHeader(Header{Magic: Magic, Version: Version, Type: TypeMessage, PayloadLen: 5})
	if _, err := ReadFrame(bytes.NewReader(oversized), limits); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge on read, got %v", err)
	}
}

func TestDecodeHandleRejectsUnknownRole(t *testing.T) {
	testlog.Start(t)
	payload, err := encodeHandle(handleDescriptor{Role: "observer"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodeHandle(Frame{Header: Header{Type: TypeHandle}, Payload: payload}); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if _, err := decodeHandle(Frame{Header: Header{Type: TypeMessage}, Payload: payload}); err == nil {
		t.Fatalf("expected frame type error")
	}
}
