// Package wsproto implements the WebSocket wire protocol subset the control
// endpoint speaks: text, ping, pong, and close frames, with all three
// payload-length encodings. Fragmented messages and extensions are treated as
// protocol errors.
package wsproto

import (
	"fmt"
	"strconv"
)

// Frame opcodes.
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// Close status codes.
const (
	CloseNormalClosure     = 1000
	CloseGoingAway         = 1001
	CloseProtocolError     = 1002
	CloseInternalServerErr = 1011
)

// MaxFramePayload bounds a single inbound frame. Control messages are small
// JSON objects; anything past this is hostile or broken.
const MaxFramePayload = 1 << 20 // 1 MiB

// HeartbeatPayloadSize is the fixed ping payload length the device emits.
const HeartbeatPayloadSize = 29

const heartbeatPrefix = "ixwebsocket::heartbeat::5s::"

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// HeartbeatPayload builds the ping payload for the nth heartbeat:
// "ixwebsocket::heartbeat::5s::<n>" right-padded with NULs to 29 bytes.
// A counter of two or more digits no longer fits the fixed size; the
// payload then grows with the counter and carries no padding, matching
// what the device emits on long-lived connections.
func HeartbeatPayload(n uint64) []byte {
	s := heartbeatPrefix + strconv.FormatUint(n, 10)
	if len(s) >= HeartbeatPayloadSize {
		return []byte(s)
	}
	buf := make([]byte, HeartbeatPayloadSize)
	copy(buf, s)
	return buf
}

// EncodeClose builds a close frame payload from a status code and reason.
func EncodeClose(status uint16, reason string) []byte {
	buf := make([]byte, 2+len(reason))
	buf[0] = byte(status >> 8)
	buf[1] = byte(status)
	copy(buf[2:], reason)
	return buf
}

// DecodeClose splits a close frame payload into status code and reason. An
// empty payload reports status 1005 (no status received) per the standard.
func DecodeClose(payload []byte) (status uint16, reason string) {
	if len(payload) < 2 {
		return 1005, ""
	}
	return uint16(payload[0])<<8 | uint16(payload[1]), string(payload[2:])
}

// OpcodeName renders an opcode for log messages.
func OpcodeName(op byte) string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return fmt.Sprintf("0x%X", op)
}
