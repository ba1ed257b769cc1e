package wsproto

import (
	"encoding/binary"
	"fmt"
)

var (
	// ErrFragmentedFrame reports a frame with FIN=0. Message fragmentation is
	// a protocol error on this endpoint.
	ErrFragmentedFrame = fmt.Errorf("fragmented websocket frame")
	// ErrUnmaskedClientFrame reports a client-to-server frame without the
	// mask bit set.
	ErrUnmaskedClientFrame = fmt.Errorf("client frame is not masked")
	// ErrFrameTooLarge reports a frame whose declared payload exceeds
	// MaxFramePayload.
	ErrFrameTooLarge = fmt.Errorf("frame payload exceeds maximum allowed size")
)

// DecodeFrame parses the first complete frame in raw. It returns the decoded
// frame and the total number of bytes consumed, or consumed == 0 when raw
// holds only a partial frame and more bytes are required. Partial data is
// never an error. When requireMasked is set, an unmasked frame is rejected
// with ErrUnmaskedClientFrame; masked payloads are unmasked in the returned
// frame.
func DecodeFrame(raw []byte, requireMasked bool) (Frame, int, error) {
	if len(raw) < 2 {
		return Frame{}, 0, nil
	}
	frame := Frame{
		Fin:    raw[0]&0x80 != 0,
		Opcode: raw[0] & 0x0F,
		Masked: raw[1]&0x80 != 0,
	}
	length := uint64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return Frame{}, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return Frame{}, 0, nil
		}
		length = binary.BigEndian.Uint64(raw[offset:])
		offset += 8
	}

	if length > MaxFramePayload {
		return Frame{}, 0, ErrFrameTooLarge
	}
	if !frame.Fin {
		return Frame{}, 0, ErrFragmentedFrame
	}
	if requireMasked && !frame.Masked {
		return Frame{}, 0, ErrUnmaskedClientFrame
	}

	if frame.Masked {
		if len(raw) < offset+4 {
			return Frame{}, 0, nil
		}
		copy(frame.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return Frame{}, 0, nil
	}

	frame.Payload = make([]byte, length)
	copy(frame.Payload, raw[offset:total])
	if frame.Masked {
		for i := range frame.Payload {
			frame.Payload[i] ^= frame.MaskKey[i%4]
		}
	}
	return frame, total, nil
}

// EncodeFrame serializes a single unfragmented frame. Server-to-client frames
// are unmasked; pass a mask key to build client-to-server frames in tests and
// tooling.
func EncodeFrame(opcode byte, payload []byte, maskKey *[4]byte) []byte {
	var header [10]byte
	header[0] = 0x80 | (opcode & 0x0F)

	var n int
	switch {
	case len(payload) <= 125:
		header[1] = byte(len(payload))
		n = 2
	case len(payload) <= 0xFFFF:
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
		n = 4
	default:
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(len(payload)))
		n = 10
	}

	if maskKey == nil {
		out := make([]byte, 0, n+len(payload))
		out = append(out, header[:n]...)
		return append(out, payload...)
	}

	header[1] |= 0x80
	out := make([]byte, 0, n+4+len(payload))
	out = append(out, header[:n]...)
	out = append(out, maskKey[:]...)
	start := len(out)
	out = append(out, payload...)
	for i := range payload {
		out[start+i] ^= maskKey[i%4]
	}
	return out
}
