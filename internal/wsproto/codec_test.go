package wsproto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAcceptRFCVector(t *testing.T) {
	// Sample key/accept pair from RFC 6455 §1.3.
	got := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestUpgradeResponse(t *testing.T) {
	resp, err := UpgradeResponse("dGhlIHNhbXBsZSBub25jZQ==")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, resp, "Upgrade: websocket\r\n")
	assert.Contains(t, resp, "Connection: Upgrade\r\n")
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))

	_, err = UpgradeResponse("  ")
	assert.ErrorIs(t, err, ErrMissingWebSocketKey)
}

func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 127, 65535, 65536, 70000} {
		payload := bytes.Repeat([]byte("x"), size)
		raw := EncodeFrame(OpcodeText, payload, nil)

		frame, consumed, err := DecodeFrame(raw, false)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, len(raw), consumed, "size %d", size)
		assert.True(t, frame.Fin)
		assert.False(t, frame.Masked)
		assert.Equal(t, byte(OpcodeText), frame.Opcode)
		assert.Equal(t, payload, frame.Payload, "size %d", size)
	}
}

func TestEncodeDecodeRoundTripMasked(t *testing.T) {
	key := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	payload := []byte(`{"Command":"GetVersion","Destination":"System","SequenceID":1,"Type":"Command"}`)
	raw := EncodeFrame(OpcodeText, payload, &key)

	// Masked bytes on the wire must differ from the plain payload.
	assert.NotEqual(t, payload, raw[len(raw)-len(payload):])

	frame, consumed, err := DecodeFrame(raw, true)
	require.NoError(t, err)
	assert.Equal(t, len(raw), consumed)
	assert.True(t, frame.Masked)
	assert.Equal(t, key, frame.MaskKey)
	assert.Equal(t, payload, frame.Payload)
}

func TestDecodePartialFramesConsumeNothing(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	raw := EncodeFrame(OpcodeText, bytes.Repeat([]byte("y"), 300), &key)

	for cut := 0; cut < len(raw); cut++ {
		frame, consumed, err := DecodeFrame(raw[:cut], true)
		require.NoError(t, err, "cut %d", cut)
		assert.Zero(t, consumed, "cut %d", cut)
		assert.Nil(t, frame.Payload, "cut %d", cut)
	}
}

func TestDecodeTwoFramesSequentially(t *testing.T) {
	key := [4]byte{9, 8, 7, 6}
	a := EncodeFrame(OpcodeText, []byte("first"), &key)
	b := EncodeFrame(OpcodePing, []byte("second"), &key)
	buf := append(append([]byte{}, a...), b...)

	frame, consumed, err := DecodeFrame(buf, true)
	require.NoError(t, err)
	assert.Equal(t, len(a), consumed)
	assert.Equal(t, []byte("first"), frame.Payload)

	frame, consumed, err = DecodeFrame(buf[consumed:], true)
	require.NoError(t, err)
	assert.Equal(t, len(b), consumed)
	assert.Equal(t, byte(OpcodePing), frame.Opcode)
	assert.Equal(t, []byte("second"), frame.Payload)
}

func TestDecodeRejectsUnmaskedWhenRequired(t *testing.T) {
	raw := EncodeFrame(OpcodeText, []byte("hello"), nil)
	_, _, err := DecodeFrame(raw, true)
	assert.ErrorIs(t, err, ErrUnmaskedClientFrame)
}

func TestDecodeRejectsFragmented(t *testing.T) {
	key := [4]byte{1, 1, 1, 1}
	raw := EncodeFrame(OpcodeText, []byte("frag"), &key)
	raw[0] &^= 0x80 // clear FIN

	_, _, err := DecodeFrame(raw, true)
	assert.ErrorIs(t, err, ErrFragmentedFrame)
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	// Hand-build a header declaring a payload past the limit; the payload
	// itself never needs to arrive.
	raw := []byte{0x81, 127, 0, 0, 0, 0, 0, 0x20, 0, 1}
	_, _, err := DecodeFrame(raw, false)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCloseRoundTrip(t *testing.T) {
	payload := EncodeClose(1011, "Ping timeout")
	status, reason := DecodeClose(payload)
	assert.Equal(t, uint16(1011), status)
	assert.Equal(t, "Ping timeout", reason)

	status, reason = DecodeClose(nil)
	assert.Equal(t, uint16(1005), status)
	assert.Empty(t, reason)
}

func TestHeartbeatPayload(t *testing.T) {
	p := HeartbeatPayload(0)
	require.Len(t, p, HeartbeatPayloadSize)
	assert.True(t, bytes.HasPrefix(p, []byte("ixwebsocket::heartbeat::5s::0")))
	// NUL padding fills the remainder.
	for _, b := range p[len("ixwebsocket::heartbeat::5s::0"):] {
		assert.Equal(t, byte(0), b)
	}

	assert.True(t, bytes.HasPrefix(HeartbeatPayload(7), []byte("ixwebsocket::heartbeat::5s::7")))

	// Multi-digit counters outgrow the fixed size and drop the padding.
	p = HeartbeatPayload(10)
	assert.Equal(t, []byte("ixwebsocket::heartbeat::5s::10"), p)
	assert.Len(t, p, HeartbeatPayloadSize+1)
}

func TestOpcodeName(t *testing.T) {
	assert.Equal(t, "text", OpcodeName(OpcodeText))
	assert.Equal(t, "close", OpcodeName(OpcodeClose))
	assert.Equal(t, "0x5", OpcodeName(0x5))
}
