// Package control models the JSON messages carried over the WebSocket
// control endpoint: the common envelope, the subsystem names, and the
// per-subsystem status payloads built from telescope state.
package control

import "time"

// Message types.
const (
	TypeCommand      = "Command"
	TypeResponse     = "Response"
	TypeNotification = "Notification"
	TypeError        = "Error"
	TypeWarning      = "Warning"
)

// Subsystem names recognized as Source/Destination values.
const (
	DestSystem      = "System"
	DestTaskCtrl    = "TaskController"
	DestMount       = "Mount"
	DestFocuser     = "Focuser"
	DestCamera      = "Camera"
	DestDewHeater   = "DewHeater"
	DestEnvironment = "Environment"
	DestLedRing     = "LedRing"
	DestOrientation = "OrientationSensor"
	DestDebug       = "Debug"
	DestDisk        = "Disk"
	DestImageServer = "ImageServer"
	DestNetwork     = "Network"
	DestLiveStream  = "LiveStream"
	DestFactory     = "FactoryCalibrationController"
	DestAll         = "All"
)

// ExpireAfter is how far in the future every outbound message's ExpiredAt
// stamp is set.
const ExpireAfter = 60 * time.Second

// Envelope is the common header on every protocol message. Response
// envelopes echo the inbound sequence id; notification envelopes consume a
// fresh id from the state store's monotone counter.
type Envelope struct {
	Command      string `json:"Command,omitempty"`
	Destination  string `json:"Destination"`
	Source       string `json:"Source"`
	SequenceID   int64  `json:"SequenceID"`
	Type         string `json:"Type"`
	ErrorCode    int    `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
	ExpiredAt    int64  `json:"ExpiredAt"`
}

// NotificationEnvelope builds the envelope for a periodic subsystem
// notification addressed to all clients.
func NotificationEnvelope(source string, seq int64, now time.Time) Envelope {
	return Envelope{
		Destination: DestAll,
		Source:      source,
		SequenceID:  seq,
		Type:        TypeNotification,
		ExpiredAt:   now.Add(ExpireAfter).UnixMilli(),
	}
}

// ResponseEnvelope builds the envelope for a command response: source and
// destination swap relative to the inbound command and the sequence id is
// echoed.
func ResponseEnvelope(command, inboundSource, inboundDestination string, seq int64, now time.Time) Envelope {
	return Envelope{
		Command:     command,
		Destination: inboundSource,
		Source:      inboundDestination,
		SequenceID:  seq,
		Type:        TypeResponse,
		ExpiredAt:   now.Add(ExpireAfter).UnixMilli(),
	}
}

// ErrorEnvelope builds the envelope for an asynchronous error or warning
// notification. Clients correlate these by context rather than sequence id.
func ErrorEnvelope(source string, code int, message string, seq int64, now time.Time) Envelope {
	return Envelope{
		Destination:  DestAll,
		Source:       source,
		SequenceID:   seq,
		Type:         TypeError,
		ErrorCode:    code,
		ErrorMessage: message,
		ExpiredAt:    now.Add(ExpireAfter).UnixMilli(),
	}
}
