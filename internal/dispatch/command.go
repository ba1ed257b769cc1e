// Package dispatch parses inbound control messages and routes each command
// to a typed handler. Handlers mutate telescope state, build the response
// body, and may start a simulated activity.
package dispatch

import (
	"encoding/json"
	"fmt"
)

// Command is one parsed inbound message. Payload fields are pointers so a
// handler can distinguish "absent" from a zero value.
type Command struct {
	Command     string `json:"Command"`
	Destination string `json:"Destination"`
	Source      string `json:"Source"`
	SequenceID  int64  `json:"SequenceID"`
	Type        string `json:"Type"`

	// Mount
	Ra      *float64 `json:"Ra"`
	Dec     *float64 `json:"Dec"`
	AltRate *int     `json:"AltRate"`
	AzmRate *int     `json:"AzmRate"`

	// Focuser
	Position *int `json:"Position"`
	Backlash *int `json:"Backlash"`

	// Camera
	Exposure      *float64 `json:"Exposure"`
	ISO           *int     `json:"ISO"`
	Binning       *int     `json:"Binning"`
	Offset        *int     `json:"Offset"`
	ColorRBalance *float64 `json:"ColorRBalance"`
	ColorGBalance *float64 `json:"ColorGBalance"`
	ColorBBalance *float64 `json:"ColorBBalance"`

	// Dew heater
	Mode             *string  `json:"Mode"`
	Aggression       *int     `json:"Aggression"`
	ManualPowerLevel *float64 `json:"ManualPowerLevel"`

	// Task controller
	FakeInitialize *bool `json:"FakeInitialize"`

	// Image server
	Directory *string `json:"Directory"`

	// Led ring
	Brightness *int `json:"Brightness"`
}

// ParseCommand decodes one inbound text message.
func ParseCommand(raw []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("failed to parse command message: %w", err)
	}
	return &cmd, nil
}
