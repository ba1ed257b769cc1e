// Package handpad drives an optional wired hand controller over a serial
// port. The pad speaks a simple line protocol; each line becomes a control
// command routed through the same dispatcher as WebSocket clients.
package handpad

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/skyfield-data/originsim/internal/dispatch"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/units"
)

// SerialPorter is the minimal serial port surface the handpad needs.
// Abstracted so tests run without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// OpenPort opens a real serial port at path with the handpad's fixed mode.
func OpenPort(path string) (SerialPorter, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open handpad port %s: %w", path, err)
	}
	return port, nil
}

// Handpad reads pad lines and answers on the same port.
type Handpad struct {
	port       SerialPorter
	loop       *telescope.Loop
	state      *telescope.State
	dispatcher *dispatch.Dispatcher

	seq int64
}

// New builds a handpad bound to an open port.
func New(port SerialPorter, loop *telescope.Loop, state *telescope.State, dispatcher *dispatch.Dispatcher) *Handpad {
	return &Handpad{port: port, loop: loop, state: state, dispatcher: dispatcher}
}

// Run reads pad lines until the port closes or the context is cancelled.
func (h *Handpad) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		h.port.Close()
	}()

	scanner := bufio.NewScanner(h.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := h.handleLine(line)
		if _, err := h.port.Write([]byte(reply + "\r\n")); err != nil {
			return fmt.Errorf("failed to write handpad reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("handpad read failed: %w", err)
	}
	return ctx.Err()
}

// handleLine translates one pad line into a control command and runs it on
// the loop. Pad lines:
//
//	GOTO <raHours> <decDeg>   slew to an equatorial position
//	JOG <alt> <azm>           jog at signed rates
//	TRACK ON|OFF              toggle tracking
//	STOP                      abort axis movement
//	STATUS                    one-line mount summary
func (h *Handpad) handleLine(line string) string {
	fields := strings.Fields(line)
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "STATUS":
		return h.statusLine()
	case "GOTO":
		if len(fields) != 3 {
			return "ERR GOTO wants <raHours> <decDeg>"
		}
		raHours, err1 := strconv.ParseFloat(fields[1], 64)
		decDeg, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			return "ERR GOTO wants numeric <raHours> <decDeg>"
		}
		return h.runCommand(fmt.Sprintf(
			`{"Command":"GotoRaDec","Destination":"Mount","Source":"Handpad","SequenceID":%d,"Type":"Command","Ra":%g,"Dec":%g}`,
			h.nextSeq(), units.HoursToRad(raHours), units.DegToRad(decDeg)))
	case "JOG":
		if len(fields) != 3 {
			return "ERR JOG wants <altRate> <azmRate>"
		}
		return h.runCommand(fmt.Sprintf(
			`{"Command":"Slew","Destination":"Mount","Source":"Handpad","SequenceID":%d,"Type":"Command","AltRate":%s,"AzmRate":%s}`,
			h.nextSeq(), fields[1], fields[2]))
	case "TRACK":
		if len(fields) != 2 {
			return "ERR TRACK wants ON or OFF"
		}
		cmd := "StopTracking"
		if strings.EqualFold(fields[1], "ON") {
			cmd = "StartTracking"
		}
		return h.runCommand(fmt.Sprintf(
			`{"Command":%q,"Destination":"Mount","Source":"Handpad","SequenceID":%d,"Type":"Command"}`,
			cmd, h.nextSeq()))
	case "STOP":
		return h.runCommand(fmt.Sprintf(
			`{"Command":"AbortAxisMovement","Destination":"Mount","Source":"Handpad","SequenceID":%d,"Type":"Command"}`,
			h.nextSeq()))
	}
	return "ERR unknown command " + verb
}

func (h *Handpad) nextSeq() int64 {
	h.seq++
	return h.seq
}

// runCommand dispatches a JSON command on the loop and reduces the response
// to OK or ERR for the pad's one-line display.
func (h *Handpad) runCommand(msg string) string {
	var reply string
	h.loop.Call(func() {
		out, err := h.dispatcher.Dispatch([]byte(msg))
		if err != nil {
			monitoring.Logf("handpad command failed: %v", err)
			reply = "ERR internal"
			return
		}
		if strings.Contains(string(out), `"ErrorCode":0`) {
			reply = "OK"
			return
		}
		reply = "ERR rejected"
	})
	return reply
}

// statusLine reports the mount position in the pad's display units, RA in
// hours and declination in degrees.
func (h *Handpad) statusLine() string {
	var line string
	h.loop.Call(func() {
		s := h.state
		line = fmt.Sprintf("RA=%.4fh DEC=%.4fd ALIGNED=%t TRACKING=%t SLEWING=%t",
			units.RadToHours(s.RA), units.RadToDeg(s.Dec), s.IsAligned, s.IsTracking, s.IsSlewing)
	})
	return line
}
