package emit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skyfield-data/originsim/internal/control"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
)

// Emitter drives the periodic subsystem notifications. Every second it
// schedules the due broadcast buckets onto the run loop, each with a small
// stagger so a tick never issues all broadcasts in one indivisible step.
type Emitter struct {
	loop   *telescope.Loop
	hub    *Hub
	state  *telescope.State
	clock  timeutil.Clock
	jitter *telescope.Jitter
}

// NewEmitter wires an emitter to the loop, hub and state store.
func NewEmitter(loop *telescope.Loop, hub *Hub, state *telescope.State, clock timeutil.Clock, jitter *telescope.Jitter) *Emitter {
	return &Emitter{loop: loop, hub: hub, state: state, clock: clock, jitter: jitter}
}

// Broadcast intervals per subsystem, in emitter ticks. Chosen mutually
// coprime-ish so buckets rarely coincide.
const (
	everyFocuser     = 2
	everyCamera      = 3
	everyTask        = 5
	everyEnvironment = 10
	everyDewHeater   = 15
	everyOrientation = 30
)

// Run ticks once per second until the context is cancelled.
func (e *Emitter) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	var n int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			n++
			e.scheduleTick(n)
		}
	}
}

// scheduleTick posts the due buckets. Mount leads every tick; the slower
// subsystems trail at fixed millisecond offsets.
func (e *Emitter) scheduleTick(n int64) {
	e.loop.Post(func() {
		e.state.AdvanceCoordinates(e.jitter)
		e.BroadcastMountStatus()
	})
	if n%everyFocuser == 0 {
		e.loop.PostDelayed(5*time.Millisecond, e.BroadcastFocuserStatus)
	}
	if n%everyCamera == 0 {
		e.loop.PostDelayed(10*time.Millisecond, func() {
			e.BroadcastCameraParams()
			e.BroadcastNewImageReady()
		})
	}
	if n%everyTask == 0 {
		e.loop.PostDelayed(15*time.Millisecond, e.BroadcastTaskStatus)
	}
	if n%everyEnvironment == 0 {
		e.loop.PostDelayed(20*time.Millisecond, func() {
			e.state.AdvanceEnvironment(e.jitter)
			e.BroadcastEnvironmentStatus()
			e.BroadcastDiskStatus()
		})
	}
	if n%everyDewHeater == 0 {
		e.loop.PostDelayed(25*time.Millisecond, e.BroadcastDewHeaterStatus)
	}
	if n%everyOrientation == 0 {
		e.loop.PostDelayed(30*time.Millisecond, e.BroadcastOrientationStatus)
	}
}

// broadcast marshals a notification body and hands it to every connection.
// Loop-only, as is every Broadcast* method below.
func (e *Emitter) broadcast(body any) {
	out, err := json.Marshal(body)
	if err != nil {
		monitoring.Logf("failed to marshal notification: %v", err)
		return
	}
	e.hub.Broadcast(out)
}

func (e *Emitter) envelope(source string) control.Envelope {
	return control.NotificationEnvelope(source, e.state.NextSequenceID(), e.clock.Now())
}

func (e *Emitter) BroadcastMountStatus() {
	e.broadcast(control.BuildMountStatus(e.state, e.envelope(control.DestMount), e.clock.Now()))
}

func (e *Emitter) BroadcastFocuserStatus() {
	e.broadcast(control.BuildFocuserStatus(e.state, e.envelope(control.DestFocuser)))
}

func (e *Emitter) BroadcastCameraParams() {
	e.broadcast(control.BuildCameraParams(e.state, e.envelope(control.DestCamera)))
}

func (e *Emitter) BroadcastNewImageReady() {
	e.broadcast(control.BuildNewImageReady(e.state, e.envelope(control.DestCamera)))
}

func (e *Emitter) BroadcastTaskStatus() {
	e.broadcast(control.BuildTaskControllerStatus(e.state, e.envelope(control.DestTaskCtrl)))
}

func (e *Emitter) BroadcastEnvironmentStatus() {
	e.broadcast(control.BuildEnvironmentStatus(e.state, e.envelope(control.DestEnvironment)))
}

func (e *Emitter) BroadcastDiskStatus() {
	e.broadcast(control.BuildDiskStatus(e.state, e.envelope(control.DestDisk)))
}

func (e *Emitter) BroadcastDewHeaterStatus() {
	e.broadcast(control.BuildDewHeaterStatus(e.state, e.envelope(control.DestDewHeater)))
}

func (e *Emitter) BroadcastOrientationStatus() {
	e.broadcast(control.BuildOrientationStatus(e.state, e.envelope(control.DestOrientation)))
}

// BroadcastError sends an asynchronous Error notification from a subsystem.
func (e *Emitter) BroadcastError(source string, code int, message string) {
	e.broadcast(control.ErrorEnvelope(source, code, message, e.state.NextSequenceID(), e.clock.Now()))
}
