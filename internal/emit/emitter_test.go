package emit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
)

type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func (f *fakeSender) SendText(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	cp := append([]byte(nil), payload...)
	f.payloads = append(f.payloads, cp)
	return nil
}

func (f *fakeSender) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.payloads))
	for _, p := range f.payloads {
		var m map[string]any
		require.NoError(t, json.Unmarshal(p, &m))
		out = append(out, m)
	}
	return out
}

func newTestEmitter(t *testing.T) (*Emitter, *telescope.Loop, *Hub, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC))
	loop := telescope.NewLoop(clock)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	hub := NewHub(loop)
	state := telescope.NewState(0.83, -2.13)
	e := NewEmitter(loop, hub, state, clock, telescope.NewJitter(1))
	return e, loop, hub, clock
}

func TestHubBroadcastSurvivesFailedSender(t *testing.T) {
	e, loop, hub, _ := newTestEmitter(t)

	good := &fakeSender{}
	bad := &fakeSender{fail: true}
	hub.Register(good)
	hub.Register(bad)

	loop.Call(func() {
		require.Equal(t, 2, hub.Len())
		e.BroadcastMountStatus()
	})

	msgs := good.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Mount", msgs[0]["Source"])
}

func TestHubUnregister(t *testing.T) {
	e, loop, hub, _ := newTestEmitter(t)

	s := &fakeSender{}
	id := hub.Register(s)
	hub.Unregister(id)

	loop.Call(func() {
		assert.Zero(t, hub.Len())
		e.BroadcastMountStatus()
	})
	assert.Empty(t, s.messages(t))
}

func TestNotificationEnvelopeShape(t *testing.T) {
	e, loop, hub, _ := newTestEmitter(t)
	s := &fakeSender{}
	hub.Register(s)

	loop.Call(func() {
		e.BroadcastMountStatus()
		e.BroadcastEnvironmentStatus()
		e.BroadcastOrientationStatus()
	})

	msgs := s.messages(t)
	require.Len(t, msgs, 3)
	wantSources := []string{"Mount", "Environment", "OrientationSensor"}
	var lastSeq float64
	for i, m := range msgs {
		assert.Equal(t, "Notification", m["Type"], "msg %d", i)
		assert.Equal(t, "All", m["Destination"], "msg %d", i)
		assert.Equal(t, wantSources[i], m["Source"], "msg %d", i)
		seq := m["SequenceID"].(float64)
		assert.Greater(t, seq, lastSeq, "msg %d", i)
		lastSeq = seq
	}
}

func TestBroadcastErrorNotification(t *testing.T) {
	e, loop, hub, _ := newTestEmitter(t)
	s := &fakeSender{}
	hub.Register(s)

	loop.Call(func() {
		e.BroadcastError("TaskController", -78, "initialization failed")
	})

	msgs := s.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Error", msgs[0]["Type"])
	assert.Equal(t, float64(-78), msgs[0]["ErrorCode"])
	assert.Equal(t, "initialization failed", msgs[0]["ErrorMessage"])
}

func TestScheduleTickBuckets(t *testing.T) {
	e, loop, hub, clock := newTestEmitter(t)
	s := &fakeSender{}
	hub.Register(s)
	loop.Call(func() {}) // registration flushed

	// Tick 30 is divisible by every bucket interval.
	e.scheduleTick(30)
	clock.Advance(50 * time.Millisecond) // fire the staggered posts
	loop.Call(func() {})

	counts := map[string]int{}
	for _, m := range s.messages(t) {
		counts[m["Source"].(string)]++
	}
	assert.Equal(t, 1, counts["Mount"])
	assert.Equal(t, 1, counts["Focuser"])
	assert.Equal(t, 2, counts["Camera"]) // params + new image ready
	assert.Equal(t, 1, counts["TaskController"])
	assert.Equal(t, 1, counts["Environment"])
	assert.Equal(t, 1, counts["Disk"])
	assert.Equal(t, 1, counts["DewHeater"])
	assert.Equal(t, 1, counts["OrientationSensor"])
}

func TestScheduleTickMountOnly(t *testing.T) {
	e, loop, hub, clock := newTestEmitter(t)
	s := &fakeSender{}
	hub.Register(s)
	loop.Call(func() {})

	// Tick 1 matches no slower bucket.
	e.scheduleTick(1)
	clock.Advance(50 * time.Millisecond)
	loop.Call(func() {})

	msgs := s.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Mount", msgs[0]["Source"])
}

func TestRunEmitsOnTicks(t *testing.T) {
	e, loop, hub, clock := newTestEmitter(t)
	s := &fakeSender{}
	hub.Register(s)
	loop.Call(func() {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return len(s.messages(t)) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	for _, m := range s.messages(t) {
		if m["Source"] == "Mount" {
			return
		}
	}
	t.Fatal("no mount notification observed")
}
