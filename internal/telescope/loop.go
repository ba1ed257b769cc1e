package telescope

import (
	"context"
	"time"

	"github.com/skyfield-data/originsim/internal/timeutil"
)

// Loop is the serial timeline that owns the state store and the connection
// table. Socket readers, timers, and activities never touch shared state
// directly; they post closures which the loop executes one at a time in
// arrival order.
type Loop struct {
	jobs  chan func()
	done  chan struct{}
	clock timeutil.Clock
}

// NewLoop creates a loop using the given clock for delayed posts.
func NewLoop(clock timeutil.Clock) *Loop {
	return &Loop{
		jobs:  make(chan func(), 1024),
		done:  make(chan struct{}),
		clock: clock,
	}
}

// Run executes posted jobs until the context is cancelled. It must be called
// exactly once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.jobs:
			fn()
		}
	}
}

// Post schedules fn on the serial timeline. Jobs from a single goroutine
// execute in the order they were posted. Posts after shutdown are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.jobs <- fn:
	}
}

// PostDelayed schedules fn on the timeline after at least d has elapsed.
func (l *Loop) PostDelayed(d time.Duration, fn func()) {
	l.clock.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Call posts fn and blocks until it has run. Used by surfaces outside the
// timeline (admin snapshot, tests) that need a consistent read.
func (l *Loop) Call(fn func()) {
	ran := make(chan struct{})
	l.Post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-l.done:
	}
}
