// Package sim runs the long-lived simulated activities: goto slews, imaging
// exposures, and telescope initialization. Each activity is a small state
// machine ticking through delayed posts on the run loop, so every mutation
// stays on the serial timeline.
package sim

import (
	"fmt"
	"time"

	"github.com/skyfield-data/originsim/internal/emit"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/units"
)

const (
	slewTick       = 500 * time.Millisecond
	slewStep       = 20 // progress per tick, completes at 100
	imagingTick    = time.Second
	initializeTick = 3 * time.Second

	// Focus position the initialization sweep settles on.
	initFocusPosition = 18617

	initFailureCode    = -78
	initFailureMessage = "initialization failed: unable to solve the star field"
)

// SkyPosition names a pointing for the image provider.
type SkyPosition struct {
	RADeg       float64
	DecDeg      float64
	Name        string
	Description string
}

// ImageProvider asynchronously produces an image for a sky position. The
// scheduler fires and forgets; the provider reports back through the preview
// store and the emitter when the image is ready.
type ImageProvider interface {
	RequestImage(pos SkyPosition)
}

// CaptureRecorder persists finished astrophotography captures.
type CaptureRecorder interface {
	RecordCapture(dir, name string, sizeBytes int64) (string, string, error)
}

// RandomSource supplies the initialization failure roll. telescope.Jitter
// satisfies it.
type RandomSource interface {
	PercentRoll() float64
}

// Scheduler owns the three activity progressions.
type Scheduler struct {
	loop    *telescope.Loop
	state   *telescope.State
	emitter *emit.Emitter
	jitter  RandomSource
	images  ImageProvider
	catalog CaptureRecorder
}

// NewScheduler wires a scheduler to the run loop and its collaborators.
// images and catalog may be nil; the corresponding side effects are skipped.
func NewScheduler(loop *telescope.Loop, state *telescope.State, emitter *emit.Emitter, jitter RandomSource, images ImageProvider, catalog CaptureRecorder) *Scheduler {
	return &Scheduler{
		loop:    loop,
		state:   state,
		emitter: emitter,
		jitter:  jitter,
		images:  images,
		catalog: catalog,
	}
}

// StartSlew begins the simulated goto progression. Loop-only; the dispatcher
// calls it after BeginSlew has set the target. An abort clears IsSlewing and
// the progression stops at its next tick.
func (s *Scheduler) StartSlew() {
	progress := 0
	var step func()
	step = func() {
		if !s.state.IsSlewing {
			return
		}
		progress += slewStep
		if progress < 100 {
			s.loop.PostDelayed(slewTick, step)
			return
		}
		s.state.CompleteSlew()
		s.emitter.BroadcastMountStatus()
		s.loop.PostDelayed(100*time.Millisecond, s.requestImageAtCurrentPosition)
	}
	s.loop.PostDelayed(slewTick, step)
}

func (s *Scheduler) requestImageAtCurrentPosition() {
	if s.images == nil {
		return
	}
	st := s.state
	s.images.RequestImage(SkyPosition{
		RADeg:       units.RadToDeg(st.RA),
		DecDeg:      units.RadToDeg(st.Dec),
		Name:        fmt.Sprintf("field_%.4f_%.4f", units.RadToDeg(st.RA), units.RadToDeg(st.Dec)),
		Description: "goto target field",
	})
}

// StartImaging begins the simulated exposure countdown. Loop-only. Each tick
// produces a preview frame and a NewImageReady notification; reaching zero
// finishes the session and records the stacked capture.
func (s *Scheduler) StartImaging() {
	var step func()
	step = func() {
		st := s.state
		if !st.IsImaging {
			return
		}
		st.ImagingTimeLeft--
		idx := st.NextImageIndex()
		st.FileLocation = fmt.Sprintf("/SmartScope-1.0/dev2/Images/Temp/%d.jpg", idx)
		st.ImageType = telescope.ImageTypeStacked
		st.ConsumeDisk(4 << 20)
		// Publish a frame for the advertised location before announcing it.
		if s.images != nil {
			s.images.RequestImage(SkyPosition{
				RADeg:       units.RadToDeg(st.RA),
				DecDeg:      units.RadToDeg(st.Dec),
				Name:        fmt.Sprintf("%d", idx),
				Description: "imaging exposure frame",
			})
		}
		s.emitter.BroadcastNewImageReady()

		if st.ImagingTimeLeft > 0 {
			s.loop.PostDelayed(imagingTick, step)
			return
		}
		st.IsImaging = false
		st.TaskState = telescope.TaskIdle
		st.TaskStage = telescope.StageComplete
		s.recordStackedCapture()
		s.emitter.BroadcastTaskStatus()
	}
	s.loop.PostDelayed(imagingTick, step)
}

func (s *Scheduler) recordStackedCapture() {
	if s.catalog == nil {
		return
	}
	st := s.state
	dir := fmt.Sprintf("Capture_%.4f_%.4f", units.RadToDeg(st.RA), units.RadToDeg(st.Dec))
	name := fmt.Sprintf("stacked_%d.tiff", st.ImageCounter)
	dir, name, err := s.catalog.RecordCapture(dir, name, 4<<20)
	if err != nil {
		monitoring.Logf("failed to record capture: %v", err)
		return
	}
	st.FileLocation = fmt.Sprintf("/SmartScope-1.0/dev2/Images/Astrophotography/%s/%s", dir, name)
}

// StartInitialize begins the initialization progression. Loop-only. The fake
// path skips the sweep and reports success after one second.
func (s *Scheduler) StartInitialize(fake bool) {
	if fake {
		s.loop.PostDelayed(time.Second, s.finishInitialize)
		return
	}

	counter := 0
	var step func()
	step = func() {
		st := s.state
		if st.TaskState != telescope.TaskInitializing {
			return
		}
		counter++

		// Each early tick risks a star-field solve failure.
		if counter < 10 && s.jitter.PercentRoll() < 10 {
			st.TaskStage = telescope.StageStopped
			st.IsReady = false
			s.emitter.BroadcastError(
				"TaskController", initFailureCode, initFailureMessage)
			s.emitter.BroadcastTaskStatus()
			return
		}

		switch {
		case counter == 5:
			st.PositionOfFocus = initFocusPosition
			st.FocuserPosition = initFocusPosition
		case counter == 10:
			st.NumPoints = 1
			st.NumPointsRemaining = 1
			st.PercentComplete = 50
		case counter >= 15:
			s.finishInitialize()
			return
		}
		s.loop.PostDelayed(initializeTick, step)
	}
	s.loop.PostDelayed(initializeTick, step)
}

func (s *Scheduler) finishInitialize() {
	st := s.state
	st.NumPoints = 2
	st.NumPointsRemaining = 0
	st.PercentComplete = 100
	st.PositionOfFocus = initFocusPosition
	st.TaskState = telescope.TaskInitialized
	st.TaskStage = telescope.StageComplete
	st.IsReady = true
	s.emitter.BroadcastTaskStatus()

	s.loop.PostDelayed(time.Second, func() {
		if s.state.TaskState == telescope.TaskInitialized {
			s.state.TaskState = telescope.TaskIdle
			s.emitter.BroadcastTaskStatus()
		}
	})
}
