// Package telescope holds the simulated device state and the run loop that
// owns it. Every observable field the control protocol reports lives in
// State; all mutations happen on the Loop goroutine.
package telescope

import (
	"math"

	"github.com/skyfield-data/originsim/internal/units"
)

// BatteryLevel is the coarse battery charge bucket reported by the mount.
type BatteryLevel string

const (
	BatteryHigh   BatteryLevel = "HIGH"
	BatteryMedium BatteryLevel = "MED"
	BatteryLow    BatteryLevel = "LOW"
)

// ImageType identifies the kind of image currently advertised to clients.
type ImageType string

const (
	ImageTypeLive    ImageType = "LIVE"
	ImageTypeHips    ImageType = "HIPS_IMAGE"
	ImageTypeStacked ImageType = "STACKED"
)

// TaskState is the task controller's top-level state.
type TaskState string

const (
	TaskIdle         TaskState = "IDLE"
	TaskInitializing TaskState = "INITIALIZING"
	TaskInitialized  TaskState = "INITIALIZED"
	TaskImaging      TaskState = "IMAGING"
	TaskSlewing      TaskState = "SLEWING"
)

// TaskStage qualifies progress within the current task state.
type TaskStage string

const (
	StageInProgress TaskStage = "IN_PROGRESS"
	StageComplete   TaskStage = "COMPLETE"
	StageStopped    TaskStage = "STOPPED"
	StageFinished   TaskStage = "FINISHED"
)

// SiderealRate is the apparent sky drift in radians per second.
const SiderealRate = 7.2921158e-5

// State is the process-wide record of every observable field plus simulation
// bookkeeping. It is created once at server start and mutated only on the run
// loop.
type State struct {
	// Mount
	BatteryLevel   BatteryLevel
	BatteryVoltage float64
	RA             float64 // radians, [0, 2π)
	Dec            float64 // radians, [-π/2, π/2]
	TargetRA       float64
	TargetDec      float64
	IsAligned      bool
	IsTracking     bool
	IsGotoOver     bool
	IsSlewing      bool
	NumAlignRefs   int
	Latitude       float64 // observer, radians
	Longitude      float64 // observer, radians

	// Camera
	Exposure      float64 // seconds
	ISO           int
	Binning       int
	Offset        int
	ColorRBalance float64
	ColorGBalance float64
	ColorBBalance float64

	// Focuser
	FocuserPosition   int
	Backlash          int
	CalibrationLower  int
	CalibrationUpper  int
	IsMoveToOver      bool
	IsCalibrationOver bool

	// Environment
	AmbientTemperature   float64
	CPUTemperature       float64
	CameraTemperature    float64
	FrontCellTemperature float64
	DewPointTemperature  float64
	Humidity             float64
	EnvAltitude          int // flips between 59 and 60

	// Dew heater
	DewHeaterMode    string
	Aggression       int
	ManualPowerLevel float64

	// Disk
	DiskCapacity int64
	FreeBytes    int64

	// Led ring
	LedBrightness int

	// Image
	FileLocation string
	ImageType    ImageType
	FovX         float64 // radians
	FovY         float64
	Orientation  float64

	// Task controller
	TaskState TaskState
	TaskStage TaskStage
	IsReady   bool

	// Initialization progress
	NumPoints          int
	NumPointsRemaining int
	PercentComplete    int
	PositionOfFocus    int

	// Imaging activity
	IsImaging       bool
	ImagingTimeLeft int

	// Sequencing
	currentSequenceID int64
	ImageCounter      int // cycles 0..9 for live preview filenames
}

// NewState builds the power-on state for an observer at the given location
// (radians).
func NewState(latitude, longitude float64) *State {
	const gib = int64(1) << 30
	return &State{
		BatteryLevel:   BatteryHigh,
		BatteryVoltage: 11.8,
		IsGotoOver:     true,
		Latitude:       latitude,
		Longitude:      longitude,

		Exposure:      10.0,
		ISO:           800,
		Binning:       1,
		Offset:        30,
		ColorRBalance: 1.0,
		ColorGBalance: 1.0,
		ColorBBalance: 1.0,

		FocuserPosition:   18000,
		CalibrationLower:  0,
		CalibrationUpper:  38000,
		IsMoveToOver:      true,
		IsCalibrationOver: true,

		AmbientTemperature:   17.5,
		CPUTemperature:       46.0,
		CameraTemperature:    15.0,
		FrontCellTemperature: 16.2,
		DewPointTemperature:  9.5,
		Humidity:             62.0,
		EnvAltitude:          60,

		DewHeaterMode:    "Off",
		ManualPowerLevel: 0,

		DiskCapacity: 59 * gib,
		FreeBytes:    55 * gib,

		LedBrightness: 20,

		ImageType:   ImageTypeLive,
		FovX:        units.DegToRad(1.27),
		FovY:        units.DegToRad(0.85),
		Orientation: 0,

		TaskState: TaskIdle,
		TaskStage: StageComplete,
	}
}

// NextSequenceID returns the next monotone message sequence id. Every emitted
// JSON message consumes exactly one.
func (s *State) NextSequenceID() int64 {
	s.currentSequenceID++
	return s.currentSequenceID
}

// CurrentSequenceID reports the last issued sequence id.
func (s *State) CurrentSequenceID() int64 {
	return s.currentSequenceID
}

// NextImageIndex advances the live-preview filename cycle and returns the new
// index in [0, 10).
func (s *State) NextImageIndex() int {
	s.ImageCounter = (s.ImageCounter + 1) % 10
	return s.ImageCounter
}

// BeginSlew records a new slew target and flips the motion flags. The
// IsGotoOver flag is the strict negation of IsSlewing at all times.
func (s *State) BeginSlew(targetRA, targetDec float64) {
	s.TargetRA = units.NormalizeRA(targetRA)
	s.TargetDec = units.ClampDec(targetDec)
	s.IsSlewing = true
	s.IsGotoOver = false
	s.TaskState = TaskSlewing
	s.TaskStage = StageInProgress
}

// CompleteSlew snaps the current position onto the target and clears the
// motion flags.
func (s *State) CompleteSlew() {
	s.RA = s.TargetRA
	s.Dec = s.TargetDec
	s.IsSlewing = false
	s.IsGotoOver = true
	s.TaskState = TaskIdle
	s.TaskStage = StageComplete
}

// AbortSlew stops mount motion in place. The current coordinates keep their
// pre-abort values; the target collapses onto them so an idle mount always
// reports target == position.
func (s *State) AbortSlew() {
	s.IsSlewing = false
	s.IsGotoOver = true
	s.TargetRA = s.RA
	s.TargetDec = s.Dec
	if s.TaskState == TaskSlewing {
		s.TaskState = TaskIdle
		s.TaskStage = StageStopped
	}
}

// StartAlignment discards any existing alignment model.
func (s *State) StartAlignment() {
	s.IsAligned = false
	s.NumAlignRefs = 0
}

// AddAlignmentPoint records one captured reference.
func (s *State) AddAlignmentPoint() {
	s.NumAlignRefs++
}

// FinishAlignment closes the alignment procedure. It reports false when no
// reference points were collected, leaving the state untouched.
func (s *State) FinishAlignment() bool {
	if s.NumAlignRefs < 1 {
		return false
	}
	s.IsAligned = true
	return true
}

// ConsumeDisk reduces the reported free space after a capture lands on disk,
// clamped at zero.
func (s *State) ConsumeDisk(bytes int64) {
	s.FreeBytes -= bytes
	if s.FreeBytes < 0 {
		s.FreeBytes = 0
	}
	if s.FreeBytes > s.DiskCapacity {
		s.FreeBytes = s.DiskCapacity
	}
}

// AdvanceCoordinates applies one emitter-tick of simulated sky motion: RA
// drifts by approximately one second of sidereal rate and Dec picks up a tiny
// random perturbation.
func (s *State) AdvanceCoordinates(j *Jitter) {
	s.RA = units.NormalizeRA(s.RA + SiderealRate)
	s.Dec = units.ClampDec(s.Dec + j.DecPerturbation())
}

// AdvanceEnvironment applies small bounded random jitter to the simulated
// sensor temperatures and flips the reported altitude between 59 and 60.
func (s *State) AdvanceEnvironment(j *Jitter) {
	s.AmbientTemperature = boundedJitter(s.AmbientTemperature, j, 12, 25)
	s.CPUTemperature = boundedJitter(s.CPUTemperature, j, 35, 70)
	s.CameraTemperature = boundedJitter(s.CameraTemperature, j, 5, 30)
	s.FrontCellTemperature = boundedJitter(s.FrontCellTemperature, j, 10, 25)
	s.DewPointTemperature = boundedJitter(s.DewPointTemperature, j, 0, 15)
	s.Humidity = boundedJitter(s.Humidity, j, 20, 95)

	if s.EnvAltitude == 60 {
		s.EnvAltitude = 59
	} else {
		s.EnvAltitude = 60
	}
}

func boundedJitter(v float64, j *Jitter, lo, hi float64) float64 {
	v += j.TemperatureStep()
	return math.Min(hi, math.Max(lo, v))
}
