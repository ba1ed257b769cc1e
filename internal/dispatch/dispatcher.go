package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/skyfield-data/originsim/internal/astro"
	"github.com/skyfield-data/originsim/internal/control"
	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
)

// Activities starts the long-running simulated progressions. The run loop's
// activity scheduler implements it; handlers only trigger, never tick.
type Activities interface {
	StartSlew()
	StartImaging()
	StartInitialize(fake bool)
}

// ImageCatalog answers the ImageServer directory queries.
type ImageCatalog interface {
	Directories() ([]string, error)
	FileNames(dir string) ([]string, error)
}

// Deps carries the dispatcher's collaborators.
type Deps struct {
	State      *telescope.State
	Clock      timeutil.Clock
	Activities Activities
	Catalog    ImageCatalog
}

// handler builds the response body for one command. It returns a struct that
// embeds control.Envelope; the dispatcher marshals it.
type handler func(d *Dispatcher, cmd *Command, env control.Envelope) any

// Dispatcher routes parsed commands to their handlers. Commands absent from
// the table get a default success response; unknown commands are not errors.
type Dispatcher struct {
	deps     Deps
	handlers map[string]handler
}

// New builds a dispatcher around the given collaborators.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{deps: deps, handlers: map[string]handler{}}

	d.register("GetVersion", "", handleGetVersion)
	d.register("GetModel", "", handleGetModel)

	d.register("GetStatus", control.DestSystem, handleSystemStatus)
	d.register("GetStatus", control.DestMount, handleMountStatus)
	d.register("GetStatus", control.DestFocuser, handleFocuserStatus)
	d.register("GetStatus", control.DestCamera, handleCameraParams)
	d.register("GetStatus", control.DestTaskCtrl, handleTaskStatus)
	d.register("GetStatus", control.DestEnvironment, handleEnvironmentStatus)
	d.register("GetStatus", control.DestDisk, handleDiskStatus)
	d.register("GetStatus", control.DestDewHeater, handleDewHeaterStatus)
	d.register("GetStatus", control.DestOrientation, handleOrientationStatus)
	d.register("GetStatus", control.DestLedRing, handleLedRingStatus)
	d.register("GetStatus", control.DestFactory, handleFactoryStatus)

	d.register("RunInitialize", "", handleRunInitialize)
	d.register("StartAlignment", "", handleStartAlignment)
	d.register("AddAlignmentPoint", "", handleAddAlignmentPoint)
	d.register("FinishAlignment", "", handleFinishAlignment)

	d.register("GotoRaDec", "", handleGotoRaDec)
	d.register("Slew", control.DestMount, handleJog)
	d.register("AbortAxisMovement", "", handleAbortAxisMovement)
	d.register("StartTracking", "", handleStartTracking)
	d.register("StopTracking", "", handleStopTracking)

	d.register("RunImaging", "", handleRunImaging)
	d.register("CancelImaging", "", handleCancelImaging)

	d.register("MoveToPosition", control.DestFocuser, handleMoveToPosition)
	d.register("SetBacklash", control.DestFocuser, handleSetBacklash)

	d.register("SetCaptureParameters", "", handleSetCaptureParameters)
	d.register("GetCaptureParameters", "", handleCameraParams)

	d.register("SetMode", control.DestDewHeater, handleSetDewHeaterMode)
	d.register("SetBrightness", control.DestLedRing, handleSetBrightness)

	d.register("GetListOfAvailableDirectories", control.DestImageServer, handleListDirectories)
	d.register("GetDirectoryContents", control.DestImageServer, handleDirectoryContents)

	return d
}

func (d *Dispatcher) register(command, destination string, h handler) {
	d.handlers[command+"|"+destination] = h
}

func (d *Dispatcher) lookup(command, destination string) handler {
	if h, ok := d.handlers[command+"|"+destination]; ok {
		return h
	}
	if h, ok := d.handlers[command+"|"]; ok {
		return h
	}
	return handleDefault
}

// Dispatch parses one inbound text message and returns the marshaled
// response. It returns (nil, nil) for messages that are not commands.
func (d *Dispatcher) Dispatch(raw []byte) ([]byte, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return nil, err
	}
	if cmd.Type != "" && cmd.Type != control.TypeCommand {
		return nil, nil
	}

	env := control.ResponseEnvelope(
		cmd.Command, cmd.Source, cmd.Destination, cmd.SequenceID, d.deps.Clock.Now())
	body := d.lookup(cmd.Command, cmd.Destination)(d, cmd, env)

	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response for %s: %w", cmd.Command, err)
	}
	return out, nil
}

// handleDefault replies with a bare success envelope. Unknown commands keep
// the legacy always-succeed behavior.
func handleDefault(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return env
}

func fail(env control.Envelope, code int, message string) control.Envelope {
	env.ErrorCode = code
	env.ErrorMessage = message
	return env
}

func handleGetVersion(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildVersionInfo(env)
}

func handleGetModel(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildModelInfo(env)
}

func handleSystemStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildSystemStatus(d.deps.State, env)
}

func handleMountStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildMountStatus(d.deps.State, env, d.deps.Clock.Now())
}

func handleFocuserStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildFocuserStatus(d.deps.State, env)
}

func handleCameraParams(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildCameraParams(d.deps.State, env)
}

func handleTaskStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildTaskControllerStatus(d.deps.State, env)
}

func handleEnvironmentStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildEnvironmentStatus(d.deps.State, env)
}

func handleDiskStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildDiskStatus(d.deps.State, env)
}

func handleDewHeaterStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildDewHeaterStatus(d.deps.State, env)
}

func handleOrientationStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildOrientationStatus(d.deps.State, env)
}

func handleLedRingStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildLedRingStatus(d.deps.State, env)
}

func handleFactoryStatus(d *Dispatcher, cmd *Command, env control.Envelope) any {
	return control.BuildFactoryCalibrationStatus(d.deps.State, env)
}

func handleRunInitialize(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	s.TaskState = telescope.TaskInitializing
	s.TaskStage = telescope.StageInProgress
	s.IsReady = false
	s.NumPoints = 0
	s.NumPointsRemaining = 0
	s.PercentComplete = 0

	fake := cmd.FakeInitialize != nil && *cmd.FakeInitialize
	d.deps.Activities.StartInitialize(fake)

	// Historical quirk: the response reports the finished state even though
	// the progression is only starting. Clients track the subsequent task
	// controller notifications for real progress.
	resp := control.BuildTaskControllerStatus(s, env)
	resp.State = string(telescope.TaskInitialized)
	resp.Stage = string(telescope.StageFinished)
	return resp
}

func handleStartAlignment(d *Dispatcher, cmd *Command, env control.Envelope) any {
	d.deps.State.StartAlignment()
	return env
}

func handleAddAlignmentPoint(d *Dispatcher, cmd *Command, env control.Envelope) any {
	d.deps.State.AddAlignmentPoint()
	return env
}

func handleFinishAlignment(d *Dispatcher, cmd *Command, env control.Envelope) any {
	if !d.deps.State.FinishAlignment() {
		return fail(env, 1, "cannot finish alignment with no reference points")
	}
	return env
}

func handleGotoRaDec(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	if !s.IsAligned {
		return fail(env, 1, "mount is not aligned")
	}
	if cmd.Ra == nil || cmd.Dec == nil {
		return fail(env, 1, "missing Ra or Dec")
	}
	s.BeginSlew(*cmd.Ra, *cmd.Dec)
	d.deps.Activities.StartSlew()
	return env
}

func handleJog(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	altRate, azmRate := 0, 0
	if cmd.AltRate != nil {
		altRate = *cmd.AltRate
	}
	if cmd.AzmRate != nil {
		azmRate = *cmd.AzmRate
	}
	lst := astro.LocalSiderealTime(d.deps.Clock.Now(), s.Longitude)
	ra, dec := astro.JogTarget(s.RA, s.Dec, s.Latitude, lst, altRate, azmRate)
	s.BeginSlew(ra, dec)
	d.deps.Activities.StartSlew()
	return env
}

func handleAbortAxisMovement(d *Dispatcher, cmd *Command, env control.Envelope) any {
	d.deps.State.AbortSlew()
	return env
}

func handleStartTracking(d *Dispatcher, cmd *Command, env control.Envelope) any {
	d.deps.State.IsTracking = true
	return env
}

func handleStopTracking(d *Dispatcher, cmd *Command, env control.Envelope) any {
	d.deps.State.IsTracking = false
	return env
}

func handleRunImaging(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	s.IsImaging = true
	s.ImagingTimeLeft = 30
	s.TaskState = telescope.TaskImaging
	s.TaskStage = telescope.StageInProgress
	s.ImageType = telescope.ImageTypeStacked
	d.deps.Activities.StartImaging()
	return env
}

func handleCancelImaging(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	s.IsImaging = false
	if s.TaskState == telescope.TaskImaging {
		s.TaskState = telescope.TaskIdle
		s.TaskStage = telescope.StageStopped
	}
	return env
}

func handleMoveToPosition(d *Dispatcher, cmd *Command, env control.Envelope) any {
	if cmd.Position == nil {
		return fail(env, 1, "missing Position")
	}
	s := d.deps.State
	pos := *cmd.Position
	if pos < s.CalibrationLower {
		pos = s.CalibrationLower
	}
	if pos > s.CalibrationUpper {
		pos = s.CalibrationUpper
	}
	s.FocuserPosition = pos
	s.IsMoveToOver = true
	return env
}

func handleSetBacklash(d *Dispatcher, cmd *Command, env control.Envelope) any {
	if cmd.Backlash == nil {
		return fail(env, 1, "missing Backlash")
	}
	d.deps.State.Backlash = *cmd.Backlash
	return env
}

func handleSetCaptureParameters(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	if cmd.Exposure != nil {
		if *cmd.Exposure <= 0 {
			return fail(env, 1, "exposure must be positive")
		}
		s.Exposure = *cmd.Exposure
	}
	if cmd.ISO != nil {
		s.ISO = *cmd.ISO
	}
	if cmd.Binning != nil {
		switch *cmd.Binning {
		case 1, 2, 4:
			s.Binning = *cmd.Binning
		default:
			return fail(env, 1, "binning must be 1, 2 or 4")
		}
	}
	if cmd.Offset != nil {
		s.Offset = *cmd.Offset
	}
	if cmd.ColorRBalance != nil {
		s.ColorRBalance = *cmd.ColorRBalance
	}
	if cmd.ColorGBalance != nil {
		s.ColorGBalance = *cmd.ColorGBalance
	}
	if cmd.ColorBBalance != nil {
		s.ColorBBalance = *cmd.ColorBBalance
	}
	return env
}

func handleSetDewHeaterMode(d *Dispatcher, cmd *Command, env control.Envelope) any {
	s := d.deps.State
	if cmd.Mode != nil {
		s.DewHeaterMode = *cmd.Mode
	}
	if cmd.Aggression != nil {
		s.Aggression = *cmd.Aggression
	}
	if cmd.ManualPowerLevel != nil {
		s.ManualPowerLevel = *cmd.ManualPowerLevel
	}
	return env
}

func handleSetBrightness(d *Dispatcher, cmd *Command, env control.Envelope) any {
	if cmd.Brightness == nil {
		return fail(env, 1, "missing Brightness")
	}
	b := *cmd.Brightness
	if b < 0 {
		b = 0
	}
	if b > 100 {
		b = 100
	}
	d.deps.State.LedBrightness = b
	return env
}

func handleListDirectories(d *Dispatcher, cmd *Command, env control.Envelope) any {
	dirs := []string{}
	if d.deps.Catalog != nil {
		got, err := d.deps.Catalog.Directories()
		if err != nil {
			monitoring.Logf("failed to list catalog directories: %v", err)
			return fail(env, 1, "directory listing unavailable")
		}
		dirs = got
	}
	return control.DirectoryList{Envelope: env, DirectoryList: dirs}
}

func handleDirectoryContents(d *Dispatcher, cmd *Command, env control.Envelope) any {
	if cmd.Directory == nil {
		return fail(env, 1, "missing Directory")
	}
	files := []string{}
	if d.deps.Catalog != nil {
		got, err := d.deps.Catalog.FileNames(*cmd.Directory)
		if err != nil {
			monitoring.Logf("failed to list catalog files: %v", err)
			return fail(env, 1, "directory listing unavailable")
		}
		files = got
	}
	return control.DirectoryContents{Envelope: env, Directory: *cmd.Directory, FileList: files}
}
