package dispatch

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfield-data/originsim/internal/control"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
	"github.com/skyfield-data/originsim/internal/units"
)

type fakeActivities struct {
	slews       int
	imagings    int
	inits       int
	fakeInits   int
	lastFakePth bool
}

func (f *fakeActivities) StartSlew()    { f.slews++ }
func (f *fakeActivities) StartImaging() { f.imagings++ }
func (f *fakeActivities) StartInitialize(fake bool) {
	f.inits++
	if fake {
		f.fakeInits++
	}
	f.lastFakePth = fake
}

type fakeCatalog struct {
	dirs  []string
	files map[string][]string
}

func (f *fakeCatalog) Directories() ([]string, error) { return f.dirs, nil }
func (f *fakeCatalog) FileNames(dir string) ([]string, error) {
	return f.files[dir], nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *telescope.State, *fakeActivities) {
	t.Helper()
	state := telescope.NewState(units.DegToRad(47.6), units.DegToRad(-122.3))
	acts := &fakeActivities{}
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC))
	d := New(Deps{
		State:      state,
		Clock:      clock,
		Activities: acts,
		Catalog: &fakeCatalog{
			dirs:  []string{"Orion_M42"},
			files: map[string][]string{"Orion_M42": {"stacked_0.tiff"}},
		},
	})
	return d, state, acts
}

func dispatch(t *testing.T, d *Dispatcher, msg string) map[string]any {
	t.Helper()
	out, err := d.Dispatch([]byte(msg))
	require.NoError(t, err)
	require.NotNil(t, out)
	var body map[string]any
	require.NoError(t, json.Unmarshal(out, &body))
	return body
}

func TestGetVersionResponse(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"GetVersion","Destination":"System","Source":"C","SequenceID":1,"Type":"Command"}`)

	assert.Equal(t, "GetVersion", body["Command"])
	assert.Equal(t, "System", body["Source"])
	assert.Equal(t, "C", body["Destination"])
	assert.Equal(t, float64(1), body["SequenceID"])
	assert.Equal(t, "Response", body["Type"])
	assert.Equal(t, float64(0), body["ErrorCode"])
	assert.Equal(t, "1.1.4248", body["Number"])
}

func TestResponseExpiry(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"GetModel","Destination":"System","Source":"C","SequenceID":5,"Type":"Command"}`)

	want := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC).Add(control.ExpireAfter).UnixMilli()
	assert.Equal(t, float64(want), body["ExpiredAt"])
}

func TestUnknownCommandDefaultSuccess(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"FrobnicateDome","Destination":"Mount","Source":"C","SequenceID":9,"Type":"Command"}`)

	assert.Equal(t, float64(0), body["ErrorCode"])
	assert.Equal(t, "", body["ErrorMessage"])
	assert.Equal(t, "Response", body["Type"])
}

func TestNonCommandMessagesIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	out, err := d.Dispatch([]byte(`{"Command":"GetVersion","Type":"Response","SequenceID":1}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMalformedJSONRejected(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	_, err := d.Dispatch([]byte(`{not json`))
	assert.Error(t, err)
}

func TestGotoWhileUnaligned(t *testing.T) {
	d, state, acts := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"GotoRaDec","Destination":"Mount","Source":"C","SequenceID":2,"Type":"Command","Ra":3.14,"Dec":0.5}`)

	assert.Equal(t, float64(1), body["ErrorCode"])
	assert.Contains(t, body["ErrorMessage"], "not aligned")
	assert.False(t, state.IsSlewing)
	assert.Zero(t, acts.slews)
}

func TestAlignThenGoto(t *testing.T) {
	d, state, acts := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"StartAlignment","Destination":"TaskController","Source":"C","SequenceID":1,"Type":"Command"}`)
	dispatch(t, d, `{"Command":"AddAlignmentPoint","Destination":"TaskController","Source":"C","SequenceID":2,"Type":"Command"}`)
	body := dispatch(t, d, `{"Command":"FinishAlignment","Destination":"TaskController","Source":"C","SequenceID":3,"Type":"Command"}`)
	assert.Equal(t, float64(0), body["ErrorCode"])
	assert.True(t, state.IsAligned)

	dispatch(t, d, `{"Command":"GotoRaDec","Destination":"Mount","Source":"C","SequenceID":4,"Type":"Command","Ra":3.83883,"Dec":0.973655}`)
	assert.True(t, state.IsSlewing)
	assert.False(t, state.IsGotoOver)
	assert.InDelta(t, 3.83883, state.TargetRA, 1e-9)
	assert.InDelta(t, 0.973655, state.TargetDec, 1e-9)
	assert.Equal(t, 1, acts.slews)
}

func TestFinishAlignmentWithoutPoints(t *testing.T) {
	d, state, _ := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"FinishAlignment","Destination":"TaskController","Source":"C","SequenceID":1,"Type":"Command"}`)

	assert.Equal(t, float64(1), body["ErrorCode"])
	assert.False(t, state.IsAligned)
}

func TestJogStartsSlew(t *testing.T) {
	d, state, acts := newTestDispatcher(t)
	state.IsAligned = true
	state.NumAlignRefs = 1
	state.RA = 1.0
	state.Dec = 0.3

	dispatch(t, d, `{"Command":"Slew","Destination":"Mount","Source":"C","SequenceID":1,"Type":"Command","AltRate":3,"AzmRate":0}`)

	assert.True(t, state.IsSlewing)
	assert.Equal(t, 1, acts.slews)
	// A small jog must not move the target far from the current position.
	assert.InDelta(t, state.RA, state.TargetRA, 0.01)
	assert.InDelta(t, state.Dec, state.TargetDec, 0.01)
}

func TestAbortAxisMovement(t *testing.T) {
	d, state, _ := newTestDispatcher(t)
	state.IsAligned = true
	state.NumAlignRefs = 1
	state.RA = 1.0
	state.Dec = 0.2
	dispatch(t, d, `{"Command":"GotoRaDec","Destination":"Mount","Source":"C","SequenceID":1,"Type":"Command","Ra":2.0,"Dec":0.4}`)

	dispatch(t, d, `{"Command":"AbortAxisMovement","Destination":"Mount","Source":"C","SequenceID":2,"Type":"Command"}`)

	assert.False(t, state.IsSlewing)
	assert.True(t, state.IsGotoOver)
	assert.Equal(t, 1.0, state.RA)
	assert.Equal(t, 0.2, state.Dec)
	assert.Equal(t, state.RA, state.TargetRA)
	assert.Equal(t, state.Dec, state.TargetDec)
}

func TestTrackingToggleIdempotent(t *testing.T) {
	d, state, _ := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"StartTracking","Destination":"Mount","Source":"C","SequenceID":1,"Type":"Command"}`)
	assert.True(t, state.IsTracking)

	dispatch(t, d, `{"Command":"StopTracking","Destination":"Mount","Source":"C","SequenceID":2,"Type":"Command"}`)
	dispatch(t, d, `{"Command":"StopTracking","Destination":"Mount","Source":"C","SequenceID":3,"Type":"Command"}`)
	assert.False(t, state.IsTracking)
}

func TestRunImaging(t *testing.T) {
	d, state, acts := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"RunImaging","Destination":"TaskController","Source":"C","SequenceID":1,"Type":"Command"}`)
	assert.True(t, state.IsImaging)
	assert.Equal(t, 30, state.ImagingTimeLeft)
	assert.Equal(t, telescope.TaskImaging, state.TaskState)
	assert.Equal(t, 1, acts.imagings)

	dispatch(t, d, `{"Command":"CancelImaging","Destination":"TaskController","Source":"C","SequenceID":2,"Type":"Command"}`)
	assert.False(t, state.IsImaging)
	assert.Equal(t, telescope.TaskIdle, state.TaskState)
}

func TestRunInitializeReportsFinished(t *testing.T) {
	d, state, acts := newTestDispatcher(t)
	body := dispatch(t, d, `{"Command":"RunInitialize","Destination":"TaskController","Source":"C","SequenceID":1,"Type":"Command"}`)

	// The response claims the finished state while the progression is still
	// running in the background.
	assert.Equal(t, "INITIALIZED", body["State"])
	assert.Equal(t, "FINISHED", body["Stage"])
	assert.Equal(t, telescope.TaskInitializing, state.TaskState)
	assert.Equal(t, 1, acts.inits)
	assert.False(t, acts.lastFakePth)

	dispatch(t, d, `{"Command":"RunInitialize","Destination":"TaskController","Source":"C","SequenceID":2,"Type":"Command","FakeInitialize":true}`)
	assert.Equal(t, 1, acts.fakeInits)
}

func TestMoveToPositionClampsToCalibration(t *testing.T) {
	d, state, _ := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"MoveToPosition","Destination":"Focuser","Source":"C","SequenceID":1,"Type":"Command","Position":21000}`)
	assert.Equal(t, 21000, state.FocuserPosition)

	dispatch(t, d, `{"Command":"MoveToPosition","Destination":"Focuser","Source":"C","SequenceID":2,"Type":"Command","Position":99999}`)
	assert.Equal(t, state.CalibrationUpper, state.FocuserPosition)

	body := dispatch(t, d, `{"Command":"MoveToPosition","Destination":"Focuser","Source":"C","SequenceID":3,"Type":"Command"}`)
	assert.Equal(t, float64(1), body["ErrorCode"])
}

func TestSetThenGetCaptureParameters(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"SetCaptureParameters","Destination":"Camera","Source":"C","SequenceID":1,"Type":"Command","Exposure":25.5,"ISO":1600,"Binning":2,"Offset":12,"ColorRBalance":1.1,"ColorGBalance":0.9,"ColorBBalance":1.05}`)
	body := dispatch(t, d, `{"Command":"GetCaptureParameters","Destination":"Camera","Source":"C","SequenceID":2,"Type":"Command"}`)

	assert.Equal(t, 25.5, body["Exposure"])
	assert.Equal(t, float64(1600), body["ISO"])
	assert.Equal(t, float64(2), body["Binning"])
	assert.Equal(t, float64(12), body["Offset"])
	assert.Equal(t, 1.1, body["ColorRBalance"])
	assert.Equal(t, 0.9, body["ColorGBalance"])
	assert.Equal(t, 1.05, body["ColorBBalance"])
}

func TestSetCaptureParametersValidation(t *testing.T) {
	d, state, _ := newTestDispatcher(t)

	body := dispatch(t, d, `{"Command":"SetCaptureParameters","Destination":"Camera","Source":"C","SequenceID":1,"Type":"Command","Exposure":-1}`)
	assert.Equal(t, float64(1), body["ErrorCode"])
	assert.Equal(t, 10.0, state.Exposure)

	body = dispatch(t, d, `{"Command":"SetCaptureParameters","Destination":"Camera","Source":"C","SequenceID":2,"Type":"Command","Binning":3}`)
	assert.Equal(t, float64(1), body["ErrorCode"])
	assert.Equal(t, 1, state.Binning)
}

func TestSetDewHeaterMode(t *testing.T) {
	d, state, _ := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"SetMode","Destination":"DewHeater","Source":"C","SequenceID":1,"Type":"Command","Mode":"Auto","Aggression":7,"ManualPowerLevel":0.5}`)
	assert.Equal(t, "Auto", state.DewHeaterMode)
	assert.Equal(t, 7, state.Aggression)
	assert.Equal(t, 0.5, state.ManualPowerLevel)
}

func TestSetBrightnessClamps(t *testing.T) {
	d, state, _ := newTestDispatcher(t)

	dispatch(t, d, `{"Command":"SetBrightness","Destination":"LedRing","Source":"C","SequenceID":1,"Type":"Command","Brightness":250}`)
	assert.Equal(t, 100, state.LedBrightness)

	dispatch(t, d, `{"Command":"SetBrightness","Destination":"LedRing","Source":"C","SequenceID":2,"Type":"Command","Brightness":-5}`)
	assert.Equal(t, 0, state.LedBrightness)
}

func TestImageServerDirectoryQueries(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	body := dispatch(t, d, `{"Command":"GetListOfAvailableDirectories","Destination":"ImageServer","Source":"C","SequenceID":1,"Type":"Command"}`)
	assert.Equal(t, []any{"Orion_M42"}, body["DirectoryList"])

	body = dispatch(t, d, `{"Command":"GetDirectoryContents","Destination":"ImageServer","Source":"C","SequenceID":2,"Type":"Command","Directory":"Orion_M42"}`)
	assert.Equal(t, "Orion_M42", body["Directory"])
	assert.Equal(t, []any{"stacked_0.tiff"}, body["FileList"])
}

func TestGetStatusPerSubsystem(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	for _, dest := range []string{
		"System", "Mount", "Focuser", "Camera", "TaskController",
		"Environment", "Disk", "DewHeater", "OrientationSensor",
		"LedRing", "FactoryCalibrationController",
	} {
		body := dispatch(t, d, fmt.Sprintf(
			`{"Command":"GetStatus","Destination":%q,"Source":"C","SequenceID":1,"Type":"Command"}`, dest))
		assert.Equal(t, dest, body["Source"], "dest %s", dest)
		assert.Equal(t, float64(0), body["ErrorCode"], "dest %s", dest)
	}
}

// Random command sequences must never break the core state invariants.
func TestInvariantsUnderRandomCommands(t *testing.T) {
	d, state, _ := newTestDispatcher(t)
	rng := rand.New(rand.NewPCG(42, 7))

	commands := []string{
		`{"Command":"StartAlignment","Destination":"TaskController","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"AddAlignmentPoint","Destination":"TaskController","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"FinishAlignment","Destination":"TaskController","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"GotoRaDec","Destination":"Mount","Source":"C","SequenceID":%d,"Type":"Command","Ra":1.5,"Dec":0.2}`,
		`{"Command":"Slew","Destination":"Mount","Source":"C","SequenceID":%d,"Type":"Command","AltRate":2,"AzmRate":-1}`,
		`{"Command":"AbortAxisMovement","Destination":"Mount","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"StartTracking","Destination":"Mount","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"StopTracking","Destination":"Mount","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"RunImaging","Destination":"TaskController","Source":"C","SequenceID":%d,"Type":"Command"}`,
		`{"Command":"CancelImaging","Destination":"TaskController","Source":"C","SequenceID":%d,"Type":"Command"}`,
	}

	for i := 0; i < 500; i++ {
		msg := fmt.Sprintf(commands[rng.IntN(len(commands))], i)
		out, err := d.Dispatch([]byte(msg))
		require.NoError(t, err)
		require.NotNil(t, out)

		assert.Equal(t, state.IsGotoOver, !state.IsSlewing, "step %d", i)
		if state.IsAligned {
			assert.GreaterOrEqual(t, state.NumAlignRefs, 1, "step %d", i)
		}
		assert.GreaterOrEqual(t, state.FreeBytes, int64(0), "step %d", i)
		assert.LessOrEqual(t, state.FreeBytes, state.DiskCapacity, "step %d", i)
	}
}
