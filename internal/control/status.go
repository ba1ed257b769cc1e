package control

import (
	"time"

	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/units"
	"github.com/skyfield-data/originsim/internal/version"
)

// MountStatus mirrors the mount notification and the Mount GetStatus
// response. Date/Time/TimeZone come from one wall clock read.
type MountStatus struct {
	Envelope
	BatteryLevel   string  `json:"BatteryLevel"`
	BatteryVoltage float64 `json:"BatteryVoltage"`
	Date           string  `json:"Date"`
	Time           string  `json:"Time"`
	TimeZone       string  `json:"TimeZone"`
	Latitude       float64 `json:"Latitude"`
	Longitude      float64 `json:"Longitude"`
	Ra             float64 `json:"Ra"`
	Dec            float64 `json:"Dec"`
	TargetRa       float64 `json:"TargetRa"`
	TargetDec      float64 `json:"TargetDec"`
	IsAligned      bool    `json:"IsAligned"`
	IsGotoOver     bool    `json:"IsGotoOver"`
	IsTracking     bool    `json:"IsTracking"`
	NumAlignRefs   int     `json:"NumAlignRefs"`
}

// BuildMountStatus snapshots the mount fields into a message body.
func BuildMountStatus(s *telescope.State, env Envelope, now time.Time) MountStatus {
	zone, _ := now.Zone()
	return MountStatus{
		Envelope:       env,
		BatteryLevel:   string(s.BatteryLevel),
		BatteryVoltage: s.BatteryVoltage,
		Date:           now.Format("2006-01-02"),
		Time:           now.Format("15:04:05"),
		TimeZone:       zone,
		Latitude:       units.RadToDeg(s.Latitude),
		Longitude:      units.RadToDeg(s.Longitude),
		Ra:             s.RA,
		Dec:            s.Dec,
		TargetRa:       s.TargetRA,
		TargetDec:      s.TargetDec,
		IsAligned:      s.IsAligned,
		IsGotoOver:     s.IsGotoOver,
		IsTracking:     s.IsTracking,
		NumAlignRefs:   s.NumAlignRefs,
	}
}

// FocuserStatus mirrors the focuser notification.
type FocuserStatus struct {
	Envelope
	Backlash              int  `json:"Backlash"`
	CalibrationLowerLimit int  `json:"CalibrationLowerLimit"`
	CalibrationUpperLimit int  `json:"CalibrationUpperLimit"`
	IsCalibrationComplete bool `json:"IsCalibrationComplete"`
	IsMoveToOver          bool `json:"IsMoveToOver"`
	Position              int  `json:"Position"`
}

// BuildFocuserStatus snapshots the focuser fields.
func BuildFocuserStatus(s *telescope.State, env Envelope) FocuserStatus {
	return FocuserStatus{
		Envelope:              env,
		Backlash:              s.Backlash,
		CalibrationLowerLimit: s.CalibrationLower,
		CalibrationUpperLimit: s.CalibrationUpper,
		IsCalibrationComplete: s.IsCalibrationOver,
		IsMoveToOver:          s.IsMoveToOver,
		Position:              s.FocuserPosition,
	}
}

// CameraParams mirrors the camera parameter notification and the
// GetCaptureParameters response.
type CameraParams struct {
	Envelope
	Exposure      float64 `json:"Exposure"`
	ISO           int     `json:"ISO"`
	Binning       int     `json:"Binning"`
	Offset        int     `json:"Offset"`
	ColorRBalance float64 `json:"ColorRBalance"`
	ColorGBalance float64 `json:"ColorGBalance"`
	ColorBBalance float64 `json:"ColorBBalance"`
}

// BuildCameraParams snapshots the capture parameters.
func BuildCameraParams(s *telescope.State, env Envelope) CameraParams {
	return CameraParams{
		Envelope:      env,
		Exposure:      s.Exposure,
		ISO:           s.ISO,
		Binning:       s.Binning,
		Offset:        s.Offset,
		ColorRBalance: s.ColorRBalance,
		ColorGBalance: s.ColorGBalance,
		ColorBBalance: s.ColorBBalance,
	}
}

// NewImageReady announces the latest image available over HTTP.
type NewImageReady struct {
	Envelope
	FileLocation string  `json:"FileLocation"`
	ImageType    string  `json:"ImageType"`
	Ra           float64 `json:"Ra"`
	Dec          float64 `json:"Dec"`
	FovX         float64 `json:"FovX"`
	FovY         float64 `json:"FovY"`
	Orientation  float64 `json:"Orientation"`
}

// BuildNewImageReady snapshots the image fields.
func BuildNewImageReady(s *telescope.State, env Envelope) NewImageReady {
	return NewImageReady{
		Envelope:     env,
		FileLocation: s.FileLocation,
		ImageType:    string(s.ImageType),
		Ra:           s.RA,
		Dec:          s.Dec,
		FovX:         s.FovX,
		FovY:         s.FovY,
		Orientation:  s.Orientation,
	}
}

// TaskControllerStatus mirrors the task controller notification, including
// the initialization progress block.
type TaskControllerStatus struct {
	Envelope
	State              string `json:"State"`
	Stage              string `json:"Stage"`
	IsReady            bool   `json:"IsReady"`
	NumPoints          int    `json:"NumPoints"`
	NumPointsRemaining int    `json:"NumPointsRemaining"`
	PercentComplete    int    `json:"PercentComplete"`
	PositionOfFocus    int    `json:"PositionOfFocus"`
}

// BuildTaskControllerStatus snapshots the task controller fields.
func BuildTaskControllerStatus(s *telescope.State, env Envelope) TaskControllerStatus {
	return TaskControllerStatus{
		Envelope:           env,
		State:              string(s.TaskState),
		Stage:              string(s.TaskStage),
		IsReady:            s.IsReady,
		NumPoints:          s.NumPoints,
		NumPointsRemaining: s.NumPointsRemaining,
		PercentComplete:    s.PercentComplete,
		PositionOfFocus:    s.PositionOfFocus,
	}
}

// EnvironmentStatus mirrors the environment notification.
type EnvironmentStatus struct {
	Envelope
	AmbientTemperature   float64 `json:"AmbientTemperature"`
	CameraTemperature    float64 `json:"CameraTemperature"`
	CpuTemperature       float64 `json:"CpuTemperature"`
	FrontCellTemperature float64 `json:"FrontCellTemperature"`
	DewPoint             float64 `json:"DewPoint"`
	Humidity             float64 `json:"Humidity"`
}

// BuildEnvironmentStatus snapshots the environment sensors.
func BuildEnvironmentStatus(s *telescope.State, env Envelope) EnvironmentStatus {
	return EnvironmentStatus{
		Envelope:             env,
		AmbientTemperature:   s.AmbientTemperature,
		CameraTemperature:    s.CameraTemperature,
		CpuTemperature:       s.CPUTemperature,
		FrontCellTemperature: s.FrontCellTemperature,
		DewPoint:             s.DewPointTemperature,
		Humidity:             s.Humidity,
	}
}

// DiskStatus mirrors the disk notification.
type DiskStatus struct {
	Envelope
	Capacity  int64  `json:"Capacity"`
	FreeBytes int64  `json:"FreeBytes"`
	Level     string `json:"Level"`
}

// BuildDiskStatus snapshots the disk fields. Level degrades as free space
// shrinks below 10% and 2% of capacity.
func BuildDiskStatus(s *telescope.State, env Envelope) DiskStatus {
	level := "DISK_OK"
	switch {
	case s.FreeBytes < s.DiskCapacity/50:
		level = "DISK_FULL"
	case s.FreeBytes < s.DiskCapacity/10:
		level = "DISK_LOW"
	}
	return DiskStatus{
		Envelope:  env,
		Capacity:  s.DiskCapacity,
		FreeBytes: s.FreeBytes,
		Level:     level,
	}
}

// DewHeaterStatus mirrors the dew heater notification.
type DewHeaterStatus struct {
	Envelope
	Mode        string  `json:"Mode"`
	Aggression  int     `json:"Aggression"`
	HeaterLevel float64 `json:"HeaterLevel"`
}

// BuildDewHeaterStatus snapshots the dew heater fields.
func BuildDewHeaterStatus(s *telescope.State, env Envelope) DewHeaterStatus {
	return DewHeaterStatus{
		Envelope:    env,
		Mode:        s.DewHeaterMode,
		Aggression:  s.Aggression,
		HeaterLevel: s.ManualPowerLevel,
	}
}

// OrientationStatus mirrors the orientation sensor notification. Altitude
// alternates between 59 and 60 as the simulation advances.
type OrientationStatus struct {
	Envelope
	Altitude int `json:"Altitude"`
}

// BuildOrientationStatus snapshots the orientation sensor.
func BuildOrientationStatus(s *telescope.State, env Envelope) OrientationStatus {
	return OrientationStatus{
		Envelope: env,
		Altitude: s.EnvAltitude,
	}
}

// VersionInfo is the GetVersion response body.
type VersionInfo struct {
	Envelope
	Number string `json:"Number"`
}

// BuildVersionInfo reports the fixed device version string.
func BuildVersionInfo(env Envelope) VersionInfo {
	return VersionInfo{Envelope: env, Number: version.DeviceVersion}
}

// ModelInfo is the GetModel response body.
type ModelInfo struct {
	Envelope
	Name    string   `json:"Name"`
	Devices []string `json:"Devices"`
}

// BuildModelInfo reports the fixed device list.
func BuildModelInfo(env Envelope) ModelInfo {
	return ModelInfo{
		Envelope: env,
		Name:     version.DeviceModel,
		Devices: []string{
			DestSystem, DestTaskCtrl, DestMount, DestFocuser, DestCamera,
			DestDewHeater, DestEnvironment, DestLedRing, DestOrientation,
			DestDisk, DestImageServer, DestFactory,
		},
	}
}

// SystemStatus is the System GetStatus response body.
type SystemStatus struct {
	Envelope
	BatteryLevel   string  `json:"BatteryLevel"`
	BatteryVoltage float64 `json:"BatteryVoltage"`
	Version        string  `json:"Version"`
	IsReady        bool    `json:"IsReady"`
}

// BuildSystemStatus snapshots the system-level fields.
func BuildSystemStatus(s *telescope.State, env Envelope) SystemStatus {
	return SystemStatus{
		Envelope:       env,
		BatteryLevel:   string(s.BatteryLevel),
		BatteryVoltage: s.BatteryVoltage,
		Version:        version.DeviceVersion,
		IsReady:        s.IsReady,
	}
}

// LedRingStatus is the LedRing GetStatus response body.
type LedRingStatus struct {
	Envelope
	Brightness int `json:"Brightness"`
}

// BuildLedRingStatus snapshots the led ring.
func BuildLedRingStatus(s *telescope.State, env Envelope) LedRingStatus {
	return LedRingStatus{Envelope: env, Brightness: s.LedBrightness}
}

// FactoryCalibrationStatus is the factory calibration controller GetStatus
// response body.
type FactoryCalibrationStatus struct {
	Envelope
	CalibrationLowerLimit int  `json:"CalibrationLowerLimit"`
	CalibrationUpperLimit int  `json:"CalibrationUpperLimit"`
	IsCalibrationComplete bool `json:"IsCalibrationComplete"`
}

// BuildFactoryCalibrationStatus snapshots the stored calibration values.
func BuildFactoryCalibrationStatus(s *telescope.State, env Envelope) FactoryCalibrationStatus {
	return FactoryCalibrationStatus{
		Envelope:              env,
		CalibrationLowerLimit: s.CalibrationLower,
		CalibrationUpperLimit: s.CalibrationUpper,
		IsCalibrationComplete: s.IsCalibrationOver,
	}
}

// DirectoryList is the GetListOfAvailableDirectories response body.
type DirectoryList struct {
	Envelope
	DirectoryList []string `json:"DirectoryList"`
}

// DirectoryContents is the GetDirectoryContents response body.
type DirectoryContents struct {
	Envelope
	Directory string   `json:"Directory"`
	FileList  []string `json:"FileList"`
}
