package version

var (
	// Version is the current simulator build version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Firmware-level strings reported over the control protocol. These are fixed
// by the device contract and are independent of the simulator build version.
const (
	DeviceVersion = "1.1.4248"
	DeviceModel   = "Origin"
)
