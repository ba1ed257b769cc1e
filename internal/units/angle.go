// Package units provides angle conversions used across the simulator. The
// control protocol and the state store both work in radians; the discovery
// and jog surfaces use degrees and arcseconds.
package units

import "math"

const (
	// ArcsecPerDegree is the number of arcseconds in one degree.
	ArcsecPerDegree = 3600.0
	// HoursPerRevolution is the number of right-ascension hours in a full turn.
	HoursPerRevolution = 24.0
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// ArcsecToRad converts arcseconds to radians.
func ArcsecToRad(arcsec float64) float64 {
	return DegToRad(arcsec / ArcsecPerDegree)
}

// RadToHours converts a right-ascension angle in radians to hours.
func RadToHours(rad float64) float64 {
	return RadToDeg(rad) / 360.0 * HoursPerRevolution
}

// HoursToRad converts right-ascension hours to radians.
func HoursToRad(h float64) float64 {
	return DegToRad(h / HoursPerRevolution * 360.0)
}

// NormalizeRA wraps a right-ascension angle into [0, 2π).
func NormalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 2*math.Pi)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	return ra
}

// ClampDec limits a declination angle to [-π/2, π/2].
func ClampDec(dec float64) float64 {
	if dec > math.Pi/2 {
		return math.Pi / 2
	}
	if dec < -math.Pi/2 {
		return -math.Pi / 2
	}
	return dec
}
