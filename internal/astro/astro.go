// Package astro implements the coordinate math behind the mount simulation:
// Julian date, sidereal time, and conversions between equatorial (RA/Dec) and
// horizontal (Alt/Az) coordinates for a ground observer. All angles are
// radians.
package astro

import (
	"math"
	"time"

	"github.com/skyfield-data/originsim/internal/units"
)

// J2000 is the Julian date of the J2000.0 epoch.
const J2000 = 2451545.0

// JulianDate converts a wall-clock instant to a Julian date.
func JulianDate(t time.Time) float64 {
	return 2440587.5 + float64(t.UnixMilli())/86400000.0
}

// EarthRotationAngle returns the earth rotation angle for the given instant,
// in radians. It serves as the sidereal time approximation for the simulated
// mount; the difference from apparent sidereal time is far below the
// simulation's jitter floor.
func EarthRotationAngle(t time.Time) float64 {
	d := JulianDate(t) - J2000
	turns := 0.7790572732640 + 1.00273781191135448*d
	turns -= math.Floor(turns)
	return turns * 2 * math.Pi
}

// LocalSiderealTime returns the local sidereal angle for an observer at the
// given longitude (east positive, radians).
func LocalSiderealTime(t time.Time, longitude float64) float64 {
	return units.NormalizeRA(EarthRotationAngle(t) + longitude)
}

// EquatorialToHorizontal converts RA/Dec to Alt/Az for an observer at
// latitude lat with local sidereal angle lst. Azimuth is measured from north
// through east, normalized to [0, 2π).
func EquatorialToHorizontal(ra, dec, lat, lst float64) (alt, az float64) {
	h := lst - ra // hour angle
	sinAlt := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(h)
	alt = math.Asin(clamp1(sinAlt))
	az = math.Atan2(
		-math.Cos(dec)*math.Sin(h),
		math.Sin(dec)*math.Cos(lat)-math.Cos(dec)*math.Sin(lat)*math.Cos(h),
	)
	return alt, units.NormalizeRA(az)
}

// HorizontalToEquatorial converts Alt/Az back to RA/Dec for an observer at
// latitude lat with local sidereal angle lst.
func HorizontalToEquatorial(alt, az, lat, lst float64) (ra, dec float64) {
	sinDec := math.Sin(alt)*math.Sin(lat) + math.Cos(alt)*math.Cos(lat)*math.Cos(az)
	dec = math.Asin(clamp1(sinDec))
	h := math.Atan2(
		-math.Cos(alt)*math.Sin(az),
		math.Sin(alt)*math.Cos(lat)-math.Cos(alt)*math.Sin(lat)*math.Cos(az),
	)
	return units.NormalizeRA(lst - h), dec
}

// JogRateArcsec maps a small signed jog input to an arcseconds-per-second
// slew rate. Negative inputs double per step; positive inputs run one short
// of the power of two.
func JogRateArcsec(rate int) float64 {
	if rate < 0 {
		return -float64(int64(1) << uint(-rate))
	}
	return float64(int64(1)<<uint(rate)) - 1
}

// JogTarget computes the equatorial target after one second of jogging at the
// given Alt/Az rates from the current position. Note: AltRate drives azimuth
// and AzmRate drives altitude; shipped clients depend on this historical axis
// swap, so it is preserved here.
func JogTarget(ra, dec, lat, lst float64, altRate, azmRate int) (targetRA, targetDec float64) {
	alt, az := EquatorialToHorizontal(ra, dec, lat, lst)
	az += units.ArcsecToRad(JogRateArcsec(altRate))
	alt += units.ArcsecToRad(JogRateArcsec(azmRate))
	if alt > math.Pi/2 {
		alt = math.Pi / 2
	}
	if alt < -math.Pi/2 {
		alt = -math.Pi / 2
	}
	ra, dec = HorizontalToEquatorial(alt, units.NormalizeRA(az), lat, lst)
	return ra, units.ClampDec(dec)
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
