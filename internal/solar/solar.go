// Package solar computes sunrise and sunset times with the Almanac for
// Computers (1990) algorithm, and derives a coarse phase of the day from
// them.
package solar

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrSunNeverRises is returned when the sun stays below the requested
	// zenith for the whole day (polar night).
	ErrSunNeverRises = errors.New("sun never rises on this date")

	// ErrSunNeverSets is returned when the sun stays above the requested
	// zenith for the whole day (midnight sun).
	ErrSunNeverSets = errors.New("sun never sets on this date")
)

// Sunrise returns the sunrise for the calendar day of date, expressed in
// date.Location() and rounded to the minute.
func Sunrise(loc Location, z Zenith, date time.Time) (time.Time, error) {
	return eventTime(loc, z, date, true)
}

// Sunset returns the sunset for the calendar day of date, expressed in
// date.Location() and rounded to the minute.
func Sunset(loc Location, z Zenith, date time.Time) (time.Time, error) {
	return eventTime(loc, z, date, false)
}

func eventTime(loc Location, z Zenith, date time.Time, rising bool) (time.Time, error) {
	lngHour := loc.Longitude / 15

	// approximate time of the event, in days
	base := 18.0
	if rising {
		base = 6
	}
	t := float64(date.YearDay()) + (base-lngHour)/24

	meanAnomaly := 0.9856*t - 3.289

	trueLong := normDeg(meanAnomaly +
		1.916*sinDeg(meanAnomaly) +
		0.020*sinDeg(2*meanAnomaly) +
		282.634)

	// right ascension, moved into the same quadrant as the true longitude
	ra := normDeg(radToDeg(math.Atan(0.91764 * math.Tan(degToRad(trueLong)))))
	ra += math.Floor(trueLong/90)*90 - math.Floor(ra/90)*90
	ra /= 15

	sinDec := 0.39782 * sinDeg(trueLong)
	cosDec := math.Cos(math.Asin(sinDec))

	cosH := (math.Cos(degToRad(float64(z))) - sinDec*sinDeg(loc.Latitude)) /
		(cosDec * math.Cos(degToRad(loc.Latitude)))
	switch {
	case cosH > 1:
		return time.Time{}, ErrSunNeverRises
	case cosH < -1:
		return time.Time{}, ErrSunNeverSets
	}

	h := radToDeg(math.Acos(cosH))
	if rising {
		h = 360 - h
	}
	h /= 15

	localMean := h + ra - 0.06571*t - 6.622
	ut := normHours(localMean - lngHour)

	return onLocalDay(date, ut), nil
}

// onLocalDay converts a UT hour into a wall clock time on date's local day.
// The zone offset is taken at local noon and already includes daylight
// saving time.
func onLocalDay(date time.Time, ut float64) time.Time {
	y, m, d := date.Date()
	tz := date.Location()

	_, offset := time.Date(y, m, d, 12, 0, 0, 0, tz).Zone()
	local := normHours(ut + float64(offset)/3600)

	minutes := int(math.Round(local*60)) % (24 * 60)
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, tz)
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
func sinDeg(d float64) float64   { return math.Sin(degToRad(d)) }

func normDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func normHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}
