package solar

import (
	"errors"
	"time"
)

// Phase is a coarse part of the day used to pick a theme.
type Phase int

const (
	Night Phase = iota
	Morning
	Afternoon
)

func (p Phase) String() string {
	switch p {
	case Morning:
		return "morning"
	case Afternoon:
		return "afternoon"
	default:
		return "night"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Afternoon starts at this local wall clock time.
const (
	noonHour   = 12
	noonMinute = 30
)

// Times holds the events DayPhase based its answer on. Sunrise and Sunset
// are zero when the sun does not cross the zenith that day; PolarNight and
// MidnightSun say which.
type Times struct {
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	Noon        time.Time `json:"noon"`
	PolarNight  bool      `json:"polar_night,omitempty"`
	MidnightSun bool      `json:"midnight_sun,omitempty"`
}

// DayPhase classifies now (interpreted in now.Location()) at loc:
// Night until sunrise, Morning until 12:30, Afternoon until sunset, then
// Night again. During polar night the whole day is Night; under the
// midnight sun the day is split at 12:30 only.
func DayPhase(loc Location, z Zenith, now time.Time) (Phase, Times, error) {
	y, m, d := now.Date()
	tm := Times{Noon: time.Date(y, m, d, noonHour, noonMinute, 0, 0, now.Location())}

	rise, err := Sunrise(loc, z, now)
	switch {
	case errors.Is(err, ErrSunNeverRises):
		tm.PolarNight = true
		return Night, tm, nil
	case errors.Is(err, ErrSunNeverSets):
		tm.MidnightSun = true
		if now.After(tm.Noon) {
			return Afternoon, tm, nil
		}
		return Morning, tm, nil
	case err != nil:
		return Night, tm, err
	}
	set, err := Sunset(loc, z, now)
	if err != nil {
		return Night, tm, err
	}
	tm.Sunrise, tm.Sunset = rise, set

	phase := Night
	if now.After(rise) {
		phase = Morning
		if now.After(tm.Noon) {
			phase = Afternoon
			if now.After(set) {
				phase = Night
			}
		}
	}
	return phase, tm, nil
}
