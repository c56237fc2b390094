package solar

import (
	"fmt"
	"strings"
)

// Zenith is the angle between the sun and the point directly overhead, in
// degrees, at which a rise or set event is reported.
type Zenith float64

const (
	// Astronomical dawn/dusk: the sun is 18 degrees below the horizon.
	Astronomical Zenith = 108
	// Nautical dawn/dusk: 12 degrees below the horizon.
	Nautical Zenith = 102
	// Civil dawn/dusk: 6 degrees below the horizon.
	Civil Zenith = 96
	// Official sunrise/sunset: 50 arc minutes below the horizon.
	Official Zenith = 90.8333
)

// ZenithByName resolves "astronomical", "nautical", "civil" or "official".
// The empty string selects Official.
func ZenithByName(name string) (Zenith, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "official":
		return Official, nil
	case "civil":
		return Civil, nil
	case "nautical":
		return Nautical, nil
	case "astronomical":
		return Astronomical, nil
	default:
		return 0, fmt.Errorf("unknown zenith %q (must be official, civil, nautical or astronomical)", name)
	}
}

func (z Zenith) String() string {
	switch z {
	case Official:
		return "official"
	case Civil:
		return "civil"
	case Nautical:
		return "nautical"
	case Astronomical:
		return "astronomical"
	default:
		return fmt.Sprintf("%.4f°", float64(z))
	}
}
