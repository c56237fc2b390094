package solar

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Location is a point on the earth in decimal degrees.
// North latitude and east longitude are positive.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NewLocation validates lat/lon and returns the Location.
func NewLocation(lat, lon float64) (Location, error) {
	ll := s2.LatLngFromDegrees(lat, lon)
	if !ll.IsValid() || math.IsNaN(lat) || math.IsNaN(lon) {
		return Location{}, fmt.Errorf("invalid location %v,%v: latitude must be within [-90,90] and longitude within [-180,180]", lat, lon)
	}
	return Location{Latitude: lat, Longitude: lon}, nil
}

// LatLng returns the location as an s2.LatLng.
func (l Location) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(l.Latitude, l.Longitude)
}

// DMS formats the location as degrees, minutes and seconds, for example
// 48°51'24.0"N 2°21'03.0"E.
func (l Location) DMS() string {
	ll := l.LatLng()
	return dms(ll.Lat, "N", "S") + " " + dms(ll.Lng, "E", "W")
}

func (l Location) String() string {
	return fmt.Sprintf("%.5f,%.5f", l.Latitude, l.Longitude)
}

func dms(a s1.Angle, pos, neg string) string {
	hemi := pos
	if a < 0 {
		hemi = neg
		a = -a
	}
	// work in tenths of an arc second so carries are exact
	tenths := int64(math.Round(a.Degrees() * 36000))
	deg := tenths / 36000
	tenths -= deg * 36000
	mins := tenths / 600
	tenths -= mins * 600
	return fmt.Sprintf("%d°%02d'%02d.%d\"%s", deg, mins, tenths/10, tenths%10, hemi)
}
