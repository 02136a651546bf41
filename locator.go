package main

import (
	"fmt"
	"math"
	"strings"
)

const earthRadiusKm = 6371.0

// LocatorToLatLon returns the centre of a 4, 6 or 8 character Maidenhead square
func LocatorToLatLon(locator string) (lat, lon float64, err error) {
	loc := strings.ToUpper(strings.TrimSpace(locator))
	if n := len(loc); n != 4 && n != 6 && n != 8 {
		return 0, 0, fmt.Errorf("invalid locator %q: length must be 4, 6 or 8", locator)
	}

	// Each pair refines the previous square: field, square, subsquare, extended square
	pairs := []struct {
		lo, hi           byte
		lonStep, latStep float64
	}{
		{'A', 'R', 20, 10},
		{'0', '9', 2, 1},
		{'A', 'X', 2.0 / 24, 1.0 / 24},
		{'0', '9', 2.0 / 240, 1.0 / 240},
	}

	lon, lat = -180, -90
	var lonStep, latStep float64
	for i := 0; i < len(loc)/2; i++ {
		p := pairs[i]
		a, b := loc[2*i], loc[2*i+1]
		if a < p.lo || a > p.hi || b < p.lo || b > p.hi {
			return 0, 0, fmt.Errorf("invalid locator %q: characters %d-%d must be %c-%c", locator, 2*i+1, 2*i+2, p.lo, p.hi)
		}
		lon += float64(a-p.lo) * p.lonStep
		lat += float64(b-p.lo) * p.latStep
		lonStep, latStep = p.lonStep, p.latStep
	}
	return lat + latStep/2, lon + lonStep/2, nil
}

// GreatCircleKm returns the haversine distance between two points
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// LocatorDistanceKm returns the distance between two locators
func LocatorDistanceKm(from, to string) (float64, error) {
	lat1, lon1, err := LocatorToLatLon(from)
	if err != nil {
		return 0, err
	}
	lat2, lon2, err := LocatorToLatLon(to)
	if err != nil {
		return 0, err
	}
	return GreatCircleKm(lat1, lon1, lat2, lon2), nil
}
