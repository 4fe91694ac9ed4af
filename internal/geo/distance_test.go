package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b Coordinate
		want float64
	}{
		{"same point", Coordinate{37.8063, -122.4659}, Coordinate{37.8063, -122.4659}, 0},
		{"one degree of latitude", Coordinate{0, 0}, Coordinate{1, 0}, 111.195},
		{"san francisco to los angeles", Coordinate{37.7749, -122.4194}, Coordinate{34.0522, -118.2437}, 559.12},
		{"across the antimeridian", Coordinate{0, 179.5}, Coordinate{0, -179.5}, 111.195},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), 0.5)
		})
	}
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	points := []Coordinate{
		{0, 0},
		{90, 0},
		{-90, 180},
		{47.6062, -122.3321},
		{-33.8688, 151.2093},
		{21.3069, -157.8583},
	}

	for _, a := range points {
		assert.Equal(t, 0.0, Distance(a, a), "distance(a,a) for %v", a)
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a), "symmetry for %v / %v", a, b)
			if a != b {
				assert.Greater(t, Distance(a, b), 0.0)
			}
		}
	}
}
