package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mmcloughlin/geohash"
)

var (
	// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// String formats the coordinate as "lat|lon" using the shortest decimal
// representation of each component.
func (c Coordinate) String() string {
	return FormatDegrees(c.Latitude) + "|" + FormatDegrees(c.Longitude)
}

// FormatDegrees renders a component the way upstream query strings expect it.
func FormatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Keyer derives cache keys from coordinates.
//
// With Precision zero the key is the exact "lat|lon" string, so two
// coordinates that differ in the last decimal place are different keys.
// A positive Precision quantizes the coordinate to a geohash cell of that
// many characters instead.
type Keyer struct {
	Precision uint
}

// MaxKeyPrecision is the longest geohash the keyer will produce.
const MaxKeyPrecision = 12

// Key returns the cache key for c.
func (k Keyer) Key(c Coordinate) string {
	if k.Precision == 0 {
		return c.String()
	}
	p := k.Precision
	if p > MaxKeyPrecision {
		p = MaxKeyPrecision
	}
	return "gh:" + geohash.EncodeWithPrecision(c.Latitude, c.Longitude, p)
}
