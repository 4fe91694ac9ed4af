package weather

import (
	"time"

	"github.com/i474232898/coastal-conditions/internal/geo"
)

// Conditions is the cached weather payload for one location. Wind speed is
// in knots and precipitation in millimetres.
type Conditions struct {
	Location      geo.Coordinate `json:"location"`
	WindSpeed     float64        `json:"windSpeed"`
	Precipitation float64        `json:"precipitation"`

	// Providers contributing to these conditions. Empty for manual records.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}
