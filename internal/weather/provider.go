package weather

import (
	"context"
	"time"

	"github.com/i474232898/coastal-conditions/internal/geo"
)

// ProviderReading represents a single provider's normalized reading
// that can be aggregated into Conditions.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	WindSpeedKn     float64
	PrecipitationMm float64
}

// Provider abstracts a weather data source (e.g. Open-Meteo, OpenWeatherMap, WeatherAPI).
type Provider interface {
	Name() string
	Current(ctx context.Context, c geo.Coordinate) (ProviderReading, error)
}
