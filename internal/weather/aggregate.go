package weather

import (
	"sort"

	"github.com/i474232898/coastal-conditions/internal/geo"
)

// AggregateReadings combines multiple provider readings into Conditions.
// Numeric fields are averaged; contributions are listed by provider name.
func AggregateReadings(loc geo.Coordinate, readings []ProviderReading) Conditions {
	if len(readings) == 0 {
		return Conditions{Location: loc}
	}

	var (
		sumWind   float64
		sumPrecip float64
	)

	providers := make([]ProviderContribution, 0, len(readings))
	for _, r := range readings {
		sumWind += r.WindSpeedKn
		sumPrecip += r.PrecipitationMm

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp.UTC(),
		})
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].ProviderName < providers[j].ProviderName
	})

	n := float64(len(readings))
	return Conditions{
		Location:      loc,
		WindSpeed:     sumWind / n,
		Precipitation: sumPrecip / n,
		Providers:     providers,
	}
}
