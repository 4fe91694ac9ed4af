package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/upstream"
	"github.com/i474232898/coastal-conditions/internal/weather"
)

// DefaultOpenMeteoURL is the public Open-Meteo forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key and is always enabled.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	upstream *upstream.Client
}

func NewOpenMeteoProvider(up *upstream.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		name:     "openmeteo",
		baseURL:  baseURL,
		upstream: up,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Current(ctx context.Context, c geo.Coordinate) (weather.ProviderReading, error) {
	values := url.Values{}
	values.Set("latitude", geo.FormatDegrees(c.Latitude))
	values.Set("longitude", geo.FormatDegrees(c.Longitude))
	values.Set("current", "wind_speed_10m,precipitation")
	values.Set("wind_speed_unit", "kn")
	values.Set("precipitation_unit", "mm")
	values.Set("timeformat", "unixtime")

	var payload struct {
		Current *struct {
			Time          int64    `json:"time"`
			WindSpeed     *float64 `json:"wind_speed_10m"`
			Precipitation *float64 `json:"precipitation"`
		} `json:"current"`
	}
	if err := p.upstream.GetJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.ProviderReading{}, err
	}

	cur := payload.Current
	if cur == nil || cur.WindSpeed == nil || cur.Precipitation == nil {
		return weather.ProviderReading{}, fmt.Errorf("%w: openmeteo current conditions incomplete", upstream.ErrMalformedPayload)
	}

	ts := time.Now().UTC()
	if cur.Time > 0 {
		ts = time.Unix(cur.Time, 0).UTC()
	}

	return weather.ProviderReading{
		ProviderName:    p.name,
		Timestamp:       ts,
		WindSpeedKn:     *cur.WindSpeed,
		PrecipitationMm: *cur.Precipitation,
	}, nil
}
