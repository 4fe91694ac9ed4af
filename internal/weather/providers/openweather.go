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

const (
	// DefaultOpenWeatherURL is the OpenWeatherMap current weather endpoint.
	DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

	knotsPerMetrePerSecond = 1.943844
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	name     string
	apiKey   string
	baseURL  string
	upstream *upstream.Client
}

func NewOpenWeatherProvider(up *upstream.Client, baseURL, apiKey string) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherProvider{
		name:     "openweathermap",
		apiKey:   apiKey,
		baseURL:  baseURL,
		upstream: up,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Current(ctx context.Context, c geo.Coordinate) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("openweather api key is not configured")
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", geo.FormatDegrees(c.Latitude))
	values.Set("lon", geo.FormatDegrees(c.Longitude))

	var payload struct {
		Dt   int64 `json:"dt"`
		Wind *struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Rain struct {
			OneH   float64 `json:"1h"`
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
	}
	if err := p.upstream.GetJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Wind == nil {
		return weather.ProviderReading{}, fmt.Errorf("%w: openweather wind missing", upstream.ErrMalformedPayload)
	}

	ts := time.Now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	// A missing rain block means no rain.
	precip := payload.Rain.OneH
	if precip == 0 {
		precip = payload.Rain.ThreeH / 3
	}

	return weather.ProviderReading{
		ProviderName:    p.name,
		Timestamp:       ts,
		WindSpeedKn:     payload.Wind.Speed * knotsPerMetrePerSecond,
		PrecipitationMm: precip,
	}, nil
}
