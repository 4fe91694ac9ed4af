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
	// DefaultWeatherAPIURL is the WeatherAPI.com current conditions endpoint.
	DefaultWeatherAPIURL = "https://api.weatherapi.com/v1/current.json"

	kphPerKnot = 1.852
)

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	name     string
	apiKey   string
	baseURL  string
	upstream *upstream.Client
}

func NewWeatherAPIProvider(up *upstream.Client, baseURL, apiKey string) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = DefaultWeatherAPIURL
	}
	return &WeatherAPIProvider{
		name:     "weatherapi",
		apiKey:   apiKey,
		baseURL:  baseURL,
		upstream: up,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Current(ctx context.Context, c geo.Coordinate) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("weatherapi api key is not configured")
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", geo.FormatDegrees(c.Latitude)+","+geo.FormatDegrees(c.Longitude))

	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			WindKph          *float64 `json:"wind_kph"`
			PrecipMm         *float64 `json:"precip_mm"`
		} `json:"current"`
	}
	if err := p.upstream.GetJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.ProviderReading{}, err
	}

	cur := payload.Current
	if cur == nil || cur.WindKph == nil || cur.PrecipMm == nil {
		return weather.ProviderReading{}, fmt.Errorf("%w: weatherapi current conditions incomplete", upstream.ErrMalformedPayload)
	}

	ts := time.Now().UTC()
	if cur.LastUpdatedEpoch > 0 {
		ts = time.Unix(cur.LastUpdatedEpoch, 0).UTC()
	}

	return weather.ProviderReading{
		ProviderName:    p.name,
		Timestamp:       ts,
		WindSpeedKn:     *cur.WindKph / kphPerKnot,
		PrecipitationMm: *cur.PrecipMm,
	}, nil
}
