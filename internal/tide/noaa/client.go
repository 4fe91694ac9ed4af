package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/station"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/upstream"
)

const (
	// DefaultStationsURL lists stations that publish tide predictions.
	DefaultStationsURL = "https://api.tidesandcurrents.noaa.gov/mdapi/prod/webapi/stations.json?type=tidepredictions&units=metric"
	// DefaultDataURL is the CO-OPS data retrieval endpoint.
	DefaultDataURL = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"

	timeLayout = "2006-01-02 15:04"
	dateLayout = "20060102"
)

// Client talks to the NOAA CO-OPS APIs. It implements station.Catalog and
// tide.Source.
type Client struct {
	stationsURL string
	dataURL     string
	upstream    *upstream.Client
	now         func() time.Time
	logger      *zap.Logger
}

// Config configures a Client. Empty URLs fall back to the public endpoints.
type Config struct {
	StationsURL string
	DataURL     string
	Clock       func() time.Time
}

// NewClient creates a NOAA client that issues requests through up.
func NewClient(up *upstream.Client, cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		stationsURL: cfg.StationsURL,
		dataURL:     cfg.DataURL,
		upstream:    up,
		now:         cfg.Clock,
		logger:      logger,
	}
	if c.stationsURL == "" {
		c.stationsURL = DefaultStationsURL
	}
	if c.dataURL == "" {
		c.dataURL = DefaultDataURL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

type stationEntry struct {
	ID   *string  `json:"id"`
	Name *string  `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

// Stations fetches the full tide prediction station catalog. Entries that
// do not decode or lack a field are dropped.
func (c *Client) Stations(ctx context.Context) ([]station.Station, error) {
	var payload struct {
		Stations []json.RawMessage `json:"stations"`
	}
	if err := c.upstream.GetJSON(ctx, c.stationsURL, &payload); err != nil {
		return nil, err
	}
	if payload.Stations == nil {
		return nil, fmt.Errorf("%w: station list missing", upstream.ErrMalformedPayload)
	}

	stations := make([]station.Station, 0, len(payload.Stations))
	dropped := 0
	for _, raw := range payload.Stations {
		var e stationEntry
		if err := json.Unmarshal(raw, &e); err != nil || e.ID == nil || e.Name == nil || e.Lat == nil || e.Lng == nil {
			dropped++
			continue
		}
		stations = append(stations, station.Station{
			ID:       *e.ID,
			Name:     *e.Name,
			Location: geo.Coordinate{Latitude: *e.Lat, Longitude: *e.Lng},
		})
	}

	if dropped > 0 {
		c.logger.Debug("dropped malformed stations", zap.Int("dropped", dropped), zap.Int("kept", len(stations)))
	}
	return stations, nil
}

// Predictions returns hourly predictions from the start of today (UTC)
// through tomorrow.
func (c *Client) Predictions(ctx context.Context, stationID string) (tide.Series, error) {
	return c.series(ctx, stationID, "h")
}

// Extremes returns the high and low waters over the same window as Predictions.
func (c *Client) Extremes(ctx context.Context, stationID string) (tide.Series, error) {
	return c.series(ctx, stationID, "hilo")
}

type predictionsResponse struct {
	Predictions []struct {
		T    string `json:"t"`
		V    string `json:"v"`
		Type string `json:"type"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) series(ctx context.Context, stationID, interval string) (tide.Series, error) {
	if strings.TrimSpace(stationID) == "" {
		return nil, fmt.Errorf("noaa: station id is required")
	}

	today := c.now().UTC()
	tomorrow := today.AddDate(0, 0, 1)

	values := url.Values{}
	values.Set("station", stationID)
	values.Set("begin_date", today.Format(dateLayout))
	values.Set("end_date", tomorrow.Format(dateLayout))
	values.Set("product", "predictions")
	values.Set("datum", "MLLW")
	values.Set("time_zone", "gmt")
	values.Set("interval", interval)
	values.Set("units", "metric")
	values.Set("application", "coastal-conditions")
	values.Set("format", "json")

	var payload predictionsResponse
	if err := c.upstream.GetJSON(ctx, c.dataURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Predictions == nil {
		msg := "predictions missing"
		if payload.Error != nil && payload.Error.Message != "" {
			msg = payload.Error.Message
		}
		return nil, fmt.Errorf("%w: station %s: %s", upstream.ErrMalformedPayload, stationID, msg)
	}

	series := make(tide.Series, 0, len(payload.Predictions))
	for i, p := range payload.Predictions {
		ts, err := time.ParseInLocation(timeLayout, p.T, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: prediction %d time %q", upstream.ErrMalformedPayload, i, p.T)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(p.V), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: prediction %d value %q", upstream.ErrMalformedPayload, i, p.V)
		}
		if n := len(series); n > 0 && !series[n-1].Time.Before(ts) {
			return nil, fmt.Errorf("%w: predictions out of order at %d", upstream.ErrMalformedPayload, i)
		}

		series = append(series, tide.Sample{Time: ts, Value: v, Kind: kindOf(p.Type)})
	}
	return series, nil
}

func kindOf(t string) tide.Kind {
	switch strings.ToUpper(t) {
	case "H", "HH":
		return tide.KindHigh
	case "L", "LL":
		return tide.KindLow
	default:
		return tide.KindNone
	}
}
