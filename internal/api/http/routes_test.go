package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/station"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/upstream"
	"github.com/i474232898/coastal-conditions/internal/weather"
)

var stamp = time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)

type fakeWeather struct {
	err      error
	got      geo.Coordinate
	recorded weather.Conditions
	all      []cache.Record[weather.Conditions]
}

func (f *fakeWeather) record(c geo.Coordinate) cache.Record[weather.Conditions] {
	return cache.Record[weather.Conditions]{
		Key:       c.String(),
		Payload:   weather.Conditions{Location: c, WindSpeed: 11, Precipitation: 0.2},
		Timestamp: stamp,
	}
}

func (f *fakeWeather) GetLatest(ctx context.Context, c geo.Coordinate) (cache.Record[weather.Conditions], error) {
	f.got = c
	if f.err != nil {
		return cache.Record[weather.Conditions]{}, f.err
	}
	return f.record(c), nil
}

func (f *fakeWeather) Refresh(ctx context.Context, c geo.Coordinate) (cache.Record[weather.Conditions], error) {
	return f.GetLatest(ctx, c)
}

func (f *fakeWeather) Record(ctx context.Context, cond weather.Conditions) (cache.Record[weather.Conditions], error) {
	f.recorded = cond
	if f.err != nil {
		return cache.Record[weather.Conditions]{}, f.err
	}
	return cache.Record[weather.Conditions]{Key: cond.Location.String(), Payload: cond, Timestamp: stamp}, nil
}

func (f *fakeWeather) All(ctx context.Context) []cache.Record[weather.Conditions] {
	return f.all
}

type fakeTide struct {
	err      error
	resolved station.Resolved
	target   tide.Target
	stations []string
}

func (f *fakeTide) reading(id string) cache.Record[tide.Reading] {
	return cache.Record[tide.Reading]{
		Key:       id,
		Payload:   tide.Reading{StationID: id, Height: 1.2, Status: tide.PhaseFalling},
		Timestamp: stamp,
	}
}

func (f *fakeTide) Nearest(ctx context.Context, c geo.Coordinate) (station.Resolved, error) {
	return f.resolved, f.err
}

func (f *fakeTide) LatestForStation(ctx context.Context, id string) (cache.Record[tide.Reading], error) {
	f.stations = append(f.stations, id)
	if f.err != nil {
		return cache.Record[tide.Reading]{}, f.err
	}
	return f.reading(id), nil
}

func (f *fakeTide) LatestAt(ctx context.Context, c geo.Coordinate) (station.Resolved, cache.Record[tide.Reading], error) {
	if f.err != nil {
		return f.resolved, cache.Record[tide.Reading]{}, f.err
	}
	return f.resolved, f.reading(f.resolved.ID), nil
}

func (f *fakeTide) Refresh(ctx context.Context, target tide.Target) (cache.Record[tide.Reading], error) {
	f.target = target
	if f.err != nil {
		return cache.Record[tide.Reading]{}, f.err
	}
	id := target.StationID
	if id == "" {
		id = f.resolved.ID
	}
	return f.reading(id), nil
}

func (f *fakeTide) All(ctx context.Context) []cache.Record[tide.Reading] {
	return []cache.Record[tide.Reading]{f.reading("9414290"), f.reading("9414750")}
}

func newApp(t *testing.T, w *fakeWeather, td *fakeTide) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, w, td, zaptest.NewLogger(t))
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestWeatherCoordinateValidation(t *testing.T) {
	app := newApp(t, &fakeWeather{}, &fakeTide{})

	for _, target := range []string{
		"/api/v1/weather",
		"/api/v1/weather?lat=37.8",
		"/api/v1/weather?lat=91&lon=0",
		"/api/v1/weather?lat=0&lon=-181",
		"/api/v1/weather?lat=north&lon=0",
	} {
		status, body := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, status, target)
		assert.Equal(t, true, body["error"], target)
	}
}

func TestWeatherGet(t *testing.T) {
	w := &fakeWeather{}
	app := newApp(t, w, &fakeTide{})

	status, body := do(t, app, http.MethodGet, "/api/v1/weather?lat=37.6138&lon=-122.4869", "")
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, geo.Coordinate{Latitude: 37.6138, Longitude: -122.4869}, w.got)
	assert.Equal(t, "37.6138|-122.4869", body["key"])
	assert.Equal(t, 11.0, body["windSpeed"])
	assert.Equal(t, 0.2, body["precipitation"])
	assert.Equal(t, "2024-07-04T12:00:00Z", body["timestamp"])
}

func TestWeatherErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: %w", cache.ErrNoData, upstream.ErrUnavailable), http.StatusNotFound},
		{fmt.Errorf("%w: disk full", cache.ErrPersistFailed), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: openmeteo", upstream.ErrUnavailable), http.StatusBadGateway},
		{weather.ErrNoProviders, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{geo.ErrInvalidCoordinate, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newApp(t, &fakeWeather{err: tc.err}, &fakeTide{})
			status, body := do(t, app, http.MethodPost, "/api/v1/weather/refresh?lat=1&lon=2", "")
			assert.Equal(t, tc.status, status)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestWeatherRecord(t *testing.T) {
	w := &fakeWeather{}
	app := newApp(t, w, &fakeTide{})

	status, body := do(t, app, http.MethodPost, "/api/v1/weather/records",
		`{"lat": 37.5, "lon": -122.5, "windSpeed": 14.5, "precipitation": 0}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, weather.Conditions{
		Location:      geo.Coordinate{Latitude: 37.5, Longitude: -122.5},
		WindSpeed:     14.5,
		Precipitation: 0,
	}, w.recorded)
	assert.Equal(t, "37.5|-122.5", body["key"])

	for _, payload := range []string{
		`{"lat": 37.5, "lon": -122.5, "windSpeed": 14.5}`,
		`{"lat": 37.5, "lon": -122.5, "windSpeed": -1, "precipitation": 0}`,
		`{"lat": 95, "lon": -122.5, "windSpeed": 1, "precipitation": 0}`,
		`not json`,
	} {
		status, _ := do(t, app, http.MethodPost, "/api/v1/weather/records", payload)
		assert.Equal(t, http.StatusBadRequest, status, payload)
	}
}

func TestWeatherAll(t *testing.T) {
	w := &fakeWeather{}
	app := newApp(t, w, &fakeTide{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/all", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out, "an empty cache lists as []")
}

func TestTideByStation(t *testing.T) {
	td := &fakeTide{}
	app := newApp(t, &fakeWeather{}, td)

	status, body := do(t, app, http.MethodGet, "/api/v1/tide?station_id=9414290", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"9414290"}, td.stations)
	assert.Equal(t, "9414290", body["stationId"])
	assert.Equal(t, "falling", body["status"])
	assert.NotContains(t, body, "distanceKm")
}

func TestTideByCoordinate(t *testing.T) {
	td := &fakeTide{resolved: station.Resolved{
		Station:    station.Station{ID: "9414290", Name: "San Francisco"},
		DistanceKm: 1.6,
	}}
	app := newApp(t, &fakeWeather{}, td)

	status, body := do(t, app, http.MethodGet, "/api/v1/tide?lat=37.8&lon=-122.45", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "San Francisco", body["stationName"])
	assert.Equal(t, 1.6, body["distanceKm"])
}

func TestTideRequiresTarget(t *testing.T) {
	app := newApp(t, &fakeWeather{}, &fakeTide{})

	for _, target := range []string{"/api/v1/tide", "/api/v1/tide?lat=37.8", "/api/v1/tide?station_id=94-14"} {
		status, _ := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, status, target)
	}
}

func TestTideNoUsableStation(t *testing.T) {
	td := &fakeTide{err: fmt.Errorf("%w: %w", cache.ErrNoData, tide.ErrNoUsableStation)}
	app := newApp(t, &fakeWeather{}, td)

	status, body := do(t, app, http.MethodGet, "/api/v1/tide?lat=0&lon=0", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["message"], "no tide station within range")
}

func TestTideRefresh(t *testing.T) {
	td := &fakeTide{resolved: station.Resolved{Station: station.Station{ID: "9414750"}}}
	app := newApp(t, &fakeWeather{}, td)

	status, body := do(t, app, http.MethodPost, "/api/v1/tide/refresh?lat=37.77&lon=-122.3", "")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, td.target.Coordinate)
	assert.Equal(t, 37.77, td.target.Coordinate.Latitude)
	assert.Equal(t, "9414750", body["stationId"])

	td.err = fmt.Errorf("%w: noaa", upstream.ErrUnavailable)
	status, _ = do(t, app, http.MethodPost, "/api/v1/tide/refresh?station_id=9414290", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "9414290", td.target.StationID)
}

func TestTideAll(t *testing.T) {
	app := newApp(t, &fakeWeather{}, &fakeTide{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tide/all", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "9414290", out[0]["stationId"])
}

func TestNearestStation(t *testing.T) {
	td := &fakeTide{
		resolved: station.Resolved{Station: station.Station{ID: "1617760", Name: "Hilo"}, DistanceKm: 3800},
		err:      tide.ErrNoUsableStation,
	}
	app := newApp(t, &fakeWeather{}, td)

	status, body := do(t, app, http.MethodGet, "/api/v1/stations/nearest?lat=37.8&lon=-122.45", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["usable"])
	assert.Equal(t, 3800.0, body["distanceKm"])

	td.err = fmt.Errorf("%w: noaa", upstream.ErrUnavailable)
	status, _ = do(t, app, http.MethodGet, "/api/v1/stations/nearest?lat=37.8&lon=-122.45", "")
	assert.Equal(t, http.StatusBadGateway, status)
}
