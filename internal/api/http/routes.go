package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/coastal-conditions/internal/cache"
	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/station"
	"github.com/i474232898/coastal-conditions/internal/tide"
	"github.com/i474232898/coastal-conditions/internal/upstream"
	"github.com/i474232898/coastal-conditions/internal/weather"
)

var validate = validator.New()

// WeatherService is the weather API the routes depend on.
type WeatherService interface {
	GetLatest(ctx context.Context, c geo.Coordinate) (cache.Record[weather.Conditions], error)
	Refresh(ctx context.Context, c geo.Coordinate) (cache.Record[weather.Conditions], error)
	Record(ctx context.Context, cond weather.Conditions) (cache.Record[weather.Conditions], error)
	All(ctx context.Context) []cache.Record[weather.Conditions]
}

// TideService is the tide API the routes depend on.
type TideService interface {
	Nearest(ctx context.Context, c geo.Coordinate) (station.Resolved, error)
	LatestForStation(ctx context.Context, stationID string) (cache.Record[tide.Reading], error)
	LatestAt(ctx context.Context, c geo.Coordinate) (station.Resolved, cache.Record[tide.Reading], error)
	Refresh(ctx context.Context, target tide.Target) (cache.Record[tide.Reading], error)
	All(ctx context.Context) []cache.Record[tide.Reading]
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Centralized error response
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, weatherSvc WeatherService, tideSvc TideService, logger *zap.Logger) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		loc, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := weatherSvc.GetLatest(c.UserContext(), loc)
		if err != nil {
			return toHTTPError(logger, err)
		}
		return c.JSON(newWeatherResponse(rec))
	})

	v1.Post("/weather/refresh", func(c *fiber.Ctx) error {
		loc, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := weatherSvc.Refresh(c.UserContext(), loc)
		if err != nil {
			return toHTTPError(logger, err)
		}
		return c.JSON(newWeatherResponse(rec))
	})

	v1.Get("/weather/all", func(c *fiber.Ctx) error {
		recs := weatherSvc.All(c.UserContext())
		out := make([]weatherResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, newWeatherResponse(rec))
		}
		return c.JSON(out)
	})

	v1.Post("/weather/records", func(c *fiber.Ctx) error {
		var req weatherRecordRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := weatherSvc.Record(c.UserContext(), weather.Conditions{
			Location:      geo.Coordinate{Latitude: *req.Lat, Longitude: *req.Lon},
			WindSpeed:     *req.WindSpeed,
			Precipitation: *req.Precipitation,
		})
		if err != nil {
			return toHTTPError(logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(newWeatherResponse(rec))
	})

	v1.Get("/tide", func(c *fiber.Ctx) error {
		target, err := parseTideQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if target.StationID != "" {
			rec, err := tideSvc.LatestForStation(c.UserContext(), target.StationID)
			if err != nil {
				return toHTTPError(logger, err)
			}
			return c.JSON(newTideResponse(rec, nil))
		}

		resolved, rec, err := tideSvc.LatestAt(c.UserContext(), *target.Coordinate)
		if err != nil {
			return toHTTPError(logger, err)
		}
		return c.JSON(newTideResponse(rec, &resolved))
	})

	v1.Post("/tide/refresh", func(c *fiber.Ctx) error {
		target, err := parseTideQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := tideSvc.Refresh(c.UserContext(), target)
		if err != nil {
			return toHTTPError(logger, err)
		}
		return c.JSON(newTideResponse(rec, nil))
	})

	v1.Get("/tide/all", func(c *fiber.Ctx) error {
		recs := tideSvc.All(c.UserContext())
		out := make([]tideResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, newTideResponse(rec, nil))
		}
		return c.JSON(out)
	})

	v1.Get("/stations/nearest", func(c *fiber.Ctx) error {
		loc, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resolved, err := tideSvc.Nearest(c.UserContext(), loc)
		if err != nil && !errors.Is(err, tide.ErrNoUsableStation) {
			return toHTTPError(logger, err)
		}
		return c.JSON(fiber.Map{
			"station":    resolved.Station,
			"distanceKm": resolved.DistanceKm,
			"usable":     resolved.Usable(),
		})
	})
}

// toHTTPError maps domain errors onto status codes.
func toHTTPError(logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, tide.ErrNoTarget):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, cache.ErrNoData), errors.Is(err, tide.ErrNoUsableStation):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, cache.ErrPersistFailed):
		logger.Error("storage unavailable", zap.Error(err))
		return fiber.NewError(fiber.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, upstream.ErrUnavailable),
		errors.Is(err, upstream.ErrMalformedPayload),
		errors.Is(err, station.ErrEmptyCatalog),
		errors.Is(err, tide.ErrNoPredictions),
		errors.Is(err, weather.ErrNoProviders):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled request error", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

// coordinateQuery holds the lat/lon query parameters.
type coordinateQuery struct {
	Lat string `validate:"required,latitude"`
	Lon string `validate:"required,longitude"`
}

func parseCoordinateQuery(c *fiber.Ctx) (geo.Coordinate, error) {
	q := coordinateQuery{
		Lat: c.Query("lat"),
		Lon: c.Query("lon"),
	}
	if err := validate.Struct(q); err != nil {
		return geo.Coordinate{}, err
	}

	lat, err := strconv.ParseFloat(q.Lat, 64)
	if err != nil {
		return geo.Coordinate{}, err
	}
	lon, err := strconv.ParseFloat(q.Lon, 64)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.Coordinate{Latitude: lat, Longitude: lon}, nil
}

// tideQuery selects a station directly or by coordinate.
type tideQuery struct {
	StationID string `validate:"omitempty,alphanum,max=32"`
	Lat       string `validate:"omitempty,latitude"`
	Lon       string `validate:"omitempty,longitude"`
}

func parseTideQuery(c *fiber.Ctx) (tide.Target, error) {
	q := tideQuery{
		StationID: c.Query("station_id"),
		Lat:       c.Query("lat"),
		Lon:       c.Query("lon"),
	}
	if err := validate.Struct(q); err != nil {
		return tide.Target{}, err
	}
	if q.StationID != "" {
		return tide.Target{StationID: q.StationID}, nil
	}
	if q.Lat == "" || q.Lon == "" {
		return tide.Target{}, tide.ErrNoTarget
	}

	loc, err := parseCoordinateQuery(c)
	if err != nil {
		return tide.Target{}, err
	}
	return tide.Target{Coordinate: &loc}, nil
}

// weatherRecordRequest is the body of a manual weather record.
type weatherRecordRequest struct {
	Lat           *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon           *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	WindSpeed     *float64 `json:"windSpeed" validate:"required,gte=0"`
	Precipitation *float64 `json:"precipitation" validate:"required,gte=0"`
}

type weatherResponse struct {
	Key string `json:"key"`
	weather.Conditions
	Timestamp time.Time `json:"timestamp"`
}

func newWeatherResponse(rec cache.Record[weather.Conditions]) weatherResponse {
	return weatherResponse{
		Key:        rec.Key,
		Conditions: rec.Payload,
		Timestamp:  rec.Timestamp,
	}
}

type tideResponse struct {
	tide.Reading
	DistanceKm *float64  `json:"distanceKm,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newTideResponse(rec cache.Record[tide.Reading], resolved *station.Resolved) tideResponse {
	out := tideResponse{
		Reading:   rec.Payload,
		Timestamp: rec.Timestamp,
	}
	if resolved != nil {
		d := resolved.DistanceKm
		out.DistanceKm = &d
		if out.StationName == "" {
			out.StationName = resolved.Name
		}
	}
	return out
}
