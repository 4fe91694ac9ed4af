package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	// Upstream HTTP behaviour.
	HTTPTimeout        time.Duration `validate:"gt=0"`
	RefreshTimeout     time.Duration `validate:"gt=0"`
	UpstreamMaxRetries int           `validate:"gte=0,lte=10"`
	UpstreamRateLimit  float64       `validate:"gte=0"`

	// Freshness windows. They can not exceed the 24h retention horizon.
	WeatherTTL time.Duration `validate:"gt=0,lte=24h"`
	TideTTL    time.Duration `validate:"gt=0,lte=24h"`

	// WeatherKeyPrecision quantizes weather keys to a geohash of this
	// length; 0 keeps exact coordinate keys.
	WeatherKeyPrecision uint `validate:"lte=12"`

	StoreDriver     string `validate:"oneof=sqlite postgres memory"`
	SQLitePath      string `validate:"required_if=StoreDriver sqlite"`
	DatabaseURL     string `validate:"required_if=StoreDriver postgres"`
	StoreMaxHistory int    `validate:"gte=0"` // max records per key (0 = unlimited)

	OpenWeatherAPIKey string
	WeatherAPIKey     string

	OpenMeteoURL    string `validate:"omitempty,url"`
	NOAAStationsURL string `validate:"omitempty,url"`
	NOAADataURL     string `validate:"omitempty,url"`
}

// Load reads configuration from environment (and an optional .env file)
// with sensible defaults, then validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		StoreDriver:       getenvDefault("STORE_DRIVER", "sqlite"),
		SQLitePath:        getenvDefault("SQLITE_PATH", "./data/coastal.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		OpenMeteoURL:      os.Getenv("OPENMETEO_URL"),
		NOAAStationsURL:   os.Getenv("NOAA_STATIONS_URL"),
		NOAADataURL:       os.Getenv("NOAA_DATA_URL"),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getenvDuration("REFRESH_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherTTL, err = getenvDuration("WEATHER_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TideTTL, err = getenvDuration("TIDE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.UpstreamMaxRetries, err = getenvInt("UPSTREAM_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 0); err != nil {
		return nil, err
	}

	precision, err := getenvInt("WEATHER_KEY_PRECISION", 0)
	if err != nil {
		return nil, err
	}
	if precision < 0 {
		return nil, fmt.Errorf("invalid WEATHER_KEY_PRECISION: must not be negative")
	}
	cfg.WeatherKeyPrecision = uint(precision)

	rateStr := getenvDefault("UPSTREAM_RATE_LIMIT", "5")
	if cfg.UpstreamRateLimit, err = strconv.ParseFloat(rateStr, 64); err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_RATE_LIMIT: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
