package tide

import (
	"context"
	"time"
)

// Phase is the current trend of the water level.
type Phase string

const (
	PhaseRising  Phase = "rising"
	PhaseFalling Phase = "falling"
	PhaseHigh    Phase = "high"
	PhaseLow     Phase = "low"
)

// Kind marks a sample as a predicted high or low water.
type Kind string

const (
	KindNone Kind = ""
	KindHigh Kind = "H"
	KindLow  Kind = "L"
)

// Sample is one predicted water level.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"height"`
	Kind  Kind      `json:"kind,omitempty"`
}

// Series is a run of samples in ascending time order, as delivered upstream.
type Series []Sample

// Extreme is a predicted high or low water.
type Extreme struct {
	Time   time.Time `json:"time"`
	Height float64   `json:"height"`
}

// Extremes groups the high and low waters of the prediction window.
type Extremes struct {
	High []Extreme `json:"highTides"`
	Low  []Extreme `json:"lowTides"`
}

// Reading is the cached tide payload for one station.
type Reading struct {
	StationID   string   `json:"stationId"`
	StationName string   `json:"stationName,omitempty"`
	Height      float64  `json:"height"`
	Status      Phase    `json:"status"`
	Extremes    Extremes `json:"extremes"`
}

// Source supplies prediction series for a station.
type Source interface {
	// Predictions returns hourly water levels covering today and tomorrow.
	Predictions(ctx context.Context, stationID string) (Series, error)
	// Extremes returns the high/low waters over the same window.
	Extremes(ctx context.Context, stationID string) (Series, error)
}

// SplitExtremes sorts hi/lo samples into highs and lows; unmarked samples are dropped.
func SplitExtremes(series Series) Extremes {
	out := Extremes{High: []Extreme{}, Low: []Extreme{}}
	for _, s := range series {
		switch s.Kind {
		case KindHigh:
			out.High = append(out.High, Extreme{Time: s.Time, Height: s.Value})
		case KindLow:
			out.Low = append(out.Low, Extreme{Time: s.Time, Height: s.Value})
		}
	}
	return out
}
