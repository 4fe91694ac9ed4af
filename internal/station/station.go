package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/coastal-conditions/internal/geo"
	"github.com/i474232898/coastal-conditions/internal/upstream"
)

// MaxUsableDistanceKm is the furthest a resolved station may be from the
// requested point and still be used for tide readings.
const MaxUsableDistanceKm = 100.0

var (
	// ErrEmptyCatalog is returned when the catalog has no valid stations.
	ErrEmptyCatalog = errors.New("no valid stations in catalog")
)

// Station is a fixed-location upstream data source.
type Station struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location geo.Coordinate `json:"location"`
}

// Valid reports whether the station has an id, a name and a usable location.
func (s Station) Valid() bool {
	return s.ID != "" && s.Name != "" && s.Location.Validate() == nil
}

// Resolved is a station together with its distance from the query point.
type Resolved struct {
	Station
	DistanceKm float64 `json:"distanceKm"`
}

// Usable reports whether the station is close enough to serve readings.
func (r Resolved) Usable() bool {
	return r.DistanceKm <= MaxUsableDistanceKm
}

// Catalog supplies the full list of stations.
type Catalog interface {
	Stations(ctx context.Context) ([]Station, error)
}

// ResolveNearest returns the station in catalog closest to target.
// Invalid entries are skipped; among equally distant stations the first one
// in catalog order wins.
func ResolveNearest(catalog []Station, target geo.Coordinate) (Resolved, error) {
	var (
		best  Resolved
		found bool
	)

	for _, s := range catalog {
		if !s.Valid() {
			continue
		}
		d := geo.Distance(target, s.Location)
		if !found || d < best.DistanceKm {
			best = Resolved{Station: s, DistanceKm: d}
			found = true
		}
	}

	if !found {
		return Resolved{}, ErrEmptyCatalog
	}
	return best, nil
}

// Resolver looks up the nearest station, fetching the catalog on every call.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a Resolver backed by catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Nearest fetches the catalog and resolves the station closest to target.
func (r *Resolver) Nearest(ctx context.Context, target geo.Coordinate) (Resolved, error) {
	if err := target.Validate(); err != nil {
		return Resolved{}, err
	}

	stations, err := r.catalog.Stations(ctx)
	if err != nil {
		if errors.Is(err, upstream.ErrUnavailable) || errors.Is(err, upstream.ErrMalformedPayload) {
			return Resolved{}, fmt.Errorf("fetch station catalog: %w", err)
		}
		return Resolved{}, fmt.Errorf("fetch station catalog: %w: %v", upstream.ErrUnavailable, err)
	}

	return ResolveNearest(stations, target)
}
