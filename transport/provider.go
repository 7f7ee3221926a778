package transport

import (
	"context"
	"errors"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
)

// =============================================================================
// PROVIDERS - Where cache misses are resolved
// =============================================================================

// RouteQuery is a single origin/destination lookup.
type RouteQuery struct {
	Origin      planning.Address
	Destination planning.Address
	Mode        Mode
}

// Provider resolves a route. Implementations return ErrDistanceUnavailable
// (possibly wrapped) when the route cannot be resolved.
type Provider interface {
	Route(ctx context.Context, q RouteQuery) (Entry, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, q RouteQuery) (Entry, error)

func (f ProviderFunc) Route(ctx context.Context, q RouteQuery) (Entry, error) { return f(ctx, q) }

// -----------------------------------------------------------------------------
// Google Distance Matrix
// -----------------------------------------------------------------------------

// MapsProvider queries the Google Distance Matrix API.
type MapsProvider struct {
	client *maps.Client
}

// NewMapsProvider builds a provider. baseURL may be empty to use Google's.
func NewMapsProvider(apiKey, baseURL string) (*MapsProvider, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsProvider{client: client}, nil
}

func (p *MapsProvider) Route(ctx context.Context, q RouteQuery) (Entry, error) {
	resp, err := p.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{q.Origin.FullAddress},
		Destinations: []string{q.Destination.FullAddress},
		Mode:         maps.Mode(q.Mode),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", generic.ErrDistanceUnavailable, err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Entry{}, fmt.Errorf("%w: empty response", generic.ErrDistanceUnavailable)
	}
	el := resp.Rows[0].Elements[0]
	if el == nil || el.Status != "OK" {
		return Entry{}, fmt.Errorf("%w: element status not OK", generic.ErrDistanceUnavailable)
	}
	return Entry{
		Distance: int64(el.Distance.Meters),
		Duration: int64(el.Duration.Seconds()),
	}, nil
}

// -----------------------------------------------------------------------------
// Straight-line estimate
// -----------------------------------------------------------------------------

// EstimateProvider estimates a route from the addresses' coordinates:
// haversine distance stretched by a detour factor, at a mode-specific speed.
type EstimateProvider struct {
	DetourFactor float64
	DrivingKmh   float64
	TransitKmh   float64
}

func NewEstimateProvider() *EstimateProvider {
	return &EstimateProvider{DetourFactor: 1.3, DrivingKmh: 30, TransitKmh: 18}
}

func (p *EstimateProvider) Route(_ context.Context, q RouteQuery) (Entry, error) {
	if !q.Origin.HasCoordinates() || !q.Destination.HasCoordinates() {
		return Entry{}, fmt.Errorf("%w: missing coordinates", generic.ErrDistanceUnavailable)
	}
	speed := p.DrivingKmh
	if q.Mode == ModeTransit {
		speed = p.TransitKmh
	}
	if speed <= 0 {
		return Entry{}, fmt.Errorf("%w: no speed for mode %s", generic.ErrDistanceUnavailable, q.Mode)
	}

	meters := HaversineDistance(q.Origin.Lat, q.Origin.Lng, q.Destination.Lat, q.Destination.Lng) * p.DetourFactor
	seconds := meters / 1000 / speed * 3600
	return Entry{Distance: int64(math.Round(meters)), Duration: int64(math.Round(seconds))}, nil
}

// HaversineDistance returns the great-circle distance between two coordinates in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000

	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLon := (lon2 - lon1) * (math.Pi / 180.0)
	lat1Rad := lat1 * (math.Pi / 180.0)
	lat2Rad := lat2 * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// -----------------------------------------------------------------------------
// Chain
// -----------------------------------------------------------------------------

// Chain tries providers in order and returns the first success.
type Chain []Provider

func (c Chain) Route(ctx context.Context, q RouteQuery) (Entry, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		e, err := p.Route(ctx, q)
		if err == nil {
			return e, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Entry{}, generic.ErrDistanceUnavailable
	}
	return Entry{}, errors.Join(errs...)
}
