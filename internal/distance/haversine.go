// Package distance estimates travel between technician and job locations. It is a
// straight-line model corrected by a road factor, not a routing engine.
package distance

import (
	"context"
	"fmt"
	"math"

	"github.com/hvac_dispatch/backend/internal/geocode"
	"github.com/hvac_dispatch/backend/internal/models"
)

const earthRadiusKm = 6371.0

const (
	DefaultAverageSpeedKmh = 40.0
	DefaultRoadFactor      = 1.3
)

type HaversineEstimator struct {
	Geocoder        geocode.Geocoder
	Country         string
	AverageSpeedKmh float64
	RoadFactor      float64
}

func (e *HaversineEstimator) Estimate(ctx context.Context, from, to models.Location) (models.Estimate, error) {
	a, err := e.resolve(ctx, from)
	if err != nil {
		return models.Estimate{}, fmt.Errorf("resolve origin: %w", err)
	}
	b, err := e.resolve(ctx, to)
	if err != nil {
		return models.Estimate{}, fmt.Errorf("resolve destination: %w", err)
	}

	factor := e.RoadFactor
	if factor < 1 {
		factor = DefaultRoadFactor
	}
	speed := e.AverageSpeedKmh
	if speed <= 0 {
		speed = DefaultAverageSpeedKmh
	}
	km := greatCircleKm(a, b) * factor
	return models.Estimate{
		DistanceKm: math.Round(km*10) / 10,
		ETAMinutes: int(math.Ceil(km / speed * 60)),
	}, nil
}

func (e *HaversineEstimator) resolve(ctx context.Context, loc models.Location) (models.Location, error) {
	if loc.HasCoordinates() {
		return loc, nil
	}
	if e.Geocoder == nil {
		return loc, geocode.ErrNotFound
	}
	return geocode.Resolve(ctx, e.Geocoder, e.Country, loc)
}

// greatCircleKm assumes both locations carry coordinates.
func greatCircleKm(a, b models.Location) float64 {
	lat1, lat2 := radians(*a.Lat), radians(*b.Lat)
	dLat := lat2 - lat1
	dLon := radians(*b.Lon - *a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
