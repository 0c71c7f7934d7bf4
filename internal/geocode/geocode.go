package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/hvac_dispatch/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Confidence  float64
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

func BuildGeocodeQuery(country string, region string, address string) string {
	parts := []string{}
	for _, p := range []string{country, region, address} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// NeedsGeocode reports whether loc lacks coordinates but has something to look up.
func NeedsGeocode(loc models.Location) bool {
	if loc.HasCoordinates() {
		return false
	}
	return strings.TrimSpace(loc.Region) != "" || strings.TrimSpace(loc.Address) != ""
}

// Resolve returns loc with coordinates filled in, geocoding when needed.
func Resolve(ctx context.Context, g Geocoder, country string, loc models.Location) (models.Location, error) {
	if loc.HasCoordinates() {
		return loc, nil
	}
	if !NeedsGeocode(loc) {
		return loc, ErrNotFound
	}
	res, err := g.Geocode(ctx, BuildGeocodeQuery(country, loc.Region, loc.Address))
	if err != nil {
		return loc, err
	}
	lat, lon := res.Lat, res.Lon
	loc.Lat, loc.Lon = &lat, &lon
	return loc, nil
}
