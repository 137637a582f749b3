package geocode

import (
	"context"
	"errors"

	"github.com/civiclens/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

// Geocoder resolves coordinates to a human-readable address. Used as a
// best-effort fill during submission; failures never block a report.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat float64, lon float64) (address string, municipality string, err error)
}

// ShouldGeocode reports whether a report needs an address lookup:
// coordinates present, address missing.
func ShouldGeocode(r models.Report) bool {
	if r.Latitude == nil || r.Longitude == nil {
		return false
	}
	return r.Address == nil || *r.Address == ""
}
