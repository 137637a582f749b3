package service

import (
	"math"
	"time"

	"github.com/civiclens/backend/internal/models"
	"github.com/civiclens/backend/internal/utils"
)

const (
	DefaultDuplicateRadiusM     = 100.0
	DefaultDuplicateWindowHours = 72.0
)

type DuplicateParams struct {
	RadiusMeters float64
	WindowHours  float64
}

func (p DuplicateParams) withDefaults() DuplicateParams {
	if p.RadiusMeters <= 0 {
		p.RadiusMeters = DefaultDuplicateRadiusM
	}
	if p.WindowHours <= 0 {
		p.WindowHours = DefaultDuplicateWindowHours
	}
	return p
}

// DuplicateMatch describes the closest unresolved prior report of the
// same type. DistanceMeters and HoursAgo are rounded for display; the
// window filter itself uses exact elapsed time.
type DuplicateMatch struct {
	ReportID       string  `json:"report_id"`
	Title          string  `json:"title"`
	DistanceMeters float64 `json:"distance_meters"`
	HoursAgo       int     `json:"hours_ago"`
}

// FindDuplicate picks the closest candidate within the radius and time
// window. Candidates are expected to be same-type, unresolved reports;
// ones without coordinates or outside the window are skipped here
// regardless. Ties on distance break toward the most recent report.
func FindDuplicate(candidates []models.Report, lat, lng float64, now time.Time, params DuplicateParams) *DuplicateMatch {
	params = params.withDefaults()
	window := time.Duration(params.WindowHours * float64(time.Hour))

	var (
		best        *models.Report
		bestDist    float64
		bestElapsed time.Duration
	)
	for i := range candidates {
		c := &candidates[i]
		if c.Latitude == nil || c.Longitude == nil {
			continue
		}
		elapsed := now.Sub(c.CreatedAt)
		if elapsed < 0 || elapsed > window {
			continue
		}
		dist := utils.HaversineMeters(lat, lng, *c.Latitude, *c.Longitude)
		if dist > params.RadiusMeters {
			continue
		}
		if best == nil || dist < bestDist || (dist == bestDist && elapsed < bestElapsed) {
			best = c
			bestDist = dist
			bestElapsed = elapsed
		}
	}
	if best == nil {
		return nil
	}
	return &DuplicateMatch{
		ReportID:       best.ID,
		Title:          best.Title,
		DistanceMeters: math.Round(bestDist),
		HoursAgo:       int(math.Round(bestElapsed.Hours())),
	}
}
