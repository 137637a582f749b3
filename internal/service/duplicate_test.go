package service

import (
	"testing"
	"time"

	"github.com/civiclens/backend/internal/models"
)

func ptr[T any](v T) *T { return &v }

func candidate(id string, lat, lng float64, createdAt time.Time) models.Report {
	return models.Report{
		ID:        id,
		Title:     "report " + id,
		Latitude:  &lat,
		Longitude: &lng,
		CreatedAt: createdAt,
	}
}

func TestFindDuplicateNearbyRecentMatch(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// ~10m north of the query point.
	candidates := []models.Report{
		candidate("a", 43.23009, 76.85, now.Add(-1*time.Hour)),
	}

	match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{})
	if match == nil {
		t.Fatal("expected a duplicate match")
	}
	if match.ReportID != "a" {
		t.Fatalf("expected report a, got %s", match.ReportID)
	}
	if match.DistanceMeters < 5 || match.DistanceMeters > 15 {
		t.Fatalf("expected ~10m distance, got %f", match.DistanceMeters)
	}
	if match.HoursAgo != 1 {
		t.Fatalf("expected 1 hour ago, got %d", match.HoursAgo)
	}
}

func TestFindDuplicateOutsideRadius(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// ~1.1km away.
	candidates := []models.Report{
		candidate("a", 43.24, 76.85, now.Add(-1*time.Hour)),
	}
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{}); match != nil {
		t.Fatalf("expected no match outside radius, got %+v", match)
	}
}

func TestFindDuplicateOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	candidates := []models.Report{
		candidate("old", 43.23, 76.85, now.Add(-73*time.Hour)),
	}
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{}); match != nil {
		t.Fatalf("expected no match outside window, got %+v", match)
	}

	candidates[0].CreatedAt = now.Add(-71 * time.Hour)
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{}); match == nil {
		t.Fatal("expected a match just inside the window")
	}
}

func TestFindDuplicatePicksClosest(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	candidates := []models.Report{
		candidate("far", 43.2306, 76.85, now.Add(-2*time.Hour)),
		candidate("near", 43.2302, 76.85, now.Add(-5*time.Hour)),
	}
	match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{})
	if match == nil || match.ReportID != "near" {
		t.Fatalf("expected nearest candidate, got %+v", match)
	}
}

func TestFindDuplicateTieBreaksTowardNewest(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// Same coordinates, so identical distance.
	candidates := []models.Report{
		candidate("older", 43.2301, 76.85, now.Add(-10*time.Hour)),
		candidate("newer", 43.2301, 76.85, now.Add(-2*time.Hour)),
	}
	match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{})
	if match == nil || match.ReportID != "newer" {
		t.Fatalf("expected newest candidate on distance tie, got %+v", match)
	}
}

func TestFindDuplicateSkipsMissingCoordinates(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	candidates := []models.Report{
		{ID: "nocoords", Title: "no coords", CreatedAt: now.Add(-1 * time.Hour)},
	}
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{}); match != nil {
		t.Fatalf("expected candidates without coordinates to be skipped, got %+v", match)
	}
}

func TestFindDuplicateCustomParams(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// ~33m away, 3h old.
	candidates := []models.Report{
		candidate("a", 43.2303, 76.85, now.Add(-3*time.Hour)),
	}
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{RadiusMeters: 20, WindowHours: 72}); match != nil {
		t.Fatalf("expected no match with tightened radius, got %+v", match)
	}
	if match := FindDuplicate(candidates, 43.23, 76.85, now, DuplicateParams{RadiusMeters: 100, WindowHours: 2}); match != nil {
		t.Fatalf("expected no match with tightened window, got %+v", match)
	}
}
