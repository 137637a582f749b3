package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/backend/internal/ai"
	"github.com/civiclens/backend/internal/models"
)

type fakeSubmissionStore struct {
	candidates []models.Report
	rules      []models.PriorityRule
	configs    map[models.Priority]models.SLAConfig
	created    []*models.Report
	audits     []models.AuditLogEntry
}

func (s *fakeSubmissionStore) DuplicateCandidates(ctx context.Context, issueType models.IssueType, since time.Time) ([]models.Report, error) {
	return s.candidates, nil
}

func (s *fakeSubmissionStore) PriorityRules(ctx context.Context) ([]models.PriorityRule, error) {
	return s.rules, nil
}

func (s *fakeSubmissionStore) SLAConfigs(ctx context.Context) (map[models.Priority]models.SLAConfig, error) {
	return s.configs, nil
}

func (s *fakeSubmissionStore) CreateReport(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error {
	s.created = append(s.created, r)
	s.audits = append(s.audits, audit)
	return nil
}

type stubClassifier struct {
	classification ai.Classification
	err            error
}

func (c stubClassifier) Classify(ctx context.Context, r models.Report) (ai.Classification, int64, error) {
	return c.classification, 5, c.err
}

var submitNow = time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

func newSubmissionFixture(store *fakeSubmissionStore, classifier ai.Classifier) *SubmissionService {
	limiterStore := &mapRateLimitStore{recs: make(map[string]*models.RateLimitRecord), now: submitNow}
	limiter := NewRateLimiter(limiterStore)
	limiter.Now = func() time.Time { return submitNow }

	svc := NewSubmissionService(store, limiter, classifier, zerolog.Nop())
	svc.Now = func() time.Time { return submitNow }
	svc.NewID = func() string { return "new-report" }
	return svc
}

func defaultSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{
		rules: []models.PriorityRule{
			{FactorType: FactorIssueType, FactorValue: "streetlight", Weight: 0.8, Active: true},
			{FactorType: FactorIssueType, FactorValue: "pothole", Weight: 0.65, Active: true},
		},
		configs: map[models.Priority]models.SLAConfig{
			models.PriorityCritical: {Priority: models.PriorityCritical, ResolutionTimeHours: 24, EscalationLevel1Hours: 12, EscalationLevel2Hours: 18, Active: true},
			models.PriorityHigh:     {Priority: models.PriorityHigh, ResolutionTimeHours: 72, EscalationLevel1Hours: 24, EscalationLevel2Hours: 48, Active: true},
			models.PriorityMedium:   {Priority: models.PriorityMedium, ResolutionTimeHours: 168, EscalationLevel1Hours: 72, EscalationLevel2Hours: 120, Active: true},
		},
	}
}

func TestSubmitFullPipeline(t *testing.T) {
	store := defaultSubmissionStore()
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssuePothole, Confidence: 1.0},
	})

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssuePothole,
		Title:       "deep pothole",
		Description: "axle-breaking hole near the crosswalk",
		Latitude:    ptr(43.23),
		Longitude:   ptr(76.85),
		SubmitterID: "citizen-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	require.True(t, result.RateLimit.Allowed)
	require.Nil(t, result.Duplicate)

	report := result.Report
	require.Equal(t, "new-report", report.ID)
	require.Equal(t, models.StatusPending, report.Status)
	require.InDelta(t, 0.65, report.PriorityScore, 1e-9)
	require.Equal(t, models.PriorityHigh, report.Priority)
	require.Equal(t, 1.0, report.AIConfidence)
	require.NotNil(t, report.AIDetectedType)

	require.NotNil(t, report.SLADueAt)
	require.True(t, report.SLADueAt.Equal(submitNow.Add(72*time.Hour)))

	require.Len(t, store.created, 1)
	require.Len(t, store.audits, 1)
	require.Equal(t, models.AuditActionCreate, store.audits[0].Action)
	require.Equal(t, "citizen-1", store.audits[0].Actor)
}

func TestSubmitRecordsDuplicateButStillCreates(t *testing.T) {
	store := defaultSubmissionStore()
	lat, lng := 43.23009, 76.85
	store.candidates = []models.Report{
		{ID: "original", Title: "existing pothole", Latitude: &lat, Longitude: &lng, CreatedAt: submitNow.Add(-2 * time.Hour)},
	}
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssuePothole, Confidence: 0.9},
	})

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssuePothole,
		Title:       "pothole again",
		Description: "same hole as before",
		Latitude:    ptr(43.23),
		Longitude:   ptr(76.85),
		SubmitterID: "citizen-2",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Report)
	require.NotNil(t, result.Duplicate)
	require.Equal(t, "original", result.Duplicate.ReportID)

	require.True(t, result.Report.IsDuplicate)
	require.NotNil(t, result.Report.DuplicateOf)
	require.Equal(t, "original", *result.Report.DuplicateOf)
	require.Len(t, store.created, 1, "a duplicate is advisory, the report is still created")
}

func TestSubmitForceSkipsDuplicateScan(t *testing.T) {
	store := defaultSubmissionStore()
	lat, lng := 43.23, 76.85
	store.candidates = []models.Report{
		{ID: "original", Latitude: &lat, Longitude: &lng, CreatedAt: submitNow.Add(-1 * time.Hour)},
	}
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssuePothole, Confidence: 0.9},
	})

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssuePothole,
		Title:       "pothole",
		Description: "intentional resubmission",
		Latitude:    ptr(43.23),
		Longitude:   ptr(76.85),
		SubmitterID: "citizen-2",
		Force:       true,
	})
	require.NoError(t, err)
	require.Nil(t, result.Duplicate)
	require.False(t, result.Report.IsDuplicate)
}

func TestSubmitRateLimited(t *testing.T) {
	store := defaultSubmissionStore()
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssuePothole, Confidence: 0.9},
	})

	in := SubmitInput{
		IssueType:   models.IssuePothole,
		Title:       "pothole",
		Description: "one of many",
		SubmitterID: "citizen-3",
	}
	for i := 0; i < 3; i++ {
		result, err := svc.Submit(context.Background(), in)
		require.NoError(t, err)
		require.NotNil(t, result.Report)
	}

	result, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	require.Nil(t, result.Report, "a denied submission must not create a report")
	require.False(t, result.RateLimit.Allowed)
	require.Equal(t, ReasonHourlyLimit, result.RateLimit.Reason)
	require.Len(t, store.created, 3)
}

func TestSubmitEmergencyBypassesScorer(t *testing.T) {
	store := defaultSubmissionStore()
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssueRoadDamage, Confidence: 0.4},
	})
	svc.EmergencyTypes = map[string]struct{}{"road_damage": {}}

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssueRoadDamage,
		Title:       "collapsed road",
		Description: "sinkhole blocking both lanes",
		SubmitterID: "citizen-4",
	})
	require.NoError(t, err)
	require.Equal(t, models.PriorityCritical, result.Report.Priority)
	require.Equal(t, 1.0, result.Report.PriorityScore)
	require.NotNil(t, result.Report.SLADueAt)
	require.True(t, result.Report.SLADueAt.Equal(submitNow.Add(24*time.Hour)))
}

func TestSubmitClassifierFailureDegrades(t *testing.T) {
	store := defaultSubmissionStore()
	svc := newSubmissionFixture(store, stubClassifier{err: errors.New("service unavailable")})

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssueStreetlight,
		Title:       "dark street",
		Description: "lamp out for a week",
		SubmitterID: "citizen-5",
	})
	require.NoError(t, err, "classifier failure must not block submission")
	require.Equal(t, 0.5, result.Report.AIConfidence)
	require.Nil(t, result.Report.AIDetectedType)
	// 0.8 base * (0.5 + 0.5*0.5) = 0.6 at 14:00.
	require.InDelta(t, 0.6, result.Report.PriorityScore, 1e-9)
	require.Equal(t, models.PriorityHigh, result.Report.Priority)
}

func TestSubmitUnconfiguredTierHasNoSLA(t *testing.T) {
	store := defaultSubmissionStore()
	delete(store.configs, models.PriorityMedium)
	svc := newSubmissionFixture(store, stubClassifier{
		classification: ai.Classification{DetectedType: models.IssueOther, Confidence: 0.5},
	})

	result, err := svc.Submit(context.Background(), SubmitInput{
		IssueType:   models.IssueOther,
		Title:       "misc issue",
		Description: "uncategorized complaint",
		SubmitterID: "citizen-6",
	})
	require.NoError(t, err)
	// Default 0.5 weight * 0.75 confidence factor = 0.375, medium tier.
	require.Equal(t, models.PriorityMedium, result.Report.Priority)
	require.Nil(t, result.Report.SLADueAt)
}
