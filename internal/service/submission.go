package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civiclens/backend/internal/ai"
	"github.com/civiclens/backend/internal/geocode"
	"github.com/civiclens/backend/internal/models"
)

// SubmissionStore is the persistence slice of the submission pipeline.
// CreateReport persists the report, its create-audit row, and the
// duplicate_count bump on the original in one transaction.
type SubmissionStore interface {
	DuplicateCandidates(ctx context.Context, issueType models.IssueType, since time.Time) ([]models.Report, error)
	PriorityRules(ctx context.Context) ([]models.PriorityRule, error)
	SLAConfigs(ctx context.Context) (map[models.Priority]models.SLAConfig, error)
	CreateReport(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error
}

type SubmissionService struct {
	Store          SubmissionStore
	Limiter        *RateLimiter
	Classifier     ai.Classifier
	Geocoder       geocode.Geocoder
	Logger         zerolog.Logger
	Duplicate      DuplicateParams
	EmergencyTypes map[string]struct{}
	Now            func() time.Time
	NewID          func() string
}

func NewSubmissionService(store SubmissionStore, limiter *RateLimiter, classifier ai.Classifier, logger zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		Store:      store,
		Limiter:    limiter,
		Classifier: classifier,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      func() string { return uuid.NewString() },
	}
}

type SubmitInput struct {
	IssueType    models.IssueType
	Title        string
	Description  string
	Latitude     *float64
	Longitude    *float64
	Address      string
	Municipality string
	SubmitterID  string
	// Force skips the duplicate scan for an explicit resubmission.
	Force bool
}

type SubmitResult struct {
	Report    *models.Report
	RateLimit RateLimitDecision
	Duplicate *DuplicateMatch
}

// Submit runs the full pipeline: rate-limit gate, duplicate scan,
// classification, scoring, SLA stamping, then a single transactional
// insert. A duplicate match is advisory: it is recorded on the row but
// never drops the report. A denied rate limit returns a nil Report.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	now := s.Now()

	decision, err := s.Limiter.CheckAndConsume(ctx, in.SubmitterID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !decision.Allowed {
		return SubmitResult{RateLimit: decision}, nil
	}

	report := &models.Report{
		ID:          s.NewID(),
		IssueType:   in.IssueType,
		Title:       in.Title,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.StatusPending,
		SubmitterID: in.SubmitterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Address != "" {
		report.Address = &in.Address
	}
	if in.Municipality != "" {
		report.Municipality = &in.Municipality
	}

	var match *DuplicateMatch
	if !in.Force && in.Latitude != nil && in.Longitude != nil {
		params := s.Duplicate.withDefaults()
		since := now.Add(-time.Duration(params.WindowHours * float64(time.Hour)))
		candidates, err := s.Store.DuplicateCandidates(ctx, in.IssueType, since)
		if err != nil {
			return SubmitResult{}, err
		}
		match = FindDuplicate(candidates, *in.Latitude, *in.Longitude, now, params)
		if match != nil {
			report.IsDuplicate = true
			dup := match.ReportID
			report.DuplicateOf = &dup
		}
	}

	report.AIConfidence = 0.5
	if s.Classifier != nil {
		classification, latencyMs, err := s.Classifier.Classify(ctx, *report)
		if err != nil {
			// Configuration-gap class of failure: degrade, never block.
			s.Logger.Warn().Err(err).Str("report_id", report.ID).Msg("classification failed, using defaults")
		} else {
			report.AIConfidence = classification.Confidence
			detected := string(classification.DetectedType)
			report.AIDetectedType = &detected
			s.Logger.Debug().Int64("latency_ms", latencyMs).Str("report_id", report.ID).Msg("classified")
		}
	}

	if s.isEmergency(in.IssueType) {
		// Emergency categories bypass the scorer entirely.
		report.Priority = models.PriorityCritical
		report.PriorityScore = 1.0
	} else {
		rules, err := s.Store.PriorityRules(ctx)
		if err != nil {
			return SubmitResult{}, err
		}
		scorer := NewScorer(rules)
		scorer.Now = func() time.Time { return now }
		scored := scorer.Score(in.IssueType, report.AIConfidence)
		report.Priority = scored.Priority
		report.PriorityScore = scored.Score
	}

	configs, err := s.Store.SLAConfigs(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	report.SLADueAt = NewSLACalculator(configs).DueAt(report.Priority, report.CreatedAt)

	if s.Geocoder != nil && geocode.ShouldGeocode(*report) {
		address, municipality, err := s.Geocoder.ReverseGeocode(ctx, *report.Latitude, *report.Longitude)
		if err != nil {
			s.Logger.Debug().Err(err).Str("report_id", report.ID).Msg("reverse geocode failed")
		} else {
			report.Address = &address
			if municipality != "" && report.Municipality == nil {
				report.Municipality = &municipality
			}
		}
	}

	audit := BuildReportAudit(models.AuditActionCreate, in.SubmitterID, nil, report, now)
	if err := s.Store.CreateReport(ctx, report, audit); err != nil {
		return SubmitResult{}, err
	}

	return SubmitResult{Report: report, RateLimit: decision, Duplicate: match}, nil
}

func (s *SubmissionService) isEmergency(issueType models.IssueType) bool {
	if len(s.EmergencyTypes) == 0 {
		return false
	}
	_, ok := s.EmergencyTypes[strings.ToLower(string(issueType))]
	return ok
}
