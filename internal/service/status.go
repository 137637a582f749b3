package service

import (
	"context"
	"errors"
	"time"

	"github.com/civiclens/backend/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotSubmitter      = errors.New("only the original submitter can reopen")
	ErrNotResolved       = errors.New("only resolved reports can be reopened")
)

// staffTransitions are the staff-initiated edges of the state machine.
// Reopen is submitter-initiated and handled separately; a reopened
// report behaves like in_progress from the staff side.
var staffTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusInProgress, models.StatusRejected},
	models.StatusInProgress: {models.StatusResolved, models.StatusRejected},
	models.StatusReopened:   {models.StatusInProgress, models.StatusResolved, models.StatusRejected},
}

func CanTransition(from, to models.Status) bool {
	for _, allowed := range staffTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusStore is the slice of persistence the state machine needs.
// UpdateReportStatus writes status, assignment, and resolved_at only;
// ReopenReport additionally increments escalation_level in the store,
// not from the caller's read, so a concurrent sweep's bump survives.
type StatusStore interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	UpdateReportStatus(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error
	ReopenReport(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error
}

type StatusService struct {
	Store StatusStore
	Now   func() time.Time
}

func NewStatusService(store StatusStore) *StatusService {
	return &StatusService{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// Transition applies a staff status change. On entering resolved the
// resolution timestamp is stamped. assignTo, when set, claims the
// report for a staff member. Every transition writes one audit row.
func (s *StatusService) Transition(ctx context.Context, id string, to models.Status, actor string, assignTo *string) (*models.Report, error) {
	report, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(report.Status, to) {
		return nil, ErrInvalidTransition
	}

	before := *report
	now := s.Now()

	report.Status = to
	if to == models.StatusResolved {
		ts := now
		report.ResolvedAt = &ts
	}
	if assignTo != nil {
		report.AssignedTo = assignTo
	}
	report.UpdatedAt = now

	audit := BuildReportAudit(models.AuditActionUpdate, actor, &before, report, now)
	if err := s.Store.UpdateReportStatus(ctx, report, audit); err != nil {
		return nil, err
	}
	return report, nil
}

// Reopen is the submitter's escape hatch from resolved. It clears the
// resolution timestamp and counts as a fresh escalation signal.
func (s *StatusService) Reopen(ctx context.Context, id string, submitterID string) (*models.Report, error) {
	report, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusResolved {
		return nil, ErrNotResolved
	}
	if report.SubmitterID != submitterID {
		return nil, ErrNotSubmitter
	}

	before := *report
	now := s.Now()

	report.Status = models.StatusReopened
	report.ResolvedAt = nil
	report.EscalationLevel++
	report.UpdatedAt = now

	// The store increments escalation_level itself and writes the
	// authoritative value back into report.
	audit := BuildReportAudit(models.AuditActionUpdate, submitterID, &before, report, now)
	if err := s.Store.ReopenReport(ctx, report, audit); err != nil {
		return nil, err
	}
	return report, nil
}
