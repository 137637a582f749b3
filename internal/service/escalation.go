package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/civiclens/backend/internal/models"
	"github.com/civiclens/backend/internal/notify"
)

const maxEscalationLevel = 2

// EscalationStore is the persistence slice the sweep needs. The
// advisory lock keeps overlapping sweeps from writing duplicate
// escalation rows; the level guard in DesiredLevel is the idempotency
// backstop either way.
type EscalationStore interface {
	TrySweepLock(ctx context.Context) (release func(), ok bool, err error)
	ListActiveSLAReports(ctx context.Context) ([]models.Report, error)
	SLAConfigs(ctx context.Context) (map[models.Priority]models.SLAConfig, error)
	// RecordEscalation returns applied=false when the report's level no
	// longer matches fromLevel and nothing was written.
	RecordEscalation(ctx context.Context, reportID string, fromLevel, toLevel int, reason string, at time.Time, audit models.AuditLogEntry) (applied bool, err error)
}

// SystemActor attributes scheduler-driven mutations in the audit log.
const SystemActor = "system"

type Sweeper struct {
	Store    EscalationStore
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewSweeper(store EscalationStore, notifier notify.Notifier, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

type EscalatedReport struct {
	ReportID  string `json:"report_id"`
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	Reason    string `json:"reason"`
}

type SweepFailure struct {
	ReportID string `json:"report_id"`
	Error    string `json:"error"`
}

type SweepResult struct {
	Skipped   bool              `json:"skipped"`
	Processed int               `json:"processed"`
	Escalated []EscalatedReport `json:"escalated"`
	Failures  []SweepFailure    `json:"failures,omitempty"`
}

// DesiredLevel compares elapsed time against the tier thresholds.
// Returns the current level unchanged when no threshold beyond it has
// been crossed, which makes repeated sweeps no-ops.
func DesiredLevel(hoursElapsed float64, cfg models.SLAConfig, current int) int {
	if current < maxEscalationLevel && hoursElapsed > float64(cfg.EscalationLevel2Hours) {
		return 2
	}
	if current < 1 && hoursElapsed > float64(cfg.EscalationLevel1Hours) {
		return 1
	}
	return current
}

// Run scans all active reports with an SLA deadline and escalates the
// overdue ones. One report's persistence failure is collected and the
// scan continues; only a failure to read the working set aborts.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	release, ok, err := s.Store.TrySweepLock(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	if !ok {
		s.Logger.Info().Msg("escalation sweep already running, skipping")
		return SweepResult{Skipped: true}, nil
	}
	defer release()

	reports, err := s.Store.ListActiveSLAReports(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	configs, err := s.Store.SLAConfigs(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	now := s.Now()
	result := SweepResult{Processed: len(reports), Escalated: []EscalatedReport{}}

	for i := range reports {
		report := &reports[i]
		cfg, ok := configs[report.Priority]
		if !ok || !cfg.Active {
			continue
		}

		hoursElapsed := now.Sub(report.CreatedAt).Hours()
		desired := DesiredLevel(hoursElapsed, cfg, report.EscalationLevel)
		if desired <= report.EscalationLevel {
			continue
		}

		threshold := cfg.EscalationLevel1Hours
		if desired == 2 {
			threshold = cfg.EscalationLevel2Hours
		}
		reason := fmt.Sprintf("SLA breach: %.1fh elapsed, level %d threshold is %dh", hoursElapsed, desired, threshold)

		from := report.EscalationLevel
		before := *report
		after := *report
		after.EscalationLevel = desired
		after.UpdatedAt = now
		audit := BuildReportAudit(models.AuditActionUpdate, SystemActor, &before, &after, now)

		applied, err := s.Store.RecordEscalation(ctx, report.ID, from, desired, reason, now, audit)
		if err != nil {
			s.Logger.Error().Err(err).Str("report_id", report.ID).Msg("escalation write failed")
			result.Failures = append(result.Failures, SweepFailure{ReportID: report.ID, Error: err.Error()})
			continue
		}
		if !applied {
			// A concurrent writer advanced the level first; nothing to
			// report or notify.
			s.Logger.Debug().Str("report_id", report.ID).Msg("escalation level already advanced, skipping")
			continue
		}
		report.EscalationLevel = desired

		result.Escalated = append(result.Escalated, EscalatedReport{
			ReportID:  report.ID,
			FromLevel: from,
			ToLevel:   desired,
			Reason:    reason,
		})
		if s.Notifier != nil {
			s.Notifier.EscalationRaised(ctx, report.ID, desired)
		}
	}

	s.Logger.Info().
		Int("processed", result.Processed).
		Int("escalated", len(result.Escalated)).
		Int("failures", len(result.Failures)).
		Msg("escalation sweep complete")
	return result, nil
}
