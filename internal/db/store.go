package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civiclens/backend/internal/models"
)

// sweepLockKey is the advisory lock id guarding concurrent escalation
// sweeps. Arbitrary but stable.
const sweepLockKey = 74201

var ErrNotFound = errors.New("record not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const reportColumns = `id, issue_type, title, description, latitude, longitude, address, municipality,
	status, priority, priority_score, ai_confidence, ai_detected_type, sla_due_at, escalation_level,
	is_duplicate, duplicate_of, duplicate_count, submitter_id, assigned_to, created_at, updated_at, resolved_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var r models.Report
	err := row.Scan(
		&r.ID, &r.IssueType, &r.Title, &r.Description, &r.Latitude, &r.Longitude, &r.Address, &r.Municipality,
		&r.Status, &r.Priority, &r.PriorityScore, &r.AIConfidence, &r.AIDetectedType, &r.SLADueAt, &r.EscalationLevel,
		&r.IsDuplicate, &r.DuplicateOf, &r.DuplicateCount, &r.SubmitterID, &r.AssignedTo, &r.CreatedAt, &r.UpdatedAt, &r.ResolvedAt,
	)
	return r, err
}

func collectReports(rows pgx.Rows) ([]models.Report, error) {
	defer rows.Close()
	var out []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReport persists the report, the duplicate_count bump on the
// original (when flagged), and the create-audit row in one transaction.
func (s *Store) CreateReport(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO reports (id, issue_type, title, description, latitude, longitude, address, municipality,
				status, priority, priority_score, ai_confidence, ai_detected_type, sla_due_at, escalation_level,
				is_duplicate, duplicate_of, duplicate_count, submitter_id, assigned_to, created_at, updated_at, resolved_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		`, r.ID, r.IssueType, r.Title, r.Description, r.Latitude, r.Longitude, r.Address, r.Municipality,
			r.Status, r.Priority, r.PriorityScore, r.AIConfidence, r.AIDetectedType, r.SLADueAt, r.EscalationLevel,
			r.IsDuplicate, r.DuplicateOf, r.DuplicateCount, r.SubmitterID, r.AssignedTo, r.CreatedAt, r.UpdatedAt, r.ResolvedAt)
		if err != nil {
			return err
		}
		if r.DuplicateOf != nil {
			if _, err := tx.Exec(ctx, `UPDATE reports SET duplicate_count = duplicate_count + 1, updated_at = $1 WHERE id = $2`, r.UpdatedAt, *r.DuplicateOf); err != nil {
				return err
			}
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (s *Store) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

type ReportFilter struct {
	Status      string
	IssueType   string
	Priority    string
	SubmitterID string
	Query       string
	Limit       int
	Offset      int
}

func (s *Store) ListReports(ctx context.Context, f ReportFilter) ([]models.Report, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	var wheres []string
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.IssueType != "" {
		args = append(args, f.IssueType)
		wheres = append(wheres, fmt.Sprintf("issue_type = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.SubmitterID != "" {
		args = append(args, f.SubmitterID)
		wheres = append(wheres, fmt.Sprintf("submitter_id = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		wheres = append(wheres, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectReports(rows)
}

// UpdateReportStatus writes the state-machine fields plus the audit
// row in one transaction. Only status, assignment, and the resolution
// timestamp are touched: priority and the score belong to the scorer,
// escalation_level to the sweep and reopen, and sla_due_at is frozen
// at creation time. Writing those here from a stale read could revert
// a concurrent escalation.
func (s *Store) UpdateReportStatus(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE reports SET status = $1, assigned_to = $2, updated_at = $3, resolved_at = $4
			WHERE id = $5
		`, r.Status, r.AssignedTo, r.UpdatedAt, r.ResolvedAt, r.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertAudit(ctx, tx, audit)
	})
}

// ReopenReport reverts a resolved report and bumps the escalation
// level in one statement, so a sweep's bump between the caller's read
// and this write is never lost. The report's level is refreshed from
// the row.
func (s *Store) ReopenReport(ctx context.Context, r *models.Report, audit models.AuditLogEntry) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE reports SET status = $1, resolved_at = NULL,
				escalation_level = escalation_level + 1, updated_at = $2
			WHERE id = $3
			RETURNING escalation_level
		`, r.Status, r.UpdatedAt, r.ID)
		if err := row.Scan(&r.EscalationLevel); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return insertAudit(ctx, tx, audit)
	})
}

// DuplicateCandidates returns same-type unresolved originals created
// since the given time with coordinates present.
func (s *Store) DuplicateCandidates(ctx context.Context, issueType models.IssueType, since time.Time) ([]models.Report, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE issue_type = $1
			AND status NOT IN ('resolved', 'rejected')
			AND is_duplicate = FALSE
			AND created_at >= $2
			AND latitude IS NOT NULL
			AND longitude IS NOT NULL
		ORDER BY created_at DESC
	`, issueType, since)
	if err != nil {
		return nil, err
	}
	return collectReports(rows)
}

// ListActiveSLAReports is the escalation sweep's working set.
func (s *Store) ListActiveSLAReports(ctx context.Context) ([]models.Report, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE status IN ('pending', 'in_progress', 'reopened')
			AND sla_due_at IS NOT NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return collectReports(rows)
}

func (s *Store) SLAConfigs(ctx context.Context) (map[models.Priority]models.SLAConfig, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT priority, response_time_hours, resolution_time_hours, escalation_level_1_hours, escalation_level_2_hours, active
		FROM sla_configs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[models.Priority]models.SLAConfig{}
	for rows.Next() {
		var c models.SLAConfig
		if err := rows.Scan(&c.Priority, &c.ResponseTimeHours, &c.ResolutionTimeHours, &c.EscalationLevel1Hours, &c.EscalationLevel2Hours, &c.Active); err != nil {
			return nil, err
		}
		out[c.Priority] = c
	}
	return out, rows.Err()
}

func (s *Store) PriorityRules(ctx context.Context) ([]models.PriorityRule, error) {
	rows, err := s.Pool.Query(ctx, `SELECT factor_type, factor_value, weight, active FROM priority_rules ORDER BY factor_type, factor_value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PriorityRule
	for rows.Next() {
		var r models.PriorityRule
		if err := rows.Scan(&r.FactorType, &r.FactorValue, &r.Weight, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MutateRateLimit runs fn on the submitter's record under a row lock.
// The record is created lazily on first access.
func (s *Store) MutateRateLimit(ctx context.Context, submitterID string, fn func(rec *models.RateLimitRecord) (bool, error)) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_limits (submitter_id, hourly_count, daily_count, hourly_reset_at, daily_reset_at)
			VALUES ($1, 0, 0, $2, $3)
			ON CONFLICT (submitter_id) DO NOTHING
		`, submitterID, now.Truncate(time.Hour), startOfDayUTC(now))
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			SELECT submitter_id, hourly_count, daily_count, hourly_reset_at, daily_reset_at,
				last_submission_at, is_trusted, is_blocked, blocked_until
			FROM rate_limits WHERE submitter_id = $1 FOR UPDATE
		`, submitterID)
		var rec models.RateLimitRecord
		if err := row.Scan(&rec.SubmitterID, &rec.HourlyCount, &rec.DailyCount, &rec.HourlyResetAt, &rec.DailyResetAt,
			&rec.LastSubmissionAt, &rec.IsTrusted, &rec.IsBlocked, &rec.BlockedUntil); err != nil {
			return err
		}

		save, err := fn(&rec)
		if err != nil {
			return err
		}
		if !save {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE rate_limits SET
				hourly_count = $1, daily_count = $2, hourly_reset_at = $3, daily_reset_at = $4,
				last_submission_at = $5, is_trusted = $6, is_blocked = $7, blocked_until = $8
			WHERE submitter_id = $9
		`, rec.HourlyCount, rec.DailyCount, rec.HourlyResetAt, rec.DailyResetAt,
			rec.LastSubmissionAt, rec.IsTrusted, rec.IsBlocked, rec.BlockedUntil, rec.SubmitterID)
		return err
	})
}

// GetRateLimit returns the stored record, or a fresh zero-counter one
// when the submitter has never submitted.
func (s *Store) GetRateLimit(ctx context.Context, submitterID string) (models.RateLimitRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT submitter_id, hourly_count, daily_count, hourly_reset_at, daily_reset_at,
			last_submission_at, is_trusted, is_blocked, blocked_until
		FROM rate_limits WHERE submitter_id = $1
	`, submitterID)
	var rec models.RateLimitRecord
	err := row.Scan(&rec.SubmitterID, &rec.HourlyCount, &rec.DailyCount, &rec.HourlyResetAt, &rec.DailyResetAt,
		&rec.LastSubmissionAt, &rec.IsTrusted, &rec.IsBlocked, &rec.BlockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			now := time.Now().UTC()
			return models.RateLimitRecord{
				SubmitterID:   submitterID,
				HourlyResetAt: now.Truncate(time.Hour),
				DailyResetAt:  startOfDayUTC(now),
			}, nil
		}
		return models.RateLimitRecord{}, err
	}
	return rec, nil
}

func (s *Store) SetRateLimitBlock(ctx context.Context, submitterID string, blocked bool, until *time.Time) error {
	return s.MutateRateLimit(ctx, submitterID, func(rec *models.RateLimitRecord) (bool, error) {
		rec.IsBlocked = blocked
		rec.BlockedUntil = until
		return true, nil
	})
}

func (s *Store) SetRateLimitTrusted(ctx context.Context, submitterID string, trusted bool) error {
	return s.MutateRateLimit(ctx, submitterID, func(rec *models.RateLimitRecord) (bool, error) {
		rec.IsTrusted = trusted
		return true, nil
	})
}

// RecordEscalation advances the report's escalation level and appends
// the escalation log plus audit rows in one transaction. The level
// guard in the UPDATE keeps a concurrent writer from double-escalating:
// when another writer got there first, nothing is written and applied
// is false.
func (s *Store) RecordEscalation(ctx context.Context, reportID string, fromLevel, toLevel int, reason string, at time.Time, audit models.AuditLogEntry) (bool, error) {
	applied := false
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE reports SET escalation_level = $1, updated_at = $2
			WHERE id = $3 AND escalation_level = $4
		`, toLevel, at, reportID, fromLevel)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO escalations (report_id, from_level, to_level, reason, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, reportID, fromLevel, toLevel, reason, at); err != nil {
			return err
		}
		applied = true
		return insertAudit(ctx, tx, audit)
	})
	return applied, err
}

func (s *Store) ListEscalations(ctx context.Context, reportID string) ([]models.Escalation, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, report_id, from_level, to_level, reason, created_at
		FROM escalations WHERE report_id = $1 ORDER BY created_at ASC
	`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Escalation
	for rows.Next() {
		var e models.Escalation
		if err := rows.Scan(&e.ID, &e.ReportID, &e.FromLevel, &e.ToLevel, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListAuditLogs(ctx context.Context, tableName, recordID string) ([]models.AuditLogEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, table_name, record_id, action, before_state, after_state, changed_fields, actor, created_at
		FROM audit_logs WHERE table_name = $1 AND record_id = $2 ORDER BY created_at ASC
	`, tableName, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Action, &e.Before, &e.After, &e.ChangedFields, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrySweepLock takes the session-scoped advisory lock on a dedicated
// connection. release must be called when the sweep ends.
func (s *Store) TrySweepLock(ctx context.Context) (func(), bool, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, sweepLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, sweepLockKey)
		conn.Release()
	}
	return release, true, nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, e models.AuditLogEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_logs (table_name, record_id, action, before_state, after_state, changed_fields, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.TableName, e.RecordID, e.Action, nilIfEmpty(e.Before), nilIfEmpty(e.After), e.ChangedFields, e.Actor, e.CreatedAt)
	return err
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
