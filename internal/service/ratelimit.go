package service

import (
	"context"
	"time"

	"github.com/civiclens/backend/internal/models"
)

const (
	ReasonBlocked     = "blocked"
	ReasonHourlyLimit = "hourly limit reached"
	ReasonDailyLimit  = "daily limit reached"
)

type RateLimits struct {
	Hourly int
	Daily  int
}

var (
	UntrustedLimits = RateLimits{Hourly: 3, Daily: 10}
	TrustedLimits   = RateLimits{Hourly: 10, Daily: 50}
)

type RateLimitDecision struct {
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason,omitempty"`
	RemainingHourly int        `json:"remaining_hourly"`
	RemainingDaily  int        `json:"remaining_daily"`
	ResetAt         *time.Time `json:"reset_at,omitempty"`
}

// NewRateLimitRecord is the lazily created first-submission state.
func NewRateLimitRecord(submitterID string, now time.Time) models.RateLimitRecord {
	return models.RateLimitRecord{
		SubmitterID:   submitterID,
		HourlyResetAt: now.Truncate(time.Hour),
		DailyResetAt:  startOfDay(now),
	}
}

// ApplyRateLimit rolls counters over, checks thresholds, and on allow
// consumes one submission, mutating rec in place. Pure given rec and
// now; the caller provides atomicity (row lock) around it.
func ApplyRateLimit(rec *models.RateLimitRecord, now time.Time) RateLimitDecision {
	if rec.IsBlocked {
		if rec.BlockedUntil == nil || rec.BlockedUntil.After(now) {
			return RateLimitDecision{Allowed: false, Reason: ReasonBlocked, ResetAt: rec.BlockedUntil}
		}
		// Block expired; fall through as a normal submitter.
		rec.IsBlocked = false
		rec.BlockedUntil = nil
	}

	// Lazy rollover, always before the threshold check.
	if rec.DailyResetAt.Before(startOfDay(now)) {
		rec.DailyCount = 0
		rec.DailyResetAt = startOfDay(now)
	}
	hourStart := now.Truncate(time.Hour)
	if rec.HourlyResetAt.Before(hourStart) {
		rec.HourlyCount = 0
		rec.HourlyResetAt = hourStart
	}

	limits := UntrustedLimits
	if rec.IsTrusted {
		limits = TrustedLimits
	}

	if rec.HourlyCount >= limits.Hourly {
		reset := hourStart.Add(time.Hour)
		return RateLimitDecision{
			Allowed:        false,
			Reason:         ReasonHourlyLimit,
			RemainingDaily: remaining(limits.Daily, rec.DailyCount),
			ResetAt:        &reset,
		}
	}
	if rec.DailyCount >= limits.Daily {
		reset := startOfDay(now).AddDate(0, 0, 1)
		return RateLimitDecision{
			Allowed:         false,
			Reason:          ReasonDailyLimit,
			RemainingHourly: remaining(limits.Hourly, rec.HourlyCount),
			ResetAt:         &reset,
		}
	}

	rec.HourlyCount++
	rec.DailyCount++
	ts := now
	rec.LastSubmissionAt = &ts

	return RateLimitDecision{
		Allowed:         true,
		RemainingHourly: remaining(limits.Hourly, rec.HourlyCount),
		RemainingDaily:  remaining(limits.Daily, rec.DailyCount),
	}
}

// PreviewRateLimit reports the submitter's standing without consuming.
func PreviewRateLimit(rec models.RateLimitRecord, now time.Time) RateLimitDecision {
	probe := rec
	decision := ApplyRateLimit(&probe, now)
	if decision.Allowed {
		// Undo the consume for reporting purposes.
		decision.RemainingHourly++
		decision.RemainingDaily++
	}
	return decision
}

// RateLimitStore provides an atomic read-modify-write on one
// submitter's record. fn runs under a row lock; returning save=true
// persists the mutated record.
type RateLimitStore interface {
	MutateRateLimit(ctx context.Context, submitterID string, fn func(rec *models.RateLimitRecord) (save bool, err error)) error
}

type RateLimiter struct {
	Store RateLimitStore
	Now   func() time.Time
}

func NewRateLimiter(store RateLimitStore) *RateLimiter {
	return &RateLimiter{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// CheckAndConsume is the submission gate. The record is saved even on
// deny because the rollover may have mutated it.
func (r *RateLimiter) CheckAndConsume(ctx context.Context, submitterID string) (RateLimitDecision, error) {
	var decision RateLimitDecision
	err := r.Store.MutateRateLimit(ctx, submitterID, func(rec *models.RateLimitRecord) (bool, error) {
		decision = ApplyRateLimit(rec, r.Now())
		return true, nil
	})
	if err != nil {
		return RateLimitDecision{}, err
	}
	return decision, nil
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
