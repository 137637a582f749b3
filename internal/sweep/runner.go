// Package sweep drives the periodic escalation scan. The cadence is a
// standard cron expression; the sweep itself is advisory-lock guarded
// and idempotent, so overlapping firings are harmless.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/civiclens/backend/internal/service"
)

type Runner struct {
	Sweeper  *service.Sweeper
	Schedule cron.Schedule
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewRunner(sweeper *service.Sweeper, cronExpr string, logger zerolog.Logger) (*Runner, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Sweeper:  sweeper,
		Schedule: schedule,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start blocks until ctx is cancelled, running the sweep at each
// scheduled firing. A failed sweep is logged and the loop continues.
func (r *Runner) Start(ctx context.Context) {
	for {
		next := r.Schedule.Next(r.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := r.Sweeper.Run(ctx)
		if err != nil {
			r.Logger.Error().Err(err).Msg("scheduled escalation sweep failed")
			continue
		}
		if result.Skipped {
			continue
		}
		r.Logger.Info().
			Int("processed", result.Processed).
			Int("escalated", len(result.Escalated)).
			Msg("scheduled escalation sweep finished")
	}
}
