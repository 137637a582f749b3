// Package notify is the outbound notification port. Real delivery
// (email, push) lives outside this service; the default sink only logs.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type Notifier interface {
	EscalationRaised(ctx context.Context, reportID string, newLevel int)
}

type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) EscalationRaised(ctx context.Context, reportID string, newLevel int) {
	n.Logger.Info().
		Str("report_id", reportID).
		Int("new_level", newLevel).
		Msg("escalation notification")
}
