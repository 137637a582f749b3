package service

import (
	"time"

	"github.com/civiclens/backend/internal/models"
)

// SLACalculator derives the resolution deadline for a priority tier.
// A missing or inactive config row yields nil (no SLA tracked) rather
// than an error, so a configuration gap never blocks report creation.
type SLACalculator struct {
	Configs map[models.Priority]models.SLAConfig
}

func NewSLACalculator(configs map[models.Priority]models.SLAConfig) *SLACalculator {
	return &SLACalculator{Configs: configs}
}

func (c *SLACalculator) DueAt(priority models.Priority, createdAt time.Time) *time.Time {
	cfg, ok := c.Configs[priority]
	if !ok || !cfg.Active {
		return nil
	}
	due := createdAt.Add(time.Duration(cfg.ResolutionTimeHours) * time.Hour)
	return &due
}
