package service

import (
	"strings"
	"time"

	"github.com/civiclens/backend/internal/models"
)

const (
	FactorIssueType = "issue_type"

	defaultBaseWeight = 0.5
	nightMultiplier   = 1.3
	dayStartHour      = 6
	dayEndHour        = 18
)

// Thresholds are the score cutoffs for each priority tier. Exposed so
// tests can probe the exact boundaries.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

var DefaultThresholds = Thresholds{Critical: 0.75, High: 0.55, Medium: 0.35}

type ScoreResult struct {
	Score    float64         `json:"score"`
	Priority models.Priority `json:"priority"`
}

// Scorer computes a priority score from the issue type base weight, a
// time-of-day multiplier, and the classifier confidence. Pure given
// the injected clock.
type Scorer struct {
	Rules      map[string]models.PriorityRule
	Thresholds Thresholds
	Now        func() time.Time
}

func NewScorer(rules []models.PriorityRule) *Scorer {
	byValue := make(map[string]models.PriorityRule, len(rules))
	for _, r := range rules {
		if r.FactorType != FactorIssueType {
			continue
		}
		byValue[strings.ToLower(strings.TrimSpace(r.FactorValue))] = r
	}
	return &Scorer{
		Rules:      byValue,
		Thresholds: DefaultThresholds,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scorer) Score(issueType models.IssueType, aiConfidence float64) ScoreResult {
	base := defaultBaseWeight
	if rule, ok := s.Rules[string(issueType)]; ok && rule.Active {
		base = rule.Weight
	}

	multiplier := 1.0
	if issueType == models.IssueStreetlight && isNight(s.Now()) {
		multiplier = nightMultiplier
	}

	score := base * multiplier * (0.5 + aiConfidence*0.5)
	if score > 1.0 {
		score = 1.0
	}

	return ScoreResult{Score: score, Priority: TierFor(score, s.Thresholds)}
}

func TierFor(score float64, th Thresholds) models.Priority {
	switch {
	case score >= th.Critical:
		return models.PriorityCritical
	case score >= th.High:
		return models.PriorityHigh
	case score >= th.Medium:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func isNight(t time.Time) bool {
	hour := t.Hour()
	return hour < dayStartHour || hour >= dayEndHour
}
