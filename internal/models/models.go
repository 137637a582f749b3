package models

import "time"

type IssueType string

const (
	IssuePothole     IssueType = "pothole"
	IssueGarbage     IssueType = "garbage"
	IssueStreetlight IssueType = "streetlight"
	IssueDrainage    IssueType = "drainage"
	IssueRoadDamage  IssueType = "road_damage"
	IssueOther       IssueType = "other"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
	StatusReopened   Status = "reopened"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Report is the central entity. SLADueAt is computed once at creation
// from the priority tier and is never recomputed afterwards, even when
// staff override the priority.
type Report struct {
	ID              string     `json:"id"`
	IssueType       IssueType  `json:"issue_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Address         *string    `json:"address,omitempty"`
	Municipality    *string    `json:"municipality,omitempty"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority"`
	PriorityScore   float64    `json:"priority_score"`
	AIConfidence    float64    `json:"ai_confidence"`
	AIDetectedType  *string    `json:"ai_detected_type,omitempty"`
	SLADueAt        *time.Time `json:"sla_due_at,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	IsDuplicate     bool       `json:"is_duplicate"`
	DuplicateOf     *string    `json:"duplicate_of,omitempty"`
	DuplicateCount  int        `json:"duplicate_count"`
	SubmitterID     string     `json:"submitter_id"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// SLAConfig holds the per-tier service-level targets, in hours.
type SLAConfig struct {
	Priority              Priority `json:"priority"`
	ResponseTimeHours     int      `json:"response_time_hours"`
	ResolutionTimeHours   int      `json:"resolution_time_hours"`
	EscalationLevel1Hours int      `json:"escalation_level_1_hours"`
	EscalationLevel2Hours int      `json:"escalation_level_2_hours"`
	Active                bool     `json:"active"`
}

// PriorityRule maps a scoring factor to its base weight.
type PriorityRule struct {
	FactorType  string  `json:"factor_type"`
	FactorValue string  `json:"factor_value"`
	Weight      float64 `json:"weight"`
	Active      bool    `json:"active"`
}

// RateLimitRecord is the per-submitter sliding counter state. Counters
// roll over lazily on access; there is no background reset timer.
type RateLimitRecord struct {
	SubmitterID      string     `json:"submitter_id"`
	HourlyCount      int        `json:"hourly_count"`
	DailyCount       int        `json:"daily_count"`
	HourlyResetAt    time.Time  `json:"hourly_reset_at"`
	DailyResetAt     time.Time  `json:"daily_reset_at"`
	LastSubmissionAt *time.Time `json:"last_submission_at,omitempty"`
	IsTrusted        bool       `json:"is_trusted"`
	IsBlocked        bool       `json:"is_blocked"`
	BlockedUntil     *time.Time `json:"blocked_until,omitempty"`
}

// Escalation is an append-only log row; never mutated after insert.
type Escalation struct {
	ID        int64     `json:"id"`
	ReportID  string    `json:"report_id"`
	FromLevel int       `json:"from_level"`
	ToLevel   int       `json:"to_level"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogEntry captures a before/after snapshot for one mutation.
// Before and After hold marshaled JSON objects.
type AuditLogEntry struct {
	ID            int64     `json:"id"`
	TableName     string    `json:"table_name"`
	RecordID      string    `json:"record_id"`
	Action        string    `json:"action"`
	Before        []byte    `json:"before,omitempty"`
	After         []byte    `json:"after,omitempty"`
	ChangedFields []string  `json:"changed_fields"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

func ValidIssueType(v IssueType) bool {
	switch v {
	case IssuePothole, IssueGarbage, IssueStreetlight, IssueDrainage, IssueRoadDamage, IssueOther:
		return true
	}
	return false
}

func ValidStatus(v Status) bool {
	switch v {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected, StatusReopened:
		return true
	}
	return false
}

func ValidPriority(v Priority) bool {
	switch v {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
