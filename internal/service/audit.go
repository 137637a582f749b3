package service

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/civiclens/backend/internal/models"
)

const reportsTable = "reports"

// reportSnapshot flattens a report into the comparable field map used
// for audit diffs. Values marshal cleanly into JSONB.
func reportSnapshot(r models.Report) map[string]any {
	return map[string]any{
		"issue_type":       r.IssueType,
		"title":            r.Title,
		"description":      r.Description,
		"latitude":         derefFloat(r.Latitude),
		"longitude":        derefFloat(r.Longitude),
		"address":          derefString(r.Address),
		"municipality":     derefString(r.Municipality),
		"status":           r.Status,
		"priority":         r.Priority,
		"priority_score":   r.PriorityScore,
		"ai_confidence":    r.AIConfidence,
		"ai_detected_type": derefString(r.AIDetectedType),
		"sla_due_at":       derefTime(r.SLADueAt),
		"escalation_level": r.EscalationLevel,
		"is_duplicate":     r.IsDuplicate,
		"duplicate_of":     derefString(r.DuplicateOf),
		"duplicate_count":  r.DuplicateCount,
		"assigned_to":      derefString(r.AssignedTo),
		"resolved_at":      derefTime(r.ResolvedAt),
	}
}

// BuildReportAudit constructs the audit row for a report mutation.
// before is nil for creates.
func BuildReportAudit(action string, actor string, before *models.Report, after *models.Report, at time.Time) models.AuditLogEntry {
	entry := models.AuditLogEntry{
		TableName: reportsTable,
		RecordID:  after.ID,
		Action:    action,
		Actor:     actor,
		CreatedAt: at,
	}

	afterSnap := reportSnapshot(*after)
	entry.After, _ = json.Marshal(afterSnap)

	if before != nil {
		beforeSnap := reportSnapshot(*before)
		entry.Before, _ = json.Marshal(beforeSnap)
		entry.ChangedFields = changedFields(beforeSnap, afterSnap)
	} else {
		entry.ChangedFields = sortedKeys(afterSnap)
	}
	return entry
}

func changedFields(before, after map[string]any) []string {
	var out []string
	for k, bv := range before {
		if av, ok := after[k]; !ok || av != bv {
			out = append(out, k)
		}
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
