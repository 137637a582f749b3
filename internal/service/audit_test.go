package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/civiclens/backend/internal/models"
)

func TestBuildReportAuditCreate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	after := models.Report{ID: "r1", IssueType: models.IssuePothole, Title: "pothole on main st", Status: models.StatusPending}

	entry := BuildReportAudit(models.AuditActionCreate, "citizen-1", nil, &after, now)
	if entry.TableName != "reports" || entry.RecordID != "r1" {
		t.Fatalf("unexpected entry target: %+v", entry)
	}
	if entry.Before != nil {
		t.Fatal("create audit must have nil before state")
	}
	if len(entry.ChangedFields) == 0 {
		t.Fatal("create audit must list all fields as changed")
	}

	var snapshot map[string]any
	if err := json.Unmarshal(entry.After, &snapshot); err != nil {
		t.Fatalf("after state is not valid JSON: %v", err)
	}
	if snapshot["title"] != "pothole on main st" {
		t.Fatalf("unexpected after snapshot: %+v", snapshot)
	}
}

func TestBuildReportAuditUpdateDiff(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	before := models.Report{ID: "r1", IssueType: models.IssuePothole, Title: "pothole", Status: models.StatusInProgress}
	after := before
	after.Status = models.StatusResolved
	ts := now
	after.ResolvedAt = &ts

	entry := BuildReportAudit(models.AuditActionUpdate, "staff-1", &before, &after, now)
	if entry.Before == nil {
		t.Fatal("update audit must carry before state")
	}

	want := map[string]bool{"status": true, "resolved_at": true}
	if len(entry.ChangedFields) != len(want) {
		t.Fatalf("expected changed fields %v, got %v", want, entry.ChangedFields)
	}
	for _, f := range entry.ChangedFields {
		if !want[f] {
			t.Fatalf("unexpected changed field %q in %v", f, entry.ChangedFields)
		}
	}
}

func TestBuildReportAuditNoChanges(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	r := models.Report{ID: "r1", IssueType: models.IssueGarbage, Status: models.StatusPending}

	entry := BuildReportAudit(models.AuditActionUpdate, "staff-1", &r, &r, now)
	if len(entry.ChangedFields) != 0 {
		t.Fatalf("expected no changed fields, got %v", entry.ChangedFields)
	}
}
