package retention

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestAuditLogger(t *testing.T) (*AuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "retention_audit.log")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger() error = %v", err)
	}
	return a, path
}

func readLastEntry(t *testing.T, path string) map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		last = scanner.Text()
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(last), &entry); err != nil {
		t.Fatalf("unmarshal audit entry: %v", err)
	}
	return entry
}

func TestLogRetentionOperationWritesEntry(t *testing.T) {
	a, path := newTestAuditLogger(t)
	policy := &Policy{ID: "p1", Name: "Junk Cleanup", TrashRetentionDays: 7, RetentionDays: 30}

	if err := a.LogRetentionOperation(StageMoveToTrash, policy, "junk", 3, true, "user@example.com", "", 1.5, false); err != nil {
		t.Fatalf("LogRetentionOperation() error = %v", err)
	}

	entry := readLastEntry(t, path)
	if entry["operation_type"] != "retention_operation" {
		t.Fatalf("unexpected operation_type: %v", entry["operation_type"])
	}
	if entry["policy_id"] != "p1" {
		t.Fatalf("unexpected policy_id: %v", entry["policy_id"])
	}
	if entry["messages_affected"].(float64) != 3 {
		t.Fatalf("unexpected messages_affected: %v", entry["messages_affected"])
	}
}

func TestLogTrashOperationTruncatesUIDs(t *testing.T) {
	a, path := newTestAuditLogger(t)
	uids := make([]string, 15)
	for i := range uids {
		uids[i] = "uid"
	}

	if err := a.LogTrashOperation("move_to_trash", "user@example.com", "junk", uids, true, "p1", ""); err != nil {
		t.Fatalf("LogTrashOperation() error = %v", err)
	}

	entry := readLastEntry(t, path)
	sampled, ok := entry["message_uids"].([]any)
	if !ok || len(sampled) != 10 {
		t.Fatalf("expected message_uids truncated to 10, got %v", entry["message_uids"])
	}
	if entry["message_count"].(float64) != 15 {
		t.Fatalf("expected message_count 15, got %v", entry["message_count"])
	}
}

func TestLogResultDelegatesToRetentionOperation(t *testing.T) {
	a, path := newTestAuditLogger(t)
	result := Result{Success: true, Stage: StagePermanentDelete, Folder: "trash", EmailsAffected: 2}

	if err := a.LogResult(result, "user@example.com", nil); err != nil {
		t.Fatalf("LogResult() error = %v", err)
	}

	entry := readLastEntry(t, path)
	if entry["stage"] != string(StagePermanentDelete) {
		t.Fatalf("unexpected stage: %v", entry["stage"])
	}
}

func TestGenerateReportSummarizesOperations(t *testing.T) {
	a, _ := newTestAuditLogger(t)
	policy := &Policy{ID: "p1", Name: "Junk Cleanup"}

	if err := a.LogRetentionOperation(StageMoveToTrash, policy, "junk", 5, true, "user@example.com", "", 0.5, false); err != nil {
		t.Fatalf("LogRetentionOperation() error = %v", err)
	}
	if err := a.LogRetentionOperation(StagePermanentDelete, nil, "trash", 2, false, "user@example.com", "boom", 0.1, false); err != nil {
		t.Fatalf("LogRetentionOperation() error = %v", err)
	}

	now := time.Now()
	report, err := a.GenerateReport(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	if report.TotalOperations != 2 {
		t.Fatalf("TotalOperations = %d, want 2", report.TotalOperations)
	}
	if report.SuccessfulOperations != 1 || report.FailedOperations != 1 {
		t.Fatalf("unexpected success/failure split: %+v", report)
	}
	if report.EmailsMovedToTrash != 5 {
		t.Fatalf("EmailsMovedToTrash = %d, want 5", report.EmailsMovedToTrash)
	}
	if report.EmailsPermanentlyDeleted != 2 {
		t.Fatalf("EmailsPermanentlyDeleted = %d, want 2", report.EmailsPermanentlyDeleted)
	}
	if len(report.Errors) != 1 || report.Errors[0].Error != "boom" {
		t.Fatalf("unexpected errors: %+v", report.Errors)
	}
	if len(report.PoliciesApplied) != 1 || report.PoliciesApplied[0] != "p1" {
		t.Fatalf("unexpected policies applied: %v", report.PoliciesApplied)
	}
	if len(report.AccountsAffected) != 1 || report.AccountsAffected[0] != "user@example.com" {
		t.Fatalf("unexpected accounts affected: %v", report.AccountsAffected)
	}
}

func TestGenerateReportExcludesEntriesOutsideRange(t *testing.T) {
	a, _ := newTestAuditLogger(t)
	policy := &Policy{ID: "p1", Name: "Junk Cleanup"}
	if err := a.LogRetentionOperation(StageMoveToTrash, policy, "junk", 5, true, "user@example.com", "", 0.5, false); err != nil {
		t.Fatalf("LogRetentionOperation() error = %v", err)
	}

	now := time.Now()
	report, err := a.GenerateReport(now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if report.TotalOperations != 0 {
		t.Fatalf("TotalOperations = %d, want 0 for a range before the logged entry", report.TotalOperations)
	}
}
