package retention

import (
	"testing"
	"time"
)

func TestPolicyValidateRequiresFolderOrRule(t *testing.T) {
	p := Policy{RetentionDays: 30, TrashRetentionDays: 7}
	if err := p.Validate(1); err == nil {
		t.Fatal("expected error when neither folder_pattern nor rule_id is set")
	}
}

func TestPolicyValidateRejectsBothFolderAndRule(t *testing.T) {
	p := Policy{RetentionDays: 30, TrashRetentionDays: 7, FolderPattern: "junk", RuleID: "rule-1"}
	if err := p.Validate(1); err == nil {
		t.Fatal("expected error when both folder_pattern and rule_id are set")
	}
}

func TestPolicyValidateRejectsBelowMinRetention(t *testing.T) {
	p := Policy{RetentionDays: 0, TrashRetentionDays: 7, FolderPattern: "junk"}
	if err := p.Validate(1); err == nil {
		t.Fatal("expected error for retention_days below minimum")
	}
}

func TestPolicyTotalLifecycleDays(t *testing.T) {
	p := Policy{RetentionDays: 30, TrashRetentionDays: 7}
	if got := p.TotalLifecycleDays(); got != 37 {
		t.Fatalf("TotalLifecycleDays() = %d, want 37", got)
	}
	p.SkipTrash = true
	if got := p.TotalLifecycleDays(); got != 30 {
		t.Fatalf("TotalLifecycleDays() with SkipTrash = %d, want 30", got)
	}
}

func TestPolicyType(t *testing.T) {
	folder := Policy{FolderPattern: "junk"}
	if folder.PolicyType() != "folder" {
		t.Fatalf("expected folder policy type")
	}
	rule := Policy{RuleID: "rule-1"}
	if rule.PolicyType() != "rule" {
		t.Fatalf("expected rule policy type")
	}
}

func TestSettingsApplicableFolderPolicies(t *testing.T) {
	s := NewSettings()
	s.AddPolicy(Policy{ID: "p1", Active: true, FolderPattern: "junk"})
	s.AddPolicy(Policy{ID: "p2", Active: false, FolderPattern: "approved_ads"})

	applicable := s.ApplicableFolderPolicies("INBOX.junk")
	if len(applicable) != 1 || applicable[0].ID != "p1" {
		t.Fatalf("expected only active junk policy to match, got %+v", applicable)
	}
}

func TestSettingsAddAndRemovePolicy(t *testing.T) {
	s := NewSettings()
	s.AddPolicy(Policy{ID: "folder-1", FolderPattern: "junk"})
	s.AddPolicy(Policy{ID: "rule-1", RuleID: "r1"})

	if len(s.AllPolicies()) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(s.AllPolicies()))
	}
	if !s.RemovePolicy("folder-1") {
		t.Fatal("expected RemovePolicy to report removal")
	}
	if len(s.AllPolicies()) != 1 {
		t.Fatalf("expected 1 policy after removal, got %d", len(s.AllPolicies()))
	}
}

func TestTrashItemDaysInTrashAndScheduled(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	item := TrashItem{MovedToTrashDate: now.AddDate(0, 0, -5)}
	if got := item.DaysInTrash(now); got != 5 {
		t.Fatalf("DaysInTrash() = %d, want 5", got)
	}
	item.ScheduledDeletionDate = now.AddDate(0, 0, -1)
	if !item.IsScheduledForDeletion(now) {
		t.Fatal("expected item to be scheduled for deletion")
	}
}

func TestDefaultFolderPolicies(t *testing.T) {
	now := time.Now()
	policies := DefaultFolderPolicies(now)
	if len(policies) != 3 {
		t.Fatalf("expected 3 default policies, got %d", len(policies))
	}
	if policies["junk"].RetentionDays != 7 {
		t.Fatalf("expected junk policy retention of 7 days, got %d", policies["junk"].RetentionDays)
	}
	if policies["approved_ads"].RetentionDays != 30 {
		t.Fatalf("expected approved_ads policy retention of 30 days, got %d", policies["approved_ads"].RetentionDays)
	}
}

func TestMigrateLegacyRetentionSettings(t *testing.T) {
	legacy := map[string]int{"junk": 14, "approved_ads": 45}
	settings := MigrateLegacyRetentionSettings(legacy, time.Now())

	all := settings.AllPolicies()
	if len(all) != 2 {
		t.Fatalf("expected 2 migrated policies, got %d", len(all))
	}
	p, ok := settings.FolderPolicies["migrated-junk"]
	if !ok {
		t.Fatal("expected migrated-junk policy")
	}
	if p.RetentionDays != 14 || p.Name != "Junk Cleanup (Migrated)" {
		t.Fatalf("unexpected migrated policy: %+v", p)
	}
}
