package retention

import (
	"path/filepath"
	"testing"
)

func newTestPolicyStore(t *testing.T) *PolicyStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retention_policies.json")
	s, err := OpenPolicyStore(path)
	if err != nil {
		t.Fatalf("OpenPolicyStore() error = %v", err)
	}
	return s
}

func TestOpenPolicyStoreSeedsDefaults(t *testing.T) {
	s := newTestPolicyStore(t)
	all := s.Settings().AllPolicies()
	if len(all) != 3 {
		t.Fatalf("expected 3 default policies, got %d", len(all))
	}
}

func TestCreateFolderPolicyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention_policies.json")
	s, err := OpenPolicyStore(path)
	if err != nil {
		t.Fatalf("OpenPolicyStore() error = %v", err)
	}

	p, err := s.CreateFolderPolicy("newsletters", 21, "", "", 7)
	if err != nil {
		t.Fatalf("CreateFolderPolicy() error = %v", err)
	}
	if p.Name != "Newsletters Cleanup" {
		t.Fatalf("expected auto-generated name, got %q", p.Name)
	}

	reopened, err := OpenPolicyStore(path)
	if err != nil {
		t.Fatalf("reopen OpenPolicyStore() error = %v", err)
	}
	got, ok := reopened.Settings().PolicyByID(p.ID)
	if !ok {
		t.Fatal("expected created policy to survive reload")
	}
	if got.RetentionDays != 21 {
		t.Fatalf("expected retention_days 21, got %d", got.RetentionDays)
	}
}

func TestCreateFolderPolicyRejectsBelowMinimum(t *testing.T) {
	s := newTestPolicyStore(t)
	if _, err := s.CreateFolderPolicy("junk", 0, "", "", 7); err == nil {
		t.Fatal("expected error for retention_days below minimum")
	}
}

func TestUpdatePolicyRejectsUnknownID(t *testing.T) {
	s := newTestPolicyStore(t)
	if _, err := s.UpdatePolicy("does-not-exist", func(p *Policy) {}); err == nil {
		t.Fatal("expected PolicyNotFoundError")
	}
}

func TestDeletePolicy(t *testing.T) {
	s := newTestPolicyStore(t)
	p, err := s.CreateRulePolicy("rule-1", 10, "", "", 7)
	if err != nil {
		t.Fatalf("CreateRulePolicy() error = %v", err)
	}
	if err := s.DeletePolicy(p.ID); err != nil {
		t.Fatalf("DeletePolicy() error = %v", err)
	}
	if _, ok := s.Settings().PolicyByID(p.ID); ok {
		t.Fatal("expected policy to be removed")
	}
}

func TestRecordAppliedUpdatesCounters(t *testing.T) {
	s := newTestPolicyStore(t)
	policies := s.Settings().AllPolicies()
	id := policies[0].ID

	if err := s.RecordApplied(id, 5, 0); err != nil {
		t.Fatalf("RecordApplied() error = %v", err)
	}
	p, _ := s.Settings().PolicyByID(id)
	if p.EmailsMovedToTrash != 5 {
		t.Fatalf("expected EmailsMovedToTrash = 5, got %d", p.EmailsMovedToTrash)
	}
	if p.LastApplied.IsZero() {
		t.Fatal("expected LastApplied to be set")
	}
}

func TestApplicablePoliciesMatchesFolderAndRule(t *testing.T) {
	s := newTestPolicyStore(t)
	rulePolicy, err := s.CreateRulePolicy("rule-42", 10, "", "", 7)
	if err != nil {
		t.Fatalf("CreateRulePolicy() error = %v", err)
	}

	applicable := s.ApplicablePolicies("INBOX.junk", "rule-42")
	foundRule := false
	for _, p := range applicable {
		if p.ID == rulePolicy.ID {
			foundRule = true
		}
	}
	if !foundRule {
		t.Fatalf("expected rule policy %s in applicable set, got %+v", rulePolicy.ID, applicable)
	}
}
