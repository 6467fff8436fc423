package rules

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rules.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStoreAddAssignsIDAndPersists(t *testing.T) {
	s := newTestStore(t)
	added, err := s.Add(Rule{Name: "test rule", Conditions: []Condition{{Type: SenderContains, Value: "a"}}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected a generated ID")
	}

	reopened, err := Open(s.path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := reopened.Get(added.ID); !ok {
		t.Fatal("expected rule to survive reload")
	}
}

func TestStoreOrdersByPriority(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Add(Rule{Name: "low priority wins first", Priority: 10, Conditions: []Condition{{Type: SenderContains, Value: "a"}}})
	_, _ = s.Add(Rule{Name: "high priority number", Priority: 90, Conditions: []Condition{{Type: SenderContains, Value: "b"}}})

	all := s.All()
	if len(all) != 2 || all[0].Priority != 10 || all[1].Priority != 90 {
		t.Fatalf("All() not sorted by ascending priority: %+v", all)
	}
}

func TestStoreRejectsUnknownConditionType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(Rule{Name: "bad", Conditions: []Condition{{Type: "not_a_real_type", Value: "x"}}})
	if err == nil {
		t.Fatal("expected validation error for unknown condition type")
	}
}

func TestStoreDeleteIsNoOpForMissingID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("does-not-exist"); err != nil {
		t.Fatalf("Delete of missing rule should not error: %v", err)
	}
}

func TestMatchingActionsConcatenatesAcrossRules(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Add(Rule{
		Name:       "r1",
		Active:     true,
		Priority:   10,
		Conditions: []Condition{{Type: SenderDomainEquals, Value: "example.com"}},
		Actions:    []Action{{Type: ActionMarkRead, Target: ""}},
	})
	_, _ = s.Add(Rule{
		Name:       "r2",
		Active:     true,
		Priority:   20,
		Conditions: []Condition{{Type: SubjectContains, Value: "invoice"}},
		Actions:    []Action{{Type: ActionMoveToFolder, Target: "INBOX.Receipts"}},
	})

	actions := s.MatchingActions(Message{From: "a@example.com", Subject: "invoice #9"}, nil)
	if len(actions) != 2 {
		t.Fatalf("MatchingActions() = %v, want 2 actions from both rules", actions)
	}
}
