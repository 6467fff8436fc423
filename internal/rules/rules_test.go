package rules

import "testing"

func TestConditionMatches(t *testing.T) {
	msg := Message{From: "Notifications <notify@Example.COM>", Subject: "Your Invoice is ready"}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"sender contains case-insensitive", Condition{Type: SenderContains, Value: "example.com"}, true},
		{"sender domain equals", Condition{Type: SenderDomainEquals, Value: "example.com"}, true},
		{"sender domain mismatch", Condition{Type: SenderDomainEquals, Value: "other.com"}, false},
		{"subject contains", Condition{Type: SubjectContains, Value: "invoice"}, true},
		{"subject regex", Condition{Type: SubjectRegex, Value: "^your .* ready$"}, true},
		{"subject exact mismatch", Condition{Type: SubjectExact, Value: "invoice"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Matches(msg, nil); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionSubjectRegexInvalidDoesNotMatch(t *testing.T) {
	cond := Condition{Type: SubjectRegex, Value: "("}
	if cond.Matches(Message{Subject: "anything"}, nil) {
		t.Fatal("invalid regex should never match, not panic or error")
	}
}

func TestRuleMatchesAndLogic(t *testing.T) {
	r := Rule{
		Active:         true,
		ConditionLogic: LogicAll,
		Conditions: []Condition{
			{Type: SenderDomainEquals, Value: "example.com"},
			{Type: SubjectContains, Value: "invoice"},
		},
	}
	if !r.Matches(Message{From: "a@example.com", Subject: "invoice #2"}, nil) {
		t.Error("expected AND match")
	}
	if r.Matches(Message{From: "a@example.com", Subject: "hello"}, nil) {
		t.Error("expected AND mismatch when only one condition holds")
	}
}

func TestRuleInactiveNeverMatches(t *testing.T) {
	r := Rule{
		Active:     false,
		Conditions: []Condition{{Type: SenderContains, Value: "a"}},
	}
	if r.Matches(Message{From: "a@b.com"}, nil) {
		t.Fatal("inactive rule must never match")
	}
}

func TestHasRetentionActionsAndSettings(t *testing.T) {
	days := 30
	r := Rule{
		Active: true,
		Actions: []Action{
			{Type: ActionMoveToFolder, Target: "INBOX.Packages", RetentionDays: &days},
		},
	}
	if !r.HasRetentionActions() {
		t.Fatal("expected retention action to be detected")
	}
	settings, ok := r.RetentionSettings()
	if !ok {
		t.Fatal("expected retention settings")
	}
	if settings.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", settings.RetentionDays)
	}
	if settings.TrashRetentionDays != 7 {
		t.Errorf("TrashRetentionDays default = %d, want 7", settings.TrashRetentionDays)
	}
	if settings.TargetFolder != "INBOX.Packages" {
		t.Errorf("TargetFolder = %q, want INBOX.Packages", settings.TargetFolder)
	}
}

func TestPackageDeliveryTemplateInstantiates(t *testing.T) {
	r := Templates["package_delivery"].Instantiate("user@example.com")
	if r.AccountEmail != "user@example.com" {
		t.Fatalf("AccountEmail = %q", r.AccountEmail)
	}
	if r.ConditionLogic != LogicAny {
		t.Fatalf("ConditionLogic = %q, want OR", r.ConditionLogic)
	}
	if !r.Matches(Message{From: "tracking@fedex.com", Subject: "your package"}, nil) {
		t.Fatal("expected template rule to match a fedex sender")
	}
}
