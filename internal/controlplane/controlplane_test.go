package controlplane

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/taskmanager"
)

func newTestAdapter(t *testing.T, accounts []config.Account) *Adapter {
	t.Helper()
	loadConfig := func() (*config.Config, error) {
		return nil, errors.New("no config loader configured for this test")
	}
	tasks := taskmanager.New(loadConfig, nil, nil, zap.NewNop())
	return New(tasks, nil, func() []config.Account { return accounts }, zap.NewNop())
}

func TestFindAccountFound(t *testing.T) {
	a := newTestAdapter(t, []config.Account{{Email: "a@example.com"}, {Email: "b@example.com"}})

	acc, err := a.findAccount("b@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Email != "b@example.com" {
		t.Fatalf("Email = %q, want b@example.com", acc.Email)
	}
}

func TestFindAccountNotFound(t *testing.T) {
	a := newTestAdapter(t, []config.Account{{Email: "a@example.com"}})

	if _, err := a.findAccount("missing@example.com"); err == nil {
		t.Fatal("expected an error for an unknown account email")
	}
}

func TestAccountsForEmptyEmailReturnsAll(t *testing.T) {
	accounts := []config.Account{{Email: "a@example.com"}, {Email: "b@example.com"}}
	a := newTestAdapter(t, accounts)

	got, err := a.accountsFor("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestAccountsForSpecificEmailReturnsOne(t *testing.T) {
	accounts := []config.Account{{Email: "a@example.com"}, {Email: "b@example.com"}}
	a := newTestAdapter(t, accounts)

	got, err := a.accountsFor("a@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Email != "a@example.com" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestTaskHistoryDelegatesToTaskManager(t *testing.T) {
	a := newTestAdapter(t, nil)
	if got := a.TaskHistory(10); len(got) != 0 {
		t.Fatalf("expected no task history yet, got %d entries", len(got))
	}
}

func TestAggregateStatsBeforeAnyAccountsLoaded(t *testing.T) {
	a := newTestAdapter(t, nil)
	stats := a.AggregateStats()
	if stats.TotalAccounts != 0 {
		t.Fatalf("TotalAccounts = %d, want 0", stats.TotalAccounts)
	}
}

func TestSystemStatusReportsSchedulerLiveness(t *testing.T) {
	a := newTestAdapter(t, nil)
	status := a.SystemStatus(context.Background(), true)
	if !status.SchedulerRunning {
		t.Fatal("expected SchedulerRunning to reflect the passed-in liveness flag")
	}
}
