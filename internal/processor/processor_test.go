package processor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
)

func newTestProcessor() *Processor {
	return &Processor{
		account: config.Account{Email: "user@example.com"},
		state:   StateStopped,
		mode:    ModeStartup,
		logger:  zap.NewNop(),
	}
}

func TestProcessorStartRejectsNonStoppedState(t *testing.T) {
	p := newTestProcessor()
	p.state = StateRunningStartup

	if p.Start(context.Background(), ModeStartup) {
		t.Fatal("expected Start to refuse a processor that isn't stopped")
	}
}

func TestProcessorStopIsIdempotentWhenAlreadyStopped(t *testing.T) {
	p := newTestProcessor()
	if !p.Stop() {
		t.Fatal("expected Stop on an already-stopped processor to report success")
	}
}

func TestProcessorSwitchModeNoopWhenAlreadyInTargetMode(t *testing.T) {
	p := newTestProcessor()
	p.state = StateRunningMaintenance
	p.mode = ModeMaintenance

	if !p.SwitchMode(context.Background(), ModeMaintenance) {
		t.Fatal("expected SwitchMode to report success when already in target mode")
	}
}

func TestProcessorSwitchModeRejectsStoppedState(t *testing.T) {
	p := newTestProcessor()
	p.state = StateStopped
	p.mode = ModeStartup

	if p.SwitchMode(context.Background(), ModeMaintenance) {
		t.Fatal("expected SwitchMode to refuse a stopped processor")
	}
}

func TestProcessorStatusSnapshot(t *testing.T) {
	p := newTestProcessor()
	p.state = StateRunningMaintenance
	p.mode = ModeMaintenance
	p.lastError = "boom"
	p.consecutiveErrors = 2
	p.stats.EmailsProcessed = 7

	status := p.Status()
	if status.AccountEmail != "user@example.com" {
		t.Fatalf("AccountEmail = %q, want user@example.com", status.AccountEmail)
	}
	if status.State != StateRunningMaintenance || status.Mode != ModeMaintenance {
		t.Fatalf("unexpected state/mode in status: %+v", status)
	}
	if status.LastError != "boom" || status.ConsecutiveErrors != 2 {
		t.Fatalf("unexpected error fields in status: %+v", status)
	}
	if status.Stats.EmailsProcessed != 7 {
		t.Fatalf("Stats.EmailsProcessed = %d, want 7", status.Stats.EmailsProcessed)
	}
}

func TestProcessorStatsSnapshotIsACopy(t *testing.T) {
	p := newTestProcessor()
	p.stats.EmailsProcessed = 3

	snapshot := p.StatsSnapshot()
	snapshot.EmailsProcessed = 99

	if p.stats.EmailsProcessed != 3 {
		t.Fatal("expected StatsSnapshot to return a copy, not a reference into live stats")
	}
}

func TestShouldTransitionToMaintenanceRequiresStartupMode(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeMaintenance
	p.stats.ModeStartTime = time.Now().Add(-30 * 24 * time.Hour)

	if p.ShouldTransitionToMaintenance() {
		t.Fatal("expected no transition recommendation once already in maintenance mode")
	}
}

func TestShouldTransitionToMaintenanceRequiresMinimumAge(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeStartup
	p.stats.ModeStartTime = time.Now().Add(-24 * time.Hour)
	p.stats.EmailsPending = 0

	if p.ShouldTransitionToMaintenance() {
		t.Fatal("expected no transition recommendation before 14 days in startup mode")
	}
}

func TestShouldTransitionToMaintenanceRequiresLowPendingCount(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeStartup
	p.stats.ModeStartTime = time.Now().Add(-20 * 24 * time.Hour)
	p.stats.EmailsPending = 500

	if p.ShouldTransitionToMaintenance() {
		t.Fatal("expected no transition recommendation with a high pending count")
	}
}

func TestShouldTransitionToMaintenanceRequiresNoRecentConsecutiveErrors(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeStartup
	p.stats.ModeStartTime = time.Now().Add(-20 * 24 * time.Hour)
	p.stats.EmailsPending = 10
	p.consecutiveErrors = 1

	if p.ShouldTransitionToMaintenance() {
		t.Fatal("expected no transition recommendation with outstanding consecutive errors")
	}
}

func TestShouldTransitionToMaintenanceRequiresLowErrorRate(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeStartup
	p.stats.ModeStartTime = time.Now().Add(-20 * 24 * time.Hour)
	p.stats.EmailsPending = 10
	p.stats.EmailsProcessed = 100
	p.stats.ErrorCount = 20

	if p.ShouldTransitionToMaintenance() {
		t.Fatal("expected no transition recommendation with a 20% error rate")
	}
}

func TestShouldTransitionToMaintenanceTrueWhenAllConditionsMet(t *testing.T) {
	p := newTestProcessor()
	p.mode = ModeStartup
	p.stats.ModeStartTime = time.Now().Add(-20 * 24 * time.Hour)
	p.stats.EmailsPending = 10
	p.stats.EmailsProcessed = 1000
	p.stats.ErrorCount = 1

	if !p.ShouldTransitionToMaintenance() {
		t.Fatal("expected a transition recommendation once every condition is satisfied")
	}
}
