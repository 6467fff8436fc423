package retention

import (
	"context"
	"testing"
	"time"
)

func TestSameDate(t *testing.T) {
	a := time.Date(2026, 7, 29, 2, 5, 0, 0, time.UTC)
	b := time.Date(2026, 7, 29, 23, 0, 0, 0, time.UTC)
	c := time.Date(2026, 7, 30, 2, 5, 0, 0, time.UTC)

	if !sameDate(a, b) {
		t.Fatal("expected same-day timestamps to match")
	}
	if sameDate(a, c) {
		t.Fatal("expected different-day timestamps not to match")
	}
}

func TestSchedulerShouldRunRetentionHourGate(t *testing.T) {
	s := &Scheduler{executionHour: 2}
	offHour := time.Date(2026, 7, 29, 14, 0, 0, 0, time.UTC)
	if s.shouldRunRetentionAt(offHour) {
		t.Fatal("expected no run outside the configured execution hour")
	}

	onHour := time.Date(2026, 7, 29, 2, 0, 0, 0, time.UTC)
	if !s.shouldRunRetentionAt(onHour) {
		t.Fatal("expected a run at the configured execution hour with no prior execution")
	}
}

func TestSchedulerShouldRunRetentionSkipsSameDayRerun(t *testing.T) {
	s := &Scheduler{executionHour: 2}
	s.lastExecution = time.Date(2026, 7, 29, 2, 0, 0, 0, time.UTC)

	laterSameDay := time.Date(2026, 7, 29, 2, 30, 0, 0, time.UTC)
	if s.shouldRunRetentionAt(laterSameDay) {
		t.Fatal("expected no re-run within the same day once lastExecution is set")
	}

	nextDay := time.Date(2026, 7, 30, 2, 0, 0, 0, time.UTC)
	if !s.shouldRunRetentionAt(nextDay) {
		t.Fatal("expected a run the next day at the execution hour")
	}
}

func TestSchedulerStatsSnapshot(t *testing.T) {
	s := &Scheduler{}
	s.stats.TotalExecutions = 3
	snapshot := s.Stats()
	if snapshot.TotalExecutions != 3 {
		t.Fatalf("Stats().TotalExecutions = %d, want 3", snapshot.TotalExecutions)
	}
}

func TestSchedulerSleepWithInterruptionHonorsCancel(t *testing.T) {
	s := &Scheduler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if s.sleepWithInterruption(ctx, time.Hour) {
		t.Fatal("expected sleepWithInterruption to return false on a cancelled context")
	}
}
