package processor

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
)

func TestToSet(t *testing.T) {
	set := toSet([]string{"a@example.com", "b@example.com", "a@example.com"})

	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}
	if !set["a@example.com"] || !set["b@example.com"] {
		t.Fatal("expected both distinct entries present in the set")
	}
	if set["c@example.com"] {
		t.Fatal("expected an absent entry to not be in the set")
	}
}

func TestToSetEmpty(t *testing.T) {
	set := toSet(nil)
	if len(set) != 0 {
		t.Fatalf("len(set) = %d, want 0 for nil input", len(set))
	}
}

func TestProcessManualBatchRejectsOutsideStartupMode(t *testing.T) {
	p := &Processor{
		logger:  zap.NewNop(),
		account: config.Account{Email: "user@example.com"},
		state:   StateRunningMaintenance,
		mode:    ModeMaintenance,
	}

	_, err := p.ProcessManualBatch(context.Background(), 100)
	if err == nil {
		t.Fatal("expected ProcessManualBatch to reject a processor not in startup mode")
	}
}
