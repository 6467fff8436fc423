package retention

import "testing"

func TestPolicyNotFoundErrorMessage(t *testing.T) {
	err := &PolicyNotFoundError{PolicyID: "p1"}
	want := "retention policy not found: p1"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidRetentionPeriodErrorMessage(t *testing.T) {
	err := &InvalidRetentionPeriodError{Days: 0, MinDays: 1}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestPolicyValidationErrorMessage(t *testing.T) {
	err := &PolicyValidationError{PolicyID: "p1", Errors: []string{"bad field"}}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestTrashFolderNotFoundErrorMessage(t *testing.T) {
	err := &TrashFolderNotFoundError{AccountEmail: "user@example.com", FolderName: "trash"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestRetentionExecutionErrorMessage(t *testing.T) {
	err := &RetentionExecutionError{PolicyID: "p1", Stage: "stage_1", Reason: "boom"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
