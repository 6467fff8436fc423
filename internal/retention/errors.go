// Package retention implements the two-stage retention lifecycle: policy
// storage, audit logging, trash-folder staging, permanent deletion, and
// the daily scheduler that drives both stages (spec §4.4-§4.8), grounded
// on retention/models.py, retention/manager.py, retention/trash_manager.py,
// retention/audit.py, retention/scheduler.py, and retention/exceptions.py.
package retention

import "fmt"

// PolicyNotFoundError reports a lookup against an unknown policy ID.
type PolicyNotFoundError struct {
	PolicyID string
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("retention policy not found: %s", e.PolicyID)
}

// TrashOperationError reports a failed trash-folder operation.
type TrashOperationError struct {
	Operation string
	Folder    string
	Reason    string
}

func (e *TrashOperationError) Error() string {
	return fmt.Sprintf("trash operation %q failed on folder %q: %s", e.Operation, e.Folder, e.Reason)
}

// InvalidRetentionPeriodError reports a retention period below the
// configured minimum.
type InvalidRetentionPeriodError struct {
	Days    int
	MinDays int
}

func (e *InvalidRetentionPeriodError) Error() string {
	return fmt.Sprintf("invalid retention period: %d days (minimum: %d)", e.Days, e.MinDays)
}

// PolicyValidationError reports one or more validation failures for a policy.
type PolicyValidationError struct {
	PolicyID string
	Errors   []string
}

func (e *PolicyValidationError) Error() string {
	msg := ""
	for i, s := range e.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += s
	}
	return fmt.Sprintf("policy validation failed for %q: %s", e.PolicyID, msg)
}

// TrashFolderNotFoundError reports a missing or unconfigured trash folder
// for an account.
type TrashFolderNotFoundError struct {
	AccountEmail string
	FolderName   string
}

func (e *TrashFolderNotFoundError) Error() string {
	if e.FolderName != "" {
		return fmt.Sprintf("trash folder %q not found for account %s", e.FolderName, e.AccountEmail)
	}
	return fmt.Sprintf("no trash folder configured for account %s", e.AccountEmail)
}

// RetentionExecutionError reports a failure while executing a policy at a
// specific lifecycle stage ("stage_1", the move to trash, or "stage_2", the
// permanent delete from trash).
type RetentionExecutionError struct {
	PolicyID string
	Stage    string
	Reason   string
}

func (e *RetentionExecutionError) Error() string {
	return fmt.Sprintf("retention execution failed for policy %q at stage %q: %s", e.PolicyID, e.Stage, e.Reason)
}
