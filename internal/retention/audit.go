package retention

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// AuditLogger appends one JSON object per line to a plain-text audit log,
// grounded on retention/audit.py's RetentionAuditLogger. Operators can
// `tail -f`/`grep` the file without a running database.
type AuditLogger struct {
	mu   sync.Mutex
	path string
}

// NewAuditLogger opens (creating if needed) the audit log at path.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &AuditLogger{path: path}, nil
}

func (a *AuditLogger) appendEntry(entry map[string]any) error {
	entry["timestamp"] = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// LogRetentionOperation records a stage-1 or stage-2 execution outcome.
func (a *AuditLogger) LogRetentionOperation(stage Stage, policy *Policy, folder string, messagesAffected int, success bool, accountEmail, errorMessage string, executionSeconds float64, dryRun bool) error {
	entry := map[string]any{
		"operation_type":    "retention_operation",
		"stage":             string(stage),
		"folder":            folder,
		"account_email":     accountEmail,
		"messages_affected": messagesAffected,
		"success":           success,
		"error_message":     errorMessage,
		"execution_time_seconds": executionSeconds,
		"dry_run":           dryRun,
	}
	if policy != nil {
		entry["policy_id"] = policy.ID
		entry["policy_name"] = policy.Name
		entry["policy_type"] = policy.PolicyType()
		entry["recovery_window_days"] = policy.TrashRetentionDays
		entry["total_lifecycle_days"] = policy.TotalLifecycleDays()
	}
	return a.appendEntry(entry)
}

// LogPolicyChange records a policy create/update/delete.
func (a *AuditLogger) LogPolicyChange(operation string, policy Policy, oldPolicy *Policy) error {
	entry := map[string]any{
		"operation_type":   "policy_change",
		"change_operation": operation,
		"policy_id":        policy.ID,
		"policy_name":      policy.Name,
		"new_policy":       policy,
	}
	if oldPolicy != nil {
		entry["old_policy"] = *oldPolicy
	}
	return a.appendEntry(entry)
}

// LogTrashOperation records a move-to-trash, restore, or permanent-delete
// action. Only the first 10 UIDs are recorded, matching the original.
func (a *AuditLogger) LogTrashOperation(operation, accountEmail, folder string, messageUIDs []string, success bool, policyID, errorMessage string) error {
	sample := messageUIDs
	if len(sample) > 10 {
		sample = sample[:10]
	}
	entry := map[string]any{
		"operation_type":  "trash_operation",
		"trash_operation": operation,
		"account_email":   accountEmail,
		"folder":          folder,
		"message_count":   len(messageUIDs),
		"message_uids":    sample,
		"success":         success,
		"policy_id":       policyID,
		"error_message":   errorMessage,
	}
	return a.appendEntry(entry)
}

// LogResult records a complete Result as a retention operation entry.
func (a *AuditLogger) LogResult(r Result, accountEmail string, policy *Policy) error {
	return a.LogRetentionOperation(r.Stage, policy, r.Folder, r.EmailsAffected, r.Success, accountEmail, r.ErrorMessage, r.ExecutionTimeSeconds, r.DryRun)
}

// PolicyActivity aggregates one policy's contribution to a Report.
type PolicyActivity struct {
	PolicyName     string
	Operations     int
	EmailsAffected int
}

// ReportError is one failed operation surfaced in a Report.
type ReportError struct {
	Timestamp string
	PolicyID  string
	Error     string
}

// StageActivity aggregates one stage's contribution to a Report.
type StageActivity struct {
	Count  int
	Emails int
}

// Report is generate_retention_report's output: retention activity
// summarized over a date range, grounded on audit.py's dict-shaped
// report translated into a typed struct.
type Report struct {
	StartDate                time.Time
	EndDate                  time.Time
	TotalOperations          int
	SuccessfulOperations     int
	FailedOperations         int
	EmailsMovedToTrash       int
	EmailsPermanentlyDeleted int
	PoliciesApplied          []string
	AccountsAffected         []string
	ByStage                  map[Stage]StageActivity
	ByPolicy                 map[string]PolicyActivity
	Errors                   []ReportError
}

// readEntries reads the audit log, returning decoded entries whose
// timestamp falls in [start, end], newest first, matching
// get_audit_entries. Malformed lines are skipped, a missing file yields
// no entries rather than an error.
func (a *AuditLogger) readEntries(start, end time.Time, limit int) ([]map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		ts, ok := entry["timestamp"].(string)
		if !ok {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		if !start.IsZero() && parsed.Before(start) {
			continue
		}
		if !end.IsZero() && parsed.After(end) {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GenerateReport summarizes retention activity between start and end,
// matching generate_retention_report.
func (a *AuditLogger) GenerateReport(start, end time.Time) (Report, error) {
	entries, err := a.readEntries(start, end, 10000)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		StartDate: start,
		EndDate:   end,
		ByStage: map[Stage]StageActivity{
			StageMoveToTrash:     {},
			StagePermanentDelete: {},
		},
		ByPolicy: map[string]PolicyActivity{},
	}
	policySet := map[string]bool{}
	accountSet := map[string]bool{}

	for _, entry := range entries {
		if entry["operation_type"] != "retention_operation" {
			continue
		}
		report.TotalOperations++

		success, _ := entry["success"].(bool)
		if success {
			report.SuccessfulOperations++
		} else {
			report.FailedOperations++
			if msg, _ := entry["error_message"].(string); msg != "" {
				ts, _ := entry["timestamp"].(string)
				policyID, _ := entry["policy_id"].(string)
				report.Errors = append(report.Errors, ReportError{Timestamp: ts, PolicyID: policyID, Error: msg})
			}
		}

		stage := Stage(fmt.Sprint(entry["stage"]))
		affected := toInt(entry["messages_affected"])
		activity := report.ByStage[stage]
		activity.Count++
		activity.Emails += affected
		report.ByStage[stage] = activity
		switch stage {
		case StageMoveToTrash:
			report.EmailsMovedToTrash += affected
		case StagePermanentDelete:
			report.EmailsPermanentlyDeleted += affected
		}

		if policyID, _ := entry["policy_id"].(string); policyID != "" {
			policySet[policyID] = true
			activity := report.ByPolicy[policyID]
			if activity.PolicyName == "" {
				if name, _ := entry["policy_name"].(string); name != "" {
					activity.PolicyName = name
				} else {
					activity.PolicyName = "Unknown"
				}
			}
			activity.Operations++
			activity.EmailsAffected += affected
			report.ByPolicy[policyID] = activity
		}

		if email, _ := entry["account_email"].(string); email != "" {
			accountSet[email] = true
		}
	}

	for id := range policySet {
		report.PoliciesApplied = append(report.PoliciesApplied, id)
	}
	for email := range accountSet {
		report.AccountsAffected = append(report.AccountsAffected, email)
	}
	sort.Strings(report.PoliciesApplied)
	sort.Strings(report.AccountsAffected)

	return report, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
