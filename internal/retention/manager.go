package retention

import (
	"context"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/imapclient"
	"github.com/real-pm/mailrulez/internal/metrics"
)

// Manager ties the policy store, trash manager, and audit logger together
// and executes the two-stage lifecycle for a single account, grounded on
// retention/manager.py's RetentionPolicyManager.
type Manager struct {
	Policies *PolicyStore
	Trash    *TrashManager
	Audit    *AuditLogger
	logger   *zap.Logger
}

// NewManager wires a Manager from its three persistence/IO collaborators.
func NewManager(policies *PolicyStore, trash *TrashManager, audit *AuditLogger, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{Policies: policies, Trash: trash, Audit: audit, logger: logger}
}

// findEmailsOlderThan returns UIDs of messages in folder older than days.
func findEmailsOlderThan(ctx context.Context, client *imapclient.Client, folder string, days int) ([]imap.UID, error) {
	headers, err := client.FetchHeaders(ctx, folder, 0)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	var uids []imap.UID
	for _, h := range headers {
		d := h.Date
		if d.IsZero() {
			d = time.Now()
		}
		if d.Before(cutoff) {
			uids = append(uids, h.UID)
		}
	}
	return uids, nil
}

// ExecuteStage1 moves emails older than policy.RetentionDays from folder
// into trash, capped at the configured max-emails-per-operation.
func (m *Manager) ExecuteStage1(ctx context.Context, client *imapclient.Client, account config.Account, policy Policy, folder string, dryRun bool) (Result, error) {
	start := time.Now()
	if folder == "" {
		folder = policy.FolderPattern
	}
	if folder == "" {
		return Result{}, &RetentionExecutionError{PolicyID: policy.ID, Stage: "stage_1", Reason: "no folder specified and policy has no folder_pattern"}
	}

	result := Result{Stage: StageMoveToTrash, PolicyID: policy.ID, Folder: folder, DryRun: dryRun}

	oldUIDs, err := findEmailsOlderThan(ctx, client, folder, policy.RetentionDays)
	if err != nil {
		result.ErrorMessage = err.Error()
		result.ExecutionTimeSeconds = time.Since(start).Seconds()
		m.recordStage1(account, &policy, result)
		if !dryRun {
			return result, &RetentionExecutionError{PolicyID: policy.ID, Stage: "stage_1", Reason: err.Error()}
		}
		return result, nil
	}
	result.EmailsProcessed = len(oldUIDs)

	if len(oldUIDs) == 0 {
		result.Success = true
		result.ExecutionTimeSeconds = time.Since(start).Seconds()
		return result, nil
	}

	maxEmails := m.Policies.Settings().GlobalSettings.MaxEmailsPerOperation
	if maxEmails <= 0 {
		maxEmails = 1000
	}
	if len(oldUIDs) > maxEmails {
		m.logger.Warn("capping retention operation for safety",
			zap.String("policy_id", policy.ID), zap.Int("max_emails", maxEmails), zap.Int("found", len(oldUIDs)))
		oldUIDs = oldUIDs[:maxEmails]
	}

	if dryRun {
		result.EmailsAffected = len(oldUIDs)
		result.Success = true
		result.ExecutionTimeSeconds = time.Since(start).Seconds()
		return result, nil
	}

	moved, moveErr := m.Trash.MoveToTrash(ctx, client, account, oldUIDs, folder, policy.ID)
	result.EmailsAffected = moved
	if moveErr != nil {
		result.ErrorMessage = moveErr.Error()
		result.ExecutionTimeSeconds = time.Since(start).Seconds()
		m.recordStage1(account, &policy, result)
		return result, &RetentionExecutionError{PolicyID: policy.ID, Stage: "stage_1", Reason: moveErr.Error()}
	}

	if err := m.Policies.RecordApplied(policy.ID, moved, 0); err != nil {
		m.logger.Warn("failed to record policy application", zap.Error(err))
	}

	result.Success = true
	result.ExecutionTimeSeconds = time.Since(start).Seconds()
	m.recordStage1(account, &policy, result)
	return result, nil
}

func (m *Manager) recordStage1(account config.Account, policy *Policy, result Result) {
	resultLabel := "success"
	if !result.Success {
		resultLabel = "error"
	}
	metrics.RetentionOperations.WithLabelValues(string(StageMoveToTrash), resultLabel).Inc()
	metrics.RetentionEmailsAffected.WithLabelValues(string(StageMoveToTrash)).Add(float64(result.EmailsAffected))
	if m.Audit != nil {
		_ = m.Audit.LogResult(result, account.Email, policy)
	}
}

// ExecuteStage2 permanently deletes trash messages older than
// trashRetentionDays.
func (m *Manager) ExecuteStage2(ctx context.Context, client *imapclient.Client, account config.Account, trashRetentionDays int, dryRun bool) (Result, error) {
	start := time.Now()
	result := Result{Stage: StagePermanentDelete, PolicyID: "trash-cleanup", Folder: "trash", DryRun: dryRun}

	if dryRun {
		trashFolder, err := m.Trash.GetTrashFolder(ctx, account, client)
		if err != nil {
			result.ErrorMessage = err.Error()
			result.ExecutionTimeSeconds = time.Since(start).Seconds()
			if m.Audit != nil {
				_ = m.Audit.LogResult(result, account.Email, nil)
			}
			return result, nil
		}
		old, err := findEmailsOlderThan(ctx, client, trashFolder, trashRetentionDays)
		if err != nil {
			result.ErrorMessage = err.Error()
			result.ExecutionTimeSeconds = time.Since(start).Seconds()
			if m.Audit != nil {
				_ = m.Audit.LogResult(result, account.Email, nil)
			}
			return result, nil
		}
		result.EmailsAffected = len(old)
		result.Success = true
		result.ExecutionTimeSeconds = time.Since(start).Seconds()
		return result, nil
	}

	deleted, err := m.Trash.CleanupOldTrash(ctx, client, account, trashRetentionDays)
	result.EmailsAffected = deleted
	result.ExecutionTimeSeconds = time.Since(start).Seconds()
	resultLabel := "success"
	if err != nil {
		result.ErrorMessage = err.Error()
		resultLabel = "error"
	} else {
		result.Success = true
	}
	metrics.RetentionOperations.WithLabelValues(string(StagePermanentDelete), resultLabel).Inc()
	metrics.RetentionEmailsAffected.WithLabelValues(string(StagePermanentDelete)).Add(float64(deleted))
	if m.Audit != nil {
		_ = m.Audit.LogResult(result, account.Email, nil)
	}
	if err != nil {
		return result, &RetentionExecutionError{PolicyID: "trash-cleanup", Stage: "stage_2", Reason: err.Error()}
	}
	return result, nil
}

// ExecuteForAccount runs Stage 1 for every active folder policy, then
// Stage 2, returning every Result produced (execute_policies_for_account).
func (m *Manager) ExecuteForAccount(ctx context.Context, client *imapclient.Client, account config.Account, dryRun bool) []Result {
	var results []Result
	settings := m.Policies.Settings()

	for _, p := range settings.AllPolicies() {
		if !p.Active || p.FolderPattern == "" {
			continue
		}
		result, err := m.ExecuteStage1(ctx, client, account, p, "", dryRun)
		if err != nil {
			m.logger.Error("stage 1 execution failed", zap.String("policy_id", p.ID), zap.Error(err))
		}
		results = append(results, result)
	}

	trashDays := settings.GlobalSettings.DefaultTrashRetentionDays
	if trashDays <= 0 {
		trashDays = 7
	}
	result, err := m.ExecuteStage2(ctx, client, account, trashDays, dryRun)
	if err != nil {
		m.logger.Error("stage 2 execution failed", zap.Error(err))
	}
	results = append(results, result)

	return results
}
