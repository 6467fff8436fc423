// Package controlplane is the thin library boundary between the engine
// and an external control surface (dashboard, CLI, future HTTP API): the
// operation table in SPEC_FULL.md §6, implemented as plain Go methods
// rather than an HTTP framework — no transport is bundled here. Every
// exported type is already a Go value; flattening to {success, error}
// belongs to whatever adapter eventually wraps this package for the
// wire, not to the package itself.
package controlplane

import (
	"context"
	"fmt"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/imapclient"
	"github.com/real-pm/mailrulez/internal/processor"
	"github.com/real-pm/mailrulez/internal/retention"
	"github.com/real-pm/mailrulez/internal/taskmanager"
)

// Adapter wires the task manager, retention manager, and live account
// list behind the operation table consumed by an external control
// surface, grounded on the original's Flask route handlers calling
// straight into TaskManager/RetentionPolicyManager.
type Adapter struct {
	tasks     *taskmanager.Manager
	retention *retention.Manager
	accounts  func() []config.Account
	logger    *zap.Logger
}

// New builds an Adapter. accounts is called fresh on every retention
// operation so a config reload is picked up without restarting.
func New(tasks *taskmanager.Manager, retentionMgr *retention.Manager, accounts func() []config.Account, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{tasks: tasks, retention: retentionMgr, accounts: accounts, logger: logger.Named("controlplane")}
}

// SystemStatus is system_status's output.
type SystemStatus struct {
	Fleet            taskmanager.FleetStatus
	Accounts         map[string]processor.Status
	SchedulerRunning bool
}

// SystemStatus reports every processor's state alongside the fleet
// summary and scheduler liveness.
func (a *Adapter) SystemStatus(ctx context.Context, schedulerRunning bool) SystemStatus {
	fleet, accounts := a.tasks.GetAllStatus(ctx)
	return SystemStatus{Fleet: fleet, Accounts: accounts, SchedulerRunning: schedulerRunning}
}

// AggregateStats is aggregate_stats's output.
func (a *Adapter) AggregateStats() taskmanager.AggregateStats {
	return a.tasks.AggregateStats()
}

// AccountStatus is account_status(email)'s output.
func (a *Adapter) AccountStatus(email string) (processor.Status, bool) {
	return a.tasks.GetAccountStatus(email)
}

// FolderStatus is folder_status(email)'s output.
func (a *Adapter) FolderStatus(ctx context.Context, email string) (processor.FolderStatus, error) {
	return a.tasks.FolderStatus(ctx, email)
}

// CreateFolders is create_folders(email, confirm)'s output. confirm is a
// UI-layer gate belonging to whatever wraps this adapter; by the time
// this method runs, the caller has already confirmed the action.
func (a *Adapter) CreateFolders(ctx context.Context, email string) (processor.FolderStatus, error) {
	return a.tasks.CreateFolders(ctx, email)
}

// Start is start(email, mode).
func (a *Adapter) Start(ctx context.Context, email string, mode processor.Mode) bool {
	return a.tasks.StartAccount(ctx, email, mode)
}

// Stop is stop(email).
func (a *Adapter) Stop(email string) bool {
	return a.tasks.StopAccount(email)
}

// Restart is restart(email).
func (a *Adapter) Restart(ctx context.Context, email string) bool {
	return a.tasks.RestartAccount(ctx, email)
}

// SwitchMode is switch_mode(email, mode).
func (a *Adapter) SwitchMode(ctx context.Context, email string, mode processor.Mode) bool {
	return a.tasks.SwitchMode(ctx, email, mode)
}

// ProcessBatch is process_batch(email, limit), limit clamped to [1,500].
func (a *Adapter) ProcessBatch(ctx context.Context, email string, limit int) (processor.BatchResult, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	return a.tasks.ProcessBatch(ctx, email, limit)
}

// InboxCount is inbox_count(email).
func (a *Adapter) InboxCount(ctx context.Context, email string) (int, error) {
	return a.tasks.InboxCount(ctx, email)
}

// BulkStart is bulk_start(mode). Only ModeStartup/ModeMaintenance are
// meaningful; StartAll always starts in startup mode per the original's
// start_all (accounts transition to maintenance on their own schedule),
// so mode is accepted for interface symmetry with bulk operations and
// switches every account afterward when it differs from startup.
func (a *Adapter) BulkStart(ctx context.Context, mode processor.Mode) map[string]bool {
	results := a.tasks.StartAll(ctx)
	if mode == processor.ModeMaintenance {
		for email, ok := range results {
			if ok {
				a.tasks.SwitchMode(ctx, email, processor.ModeMaintenance)
			}
		}
	}
	return results
}

// BulkStop is bulk_stop.
func (a *Adapter) BulkStop(ctx context.Context) map[string]bool {
	return a.tasks.StopAll(ctx)
}

// RefreshResult is refresh_accounts's output: before/after counts.
type RefreshResult struct {
	AccountsBefore int
	AccountsAfter  int
}

// RefreshAccounts is refresh_accounts.
func (a *Adapter) RefreshAccounts() (RefreshResult, error) {
	before := a.tasks.AggregateStats().TotalAccounts
	if err := a.tasks.RefreshAccountsFromConfig(); err != nil {
		return RefreshResult{AccountsBefore: before, AccountsAfter: before}, err
	}
	after := a.tasks.AggregateStats().TotalAccounts
	return RefreshResult{AccountsBefore: before, AccountsAfter: after}, nil
}

// TaskHistory is task_history(limit).
func (a *Adapter) TaskHistory(limit int) []taskmanager.TaskEntry {
	return a.tasks.GetTaskHistory(limit)
}

func (a *Adapter) findAccount(email string) (config.Account, error) {
	for _, acc := range a.accounts() {
		if acc.Email == email {
			return acc, nil
		}
	}
	return config.Account{}, fmt.Errorf("account %s not found", email)
}

func (a *Adapter) accountsFor(email string) ([]config.Account, error) {
	if email == "" {
		return a.accounts(), nil
	}
	acc, err := a.findAccount(email)
	if err != nil {
		return nil, err
	}
	return []config.Account{acc}, nil
}

// RetentionPreview is retention.preview(email?, policy_id?)'s output: a
// dry-run aggregate across every matched account.
type RetentionPreview struct {
	Results []retention.Result
}

// RetentionPreview runs every applicable policy in dry-run mode for the
// given account (or every account when email is empty). When policyID is
// non-empty, only the Results whose PolicyID equals it are returned; every
// applicable policy still runs its dry-run pass.
func (a *Adapter) RetentionPreview(ctx context.Context, email, policyID string) (RetentionPreview, error) {
	accounts, err := a.accountsFor(email)
	if err != nil {
		return RetentionPreview{}, err
	}

	var results []retention.Result
	for _, acc := range accounts {
		client := imapclient.New(acc, a.logger)
		accountResults := a.retention.ExecuteForAccount(ctx, client, acc, true)
		_ = client.Logout(ctx)
		for _, r := range accountResults {
			if policyID != "" && r.PolicyID != policyID {
				continue
			}
			results = append(results, r)
		}
	}
	return RetentionPreview{Results: results}, nil
}

// RetentionExecuteResult is retention.execute(email?, policy_id?,
// dry_run)'s per-stage output.
type RetentionExecuteResult struct {
	Results []retention.Result
}

// RetentionExecute runs retention for the given account (or every
// account when email is empty), live or dry-run.
func (a *Adapter) RetentionExecute(ctx context.Context, email, policyID string, dryRun bool) (RetentionExecuteResult, error) {
	accounts, err := a.accountsFor(email)
	if err != nil {
		return RetentionExecuteResult{}, err
	}

	var results []retention.Result
	for _, acc := range accounts {
		client := imapclient.New(acc, a.logger)
		accountResults := a.retention.ExecuteForAccount(ctx, client, acc, dryRun)
		_ = client.Logout(ctx)
		for _, r := range accountResults {
			if policyID != "" && r.PolicyID != policyID {
				continue
			}
			results = append(results, r)
		}
	}
	return RetentionExecuteResult{Results: results}, nil
}

// RetentionAudit is retention.audit(days_back)'s output.
func (a *Adapter) RetentionAudit(daysBack int) (retention.Report, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	return a.retention.Audit.GenerateReport(start, end)
}

// TrashContents is trash.contents(email)'s output.
func (a *Adapter) TrashContents(ctx context.Context, email string) ([]retention.TrashItem, error) {
	acc, err := a.findAccount(email)
	if err != nil {
		return nil, err
	}
	client := imapclient.New(acc, a.logger)
	defer client.Logout(ctx)
	return a.retention.Trash.GetTrashContents(ctx, client, acc)
}

// TrashRestore is trash.restore(email, uids, target)'s output: the
// count of messages restored.
func (a *Adapter) TrashRestore(ctx context.Context, email string, uids []imap.UID, target string) (int, error) {
	acc, err := a.findAccount(email)
	if err != nil {
		return 0, err
	}
	client := imapclient.New(acc, a.logger)
	defer client.Logout(ctx)
	return a.retention.Trash.RestoreFromTrash(ctx, client, acc, uids, target)
}
