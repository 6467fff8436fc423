// Package processor runs the per-account email processing state machine:
// startup batch processing, maintenance-mode periodic jobs, and the
// training-folder/rules pipeline, grounded on
// _examples/original_source/services/email_processor.py.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/imapclient"
	"github.com/real-pm/mailrulez/internal/lists"
	"github.com/real-pm/mailrulez/internal/metrics"
	"github.com/real-pm/mailrulez/internal/rules"
)

// State is a processor's lifecycle state.
type State string

const (
	StateStopped            State = "stopped"
	StateStarting           State = "starting"
	StateRunningStartup     State = "running_startup"
	StateRunningMaintenance State = "running_maintenance"
	StateStopping           State = "stopping"
	StateError              State = "error"
)

// Mode is the processing strategy currently in effect.
type Mode string

const (
	ModeStartup     Mode = "startup"
	ModeMaintenance Mode = "maintenance"
)

const maxConsecutiveErrors = 5

// inbox batch sizes, matching the original's startup/maintenance split.
const (
	startupBatchSize     = 100
	maintenanceBatchSize = 200
)

// maintenance-mode job intervals in minutes (spec: 5/4/1).
const (
	inboxIntervalMinutes      = 5
	folderIntervalMinutes     = 4
	forwardingIntervalMinutes = 1
)

// Stats mirrors ServiceStats: running counters plus timing for the
// currently-active mode.
type Stats struct {
	EmailsProcessed   int
	EmailsPending     int
	LastRun           time.Time
	TotalRuntime      time.Duration
	ErrorCount        int
	AvgProcessingTime float64
	ModeStartTime     time.Time
}

// BatchResult is returned from ProcessManualBatch, the "Process Next 100"
// dashboard action.
type BatchResult struct {
	Success         bool
	ProcessingTime  time.Duration
	EmailsProcessed int
	EmailsPending   int
	TrainingFolders map[string]TrainingFolderResult
	Error           string
}

// TrainingFolderResult reports one training-folder pass.
type TrainingFolderResult struct {
	Success    bool
	Source     string
	Dest       string
	NewEntries int
	Moved      int
	Error      string
}

// FolderStatus reports which required folders exist and which are missing.
type FolderStatus struct {
	Existing []string
	Required map[string]string
	Missing  map[string]string
}

// Processor owns a single account's IMAP session, rule/list stores, and
// its own background cron for maintenance-mode jobs. It is not shared
// across goroutines except through its exported methods. Those that read or
// change processor state take the internal lock; InboxCount and
// GetFolderStatus only talk to the IMAP server and do not.
type Processor struct {
	account config.Account
	lists   *lists.Store
	ruleSet *rules.Store
	logger  *zap.Logger

	// approvedAdsRetentionDays is the legacy per-folder purge setting
	// (config.get_retention_setting("approved_ads")) applied to the
	// approved_ads folder right after vendor emails land there.
	approvedAdsRetentionDays int

	mu                sync.Mutex
	state             State
	mode              Mode
	stats             Stats
	lastError         string
	consecutiveErrors int

	cron *cron.Cron
	jobs chan func(context.Context)
	quit chan struct{}
}

// New builds a Processor for account. lists and ruleSet are shared,
// process-wide stores; a fresh IMAP client is opened per operation so no
// session is held across jobs, per the no-shared-mutable-IMAP-session rule.
// approvedAdsRetentionDays is the legacy retention window (in days) to
// purge from the approved_ads folder after each vendor-mail move; 0
// disables the purge.
func New(account config.Account, listStore *lists.Store, ruleSet *rules.Store, logger *zap.Logger, approvedAdsRetentionDays int) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		account:                  account,
		lists:                    listStore,
		ruleSet:                  ruleSet,
		logger:                   logger.With(zap.String("account", account.Email)),
		state:                    StateStopped,
		mode:                     ModeStartup,
		approvedAdsRetentionDays: approvedAdsRetentionDays,
	}
}

func (p *Processor) newClient() *imapclient.Client {
	return imapclient.New(p.account, p.logger)
}

// Start transitions STOPPED -> STARTING -> RUNNING_*, testing the
// connection and provisioning required folders before scheduling any jobs.
func (p *Processor) Start(ctx context.Context, mode Mode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateStopped {
		p.logger.Warn("cannot start service in current state", zap.String("state", string(p.state)))
		return false
	}

	p.state = StateStarting
	p.mode = mode
	p.stats.ModeStartTime = time.Now()
	p.logger.Info("starting email processing service", zap.String("mode", string(mode)))

	client := p.newClient()
	defer client.Logout(ctx)

	if err := p.testConnection(ctx, client); err != nil {
		p.state = StateError
		p.lastError = err.Error()
		p.logger.Error("connection test failed", zap.Error(err))
		return false
	}

	if _, err := p.validateAndSetupFoldersLocked(ctx, client); err != nil {
		p.state = StateError
		p.lastError = fmt.Sprintf("folder setup failed: %v", err)
		p.logger.Error("folder setup failed", zap.Error(err))
		return false
	}

	p.setupJobsLocked()

	if mode == ModeStartup {
		p.state = StateRunningStartup
	} else {
		p.state = StateRunningMaintenance
	}
	p.updateStateMetric()
	p.logger.Info("email processing service started")
	return true
}

// Stop tears down the cron scheduler and the job worker, returning to
// STOPPED.
func (p *Processor) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped || p.state == StateStopping {
		return true
	}

	p.state = StateStopping
	p.logger.Info("stopping email processing service")

	if p.cron != nil {
		cronCtx := p.cron.Stop()
		<-cronCtx.Done()
		p.cron = nil
	}
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.jobs = nil

	p.state = StateStopped
	p.updateStateMetric()
	p.logger.Info("email processing service stopped")
	return true
}

// Restart stops then starts the processor back in its current mode.
func (p *Processor) Restart(ctx context.Context) bool {
	p.mu.Lock()
	mode := p.mode
	p.mu.Unlock()

	if !p.Stop() {
		return false
	}
	return p.Start(ctx, mode)
}

// SwitchMode moves between startup and maintenance mode, rebuilding the
// cron jobs for the new mode.
func (p *Processor) SwitchMode(ctx context.Context, newMode Mode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == newMode {
		return true
	}
	if p.state != StateRunningStartup && p.state != StateRunningMaintenance {
		p.logger.Warn("cannot switch mode in current state", zap.String("state", string(p.state)))
		return false
	}

	p.logger.Info("switching mode", zap.String("from", string(p.mode)), zap.String("to", string(newMode)))

	if p.cron != nil {
		cronCtx := p.cron.Stop()
		<-cronCtx.Done()
		p.cron = nil
	}

	p.mode = newMode
	if newMode == ModeStartup {
		p.state = StateRunningStartup
	} else {
		p.state = StateRunningMaintenance
	}
	p.stats.ModeStartTime = time.Now()

	p.setupJobsLocked()
	p.updateStateMetric()
	p.logger.Info("mode switch complete")
	return true
}

func (p *Processor) testConnection(ctx context.Context, client *imapclient.Client) error {
	return client.Select(ctx, "INBOX")
}

// EnsureFolders provisions any missing required folder on demand, the
// control-plane counterpart to the folder setup Start performs
// automatically, matching create_folders(email, confirm).
func (p *Processor) EnsureFolders(ctx context.Context) (FolderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client := p.newClient()
	defer client.Logout(ctx)
	return p.validateAndSetupFoldersLocked(ctx, client)
}

// InboxCount reports how many messages currently sit in INBOX, matching
// inbox_count(email).
func (p *Processor) InboxCount(ctx context.Context) (int, error) {
	client := p.newClient()
	defer client.Logout(ctx)

	headers, err := client.FetchHeaders(ctx, "INBOX", 0)
	if err != nil {
		return 0, err
	}
	return len(headers), nil
}

func (p *Processor) updateStateMetric() {
	for _, s := range []State{StateStopped, StateStarting, StateRunningStartup, StateRunningMaintenance, StateStopping, StateError} {
		val := 0.0
		if s == p.state {
			val = 1.0
		}
		metrics.ProcessorState.WithLabelValues(p.account.Email, string(s)).Set(val)
	}
}

// Status reports the processor's externally visible state, matching
// get_status.
type Status struct {
	AccountEmail      string
	State             State
	Mode              Mode
	Stats             Stats
	LastError         string
	ConsecutiveErrors int
}

// Status returns the processor's current status.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		AccountEmail:      p.account.Email,
		State:             p.state,
		Mode:              p.mode,
		Stats:             p.stats,
		LastError:         p.lastError,
		ConsecutiveErrors: p.consecutiveErrors,
	}
}

// StatsSnapshot returns an atomic copy of the processor's statistics,
// safe for concurrent aggregation by the task manager.
func (p *Processor) StatsSnapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ShouldTransitionToMaintenance implements the original's auto-transition
// predicate: fewer than 50 pending emails, at least 14 days in startup
// mode, no recent errors, and an error rate under 5%.
func (p *Processor) ShouldTransitionToMaintenance() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != ModeStartup {
		return false
	}
	if p.stats.ModeStartTime.IsZero() {
		return false
	}
	if p.stats.EmailsPending >= 50 {
		return false
	}
	if time.Since(p.stats.ModeStartTime) < 14*24*time.Hour {
		return false
	}
	if p.consecutiveErrors != 0 {
		return false
	}
	processed := p.stats.EmailsProcessed
	if processed == 0 {
		processed = 1
	}
	errorRate := float64(p.stats.ErrorCount) / float64(processed)
	return errorRate < 0.05
}
