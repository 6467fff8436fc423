// Package taskmanager is the fleet registry over per-account processors:
// add/remove/start/stop/restart, aggregate status and statistics, and an
// hourly auto-transition sweep, grounded on
// _examples/original_source/services/task_manager.py's TaskManager. Unlike
// the original's module-level get_task_manager() singleton, a Manager is
// built once and owned by the process container (cmd/mailrulez/main.go).
package taskmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/lists"
	"github.com/real-pm/mailrulez/internal/processor"
	"github.com/real-pm/mailrulez/internal/rules"
)

const (
	maxHistorySize           = 1000
	transitionCheckInterval  = time.Hour
	maxConcurrentFleetAction = 4
)

// TaskEntry is one entry in the ring-buffered task history.
type TaskEntry struct {
	Timestamp time.Time
	Type      string
	Details   map[string]string
}

// FleetStatus is the task-manager-wide summary returned by GetAllStatus,
// alongside every account's individual processor.Status.
type FleetStatus struct {
	StartupTime         time.Time
	TotalAccounts       int
	RunningAccounts     int
	ErrorAccounts       int
	LastTransitionCheck time.Time
}

// AggregateStats mirrors get_aggregate_stats, including its "not yet
// initialized" minimal-stats guard.
type AggregateStats struct {
	TotalAccounts           int
	RunningAccounts         int
	StartupModeAccounts     int
	MaintenanceModeAccounts int
	TotalEmailsProcessed    int
	TotalEmailsPending      int
	TotalErrors             int
	AvgProcessingTime       float64
	ErrorRate               float64
}

// Manager is the fleet registry. loadConfig is called on demand to reload
// accounts from disk (LoadAccountsFromConfig/RefreshAccountsFromConfig,
// and the auto-recovery path in getProcessor), mirroring the original's
// fresh Config(...) re-instantiation on every reload.
type Manager struct {
	loadConfig func() (*config.Config, error)
	lists      *lists.Store
	ruleSet    *rules.Store
	logger     *zap.Logger

	mu          sync.Mutex
	processors  map[string]*processor.Processor
	startupTime time.Time
	initialized bool

	taskHistory []TaskEntry

	lastTransitionCheck time.Time
}

// New builds a Manager. loadConfig should reload the configuration file
// fresh on every call, the way the original re-instantiates Config.
func New(loadConfig func() (*config.Config, error), listStore *lists.Store, ruleSet *rules.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		loadConfig:          loadConfig,
		lists:               listStore,
		ruleSet:             ruleSet,
		logger:              logger.Named("taskmanager"),
		processors:          make(map[string]*processor.Processor),
		startupTime:         time.Now(),
		lastTransitionCheck: time.Now(),
	}
}

// AddAccount registers a new processor for account. Returns false if the
// account is already registered. approvedAdsRetentionDays is threaded
// through to the processor's legacy approved_ads purge
// (config.RetentionSetting("approved_ads")).
func (m *Manager) AddAccount(account config.Account, approvedAdsRetentionDays int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.processors[account.Email]; exists {
		m.logger.Warn("account already exists", zap.String("account", account.Email))
		return false
	}

	m.processors[account.Email] = processor.New(account, m.lists, m.ruleSet, m.logger, approvedAdsRetentionDays)
	m.logger.Info("added account for processing", zap.String("account", account.Email))
	m.logTaskLocked("account_added", map[string]string{"account": account.Email})
	return true
}

// RemoveAccount stops (if running) and deregisters an account's processor.
func (m *Manager) RemoveAccount(email string) bool {
	m.mu.Lock()
	p, exists := m.processors[email]
	if !exists {
		m.mu.Unlock()
		m.logger.Warn("account not found", zap.String("account", email))
		return false
	}
	delete(m.processors, email)
	m.logTaskLocked("account_removed", map[string]string{"account": email})
	m.mu.Unlock()

	p.Stop()
	m.logger.Info("removed account", zap.String("account", email))
	return true
}

// StartAccount starts the named account's processor in mode, auto-
// recovering the processor from configuration if it isn't registered.
func (m *Manager) StartAccount(ctx context.Context, email string, mode processor.Mode) bool {
	p, ok := m.getProcessor(email)
	if !ok {
		return false
	}
	result := p.Start(ctx, mode)
	if result {
		m.logTask("service_started", map[string]string{"account": email, "mode": string(mode)})
	}
	return result
}

// StopAccount stops the named account's processor.
func (m *Manager) StopAccount(email string) bool {
	p, ok := m.getProcessor(email)
	if !ok {
		return false
	}
	result := p.Stop()
	if result {
		m.logTask("service_stopped", map[string]string{"account": email})
	}
	return result
}

// RestartAccount restarts the named account's processor.
func (m *Manager) RestartAccount(ctx context.Context, email string) bool {
	p, ok := m.getProcessor(email)
	if !ok {
		return false
	}
	result := p.Restart(ctx)
	if result {
		m.logTask("service_restarted", map[string]string{"account": email})
	}
	return result
}

// SwitchMode switches the named account's processing mode.
func (m *Manager) SwitchMode(ctx context.Context, email string, mode processor.Mode) bool {
	p, ok := m.getProcessor(email)
	if !ok {
		return false
	}
	result := p.SwitchMode(ctx, mode)
	if result {
		m.logTask("mode_switched", map[string]string{"account": email, "new_mode": string(mode)})
	}
	return result
}

// GetAccountStatus returns a single account's processor status.
func (m *Manager) GetAccountStatus(email string) (processor.Status, bool) {
	p, ok := m.getProcessor(email)
	if !ok {
		return processor.Status{}, false
	}
	return p.Status(), true
}

// FolderStatus reports the named account's folder provisioning state
// without creating anything, matching folder_status(email).
func (m *Manager) FolderStatus(ctx context.Context, email string) (processor.FolderStatus, error) {
	p, ok := m.getProcessor(email)
	if !ok {
		return processor.FolderStatus{}, fmt.Errorf("account %s not found", email)
	}
	return p.GetFolderStatus(ctx)
}

// CreateFolders provisions any missing required folder for the named
// account, matching create_folders(email, confirm) — the confirm gate
// itself belongs to the HTTP collaborator, not this library boundary.
func (m *Manager) CreateFolders(ctx context.Context, email string) (processor.FolderStatus, error) {
	p, ok := m.getProcessor(email)
	if !ok {
		return processor.FolderStatus{}, fmt.Errorf("account %s not found", email)
	}
	return p.EnsureFolders(ctx)
}

// ProcessBatch runs the startup-mode manual batch for the named account,
// matching process_batch(email, limit).
func (m *Manager) ProcessBatch(ctx context.Context, email string, limit int) (processor.BatchResult, error) {
	p, ok := m.getProcessor(email)
	if !ok {
		return processor.BatchResult{}, fmt.Errorf("account %s not found", email)
	}
	return p.ProcessManualBatch(ctx, limit)
}

// InboxCount reports the named account's current INBOX message count,
// matching inbox_count(email).
func (m *Manager) InboxCount(ctx context.Context, email string) (int, error) {
	p, ok := m.getProcessor(email)
	if !ok {
		return 0, fmt.Errorf("account %s not found", email)
	}
	return p.InboxCount(ctx)
}

// GetAllStatus returns the fleet-wide summary plus every account's
// status, and as a side effect runs the rate-limited auto-transition
// sweep, matching get_all_status's inline _check_auto_transitions call.
func (m *Manager) GetAllStatus(ctx context.Context) (FleetStatus, map[string]processor.Status) {
	m.mu.Lock()
	accounts := make(map[string]processor.Status, len(m.processors))
	running, failed := 0, 0
	for email, p := range m.processors {
		status := p.Status()
		accounts[email] = status
		switch status.State {
		case processor.StateRunningStartup, processor.StateRunningMaintenance:
			running++
		case processor.StateError:
			failed++
		}
	}
	fleet := FleetStatus{
		StartupTime:         m.startupTime,
		TotalAccounts:       len(m.processors),
		RunningAccounts:     running,
		ErrorAccounts:       failed,
		LastTransitionCheck: m.lastTransitionCheck,
	}
	m.mu.Unlock()

	m.checkAutoTransitions(ctx)
	return fleet, accounts
}

// AggregateStats returns fleet-wide aggregated statistics. Before the
// fleet has finished loading accounts (LoadAccountsFromConfig hasn't
// completed), it returns conservative minimal stats rather than racing
// the load, matching get_aggregate_stats's "not yet initialized" guard.
func (m *Manager) AggregateStats() AggregateStats {
	m.mu.Lock()
	initialized := m.initialized
	accountCount := len(m.processors)
	if !initialized {
		m.mu.Unlock()
		m.logger.Debug("stats requested before initialization complete, returning minimal stats")
		return AggregateStats{TotalAccounts: accountCount}
	}

	snapshots := make([]processor.Status, 0, len(m.processors))
	for _, p := range m.processors {
		snapshots = append(snapshots, p.Status())
	}
	m.mu.Unlock()

	var totalProcessed, totalPending, totalErrors int
	var avgTimes []float64
	var running, startupCount, maintenanceCount int

	for _, s := range snapshots {
		totalProcessed += s.Stats.EmailsProcessed
		totalPending += s.Stats.EmailsPending
		totalErrors += s.Stats.ErrorCount
		if s.Stats.AvgProcessingTime > 0 {
			avgTimes = append(avgTimes, s.Stats.AvgProcessingTime)
		}
		if s.State == processor.StateRunningStartup || s.State == processor.StateRunningMaintenance {
			running++
		}
		if s.Mode == processor.ModeStartup {
			startupCount++
		} else {
			maintenanceCount++
		}
	}

	var avgProcessingTime float64
	if len(avgTimes) > 0 {
		var sum float64
		for _, t := range avgTimes {
			sum += t
		}
		avgProcessingTime = sum / float64(len(avgTimes))
	}

	denominator := totalProcessed
	if denominator < 1 {
		denominator = 1
	}

	return AggregateStats{
		TotalAccounts:           accountCount,
		RunningAccounts:         running,
		StartupModeAccounts:     startupCount,
		MaintenanceModeAccounts: maintenanceCount,
		TotalEmailsProcessed:    totalProcessed,
		TotalEmailsPending:      totalPending,
		TotalErrors:             totalErrors,
		AvgProcessingTime:       avgProcessingTime,
		ErrorRate:               float64(totalErrors) / float64(denominator),
	}
}

// StartAll starts every registered account, fanned out across a bounded
// worker pool rather than the original's (declared-but-unused)
// ThreadPoolExecutor.
func (m *Manager) StartAll(ctx context.Context) map[string]bool {
	emails := m.accountEmails()
	results := m.fanOut(ctx, emails, func(ctx context.Context, email string) bool {
		return m.StartAccount(ctx, email, processor.ModeStartup)
	})
	m.logger.Info("started all accounts", zap.Int("successful", countTrue(results)), zap.Int("total", len(results)))
	return results
}

// StopAll stops every registered account, fanned out the same way.
func (m *Manager) StopAll(ctx context.Context) map[string]bool {
	emails := m.accountEmails()
	results := m.fanOut(ctx, emails, func(_ context.Context, email string) bool {
		return m.StopAccount(email)
	})
	m.logger.Info("stopped all accounts", zap.Int("successful", countTrue(results)), zap.Int("total", len(results)))
	return results
}

// Shutdown stops every processor and waits for the fan-out to drain.
func (m *Manager) Shutdown(ctx context.Context) {
	m.logger.Info("shutting down task manager")
	m.StopAll(ctx)
	m.logger.Info("task manager shutdown complete")
}

func (m *Manager) accountEmails() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	emails := make([]string, 0, len(m.processors))
	for email := range m.processors {
		emails = append(emails, email)
	}
	return emails
}

// fanOut runs fn for each email with at most maxConcurrentFleetAction
// concurrent calls, via golang.org/x/sync/errgroup's SetLimit, returning
// every result regardless of individual failures (fn itself never
// returns an error — failures are reported as a false result, matching
// the original's per-account try/except-then-false pattern).
func (m *Manager) fanOut(ctx context.Context, emails []string, fn func(context.Context, string) bool) map[string]bool {
	results := make(map[string]bool, len(emails))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFleetAction)
	for _, email := range emails {
		email := email
		g.Go(func() error {
			ok := fn(gctx, email)
			mu.Lock()
			results[email] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func countTrue(results map[string]bool) int {
	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n
}

// getProcessor looks up a processor by email, attempting one
// RefreshAccountsFromConfig-driven recovery if it isn't registered,
// mirroring _get_processor's auto-recovery path.
func (m *Manager) getProcessor(email string) (*processor.Processor, bool) {
	m.mu.Lock()
	p, ok := m.processors[email]
	m.mu.Unlock()
	if ok {
		return p, true
	}

	m.logger.Warn("account not found in registry, attempting recovery", zap.String("account", email))
	if err := m.RefreshAccountsFromConfig(); err != nil {
		m.logger.Error("account recovery error", zap.String("account", email), zap.Error(err))
		return nil, false
	}

	m.mu.Lock()
	p, ok = m.processors[email]
	m.mu.Unlock()
	if ok {
		m.logger.Info("successfully recovered account", zap.String("account", email))
	} else {
		m.logger.Error("account recovery failed, not in configuration", zap.String("account", email))
	}
	return p, ok
}

func (m *Manager) logTask(taskType string, details map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logTaskLocked(taskType, details)
}

// logTaskLocked appends to the ring-buffered task history; called with
// m.mu held.
func (m *Manager) logTaskLocked(taskType string, details map[string]string) {
	m.taskHistory = append(m.taskHistory, TaskEntry{
		Timestamp: time.Now(),
		Type:      taskType,
		Details:   details,
	})
	if len(m.taskHistory) > maxHistorySize {
		m.taskHistory = m.taskHistory[len(m.taskHistory)-maxHistorySize:]
	}
}

// checkAutoTransitions sweeps every registered processor for the
// maintenance-mode transition predicate, rate-limited to once an hour.
func (m *Manager) checkAutoTransitions(ctx context.Context) {
	m.mu.Lock()
	now := time.Now()
	if now.Sub(m.lastTransitionCheck) < transitionCheckInterval {
		m.mu.Unlock()
		return
	}
	m.lastTransitionCheck = now
	candidates := make(map[string]*processor.Processor, len(m.processors))
	for email, p := range m.processors {
		if p.ShouldTransitionToMaintenance() {
			candidates[email] = p
		}
	}
	m.mu.Unlock()

	for email, p := range candidates {
		m.logger.Info("auto-transitioning account to maintenance mode", zap.String("account", email))
		if p.SwitchMode(ctx, processor.ModeMaintenance) {
			m.logTask("auto_transition", map[string]string{
				"account":   email,
				"from_mode": string(processor.ModeStartup),
				"to_mode":   string(processor.ModeMaintenance),
			})
		}
	}
}

// LoadAccountsFromConfig reloads configuration from disk and registers
// every account found, marking the manager initialized whether or not
// the reload succeeds (matching load_accounts_from_config's
// always-initialize-in-the-end behavior).
func (m *Manager) LoadAccountsFromConfig() error {
	cfg, err := m.loadConfig()
	if err != nil {
		m.logger.Error("failed to load accounts from config", zap.Error(err))
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		return err
	}

	retentionDays := cfg.RetentionSetting("approved_ads")
	for _, account := range cfg.Accounts {
		m.AddAccount(account, retentionDays)
	}
	m.logger.Info("loaded accounts from configuration", zap.Int("count", len(cfg.Accounts)))

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// RefreshAccountsFromConfig reconciles the registered processors against
// a fresh read of the configuration: accounts no longer present are
// removed, new accounts are added, fanned out with the same bounded
// worker pool as StartAll/StopAll.
func (m *Manager) RefreshAccountsFromConfig() error {
	cfg, err := m.loadConfig()
	if err != nil {
		m.logger.Error("failed to refresh accounts from config", zap.Error(err))
		return err
	}

	configAccounts := make(map[string]config.Account, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		configAccounts[a.Email] = a
	}

	m.mu.Lock()
	currentEmails := make([]string, 0, len(m.processors))
	for email := range m.processors {
		currentEmails = append(currentEmails, email)
	}
	m.mu.Unlock()

	var toRemove []string
	for _, email := range currentEmails {
		if _, stillConfigured := configAccounts[email]; !stillConfigured {
			toRemove = append(toRemove, email)
		}
	}
	var toAdd []config.Account
	for email, account := range configAccounts {
		found := false
		for _, existing := range currentEmails {
			if existing == email {
				found = true
				break
			}
		}
		if !found {
			toAdd = append(toAdd, account)
		}
	}

	retentionDays := cfg.RetentionSetting("approved_ads")
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentFleetAction)
	for _, email := range toRemove {
		email := email
		g.Go(func() error {
			m.RemoveAccount(email)
			return nil
		})
	}
	for _, account := range toAdd {
		account := account
		g.Go(func() error {
			m.AddAccount(account, retentionDays)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	total := len(m.processors)
	m.mu.Unlock()
	m.logger.Info("refreshed accounts",
		zap.Int("added", len(toAdd)), zap.Int("removed", len(toRemove)), zap.Int("total", total))
	return nil
}

// GetTaskHistory returns up to limit of the most recent task history
// entries, oldest first within that window.
func (m *Manager) GetTaskHistory(limit int) []TaskEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.taskHistory) {
		limit = len(m.taskHistory)
	}
	start := len(m.taskHistory) - limit
	out := make([]TaskEntry, limit)
	copy(out, m.taskHistory[start:])
	return out
}
