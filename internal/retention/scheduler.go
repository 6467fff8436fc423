package retention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/imapclient"
	"github.com/real-pm/mailrulez/internal/metrics"
)

const leaderLockKey = "mailrulez:retention:scheduler-leader"
const leaderLockTTL = 90 * time.Second

// Stats tracks scheduler run history, mirroring RetentionScheduler.stats.
type Stats struct {
	TotalExecutions          int
	SuccessfulExecutions     int
	FailedExecutions         int
	LastExecutionTime        time.Time
	LastExecutionDuration    time.Duration
	EmailsProcessed          int
	EmailsMovedToTrash       int
	EmailsPermanentlyDeleted int
}

// Scheduler is the hand-rolled daily-wake background service that runs
// retention for every configured account, grounded on
// retention/scheduler.py's RetentionScheduler. It deliberately does not use
// github.com/robfig/cron/v3 (reserved for internal/processor's periodic
// maintenance jobs) since the original semantics are a once-daily execution
// gated on wall-clock hour plus a "did we already run today" guard, not a
// cron schedule.
type Scheduler struct {
	manager          *Manager
	accounts         func() []config.Account
	checkInterval    time.Duration
	executionHour    int
	logger           *zap.Logger

	redisClient *redis.Client
	instanceID  string

	mu            sync.Mutex
	running       bool
	lastExecution time.Time
	stats         Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a Scheduler. accounts is called fresh on every
// execution so config reloads are picked up without a restart. If cfg has
// RedisAddr set, the scheduler acquires a distributed lock before each
// execution so only one of several running instances performs it.
func NewScheduler(manager *Manager, accounts func() []config.Account, cfg config.Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		manager:       manager,
		accounts:      accounts,
		checkInterval: 24 * time.Hour,
		executionHour: 2,
		logger:        logger,
		instanceID:    uuid.NewString(),
	}
	if cfg.RedisAddr != "" {
		s.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return s
}

// Start launches the scheduler loop in a background goroutine. It returns
// false if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("retention scheduler is already running")
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx)

	s.logger.Info("retention scheduler started",
		zap.Duration("check_interval", s.checkInterval), zap.Int("execution_hour", s.executionHour))
	return true
}

// Stop signals the loop to exit and waits up to 10 seconds for it to do so.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("retention scheduler is not running")
		return false
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.logger.Info("retention scheduler stopped")
		return true
	case <-time.After(10 * time.Second):
		s.logger.Warn("retention scheduler did not stop within timeout")
		return false
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("retention scheduler loop started")
	for {
		if s.shouldRunRetention() {
			s.logger.Info("starting scheduled retention execution")
			s.executeScheduled(ctx)
		}

		interval := s.checkInterval
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), s.executionHour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		if untilNext := next.Sub(now); untilNext < interval {
			interval = untilNext
		}
		if !s.sleepWithInterruption(ctx, interval) {
			return
		}
	}
}

func (s *Scheduler) shouldRunRetention() bool {
	return s.shouldRunRetentionAt(time.Now())
}

func (s *Scheduler) shouldRunRetentionAt(now time.Time) bool {
	if now.Hour() != s.executionHour {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastExecution.IsZero() && sameDate(s.lastExecution, now) {
		return false
	}
	return true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// sleepWithInterruption sleeps for d in 60-second slices, checking ctx on
// each slice boundary, returning false if ctx was cancelled.
func (s *Scheduler) sleepWithInterruption(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > time.Minute {
			slice = time.Minute
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// acquireLeaderLock tries to take the distributed scheduler lock. When no
// Redis client is configured, every instance is its own leader.
func (s *Scheduler) acquireLeaderLock(ctx context.Context) bool {
	if s.redisClient == nil {
		return true
	}
	ok, err := s.redisClient.SetNX(ctx, leaderLockKey, s.instanceID, leaderLockTTL).Result()
	if err != nil {
		s.logger.Warn("leader election check failed, skipping this instance's execution", zap.Error(err))
		return false
	}
	return ok
}

func (s *Scheduler) releaseLeaderLock(ctx context.Context) {
	if s.redisClient == nil {
		return
	}
	held, err := s.redisClient.Get(ctx, leaderLockKey).Result()
	if err == nil && held == s.instanceID {
		s.redisClient.Del(ctx, leaderLockKey)
	}
}

func (s *Scheduler) executeScheduled(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.stats.TotalExecutions++
	s.mu.Unlock()

	if !s.acquireLeaderLock(ctx) {
		s.logger.Info("another instance holds the retention scheduler leader lock, skipping")
		return
	}
	defer s.releaseLeaderLock(ctx)

	accounts := s.accounts()
	if len(accounts) == 0 {
		s.logger.Warn("no accounts configured for retention processing")
		return
	}

	s.logger.Info("running retention", zap.Int("account_count", len(accounts)))

	var allResults []Result
	for _, account := range accounts {
		s.logger.Info("processing retention for account", zap.String("account", account.Email))
		client := imapclient.New(account, s.logger)
		results := s.manager.ExecuteForAccount(ctx, client, account, false)
		_ = client.Logout(ctx)
		allResults = append(allResults, results...)
		s.logger.Info("completed retention for account", zap.String("account", account.Email))
	}

	s.mu.Lock()
	s.stats.SuccessfulExecutions++
	s.lastExecution = time.Now()
	for _, r := range allResults {
		if !r.Success {
			continue
		}
		s.stats.EmailsProcessed += r.EmailsProcessed
		switch r.Stage {
		case StageMoveToTrash:
			s.stats.EmailsMovedToTrash += r.EmailsAffected
		case StagePermanentDelete:
			s.stats.EmailsPermanentlyDeleted += r.EmailsAffected
		}
	}
	s.stats.LastExecutionTime = time.Now()
	s.stats.LastExecutionDuration = time.Since(start)
	s.mu.Unlock()

	metrics.SchedulerExecutions.WithLabelValues("success").Inc()
	s.logExecutionSummary(allResults, start)
}

func (s *Scheduler) logExecutionSummary(results []Result, start time.Time) {
	var processed, affected, successful, failed int
	for _, r := range results {
		processed += r.EmailsProcessed
		affected += r.EmailsAffected
		if r.Success {
			successful++
		} else {
			failed++
		}
	}
	s.logger.Info("retention execution completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_operations", len(results)),
		zap.Int("successful_operations", successful),
		zap.Int("failed_operations", failed),
		zap.Int("emails_processed", processed),
		zap.Int("total_emails_affected", affected),
	)
}

// Stats returns a snapshot of the scheduler's run history.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
