package processor

import (
	"context"
	"fmt"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/imapclient"
	"github.com/real-pm/mailrulez/internal/metrics"
	"github.com/real-pm/mailrulez/internal/rules"
)

// setupJobsLocked schedules maintenance-mode periodic jobs. Startup mode
// deliberately schedules nothing: processing only happens via
// ProcessManualBatch ("Process Next 100"), matching the original's
// _setup_jobs early-return for ProcessingMode.STARTUP.
func (p *Processor) setupJobsLocked() {
	if p.mode == ModeStartup {
		p.logger.Info("startup mode: manual processing only, no automatic jobs scheduled")
		return
	}

	p.jobs = make(chan func(context.Context), 8)
	p.quit = make(chan struct{})
	go p.runWorker()

	p.cron = cron.New(cron.WithSeconds())
	p.scheduleEveryMinutes(inboxIntervalMinutes, p.enqueueInboxMaintenance)

	type trainingJob struct{ list, source, dest string }
	jobs := []trainingJob{
		{"white", p.account.Folder("whitelist"), "INBOX"},
		{"black", p.account.Folder("blacklist"), p.account.Folder("junk")},
		{"vendor", p.account.Folder("vendor"), p.account.Folder("approved_ads")},
	}
	for _, j := range jobs {
		j := j
		p.scheduleEveryMinutes(folderIntervalMinutes, func() {
			p.enqueueTrainingFolder(j.list, j.source, j.dest)
		})
	}

	p.cron.Start()
}

// scheduleEveryMinutes wires a cron entry that runs every n minutes,
// following services/domain-manager/monitor/dns_monitor.go's
// fmt.Sprintf("0 */%d * * * *", n) schedule-building idiom.
func (p *Processor) scheduleEveryMinutes(minutes int, fn func()) {
	schedule := fmt.Sprintf("0 */%d * * * *", minutes)
	if _, err := p.cron.AddFunc(schedule, fn); err != nil {
		p.logger.Error("failed to schedule job", zap.String("schedule", schedule), zap.Error(err))
	}
}

// enqueueInboxMaintenance and enqueueTrainingFolder never block: the cron
// callback only pushes a closure onto the buffered job channel, which the
// dedicated worker goroutine drains. A full channel drops the tick with a
// warning rather than blocking the cron dispatcher.
func (p *Processor) enqueueInboxMaintenance() {
	select {
	case p.jobs <- p.processInboxMaintenance:
	default:
		p.logger.Warn("job queue full, dropping scheduled inbox maintenance run")
	}
}

func (p *Processor) enqueueTrainingFolder(listName, source, dest string) {
	job := func(ctx context.Context) {
		if _, err := p.processTrainingFolder(ctx, listName, source, dest); err != nil {
			p.logger.Error("training folder processing failed", zap.String("folder", source), zap.Error(err))
		}
	}
	select {
	case p.jobs <- job:
	default:
		p.logger.Warn("job queue full, dropping scheduled training folder run", zap.String("folder", source))
	}
}

func (p *Processor) runWorker() {
	ctx := context.Background()
	for {
		select {
		case fn, ok := <-p.jobs:
			if !ok {
				return
			}
			fn(ctx)
		case <-p.quit:
			return
		}
	}
}

func (p *Processor) processInboxMaintenance(ctx context.Context) {
	start := time.Now()
	client := p.newClient()
	defer client.Logout(ctx)

	p.executeRules(ctx, client)

	processed, pending, err := p.processInbox(ctx, client, "INBOX", maintenanceBatchSize, false)
	if err != nil {
		p.handleProcessingError(err, "maintenance inbox processing")
		return
	}
	p.updateStats(processed, pending, time.Since(start))
	p.resetErrors()
}

// ProcessManualBatch is the startup-mode "Process Next 100" dashboard
// action: rules, then training folders, then a bounded inbox batch.
// limit caps how many inbox messages are dispositioned in this call
// (process_batch(email, limit) is documented at 1..500); a non-positive
// limit falls back to startupBatchSize.
func (p *Processor) ProcessManualBatch(ctx context.Context, limit int) (BatchResult, error) {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StateRunningStartup {
		return BatchResult{}, fmt.Errorf("manual batch processing only available in startup mode, current state is %q", state)
	}
	if limit <= 0 {
		limit = startupBatchSize
	}

	start := time.Now()
	client := p.newClient()
	defer client.Logout(ctx)

	p.executeRules(ctx, client)

	trainingResults := make(map[string]TrainingFolderResult)
	for _, tf := range []struct{ list, source, dest string }{
		{"white", p.account.Folder("whitelist"), p.account.Folder("processed")},
		{"black", p.account.Folder("blacklist"), p.account.Folder("junk")},
		{"vendor", p.account.Folder("vendor"), p.account.Folder("approved_ads")},
	} {
		result, err := p.processTrainingFolder(ctx, tf.list, tf.source, tf.dest)
		if err != nil {
			result = TrainingFolderResult{Success: false, Source: tf.source, Dest: tf.dest, Error: err.Error()}
		}
		trainingResults[tf.list] = result
	}

	processed, pending, err := p.processInbox(ctx, client, "INBOX", limit, true)
	duration := time.Since(start)
	if err != nil {
		p.handleProcessingError(err, "manual batch processing")
		return BatchResult{Success: false, ProcessingTime: duration, TrainingFolders: trainingResults, Error: err.Error()}, nil
	}

	p.updateStats(processed, pending, duration)
	p.resetErrors()

	return BatchResult{
		Success:         true,
		ProcessingTime:  duration,
		EmailsProcessed: processed,
		EmailsPending:   pending,
		TrainingFolders: trainingResults,
	}, nil
}

// processInbox implements process_inbox/process_inbox_maint: fetch up to
// limit messages, disposition senders found on the white/black/vendor
// lists to their respective folders, and leave everything else for the
// pending folder. moveWhitelisted is false in maintenance mode, where the
// whitelist category is classified but left in place in INBOX rather than
// moved to processed (spec: "Same classification as startup but the
// whitelist category is not moved"). Returns (processed, stillPending).
func (p *Processor) processInbox(ctx context.Context, client *imapclient.Client, folder string, limit int, moveWhitelisted bool) (int, int, error) {
	whitelist, err := p.lists.Read("white")
	if err != nil {
		return 0, 0, err
	}
	blacklist, err := p.lists.Read("black")
	if err != nil {
		return 0, 0, err
	}
	vendorlist, err := p.lists.Read("vendor")
	if err != nil {
		return 0, 0, err
	}
	whiteSet, blackSet, vendorSet := toSet(whitelist), toSet(blacklist), toSet(vendorlist)

	headers, err := client.FetchHeaders(ctx, folder, limit)
	if err != nil {
		return 0, 0, err
	}

	var whitelisted, blacklisted, vendored, pending []imap.UID
	for _, h := range headers {
		switch {
		case whiteSet[h.Sender]:
			whitelisted = append(whitelisted, h.UID)
		case blackSet[h.Sender]:
			blacklisted = append(blacklisted, h.UID)
		case vendorSet[h.Sender]:
			vendored = append(vendored, h.UID)
		default:
			pending = append(pending, h.UID)
		}
	}

	if err := client.Select(ctx, folder); err != nil {
		return 0, 0, err
	}

	approvedAdsFolder := p.account.Folder("approved_ads")
	moves := []struct {
		uids []imap.UID
		dest string
	}{
		{blacklisted, p.account.Folder("junk")},
		{vendored, approvedAdsFolder},
		{pending, p.account.Folder("pending")},
	}
	if moveWhitelisted {
		moves = append(moves, struct {
			uids []imap.UID
			dest string
		}{whitelisted, p.account.Folder("processed")})
	}
	for _, m := range moves {
		if len(m.uids) == 0 {
			continue
		}
		if err := p.moveUIDs(ctx, client, m.uids, m.dest, folder); err != nil {
			return 0, 0, err
		}
	}

	if len(vendored) > 0 {
		p.purgeApprovedAds(ctx, client, approvedAdsFolder)
	}

	processed := len(whitelisted) + len(blacklisted) + len(vendored)
	return processed, len(pending), nil
}

// moveUIDs relocates uids from source to dest, using the Gmail-aware
// label-store path for Gmail-hosted accounts (spec: "Gmail accounts use
// the label-aware move for each group") and plain MOVE otherwise.
func (p *Processor) moveUIDs(ctx context.Context, client *imapclient.Client, uids []imap.UID, dest, source string) error {
	if len(uids) == 0 {
		return nil
	}
	if imapclient.IsGmail(p.account.Email) {
		_, err := client.GmailMove(ctx, uids, dest, source)
		return err
	}
	return client.Move(ctx, uids, dest)
}

// purgeApprovedAds implements functions.py's legacy purge_old call: after
// routing vendor mail into approved_ads, permanently delete anything in
// that folder older than the configured retention window. Distinct from
// internal/retention's policy-driven stages — this is the pre-existing
// per-folder-type setting (config.get_retention_setting) carried forward
// unchanged.
func (p *Processor) purgeApprovedAds(ctx context.Context, client *imapclient.Client, folder string) {
	if p.approvedAdsRetentionDays <= 0 {
		return
	}

	headers, err := client.FetchHeaders(ctx, folder, 0)
	if err != nil {
		p.logger.Warn("approved_ads retention purge: failed to fetch headers", zap.Error(err))
		return
	}

	cutoff := time.Now().AddDate(0, 0, -p.approvedAdsRetentionDays)
	var old []imap.UID
	for _, h := range headers {
		if h.Date.Before(cutoff) {
			old = append(old, h.UID)
		}
	}
	if len(old) == 0 {
		return
	}

	if err := client.Delete(ctx, old); err != nil {
		p.logger.Warn("approved_ads retention purge failed", zap.Error(err))
		return
	}
	p.logger.Info("purged old approved_ads messages",
		zap.Int("count", len(old)), zap.Int("retention_days", p.approvedAdsRetentionDays))
}

func toSet(entries []string) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e] = true
	}
	return set
}

// processTrainingFolder implements functions.py's process_folder: every
// sender in source not already on the named list is added to it, then
// every message in source is moved to dest.
func (p *Processor) processTrainingFolder(ctx context.Context, listName, source, dest string) (TrainingFolderResult, error) {
	result := TrainingFolderResult{Source: source, Dest: dest}

	known, err := p.lists.Read(listName)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	knownSet := toSet(known)

	client := p.newClient()
	defer client.Logout(ctx)

	headers, err := client.FetchHeaders(ctx, source, 0)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	var newEntries []string
	seen := make(map[string]bool)
	uids := make([]imap.UID, 0, len(headers))
	for _, h := range headers {
		if h.Sender != "" && !knownSet[h.Sender] && !seen[h.Sender] {
			newEntries = append(newEntries, h.Sender)
			seen[h.Sender] = true
		}
		uids = append(uids, h.UID)
	}
	if len(newEntries) > 0 {
		if err := p.lists.Add(listName, newEntries...); err != nil {
			result.Error = err.Error()
			return result, err
		}
		_ = p.lists.RmBlanks(listName)
	}

	if len(uids) > 0 {
		if err := client.Select(ctx, source); err != nil {
			result.Error = err.Error()
			return result, err
		}
		if err := p.moveUIDs(ctx, client, uids, dest, source); err != nil {
			result.Error = err.Error()
			return result, err
		}
	}

	result.Success = true
	result.NewEntries = len(newEntries)
	result.Moved = len(uids)
	return result, nil
}

// executeRules runs every active rule's matching actions against the
// inbox, grounded on process_inbox.py's process_rules_with_retention.
func (p *Processor) executeRules(ctx context.Context, client *imapclient.Client) {
	headers, err := client.FetchHeaders(ctx, "INBOX", 0)
	if err != nil {
		p.logger.Warn("failed to fetch inbox headers for rule execution", zap.Error(err))
		return
	}
	if err := client.Select(ctx, "INBOX"); err != nil {
		p.logger.Warn("failed to select inbox for rule execution", zap.Error(err))
		return
	}
	for _, h := range headers {
		msg := rules.Message{From: h.Sender, Subject: h.Subject}
		for _, action := range p.ruleSet.MatchingActions(msg, p.lists) {
			p.applyRuleAction(ctx, client, h, action)
		}
	}
}

func (p *Processor) applyRuleAction(ctx context.Context, client *imapclient.Client, h imapclient.Header, action rules.Action) {
	switch action.Type {
	case rules.ActionMoveToFolder:
		if err := p.moveUIDs(ctx, client, []imap.UID{h.UID}, action.Target, "INBOX"); err != nil {
			p.logger.Warn("rule move action failed", zap.String("dest", action.Target), zap.Error(err))
		}
	case rules.ActionAddToList:
		if err := p.lists.Add(action.Target, h.Sender); err != nil {
			p.logger.Warn("rule add-to-list action failed", zap.String("list", action.Target), zap.Error(err))
		}
	case rules.ActionMarkRead:
		if err := client.Flag(ctx, []imap.UID{h.UID}, imap.FlagSeen, true); err != nil {
			p.logger.Warn("rule mark-read action failed", zap.Error(err))
		}
	default:
	}
}

func (p *Processor) updateStats(processed, pending int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.LastRun = time.Now()
	if p.stats.AvgProcessingTime == 0 {
		p.stats.AvgProcessingTime = elapsed.Seconds()
	} else {
		p.stats.AvgProcessingTime = (p.stats.AvgProcessingTime + elapsed.Seconds()) / 2
	}
	p.stats.EmailsProcessed += processed
	p.stats.EmailsPending = pending
	p.stats.TotalRuntime += elapsed

	metrics.EmailsProcessed.WithLabelValues(p.account.Email, string(p.mode)).Add(float64(processed))
	metrics.EmailsPending.WithLabelValues(p.account.Email).Set(float64(pending))
}

func (p *Processor) resetErrors() {
	p.mu.Lock()
	p.consecutiveErrors = 0
	p.mu.Unlock()
}

// handleProcessingError tracks consecutive errors, stopping the processor
// once maxConsecutiveErrors is reached (email_processor.py's
// _handle_processing_error).
func (p *Processor) handleProcessingError(err error, operation string) {
	p.mu.Lock()
	p.consecutiveErrors++
	p.stats.ErrorCount++
	p.lastError = err.Error()
	consecutive := p.consecutiveErrors
	p.mu.Unlock()

	p.logger.Error("processing error", zap.String("operation", operation), zap.Error(err))
	metrics.ProcessorErrors.WithLabelValues(p.account.Email, operation).Inc()
	metrics.ConsecutiveErrors.WithLabelValues(p.account.Email).Set(float64(consecutive))

	if consecutive >= maxConsecutiveErrors {
		p.logger.Error("too many consecutive errors, stopping processor", zap.Int("consecutive_errors", consecutive))
		p.Stop()
		p.mu.Lock()
		p.state = StateError
		p.updateStateMetric()
		p.mu.Unlock()
	}
}
