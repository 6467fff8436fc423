package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/applog"
	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/controlplane"
	"github.com/real-pm/mailrulez/internal/lists"
	"github.com/real-pm/mailrulez/internal/retention"
	"github.com/real-pm/mailrulez/internal/rules"
	"github.com/real-pm/mailrulez/internal/taskmanager"
)

// Container is the process-wide set of collaborators, built once here
// rather than through package-level singletons (SPEC_FULL.md §9's
// resolution of the original's get_task_manager()/get_retention_
// scheduler()-style globals).
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Lists     *lists.Store
	Rules     *rules.Store
	Retention *retention.Manager
	Scheduler *retention.Scheduler
	Tasks     *taskmanager.Manager
	Control   *controlplane.Adapter
}

func buildContainer(configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := applog.Init(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	listStore := lists.New(cfg)

	ruleStore, err := rules.Open(filepath.Join(cfg.ConfigDir, "rules.json"))
	if err != nil {
		return nil, fmt.Errorf("open rule store: %w", err)
	}

	policyStore, err := retention.OpenPolicyStore(filepath.Join(cfg.ConfigDir, "retention_policies.json"))
	if err != nil {
		return nil, fmt.Errorf("open retention policy store: %w", err)
	}
	if err := policyStore.MigrateLegacy(cfg.RetentionSettings); err != nil {
		logger.Warn("failed to migrate legacy retention settings", zap.Error(err))
	}

	auditLogger, err := retention.NewAuditLogger(filepath.Join(cfg.DataDir, "retention_audit.log"))
	if err != nil {
		return nil, fmt.Errorf("open retention audit log: %w", err)
	}

	trashMgr := retention.NewTrashManager(auditLogger)
	retentionMgr := retention.NewManager(policyStore, trashMgr, auditLogger, applog.New("retention.manager"))

	accountsFn := func() []config.Account { return cfg.Accounts }
	scheduler := retention.NewScheduler(retentionMgr, accountsFn, *cfg, applog.New("retention.scheduler"))

	loadConfig := func() (*config.Config, error) { return config.Load(configPath) }
	tasks := taskmanager.New(loadConfig, listStore, ruleStore, applog.New("taskmanager"))

	control := controlplane.New(tasks, retentionMgr, accountsFn, applog.New("controlplane"))

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Lists:     listStore,
		Rules:     ruleStore,
		Retention: retentionMgr,
		Scheduler: scheduler,
		Tasks:     tasks,
		Control:   control,
	}, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.Int("metrics-port", 9090, "Port to serve Prometheus metrics on")
	flag.Parse()

	c, err := buildContainer(*configPath)
	if err != nil {
		panic("failed to initialize mail-rulez: " + err.Error())
	}
	defer c.Logger.Sync()

	c.Logger.Info("starting mail-rulez", zap.Int("account_count", len(c.Config.Accounts)))

	go startMetricsServer(*metricsPort, c.Logger)

	if err := c.Tasks.LoadAccountsFromConfig(); err != nil {
		c.Logger.Error("failed to load accounts from configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !c.Scheduler.Start(ctx) {
		c.Logger.Warn("retention scheduler did not start")
	}

	results := c.Tasks.StartAll(ctx)
	c.Logger.Info("initial account start complete", zap.Int("successful", countTrue(results)), zap.Int("total", len(results)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	c.Logger.Info("shutdown signal received")

	c.Scheduler.Stop()
	c.Tasks.Shutdown(context.Background())

	c.Logger.Info("mail-rulez stopped")
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

func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("starting metrics server", zap.String("address", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}
