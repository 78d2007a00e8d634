package main

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"aide/internal/assumptions"
	"aide/internal/broker"
	"aide/internal/config"
	"aide/internal/costs"
	"aide/internal/embedding"
	"aide/internal/heartbeat"
	"aide/internal/logging"
	"aide/internal/memory"
	"aide/internal/orchestrator"
	"aide/internal/queue"
	"aide/internal/ratelimit"
	"aide/internal/router"
	"aide/internal/skillrpc"
	"aide/internal/skills"
	"aide/internal/store"
	"aide/internal/transport"
	"aide/internal/trust"
)

// core is the wired assistant. Construction order matters: storage first,
// then inference, then the skills and loops that depend on both.
type core struct {
	store     *store.Store
	tracker   *costs.Tracker
	broker    *broker.Broker
	router    *router.Router
	memory    *memory.Manager
	registry  *skills.Registry
	queue     *queue.Queue
	scheduler *heartbeat.Scheduler
	sender    transport.Transport
	orch      *orchestrator.Orchestrator
	log       *zap.Logger
}

func buildCore(ctx context.Context, cfg *config.Config) (*core, error) {
	log := logging.Named(logging.ComponentBoot)

	st, err := store.Open(cfg.Memory.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := costs.SeedModelRegistry(ctx, st); err != nil {
		log.Warn("model registry seed failed", zap.Error(err))
	}

	// Runtime settings override the file config without a restart edit.
	if v, err := st.GetSettingInt(ctx, "scheduler", "interval_seconds", cfg.Scheduler.IntervalSeconds); err == nil {
		cfg.Scheduler.IntervalSeconds = v
	}
	if v, err := st.GetSettingFloat(ctx, "costs", "budget_alert_threshold_usd", cfg.Costs.BudgetAlertThresholdUSD); err == nil {
		cfg.Costs.BudgetAlertThresholdUSD = v
	}

	tracker := costs.NewTracker(st, costs.WithThresholds(cfg.Costs.BudgetAlertThresholdUSD))
	brk := broker.New(cfg, tracker)
	rtr := router.New(cfg.Router, cfg.Providers.Gemini.APIKey)

	engine, err := embedding.NewEngine(cfg.Memory, cfg.Providers.Gemini.APIKey, cfg.Providers.Ollama.URL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build embedding engine: %w", err)
	}
	mem := memory.NewManager(cfg.Memory, st, engine)

	registry := skills.NewRegistry()
	registerSkills(ctx, registry, cfg, st, brk, log)

	q := queue.New(cfg.Queue, st)
	sender := transport.NewChunked(transport.NewConsole(), cfg.Transport)
	executor := heartbeat.NewExecutor(sender, mem, nil)
	scheduler := heartbeat.NewScheduler(cfg.Scheduler, executor, registry, q, st)

	q.RegisterHandler(heartbeat.TaskHeartbeatAction, executor.QueueHandler())
	extractor := orchestrator.NewProfileExtractor(brk, mem)
	q.RegisterHandler(orchestrator.TaskProfileExtraction, extractor.QueueHandler())

	// Remote skill dispatch is opt-in; the default is the in-process
	// registry.
	var dispatcher orchestrator.SkillDispatcher = registry
	if cfg.Skills.ServiceURL != "" {
		dispatcher = skillrpc.NewClient(cfg.Skills.ServiceURL, cfg.Skills.RequestTimeoutDuration())
	}

	orch := orchestrator.New(rtr, brk, dispatcher, mem, ratelimit.New(cfg.RateLimit), q)

	userIDs, err := st.ListUserIDs(ctx)
	if err != nil {
		log.Warn("failed to list users for heartbeat", zap.Error(err))
	}
	scheduler.SetUserIDs(userIDs)

	return &core{
		store:     st,
		tracker:   tracker,
		broker:    brk,
		router:    rtr,
		memory:    mem,
		registry:  registry,
		queue:     q,
		scheduler: scheduler,
		sender:    sender,
		orch:      orch,
		log:       log,
	}, nil
}

// registerSkills loads the built-in skills, honoring the enabled list.
func registerSkills(ctx context.Context, registry *skills.Registry, cfg *config.Config, st *store.Store, brk *broker.Broker, log *zap.Logger) {
	enabled := func(name string) bool {
		return len(cfg.Skills.Enabled) == 0 || slices.Contains(cfg.Skills.Enabled, name)
	}

	if enabled("task_manager") {
		registry.Register(ctx, skills.NewTaskManager(st))
	}
	if enabled("calendar") {
		registry.Register(ctx, skills.NewCalendar(st))
	}
	if enabled("youtube") {
		tm := trust.NewManager(cfg.Trust, st)
		registry.Register(ctx, skills.NewYouTube(assumptions.NewTracker(st), tm, st, brk))
	}

	var watcher *skills.DevWatcher
	if enabled("dev_watcher") && len(cfg.Skills.WatchPaths) > 0 {
		watcher = skills.NewDevWatcher(cfg.Skills.WatchPaths)
		registry.Register(ctx, watcher)
	}
	if enabled("milestones") && watcher != nil {
		registry.Register(ctx, skills.NewMilestones(watcher))
	}

	log.Info("skills registered", zap.Strings("names", registry.Names()))
}

// shutdown stops the loops in reverse dependency order.
func (c *core) shutdown() {
	c.scheduler.Stop()
	c.queue.Stop()
	c.registry.Cleanup()
	if err := c.store.Close(); err != nil {
		c.log.Warn("store close failed", zap.Error(err))
	}
	logging.Sync()
}
