package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/chrome"
	"github.com/soulbrowser/soulbrowser/internal/config"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/flow"
	"github.com/soulbrowser/soulbrowser/internal/logger"
	"github.com/soulbrowser/soulbrowser/internal/perception"
	"github.com/soulbrowser/soulbrowser/internal/policy"
	"github.com/soulbrowser/soulbrowser/internal/primitives"
	"github.com/soulbrowser/soulbrowser/internal/registry"
	"github.com/soulbrowser/soulbrowser/internal/robots"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
	"github.com/soulbrowser/soulbrowser/internal/server"
	"github.com/soulbrowser/soulbrowser/internal/session"
)

// shutdownTimeout bounds graceful HTTP drain before the Chrome pool itself
// is torn down.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("c", "config.yaml", "config file path")
	flag.Parse()

	fmt.Println("soulbrowserd starting...")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, logCleanup, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logCleanup()

	// Initialize Chrome pool
	pool, err := chrome.NewChromePool(chrome.InstanceConfig{
		Headless:          true,
		NoSandbox:         false,
		PoolSize:          cfg.Chrome.PoolSize,
		WarmupURL:         cfg.Chrome.WarmupURL,
		Timeout:           time.Duration(cfg.ChromeTimeout()) * time.Second,
		RestartAfterCount: cfg.Chrome.RestartAfterCount,
		RestartAfterTime:  cfg.Chrome.RestartAfterTime,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize Chrome pool", zap.Error(err))
	}
	defer pool.Shutdown()

	// The adapter wraps a single long-lived Chrome instance; routing across
	// concurrent pages/frames within it is RegistryEvent/ExecRoute's job, not
	// the pool's (the pool's job is process lifecycle and restart policy).
	instance, err := pool.Acquire()
	if err != nil {
		log.Fatal("Failed to acquire Chrome instance", zap.Error(err))
	}
	adapter := cdpadapter.New(instance, log)

	reg := registry.New(log)
	defer reg.Close()

	// One registry session represents this adapter's single Chrome instance;
	// every target the adapter attaches to (the tab already open when the
	// instance started, plus any opened later) becomes a page under it.
	chromeSession := reg.SessionCreate("chrome-instance-" + fmt.Sprint(instance.ID()))
	if err := adapter.Start(context.Background(), func(pageID coretypes.PageId, targetID, sessionID string) {
		reg.Submit(registry.Event{Kind: registry.EventPageOpen, Session: chromeSession, Page: pageID})
		log.Info("attached to CDP target",
			zap.String("page_id", pageID.String()),
			zap.String("target_id", targetID),
		)
	}); err != nil {
		log.Fatal("Failed to start CDP adapter", zap.Error(err))
	}

	anchorCache := perception.NewAnchorCache(cfg.Perception.AnchorCacheTTL)
	snapshotCache := perception.NewSnapshotCache(cfg.Perception.SnapshotCacheTTL)
	lifecycleWatcher := perception.NewLifecycleWatcher(anchorCache, snapshotCache, log)
	lifecycleWatcher.Start(adapter)
	defer lifecycleWatcher.Stop()

	resolver := perception.NewResolver(adapter, anchorCache)
	snapshotReader := perception.NewSnapshotReader(adapter, snapshotCache)

	prims := primitives.New(adapter, resolver, reg, log)

	schedRuntime := scheduler.NewSchedulerRuntime(scheduler.SchedulerConfig{
		GlobalSlots:  cfg.Scheduler.GlobalSlots,
		PerTaskLimit: cfg.Scheduler.PerTaskLimit,
	}, log)

	engine := flow.NewEngine(schedRuntime, cfg.Scheduler.GlobalSlots, log)
	defer engine.Close()

	interpreter := flow.NewInterpreter(engine, prims, log)

	robotsChecker := robots.NewChecker(log)
	policyGate := policy.NewGate(robotsChecker, cfg.Scheduler.RobotsCacheTTL, cfg.Scheduler.BlockPrivateNetworks, log)

	// Token manager backs bearer-token issuance whenever API-key auth is on.
	var tokenManager *session.TokenManager
	if cfg.API.Enabled {
		tokenManager, err = session.NewTokenManager(cfg.API.Keys[0], log)
		if err != nil {
			log.Fatal("Failed to create token manager", zap.Error(err))
		}
	}

	srv := server.New(cfg, log)
	srv.SetChromePool(pool)
	srv.SetRegistry(reg)
	srv.SetScheduler(schedRuntime)
	srv.SetSnapshotHandler(server.NewSnapshotHandler(snapshotReader, log))

	sseManager := srv.SSEManager()
	interpreter.SetObserver(func(flowID string, step flow.StepResult) {
		sseManager.PublishStepComplete(flowID, step.StepID, step.StepType, step.Success, step.LatencyMs, step.Error)
	})

	flowHandler := server.NewFlowHandler(interpreter, reg, policyGate, sseManager, log, cfg.Flow.DefaultTimeoutMs)
	srv.SetFlowHandler(flowHandler)

	if cfg.API.Enabled && tokenManager != nil {
		authHandler := server.NewAuthHandler(cfg.API.Keys, tokenManager, log)
		srv.SetAuthHandler(authHandler)
	}

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("soulbrowserd started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("pool_size", cfg.Chrome.PoolSize),
		zap.Int("global_slots", cfg.Scheduler.GlobalSlots),
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutdown signal received")

	log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Shutting down Chrome pool...")
	if err := pool.Shutdown(); err != nil {
		log.Error("Pool shutdown error", zap.Error(err))
	}

	log.Info("soulbrowserd stopped")
}
