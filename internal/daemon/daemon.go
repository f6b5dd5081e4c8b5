// Package daemon runs the long-lived mnemo service: it owns the store,
// the providers, the engine, scheduled maintenance, config hot-reload,
// and the optional metrics endpoint.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/internal/engine"
	"github.com/harun/mnemo/internal/logger"
	"github.com/harun/mnemo/internal/maintenance"
	"github.com/harun/mnemo/internal/metrics"
	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/store"
	"github.com/harun/mnemo/pkg/cron"
	"github.com/harun/mnemo/pkg/embedding"
	"github.com/harun/mnemo/pkg/llm"
)

const maintenanceJobName = "graph-maintenance"

// Daemon represents the mnemo daemon service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	// Core modules
	store    *store.SQLiteStore
	embedder embedding.Provider
	llm      llm.Provider
	metrics  *metrics.Metrics
	engine   *engine.Engine

	// Services
	cronService   *cron.Service
	configWatcher *config.Watcher
	metricsServer *http.Server

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance. configPath is the file the config
// watcher follows; empty falls back to the default location.
func New(cfg *config.Config, configPath string, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	// Initialize services
	if err := d.initializeServices(); err != nil {
		cancel()
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes the store, providers, and engine
func (d *Daemon) initializeCoreModules() error {
	if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := filepath.Join(d.config.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	s, err := store.Open(store.Config{
		DBPath:    d.config.Database.Path,
		Dimension: d.config.Database.Dimension,
		Logger:    d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = s
	d.logger.Info().Str("path", d.config.Database.Path).Msg("Store opened")

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider:  d.config.Embedding.Provider,
		Model:     d.config.Embedding.Model,
		APIKey:    d.config.Embedding.APIKey,
		BaseURL:   d.config.Embedding.BaseURL,
		Dimension: d.config.Database.Dimension,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	d.embedder = embedder
	d.logger.Info().Str("provider", d.config.Embedding.Provider).Msg("Embedding provider initialized")

	if d.config.LLM.Provider != "" {
		provider, err := llm.NewProvider(llm.Config{
			Provider: d.config.LLM.Provider,
			Model:    d.config.LLM.Model,
			APIKey:   d.config.LLM.APIKey,
			BaseURL:  d.config.LLM.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create LLM provider: %w", err)
		}
		d.llm = provider
		d.logger.Info().Str("provider", d.config.LLM.Provider).Msg("LLM provider initialized")
	} else {
		d.logger.Info().Msg("No LLM provider configured, merge and enrichment disabled")
	}

	d.metrics = metrics.NewMetrics()

	eng, err := engine.New(engine.Config{
		SimilarityThreshold: d.config.Consolidation.Threshold,
		MaxCandidates:       d.config.Consolidation.MaxCandidates,
		MinCorpusSize:       d.config.Consolidation.MinCorpusSize,
		MinAge:              time.Duration(d.config.Consolidation.MinAgeDays) * 24 * time.Hour,
		AutoRedact:          d.config.Consolidation.AutoRedact,
		LockDir:             d.config.DataDir,
		Actor:               "daemon",
	}, engine.Deps{
		Store:    d.store,
		Embedder: d.embedder,
		LLM:      d.llm,
		Metrics:  d.metrics,
		Logger:   d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	d.engine = eng
	d.logger.Info().Msg("Engine initialized")

	return nil
}

// initializeServices initializes the scheduler and config watcher
func (d *Daemon) initializeServices() error {
	svc, err := cron.NewService(cron.ServiceOptions{
		StorePath: filepath.Join(d.config.DataDir, "jobs.json"),
		RunJob:    d.runMaintenanceJob,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.cronService = svc

	if err := d.ensureMaintenanceJob(); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	loader := config.NewLoader(d.configPath)
	watcher, err := config.NewWatcher(loader, d.logger.GetZerolog(), d.onConfigChange)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else {
		d.configWatcher = watcher
	}

	return nil
}

// ensureMaintenanceJob keeps the scheduler's maintenance job in sync with
// the configured schedule. An empty schedule disables it.
func (d *Daemon) ensureMaintenanceJob() error {
	schedule := d.config.Maintenance.Schedule

	existing, exists := d.cronService.FindByName(maintenanceJobName)

	if schedule == "" {
		if exists {
			return d.cronService.RemoveJob(existing.ID)
		}
		return nil
	}

	if exists {
		if existing.Expr == schedule && existing.Enabled {
			return nil
		}
		enabled := true
		_, err := d.cronService.UpdateJob(existing.ID, cron.JobPatch{Expr: &schedule, Enabled: &enabled})
		return err
	}

	_, err := d.cronService.AddJob(cron.AddParams{
		Name:    maintenanceJobName,
		Expr:    schedule,
		Enabled: true,
	})
	return err
}

// runMaintenanceJob executes one scheduled maintenance pass
func (d *Daemon) runMaintenanceJob(job *cron.Job) error {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	result, err := d.engine.GraphCleanup(d.ctx, maintenance.Options{
		PruneThreshold:  cfg.Maintenance.PruneThreshold,
		EnrichLimit:     cfg.Maintenance.EnrichLimit,
		OrphanThreshold: cfg.Maintenance.OrphanThreshold,
		OrphanMaxLinks:  cfg.Maintenance.OrphanMaxLinks,
		ContextMinTags:  cfg.Maintenance.ContextMinTags,
	}, nil)
	if err != nil {
		return err
	}

	d.logger.Info().
		Int("pruned", result.Pruned).
		Int("enriched", result.Enriched).
		Int("orphans_connected", result.OrphansConnected).
		Int("communities", result.Communities).
		Str("duration", result.Duration).
		Msg("Scheduled maintenance finished")

	return nil
}

// onConfigChange applies a validated config reload
func (d *Daemon) onConfigChange(cfg *config.Config) {
	d.mu.Lock()
	old := d.config
	d.config = cfg
	d.mu.Unlock()

	if old.Maintenance.Schedule != cfg.Maintenance.Schedule {
		if err := d.ensureMaintenanceJob(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to reschedule maintenance after reload")
		}
	}

	d.logger.Info().Msg("Configuration reloaded")
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.logger.Info().Msg("Daemon started")

	return nil
}

// startMetricsServer exposes the Prometheus endpoint
func (d *Daemon) startMetricsServer() {
	addr := fmt.Sprintf("%s:%d", d.config.Metrics.Host, d.config.Metrics.Port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())

	d.metricsServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Run starts the daemon and blocks until a shutdown signal arrives
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-d.ctx.Done():
	}

	return d.Stop()
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping daemon")

	d.cancel()

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop config watcher")
		}
	}

	d.cronService.Stop()

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	d.wg.Wait()

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := d.store.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close store")
	}

	d.logger.Info().Msg("Daemon stopped")

	return nil
}

// Engine exposes the engine for in-process callers
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// DaemonStatus describes the daemon's runtime state
type DaemonStatus struct {
	Running          bool          `json:"running"`
	PID              int           `json:"pid"`
	Uptime           time.Duration `json:"uptime"`
	LiveMemories     int           `json:"live_memories"`
	Links            int           `json:"links"`
	NextMaintenance  *int64        `json:"next_maintenance_ms,omitempty"`
	LastMaintenance  *int64        `json:"last_maintenance_ms,omitempty"`
	MaintenanceState string        `json:"maintenance_state,omitempty"`
}

// Status reports the daemon's current state
func (d *Daemon) Status() DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := DaemonStatus{
		Running: d.running,
		PID:     os.Getpid(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}

	if s, err := d.engine.Status(d.ctx); err == nil {
		status.LiveMemories = s.LiveMemories
		status.Links = s.Links
	}

	if job, exists := d.cronService.FindByName(maintenanceJobName); exists {
		status.NextMaintenance = job.State.NextRunAtMs
		status.LastMaintenance = job.State.LastRunAtMs
		status.MaintenanceState = job.State.LastStatus
	}

	return status
}
