package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"scribe/internal/cache"
	"scribe/internal/gdrive"
	"scribe/internal/ledger"
	"scribe/internal/notifications"
	"scribe/internal/process"
	"scribe/internal/progress"
	"scribe/internal/resources"
	"scribe/internal/vault"
	"scribe/internal/watch"
	"scribe/internal/workflow"
)

// wire constructs the daemon's collaborators in dependency order and
// configures the workflow manager with the six pipeline stages.
func (d *Daemon) wire(ctx context.Context, logger *slog.Logger) error {
	cfg := d.cfg

	d.notifier = notifications.NewService(cfg)
	d.registry = resources.NewRegistry(logger)
	d.monitor = resources.NewMonitor(cfg.Resources, d.registry, logger)
	tracker := progress.NewTracker(logger)

	led, err := ledger.Open(cfg.Paths.LogDir, cfg.Workflow.TestingMode, logger)
	if err != nil {
		return fmt.Errorf("open processed ledger: %w", err)
	}

	var (
		driveClient *gdrive.Client
		remote      process.RemoteFinalizer
	)
	if cfg.Drive.Enabled {
		client, err := gdrive.NewClient(ctx, cfg.Drive, logger)
		if err != nil {
			return fmt.Errorf("connect google drive: %w", err)
		}
		driveClient = client
		remote = client
	}

	var vaultStore vault.Storage
	if driveClient != nil && cfg.Drive.VaultFolderID != "" {
		reportDir := filepath.Join(cfg.Paths.VaultDir, vault.ReportsDir)
		vaultStore = gdrive.NewStorage(driveClient, cfg.Drive.VaultFolderID, reportDir, logger)
	} else {
		vaultStore = vault.NewLocal(cfg.Paths.VaultDir, logger)
	}

	var (
		analysisCache process.AnalysisCache
		cacheWriter   process.CacheWriter
	)
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache, logger)
		if err != nil {
			return fmt.Errorf("open analysis cache: %w", err)
		}
		d.cache = c
		analysisCache = c
		cacheWriter = c
	}

	transcriber, err := process.NewTranscriber(cfg, tracker, logger)
	if err != nil {
		return fmt.Errorf("build transcriber: %w", err)
	}
	analyzerStage, err := process.NewAnalyzer(cfg, analysisCache, tracker, logger)
	if err != nil {
		return fmt.Errorf("build analyzer: %w", err)
	}
	entities, err := process.NewEntityExtractor(cfg, cacheWriter, tracker, logger)
	if err != nil {
		return fmt.Errorf("build entity extractor: %w", err)
	}

	manager := workflow.NewManagerWithNotifier(cfg, d.store, vaultStore.ErrorReportDir(), d.notifier, logger)
	manager.Configure(workflow.StageSet{
		Validator:   process.NewValidator(cfg, tracker, logger),
		Converter:   process.NewConverter(cfg, tracker, logger),
		Transcriber: transcriber,
		Analyzer:    analyzerStage,
		Entities:    entities,
		Saver:       process.NewSaver(cfg, vaultStore, led, remote, tracker, logger),
	})
	d.workflow = manager

	if cfg.Watch.Enabled {
		d.watcher = watch.New(cfg, d.store, led, d.notifier, logger)
	}
	if driveClient != nil {
		monitor, err := gdrive.NewMonitor(cfg, driveClient, d.store, d.notifier, logger)
		if err != nil {
			return fmt.Errorf("build drive monitor: %w", err)
		}
		d.drive = monitor
	}
	return nil
}
