package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/reports"
	"scribe/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Validator   stage.Handler
	Converter   stage.Handler
	Transcriber stage.Handler
	Analyzer    stage.Handler
	Entities    stage.Handler
	Saver       stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates queue processing across a pool of workers. A worker
// claims an item and drives it through every remaining stage; one recording
// failing never stops the others.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	reports      *reports.Writer
	heartbeat    *HeartbeatMonitor
	pollInterval time.Duration

	stages      []pipelineStage
	transitions map[queue.Status]queue.Status

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with default collaborators.
func NewManager(cfg *config.Config, store *queue.Store, reportDir string, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, reportDir, notifications.NewService(cfg), logger)
}

// NewManagerWithNotifier allows injecting the notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, reportDir string, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifier,
		reports:      reports.NewWriter(reportDir, logger),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Configure installs the stage handlers. Must be called before Start.
func (m *Manager) Configure(set StageSet) {
	m.stages = []pipelineStage{
		{"validate", set.Validator, queue.StatusPending, queue.StatusValidating, queue.StatusValidated},
		{"convert", set.Converter, queue.StatusValidated, queue.StatusConverting, queue.StatusConverted},
		{"transcribe", set.Transcriber, queue.StatusConverted, queue.StatusTranscribing, queue.StatusTranscribed},
		{"analyze", set.Analyzer, queue.StatusTranscribed, queue.StatusAnalyzing, queue.StatusAnalyzed},
		{"entities", set.Entities, queue.StatusAnalyzed, queue.StatusExtracting, queue.StatusExtracted},
		{"save", set.Saver, queue.StatusExtracted, queue.StatusSaving, queue.StatusCompleted},
	}
	m.transitions = make(map[queue.Status]queue.Status, len(m.stages))
	for _, stg := range m.stages {
		m.transitions[stg.startStatus] = stg.processingStatus
	}
}

// Start begins background processing with the configured worker count.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		return errors.New("workflow stages not configured")
	}
	for _, stg := range m.stages {
		if stg.handler == nil {
			return fmt.Errorf("stage %s has no handler", stg.name)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	if reset, err := m.store.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("could not reset stuck items at startup", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("reset stuck items from previous run", logging.Int64("count", reset))
	}

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for workers to finish
// their current stage.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether workers are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent worker error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Health runs every stage's health check.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		out = append(out, stg.handler.HealthCheck(ctx))
	}
	return out
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleItems(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("reclaim stale processing failed; stuck items may remain", logging.Error(err))
		}

		item, err := m.store.Claim(ctx, m.transitions)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next queue item", logging.Error(err))
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if item == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processItem(ctx, logger, item); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

// processItem drives one claimed item through all remaining stages. The item
// arrives already transitioned into its first processing status by Claim.
func (m *Manager) processItem(ctx context.Context, logger *slog.Logger, item *queue.Item) error {
	itemLogger := logger.With(
		logging.Int64("item_id", item.ID),
		logging.String("source", item.Display()),
	)
	for {
		stg, ok := m.stageForProcessing(item.Status)
		if !ok {
			itemLogger.Warn("no stage for status; leaving item as-is", logging.String("status", string(item.Status)))
			return nil
		}
		if err := m.executeStage(ctx, itemLogger, stg, item); err != nil {
			return err
		}
		if item.Status == queue.StatusCompleted || item.Status == queue.StatusFailed {
			return nil
		}
		// Move straight into the next stage rather than releasing the item
		// back to the pool.
		next, ok := m.transitions[item.Status]
		if !ok {
			return nil
		}
		item.Status = next
		now := time.Now().UTC()
		item.LastHeartbeat = &now
		if err := m.store.Update(ctx, item); err != nil {
			m.setLastError(err)
			itemLogger.Error("failed to persist stage transition", logging.Error(err))
			return err
		}
	}
}

func (m *Manager) executeStage(ctx context.Context, itemLogger *slog.Logger, stg pipelineStage, item *queue.Item) error {
	start := time.Now()
	stageLogger := itemLogger.With(logging.String("stage", stg.name))
	stageLogger.Info("stage started")

	if err := stg.handler.Prepare(ctx, item); err != nil {
		m.handleStageFailure(ctx, stg.name, item, err)
		return err
	}
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		m.setLastError(wrapped)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg.handler, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg.name, item, execErr)
		return execErr
	}

	item.Status = stg.doneStatus
	item.LastHeartbeat = nil
	if item.Status == queue.StatusCompleted {
		item.SetProgress("Completed", "Meeting note saved", 100)
	}
	if err := m.store.Update(ctx, item); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		m.setLastError(wrapped)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		return wrapped
	}
	stageLogger.Info("stage completed",
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(start)))
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, item *queue.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	execErr := handler.Execute(ctx, item)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) stageForProcessing(status queue.Status) (pipelineStage, bool) {
	for _, stg := range m.stages {
		if stg.processingStatus == status {
			return stg, true
		}
	}
	return pipelineStage{}, false
}
