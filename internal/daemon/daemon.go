package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/cache"
	"scribe/internal/config"
	"scribe/internal/gdrive"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/resources"
	"scribe/internal/watch"
	"scribe/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *queue.Store
	workflow *workflow.Manager
	notifier notifications.Service
	cache    *cache.Cache
	registry *resources.Registry
	monitor  *resources.Monitor
	watcher  *watch.Watcher
	drive    *gdrive.Monitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
}

// New builds a fully wired daemon from configuration. The returned daemon
// owns the queue store and must be closed by the caller.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		lockPath: filepath.Join(cfg.Paths.LogDir, "scribed.lock"),
	}
	d.lock = flock.New(d.lockPath)

	if err := d.wire(ctx, logger); err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}

// Start acquires the daemon lock and launches background processing.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		d.monitor.Run(runCtx)
	}()
	if d.watcher != nil {
		d.bg.Add(1)
		go func() {
			defer d.bg.Done()
			if err := d.watcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("input watcher stopped", logging.Error(err))
			}
		}()
	}
	if d.drive != nil {
		d.bg.Add(1)
		go func() {
			defer d.bg.Done()
			if err := d.drive.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("drive monitor stopped", logging.Error(err))
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("scribe daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("watch", d.watcher != nil),
		logging.Bool("drive", d.drive != nil))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.bg.Wait()
	d.registry.CleanupAll()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// AddFile enqueues a recording for processing.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*queue.Item, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	if !media.SupportedExtension(absPath) {
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(absPath))
	}
	item, err := d.store.NewRecording(ctx, absPath, queue.OriginLocal, "")
	if err != nil {
		return nil, fmt.Errorf("enqueue recording: %w", err)
	}
	d.logger.Info("recording queued",
		logging.Int64("item_id", item.ID),
		logging.String("source", absPath))
	return item, nil
}

// WaitForItem blocks until the item reaches a terminal status or the context
// is cancelled. Used by the one-shot processing mode.
func (d *Daemon) WaitForItem(ctx context.Context, id int64) (*queue.Item, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		item, err := d.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		switch item.Status {
		case queue.StatusCompleted, queue.StatusFailed:
			return item, nil
		}
		select {
		case <-ctx.Done():
			return item, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// CacheStats reports analysis cache statistics. The second return value is
// false when the cache is disabled.
func (d *Daemon) CacheStats() (cache.Stats, bool) {
	if d.cache == nil {
		return cache.Stats{}, false
	}
	return d.cache.Stats(), true
}

// ClearCache removes all analysis cache entries.
func (d *Daemon) ClearCache() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Clear()
}

// ResourceSnapshot samples current host resource usage.
func (d *Daemon) ResourceSnapshot(ctx context.Context) (resources.Snapshot, error) {
	return d.monitor.Sample(ctx)
}
