// Package watch monitors the local input folder and enqueues new recordings
// once they have settled on disk.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scribe/internal/config"
	"scribe/internal/ledger"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/notifications"
	"scribe/internal/queue"
)

const defaultSettle = 5 * time.Second

// Enqueuer adds discovered recordings to the processing queue.
type Enqueuer interface {
	NewRecording(ctx context.Context, sourcePath string, origin queue.Origin, remoteID string) (*queue.Item, error)
}

// Processed reports whether a source identity was completed in a previous
// run. Nil disables the check.
type Processed interface {
	Contains(identity string) bool
}

// Watcher watches one directory for new media files. A settle delay holds
// each file back until writes stop, so half-copied recordings are not
// enqueued.
type Watcher struct {
	dir       string
	settle    time.Duration
	store     Enqueuer
	processed Processed
	notifier  notifications.Service
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New builds a Watcher from the config watch section.
func New(cfg *config.Config, store Enqueuer, processed Processed, notifier notifications.Service, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	settle := time.Duration(cfg.Watch.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		dir:       cfg.Paths.InputDir,
		settle:    settle,
		store:     store,
		processed: processed,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "watch"),
		pending:   make(map[string]*time.Timer),
	}
}

// Run watches the input directory until the context is cancelled. Files
// already present at startup are enqueued immediately.
func (w *Watcher) Run(ctx context.Context) error {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer notify.Close()

	if err := notify.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching input folder",
		logging.String("dir", w.dir),
		logging.Duration("settle", w.settle))

	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-notify.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-notify.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logging.Error(err))
		}
	}
}

// scanExisting enqueues recordings that were dropped into the folder while
// the daemon was not running.
func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scan input folder", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !eligible(path) {
			continue
		}
		w.enqueue(ctx, path)
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	path := event.Name
	if !eligible(path) {
		return
	}

	// Each write resets the settle timer; the file is enqueued once it has
	// been quiet for the full delay.
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	if w.processed != nil {
		if identity, err := ledger.Identity(path); err == nil && w.processed.Contains(identity) {
			w.logger.Debug("recording already processed", logging.String("path", path))
			return
		}
	}

	item, err := w.store.NewRecording(ctx, path, queue.OriginLocal, "")
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateSource) {
			w.logger.Debug("recording already tracked", logging.String("path", path))
			return
		}
		w.logger.Error("enqueue recording", logging.String("path", path), logging.Error(err))
		return
	}
	w.logger.Info("recording queued",
		logging.String("path", path),
		logging.Int64("item_id", item.ID))
	if w.notifier != nil {
		if err := w.notifier.NotifyFileDetected(ctx, filepath.Base(path), "input folder"); err != nil {
			w.logger.Debug("detection notification failed", logging.Error(err))
		}
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// eligible filters out unsupported extensions and in-progress copy artifacts.
func eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	lowered := strings.ToLower(name)
	if strings.HasSuffix(lowered, ".tmp") || strings.HasSuffix(lowered, ".part") || strings.HasSuffix(lowered, ".crdownload") {
		return false
	}
	return media.SupportedExtension(path)
}
