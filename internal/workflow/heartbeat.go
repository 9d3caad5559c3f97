package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/logging"
	"scribe/internal/queue"
)

// HeartbeatMonitor manages item heartbeats and stale item reclamation.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow-heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStaleItems resets items whose heartbeats expired back to pending.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale items", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop runs a heartbeat updater for a specific item until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) {
					h.logger.Debug("daemon shutting down, heartbeat update cancelled")
				} else {
					h.logger.Warn("heartbeat update failed",
						logging.Int64("item_id", itemID), logging.Error(err))
				}
			}
		}
	}
}
