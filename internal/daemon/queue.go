package daemon

import (
	"context"

	"scribe/internal/queue"
)

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error) {
	return d.store.List(ctx, statuses...)
}

// QueueStats returns per-status item counts.
func (d *Daemon) QueueStats(ctx context.Context) (map[queue.Status]int, error) {
	return d.store.Stats(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight items back to their last stable status.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}
