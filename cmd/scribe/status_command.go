package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scribe/internal/cache"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/resources"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, cache, and resource status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			lockPath := filepath.Join(cfg.Paths.LogDir, "scribed.lock")
			fmt.Fprintf(out, "Daemon running: %s\n", yesNo(daemonHoldsLock(lockPath)))

			if err := ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderQueueSummary(stats))
				return nil
			}); err != nil {
				return err
			}

			if cfg.Cache.Enabled {
				c, err := cache.New(cfg.Cache, logging.NewNop())
				if err != nil {
					return fmt.Errorf("open analysis cache: %w", err)
				}
				fmt.Fprintln(out, renderCacheStats(c.Stats()))
			} else {
				fmt.Fprintln(out, "Analysis cache: disabled")
			}

			monitor := resources.NewMonitor(cfg.Resources, resources.NewRegistry(logging.NewNop()), logging.NewNop())
			snap, err := monitor.Sample(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "Resource snapshot unavailable: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, renderResourceSnapshot(snap))
			return nil
		},
	}
}

// daemonHoldsLock reports whether another process currently holds the
// daemon lock file.
func daemonHoldsLock(path string) bool {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
