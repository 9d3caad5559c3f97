package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/cache"
	"scribe/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Analysis cache commands",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show analysis cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Cache.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Analysis cache is disabled")
				return nil
			}
			c, err := cache.New(cfg.Cache, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open analysis cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCacheStats(c.Stats()))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all analysis cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Cache.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Analysis cache is disabled")
				return nil
			}
			c, err := cache.New(cfg.Cache, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open analysis cache: %w", err)
			}
			entries := c.Stats().Entries
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", entries)
			return nil
		},
	}
}
