package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/queue"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Process a single recording and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(signalCtx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			item, err := d.AddFile(signalCtx, args[0])
			if err != nil {
				return err
			}

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			defer d.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processing %s (item #%d)\n", item.SourceName, item.ID)

			final, err := d.WaitForItem(signalCtx, item.ID)
			if err != nil {
				return err
			}
			if final.Status == queue.StatusFailed {
				return fmt.Errorf("processing failed: %s", final.ErrorMessage)
			}
			fmt.Fprintf(out, "Meeting note saved to %s\n", final.NotePath)
			return nil
		},
	}
}
