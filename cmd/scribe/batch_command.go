package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/batch"
	"scribe/internal/daemon"
	"scribe/internal/logging"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file>...",
		Short: "Process multiple recordings concurrently",
		Args:  cobra.MinimumNArgs(1),
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

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			defer d.Stop()

			processor := d.NewBatchProcessor()
			go processor.Run(signalCtx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processing %d recording(s) with up to %d in flight\n", len(args), processor.Limit())
			for _, path := range args {
				processor.Submit(signalCtx, path, 0)
			}

			jobs := processor.Wait()
			fmt.Fprintln(out, renderBatchResults(jobs))

			failed := 0
			for _, job := range jobs {
				if job.Status == batch.JobFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d recording(s) failed", failed, len(jobs))
			}
			fmt.Fprintf(out, "Processed %d recording(s)\n", len(jobs))
			return nil
		},
	}
}

func renderBatchResults(jobs []*batch.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		detail := ""
		if job.Err != nil {
			detail = job.Err.Error()
		}
		duration := ""
		if !job.FinishedAt.IsZero() && !job.StartedAt.IsZero() {
			duration = job.FinishedAt.Sub(job.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			filepath.Base(job.SourcePath),
			string(job.Status),
			duration,
			detail,
		})
	}
	return renderTable(
		[]string{"Source", "Status", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}
