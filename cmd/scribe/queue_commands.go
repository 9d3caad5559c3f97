package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue maintenance commands",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var statuses []queue.Status
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				for _, value := range strings.Split(trimmed, ",") {
					status, ok := queue.ParseStatus(value)
					if !ok {
						return fmt.Errorf("unknown status %q", value)
					}
					statuses = append(statuses, status)
				}
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderQueueItems(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (e.g. pending,failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed items back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed item(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if completedOnly && failedOnly {
				return fmt.Errorf("--completed and --failed are mutually exclusive")
			}
			return ctx.withStore(func(store *queue.Store) error {
				var (
					count int64
					err   error
					label string
				)
				switch {
				case completedOnly:
					count, err = store.ClearCompleted(cmd.Context())
					label = "completed "
				case failedOnly:
					count, err = store.ClearFailed(cmd.Context())
					label = "failed "
				default:
					count, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %sitem(s)\n", count, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate queue health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Total", fmt.Sprintf("%d", summary.Total)},
					{"Pending", fmt.Sprintf("%d", summary.Pending)},
					{"Processing", fmt.Sprintf("%d", summary.Processing)},
					{"Failed", fmt.Sprintf("%d", summary.Failed)},
					{"Completed", fmt.Sprintf("%d", summary.Completed)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Queue", "Items"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
