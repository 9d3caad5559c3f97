package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scribe/internal/media"
	"scribe/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>",
		Short: "Add a recording to the processing queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			if !media.SupportedExtension(absPath) {
				return fmt.Errorf("unsupported file extension %q", filepath.Ext(absPath))
			}

			return ctx.withStore(func(store *queue.Store) error {
				item, err := store.NewRecording(cmd.Context(), absPath, queue.OriginLocal, "")
				if err != nil {
					if errors.Is(err, queue.ErrDuplicateSource) {
						return fmt.Errorf("%s is already queued", filepath.Base(absPath))
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued recording as item #%d (%s)\n", item.ID, filepath.Base(absPath))
				return nil
			})
		},
	}
}
