package daemon

import (
	"context"
	"errors"

	"scribe/internal/batch"
	"scribe/internal/queue"
)

// NewBatchProcessor builds a batch processor whose jobs drive recordings
// through the full pipeline. The daemon must be started before jobs can
// finish, since stage workers do the actual processing.
func (d *Daemon) NewBatchProcessor() *batch.Processor {
	return batch.NewProcessor(d.cfg, d.monitor, d.batchRunner(), d.logger)
}

// batchRunner enqueues one recording and blocks until it reaches a terminal
// status, translating a failed item into the job's error.
func (d *Daemon) batchRunner() batch.Runner {
	return func(ctx context.Context, sourcePath string) error {
		item, err := d.AddFile(ctx, sourcePath)
		if err != nil {
			return err
		}
		final, err := d.WaitForItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if final.Status == queue.StatusFailed {
			if final.ErrorMessage != "" {
				return errors.New(final.ErrorMessage)
			}
			return errors.New("processing failed")
		}
		return nil
	}
}
