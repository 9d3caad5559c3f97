package workflow

import (
	"context"
	"errors"
	"strings"

	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// handleStageFailure marks the item failed, writes the Markdown error
// report, and pushes an error notification. None of the follow-up actions
// can fail the pipeline further; they log and move on.
func (m *Manager) handleStageFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	m.setLastError(stageErr)
	message := failureMessage(stageName, stageErr)
	item.SetFailed(message)

	kind, _, operation, _, _ := services.Details(stageErr)
	m.logger.Error("stage failed",
		logging.Int64("item_id", item.ID),
		logging.String("source", item.Display()),
		logging.String("stage", stageName),
		logging.String("error_kind", services.KindName(kind)),
		logging.String("operation", operation),
		logging.Error(stageErr))

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not persist stage failure")
		} else {
			m.logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	if m.reports != nil {
		if path, err := m.reports.Write(stageErr, item.SourceName); err != nil {
			m.logger.Warn("could not write error report", logging.Error(err))
		} else {
			m.logger.Info("error report written", logging.String("report", path))
		}
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyError(ctx, stageErr, item.Display()); err != nil {
			m.logger.Debug("error notification failed", logging.Error(err))
		}
	}
}

func failureMessage(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageName + " failed without error detail"
	}
	_, _, _, message, _ := services.Details(stageErr)
	message = strings.TrimSpace(message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = stageName + " failed"
	}
	return message
}
