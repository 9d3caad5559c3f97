package process

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/resources"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// MediaProber covers the ffprobe-side checks the validator needs.
type MediaProber interface {
	ValidateInstallation(ctx context.Context) error
	Probe(ctx context.Context, path string) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Validator confirms a queued recording is a processable media file before
// any expensive work starts.
type Validator struct {
	cfg     *config.Config
	media   MediaProber
	tracker *progress.Tracker
	logger  *slog.Logger
}

// NewValidator constructs the validate stage handler with default dependencies.
func NewValidator(cfg *config.Config, tracker *progress.Tracker, logger *slog.Logger) *Validator {
	return NewValidatorWithDependencies(cfg, media.NewProcessor(cfg, logger), tracker, logger)
}

// NewValidatorWithDependencies allows injecting the media prober (used in tests).
func NewValidatorWithDependencies(cfg *config.Config, prober MediaProber, tracker *progress.Tracker, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{cfg: cfg, media: prober, tracker: tracker, logger: logging.NewComponentLogger(logger, "validate")}
}

func (v *Validator) Prepare(_ context.Context, item *queue.Item) error {
	if item.SourceName == "" {
		item.SourceName = filepath.Base(item.SourcePath)
	}
	item.ErrorMessage = ""
	item.SetProgress("Validating", "Checking recording", 0)
	return nil
}

func (v *Validator) Execute(ctx context.Context, item *queue.Item) error {
	info, err := os.Stat(item.SourcePath)
	if err != nil {
		return services.New(services.ErrValidation, "validate", "stat source", "recording is missing or unreadable", err).
			WithContext("source_path", item.SourcePath)
	}
	if info.IsDir() {
		return services.New(services.ErrValidation, "validate", "stat source", "source path is a directory", nil).
			WithContext("source_path", item.SourcePath)
	}
	if info.Size() == 0 {
		return services.New(services.ErrValidation, "validate", "stat source", "recording is empty", nil).
			WithContext("source_path", item.SourcePath)
	}
	if !media.SupportedExtension(item.SourcePath) {
		return services.New(services.ErrValidation, "validate", "check extension", "unsupported file type", nil).
			WithContext("source_path", item.SourcePath).
			WithContext("extension", filepath.Ext(item.SourcePath))
	}

	if v.tracker != nil {
		v.tracker.Start(item.SourceName, info.Size())
		v.tracker.Update(item.SourceName, "validate", 0.3, "probing streams")
	}

	if err := v.media.Probe(ctx, item.SourcePath); err != nil {
		return err
	}

	// Conversion needs room for the extracted FLAC, comfortably under the
	// source size. Require twice the source to leave slack for chunking.
	if err := os.MkdirAll(v.cfg.Paths.StagingDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "validate", "prepare staging", "create staging directory", err)
	}
	if err := resources.EnsureDiskSpace(v.cfg.Paths.StagingDir, uint64(info.Size())*2); err != nil {
		return err
	}

	meta, err := loadMetadata(item)
	if err != nil {
		return err
	}
	if duration, err := v.media.Duration(ctx, item.SourcePath); err != nil {
		v.logger.Warn("duration probe failed", logging.Error(err))
	} else {
		meta.DurationSeconds = duration.Seconds()
	}
	if err := storeMetadata(item, meta); err != nil {
		return err
	}

	if v.tracker != nil {
		v.tracker.CompleteStage(item.SourceName, "validate", "media checks passed")
	}
	item.SetProgress("Validating", "Recording validated", 100)
	v.logger.Info("recording validated",
		logging.String("source", item.SourceName),
		logging.Int64("bytes", info.Size()),
		logging.Float64("duration_seconds", meta.DurationSeconds))
	return nil
}

func (v *Validator) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("validate", v.media.ValidateInstallation(ctx))
}
