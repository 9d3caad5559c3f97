package process

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// AudioConverter covers the ffmpeg-side work the converter needs.
type AudioConverter interface {
	ValidateInstallation(ctx context.Context) error
	ConvertToFLAC(ctx context.Context, src, destDir string) (string, error)
}

// Converter extracts a mono 16kHz FLAC track from the source recording.
type Converter struct {
	cfg     *config.Config
	media   AudioConverter
	tracker *progress.Tracker
	logger  *slog.Logger
}

// NewConverter constructs the convert stage handler with default dependencies.
func NewConverter(cfg *config.Config, tracker *progress.Tracker, logger *slog.Logger) *Converter {
	return NewConverterWithDependencies(cfg, media.NewProcessor(cfg, logger), tracker, logger)
}

// NewConverterWithDependencies allows injecting the converter (used in tests).
func NewConverterWithDependencies(cfg *config.Config, converter AudioConverter, tracker *progress.Tracker, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Converter{cfg: cfg, media: converter, tracker: tracker, logger: logging.NewComponentLogger(logger, "convert")}
}

func (c *Converter) Prepare(_ context.Context, item *queue.Item) error {
	item.SetProgress("Converting", "Extracting audio track", 0)
	return nil
}

func (c *Converter) Execute(ctx context.Context, item *queue.Item) error {
	if item.SourcePath == "" {
		return services.New(services.ErrValidation, "convert", "check inputs", "no source path on item", nil)
	}
	destDir := c.cfg.Paths.StagingDir
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "convert", "prepare staging", "create staging directory", err)
	}

	if c.tracker != nil {
		c.tracker.Update(item.SourceName, "convert", 0.1, "running ffmpeg")
	}
	audioPath, err := c.media.ConvertToFLAC(ctx, item.SourcePath, destDir)
	if err != nil {
		return err
	}
	item.AudioPath = audioPath
	if c.tracker != nil {
		c.tracker.CompleteStage(item.SourceName, "convert", filepath.Base(audioPath))
	}
	item.SetProgress("Converting", "Audio extracted", 100)
	c.logger.Info("audio ready",
		logging.String("source", item.SourceName),
		logging.String("audio", filepath.Base(audioPath)))
	return nil
}

func (c *Converter) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("convert", c.media.ValidateInstallation(ctx))
}
