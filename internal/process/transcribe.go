package process

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/notifications"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/whisper"
	"scribe/internal/stage"
)

// SpeechClient covers the Whisper API surface the transcriber needs.
type SpeechClient interface {
	ExceedsUploadLimit(path string) (bool, error)
	Transcribe(ctx context.Context, path string) (string, error)
	TranscribeChunked(ctx context.Context, chunks []string) (string, error)
	HealthCheck(ctx context.Context) error
}

// AudioChunker splits oversized audio ahead of chunked transcription.
type AudioChunker interface {
	Chunk(ctx context.Context, src string, chunkSeconds int) ([]string, error)
	CleanupChunks(paths []string)
}

// Transcriber turns the extracted audio into a transcript, chunking files
// that exceed the API upload limit.
type Transcriber struct {
	cfg      *config.Config
	client   SpeechClient
	chunker  AudioChunker
	tracker  *progress.Tracker
	notifier notifications.Service
	logger   *slog.Logger
}

// NewTranscriber constructs the transcribe stage handler with default dependencies.
func NewTranscriber(cfg *config.Config, tracker *progress.Tracker, logger *slog.Logger) (*Transcriber, error) {
	client, err := whisper.New(cfg, whisper.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return NewTranscriberWithDependencies(cfg, client, media.NewProcessor(cfg, logger), tracker, notifications.NewService(cfg), logger), nil
}

// NewTranscriberWithDependencies allows injecting collaborators (used in tests).
func NewTranscriberWithDependencies(cfg *config.Config, client SpeechClient, chunker AudioChunker, tracker *progress.Tracker, notifier notifications.Service, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{
		cfg:      cfg,
		client:   client,
		chunker:  chunker,
		tracker:  tracker,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "transcribe"),
	}
}

func (t *Transcriber) Prepare(_ context.Context, item *queue.Item) error {
	item.SetProgress("Transcribing", "Submitting audio for transcription", 0)
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, item *queue.Item) error {
	if item.AudioPath == "" {
		return services.New(services.ErrValidation, "transcribe", "check inputs", "no audio file present; run conversion first", nil)
	}

	exceeds, err := t.client.ExceedsUploadLimit(item.AudioPath)
	if err != nil {
		return err
	}

	var transcript string
	if exceeds {
		if t.tracker != nil {
			t.tracker.Update(item.SourceName, "transcribe", 0.05, "splitting oversized audio")
		}
		chunks, err := t.chunker.Chunk(ctx, item.AudioPath, t.cfg.Transcription.ChunkSeconds)
		if err != nil {
			return err
		}
		defer t.chunker.CleanupChunks(chunks)
		t.logger.Info("transcribing in chunks",
			logging.String("source", item.SourceName),
			logging.Int("chunks", len(chunks)))
		transcript, err = t.client.TranscribeChunked(ctx, chunks)
		if err != nil {
			return err
		}
	} else {
		transcript, err = t.client.Transcribe(ctx, item.AudioPath)
		if err != nil {
			return err
		}
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return services.New(services.ErrTranscription, "transcribe", "check output", "transcription produced no text", nil).
			WithContext("audio_file", filepath.Base(item.AudioPath))
	}

	transcriptPath := strings.TrimSuffix(item.AudioPath, filepath.Ext(item.AudioPath)) + ".txt"
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
		return services.Wrap(services.ErrStorage, "transcribe", "write transcript", "save transcript to staging", err)
	}
	item.TranscriptPath = transcriptPath

	meta, err := loadMetadata(item)
	if err != nil {
		return err
	}
	meta.TranscriptChars = len(transcript)
	if err := storeMetadata(item, meta); err != nil {
		return err
	}

	if t.tracker != nil {
		t.tracker.CompleteStage(item.SourceName, "transcribe", "transcript ready")
	}
	item.SetProgress("Transcribing", "Transcript ready", 100)
	t.logger.Info("transcription complete",
		logging.String("source", item.SourceName),
		logging.Int("characters", len(transcript)))
	if t.notifier != nil {
		if err := t.notifier.NotifyTranscriptionComplete(ctx, item.SourceName, len(transcript)); err != nil {
			t.logger.Debug("transcription notification failed", logging.Error(err))
		}
	}
	return nil
}

func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("transcribe", t.client.HealthCheck(ctx))
}
