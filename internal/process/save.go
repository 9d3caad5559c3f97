package process

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/ledger"
	"scribe/internal/logging"
	"scribe/internal/notes"
	"scribe/internal/notifications"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/analyzer"
	"scribe/internal/stage"
	"scribe/internal/vault"
)

// NoteSaver writes the rendered meeting note plus its entity and task notes.
type NoteSaver interface {
	SaveMeeting(ctx context.Context, m notes.Meeting) (*notes.SaveResult, error)
}

// ProcessedLedger records completed source files.
type ProcessedLedger interface {
	Mark(name string) error
}

// RemoteFinalizer moves a remote source into its processed folder after a
// successful save. Nil when the recording has no remote side.
type RemoteFinalizer interface {
	MoveToProcessed(ctx context.Context, fileID string) error
}

// Saver assembles the final meeting note, persists it to the vault, and
// retires the source recording.
type Saver struct {
	cfg      *config.Config
	writer   NoteSaver
	store    vault.Storage
	ledger   ProcessedLedger
	remote   RemoteFinalizer
	tracker  *progress.Tracker
	notifier notifications.Service
	logger   *slog.Logger
}

// NewSaver constructs the save stage handler.
func NewSaver(cfg *config.Config, store vault.Storage, led *ledger.Ledger, remote RemoteFinalizer, tracker *progress.Tracker, logger *slog.Logger) *Saver {
	return NewSaverWithDependencies(cfg, notes.NewWriter(store, logger), store, led, remote, tracker, notifications.NewService(cfg), logger)
}

// NewSaverWithDependencies allows injecting collaborators (used in tests).
func NewSaverWithDependencies(cfg *config.Config, writer NoteSaver, store vault.Storage, led ProcessedLedger, remote RemoteFinalizer, tracker *progress.Tracker, notifier notifications.Service, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Saver{
		cfg:      cfg,
		writer:   writer,
		store:    store,
		ledger:   led,
		remote:   remote,
		tracker:  tracker,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "save"),
	}
}

func (s *Saver) Prepare(_ context.Context, item *queue.Item) error {
	item.SetProgress("Saving", "Writing meeting note", 0)
	return nil
}

func (s *Saver) Execute(ctx context.Context, item *queue.Item) error {
	if item.TranscriptPath == "" || item.AnalysisPath == "" {
		return services.New(services.ErrValidation, "save", "check inputs", "transcript or analysis missing; earlier stages did not complete", nil)
	}
	transcript, err := os.ReadFile(item.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "save", "read transcript", "load transcript from staging", err)
	}
	analysisText, err := os.ReadFile(item.AnalysisPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "save", "read analysis", "load analysis from staging", err)
	}
	meta, err := loadMetadata(item)
	if err != nil {
		return err
	}

	meeting := notes.Meeting{
		Title:      s.title(item, meta),
		Date:       item.CreatedAt,
		Source:     item.SourceName,
		Duration:   time.Duration(meta.DurationSeconds * float64(time.Second)),
		Analysis:   string(analysisText),
		Transcript: string(transcript),
		Entities:   analyzer.EntitiesFromCategories(meta.Entities),
		CacheKey:   meta.CacheKey,
		CacheHit:   meta.CacheHit,
	}

	result, err := s.writer.SaveMeeting(ctx, meeting)
	if err != nil {
		return err
	}
	item.NotePath = result.NotePath

	if s.tracker != nil {
		s.tracker.Update(item.SourceName, "save", 0.6, "archiving source recording")
	}
	s.writeAnalysisJSON(ctx, item, meeting)
	s.markProcessed(item)
	s.retireSource(ctx, item)
	s.cleanupStaging(item)

	if s.tracker != nil {
		s.tracker.CompleteStage(item.SourceName, "save", result.NotePath)
		s.tracker.Complete(item.SourceName, true)
	}
	item.SetProgress("Saving", "Meeting note saved", 100)
	s.logger.Info("meeting note saved",
		logging.String("source", item.SourceName),
		logging.String("note", result.NotePath),
		logging.Int("tasks", len(result.TaskPaths)),
		logging.Int("entities", len(result.EntityPaths)))

	if s.notifier != nil {
		if err := s.notifier.NotifyProcessingCompleted(ctx, meeting.Title, result.NotePath); err != nil {
			s.logger.Debug("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

func (s *Saver) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("save", s.store.EnsureLayout(ctx))
}

func (s *Saver) title(item *queue.Item, meta Metadata) string {
	if meta.Topic != "" {
		return meta.Topic
	}
	base := item.SourceName
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// writeAnalysisJSON keeps the machine-readable analysis alongside the vault
// for reprocessing. Losing it does not lose the note, so failures only warn.
func (s *Saver) writeAnalysisJSON(ctx context.Context, item *queue.Item, meeting notes.Meeting) {
	record := analyzer.Analysis{
		Timestamp:  time.Now().UTC(),
		SourceFile: item.SourceName,
		Transcript: meeting.Transcript,
		Text:       meeting.Analysis,
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Warn("could not encode analysis record", logging.Error(err))
		return
	}
	noteBase := strings.TrimSuffix(path.Base(item.NotePath), path.Ext(item.NotePath))
	relPath := path.Join(vault.CacheDir, noteBase+".json")
	if err := s.store.WriteNote(ctx, relPath, payload); err != nil {
		s.logger.Warn("could not store analysis record", logging.Error(err))
	}
}

func (s *Saver) markProcessed(item *queue.Item) {
	if s.ledger == nil {
		return
	}
	identity, err := ledger.Identity(item.SourcePath)
	if err != nil {
		s.logger.Warn("could not derive ledger identity", logging.Error(err))
		return
	}
	if err := s.ledger.Mark(identity); err != nil {
		s.logger.Warn("could not update processed ledger", logging.Error(err))
	}
}

// retireSource archives the local recording and, for Drive items, moves the
// remote file to the processed folder. Archival failures leave the source in
// place and only warn; the note is already saved.
func (s *Saver) retireSource(ctx context.Context, item *queue.Item) {
	if item.Origin == queue.OriginDrive && s.remote != nil && item.RemoteID != "" {
		if err := s.remote.MoveToProcessed(ctx, item.RemoteID); err != nil {
			s.logger.Warn("could not move remote recording to processed folder", logging.Error(err))
		}
	}

	archiveDir := s.cfg.Paths.ArchiveDir
	if archiveDir == "" {
		return
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		s.logger.Warn("could not create archive directory", logging.Error(err))
		return
	}
	dst := filepath.Join(archiveDir, filepath.Base(item.SourcePath))
	if err := fileutil.MoveFile(item.SourcePath, dst); err != nil {
		s.logger.Warn("could not archive source recording",
			logging.String("source", item.SourcePath), logging.Error(err))
		return
	}
	item.SourcePath = dst
}

func (s *Saver) cleanupStaging(item *queue.Item) {
	for _, p := range []string{item.AudioPath, item.TranscriptPath, item.AnalysisPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not remove staging file",
				logging.String("path", p), logging.Error(err))
		}
	}
}
