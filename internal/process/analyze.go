package process

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/cache"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/analyzer"
	"scribe/internal/stage"
)

// AnalysisClient covers the LLM surface the analyze stage needs.
type AnalysisClient interface {
	IdentifySpeakers(ctx context.Context, transcript string) (string, error)
	Analyze(ctx context.Context, transcript, sourceFile string) (*analyzer.Analysis, error)
	HealthCheck(ctx context.Context) error
}

// AnalysisCache is the read side of the similarity cache. A nil cache
// disables lookups.
type AnalysisCache interface {
	Get(transcript string) (cache.Entry, bool)
}

// Analyzer labels speakers and produces the meeting analysis, consulting the
// similarity cache before calling the LLM.
type Analyzer struct {
	cfg     *config.Config
	client  AnalysisClient
	cache   AnalysisCache
	tracker *progress.Tracker
	logger  *slog.Logger
}

// NewAnalyzer constructs the analyze stage handler with default dependencies.
func NewAnalyzer(cfg *config.Config, analysisCache AnalysisCache, tracker *progress.Tracker, logger *slog.Logger) (*Analyzer, error) {
	client, err := analyzer.New(cfg, analyzer.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return NewAnalyzerWithDependencies(cfg, client, analysisCache, tracker, logger), nil
}

// NewAnalyzerWithDependencies allows injecting collaborators (used in tests).
func NewAnalyzerWithDependencies(cfg *config.Config, client AnalysisClient, analysisCache AnalysisCache, tracker *progress.Tracker, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		cfg:     cfg,
		client:  client,
		cache:   analysisCache,
		tracker: tracker,
		logger:  logging.NewComponentLogger(logger, "analyze"),
	}
}

func (a *Analyzer) Prepare(_ context.Context, item *queue.Item) error {
	item.SetProgress("Analyzing", "Preparing transcript analysis", 0)
	return nil
}

func (a *Analyzer) Execute(ctx context.Context, item *queue.Item) error {
	if item.TranscriptPath == "" {
		return services.New(services.ErrValidation, "analyze", "check inputs", "no transcript present; run transcription first", nil)
	}
	raw, err := os.ReadFile(item.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "analyze", "read transcript", "load transcript from staging", err)
	}
	transcript := strings.TrimSpace(string(raw))
	if transcript == "" {
		return services.New(services.ErrValidation, "analyze", "read transcript", "transcript file is empty", nil)
	}

	// Speaker labels improve both the analysis and the saved note. A
	// labeling failure is not fatal; the raw transcript still analyzes.
	if a.tracker != nil {
		a.tracker.Update(item.SourceName, "analyze", 0.1, "identifying speakers")
	}
	labeled, err := a.client.IdentifySpeakers(ctx, transcript)
	if err != nil {
		a.logger.Warn("speaker identification failed; continuing with raw transcript", logging.Error(err))
	} else if labeled != "" {
		transcript = labeled
		if err := os.WriteFile(item.TranscriptPath, []byte(transcript), 0o644); err != nil {
			return services.Wrap(services.ErrStorage, "analyze", "write transcript", "save labeled transcript", err)
		}
	}

	meta, err := loadMetadata(item)
	if err != nil {
		return err
	}

	var analysisText string
	if a.cache != nil {
		if entry, ok := a.cache.Get(transcript); ok {
			analysisText = entry.Analysis
			meta.CacheHit = true
			meta.CacheKey = entry.Key
			meta.Entities = entry.Entities
			if topic := entry.Metadata["topic"]; topic != "" {
				meta.Topic = topic
			}
			a.logger.Info("analysis served from cache",
				logging.String("source", item.SourceName),
				logging.String("key", entry.Key))
		}
	}

	if analysisText == "" {
		if a.tracker != nil {
			a.tracker.Update(item.SourceName, "analyze", 0.4, "running meeting analysis")
		}
		analysis, err := a.client.Analyze(ctx, transcript, item.SourceName)
		if err != nil {
			return err
		}
		analysisText = analysis.Text
		meta.CacheHit = false
		meta.CacheKey = ""
	}

	analysisPath := strings.TrimSuffix(item.TranscriptPath, filepath.Ext(item.TranscriptPath)) + ".analysis.md"
	if err := os.WriteFile(analysisPath, []byte(analysisText), 0o644); err != nil {
		return services.Wrap(services.ErrStorage, "analyze", "write analysis", "save analysis to staging", err)
	}
	item.AnalysisPath = analysisPath

	if err := storeMetadata(item, meta); err != nil {
		return err
	}
	if a.tracker != nil {
		a.tracker.CompleteStage(item.SourceName, "analyze", "analysis ready")
	}
	item.SetProgress("Analyzing", "Analysis complete", 100)
	return nil
}

func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("analyze", a.client.HealthCheck(ctx))
}
