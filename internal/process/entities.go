package process

import (
	"context"
	"log/slog"
	"os"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/progress"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/analyzer"
	"scribe/internal/stage"
)

// EntityClient covers the LLM surface the entity stage needs.
type EntityClient interface {
	ExtractEntities(ctx context.Context, transcript string) (analyzer.Entities, error)
	ExtractTopic(ctx context.Context, transcript string) string
	HealthCheck(ctx context.Context) error
}

// CacheWriter is the write side of the similarity cache. A nil writer
// disables caching.
type CacheWriter interface {
	Put(transcript, analysis string, entities map[string][]string, metadata map[string]string) (string, error)
}

// EntityExtractor pulls people, companies, and technologies out of the
// transcript and names the meeting topic. Fresh analyses are cached here,
// once the entities that belong in the cache entry exist.
type EntityExtractor struct {
	cfg     *config.Config
	client  EntityClient
	cache   CacheWriter
	tracker *progress.Tracker
	logger  *slog.Logger
}

// NewEntityExtractor constructs the entities stage handler with default dependencies.
func NewEntityExtractor(cfg *config.Config, cacheWriter CacheWriter, tracker *progress.Tracker, logger *slog.Logger) (*EntityExtractor, error) {
	client, err := analyzer.New(cfg, analyzer.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return NewEntityExtractorWithDependencies(cfg, client, cacheWriter, tracker, logger), nil
}

// NewEntityExtractorWithDependencies allows injecting collaborators (used in tests).
func NewEntityExtractorWithDependencies(cfg *config.Config, client EntityClient, cacheWriter CacheWriter, tracker *progress.Tracker, logger *slog.Logger) *EntityExtractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EntityExtractor{
		cfg:     cfg,
		client:  client,
		cache:   cacheWriter,
		tracker: tracker,
		logger:  logging.NewComponentLogger(logger, "entities"),
	}
}

func (e *EntityExtractor) Prepare(_ context.Context, item *queue.Item) error {
	item.SetProgress("Extracting entities", "Scanning transcript for entities", 0)
	return nil
}

func (e *EntityExtractor) Execute(ctx context.Context, item *queue.Item) error {
	meta, err := loadMetadata(item)
	if err != nil {
		return err
	}

	if meta.CacheHit {
		// The cache entry already carried its entities and topic.
		item.SetProgress("Extracting entities", "Entities reused from cache", 100)
		if e.tracker != nil {
			e.tracker.CompleteStage(item.SourceName, "entities", "reused from cache")
		}
		return nil
	}

	if item.TranscriptPath == "" || item.AnalysisPath == "" {
		return services.New(services.ErrValidation, "entities", "check inputs", "transcript or analysis missing; run analysis first", nil)
	}
	transcript, err := os.ReadFile(item.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "entities", "read transcript", "load transcript from staging", err)
	}
	analysisText, err := os.ReadFile(item.AnalysisPath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "entities", "read analysis", "load analysis from staging", err)
	}

	// Entity extraction failing leaves the note without backlinks, which
	// is worth shipping over failing the whole recording.
	entities, err := e.client.ExtractEntities(ctx, string(transcript))
	if err != nil {
		e.logger.Warn("entity extraction failed; note will have no entity links", logging.Error(err))
		entities = analyzer.Entities{}
	}
	meta.Entities = entities.Categories()

	if e.tracker != nil {
		e.tracker.Update(item.SourceName, "entities", 0.7, "naming meeting topic")
	}
	if meta.Topic == "" {
		meta.Topic = e.client.ExtractTopic(ctx, string(transcript))
	}

	if e.cache != nil {
		key, err := e.cache.Put(string(transcript), string(analysisText), meta.Entities, map[string]string{
			"topic":  meta.Topic,
			"source": item.SourceName,
		})
		if err != nil {
			e.logger.Warn("could not cache analysis", logging.Error(err))
		} else {
			meta.CacheKey = key
		}
	}

	if err := storeMetadata(item, meta); err != nil {
		return err
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(item.SourceName, "entities", "entities extracted")
	}
	item.SetProgress("Extracting entities", "Entities extracted", 100)
	e.logger.Info("entities extracted",
		logging.String("source", item.SourceName),
		logging.Int("people", len(entities.People)),
		logging.Int("companies", len(entities.Companies)),
		logging.Int("technologies", len(entities.Technologies)))
	return nil
}

func (e *EntityExtractor) HealthCheck(ctx context.Context) stage.Health {
	return stage.Verdict("entities", e.client.HealthCheck(ctx))
}
