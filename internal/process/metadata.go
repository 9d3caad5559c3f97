package process

import (
	"encoding/json"

	"scribe/internal/queue"
	"scribe/internal/services"
)

// Metadata is the inter-stage state carried in the queue item's metadata
// JSON. Stages fill in what they learn; later stages read what they need.
type Metadata struct {
	DurationSeconds float64             `json:"duration_seconds,omitempty"`
	TranscriptChars int                 `json:"transcript_chars,omitempty"`
	Topic           string              `json:"topic,omitempty"`
	Entities        map[string][]string `json:"entities,omitempty"`
	CacheKey        string              `json:"cache_key,omitempty"`
	CacheHit        bool                `json:"cache_hit,omitempty"`
}

func loadMetadata(item *queue.Item) (Metadata, error) {
	var meta Metadata
	if item.MetadataJSON == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(item.MetadataJSON), &meta); err != nil {
		return Metadata{}, services.Wrap(services.ErrValidation, item.ProgressStage, "decode metadata", "metadata JSON is corrupt", err)
	}
	return meta, nil
}

func storeMetadata(item *queue.Item, meta Metadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return services.Wrap(services.ErrStorage, item.ProgressStage, "encode metadata", "marshal metadata JSON", err)
	}
	item.MetadataJSON = string(payload)
	return nil
}
