package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate checks every section and reports all violations at once, so a
// broken configuration can be fixed in a single pass.
func (c *Config) Validate() error {
	var violations []error
	violations = append(violations, c.validatePaths()...)
	violations = append(violations, c.validateTranscription()...)
	violations = append(violations, c.validateAnalysis()...)
	violations = append(violations, c.validateCache()...)
	violations = append(violations, c.validateWorkflow()...)
	violations = append(violations, c.validateDrive()...)
	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration (%d violation(s)):\n%w", len(violations), errors.Join(violations...))
}

func (c *Config) validatePaths() []error {
	var violations []error
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		violations = append(violations, errors.New("paths.vault_dir must be set"))
	}
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		violations = append(violations, errors.New("paths.input_dir must be set"))
	}
	return violations
}

func (c *Config) validateTranscription() []error {
	var violations []error
	if c.Transcription.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		violations = append(violations, fmt.Errorf("transcription.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'scribe config init')", defaultPath))
	}
	violations = append(violations, ensurePositiveMap(map[string]int{
		"transcription.request_timeout": c.Transcription.RequestTimeout,
		"transcription.chunk_seconds":   c.Transcription.ChunkSeconds,
		"transcription.max_upload_mib":  c.Transcription.MaxUploadMiB,
		"transcription.convert_timeout": c.Transcription.ConvertTimeout,
	})...)
	return violations
}

func (c *Config) validateAnalysis() []error {
	var violations []error
	if c.Analysis.APIKey == "" {
		violations = append(violations, errors.New("analysis.api_key is required (or set SCRIBE_ANALYSIS_API_KEY / OPENROUTER_API_KEY)"))
	}
	if c.Analysis.SpeakerChunkOverlap >= c.Analysis.SpeakerChunkSize {
		violations = append(violations, errors.New("analysis.speaker_chunk_overlap must be smaller than analysis.speaker_chunk_size"))
	}
	ratios := map[string]float64{
		"analysis.min_output_ratio":   c.Analysis.MinOutputRatio,
		"analysis.min_chunk_ratio":    c.Analysis.MinChunkRatio,
		"analysis.min_rejoined_ratio": c.Analysis.MinRejoinedRatio,
	}
	for _, name := range sortedKeys(ratios) {
		if ratio := ratios[name]; ratio <= 0 || ratio > 1 {
			violations = append(violations, fmt.Errorf("%s must be between 0 and 1", name))
		}
	}
	return violations
}

func (c *Config) validateCache() []error {
	if !c.Cache.Enabled {
		return nil
	}
	var violations []error
	if strings.TrimSpace(c.Cache.Dir) == "" {
		violations = append(violations, errors.New("cache.dir must be set when cache.enabled is true"))
	}
	if c.Cache.MaxEntries <= 0 {
		violations = append(violations, errors.New("cache.max_entries must be positive"))
	}
	if c.Cache.MaxAgeDays <= 0 {
		violations = append(violations, errors.New("cache.max_age_days must be positive"))
	}
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		violations = append(violations, errors.New("cache.similarity_threshold must be between 0 and 1"))
	}
	return violations
}

func (c *Config) validateWorkflow() []error {
	violations := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"batch.max_concurrent":          c.Batch.MaxConcurrent,
		"resources.sample_interval":     c.Resources.SampleInterval,
	})
	if c.Workflow.Workers > 5 {
		violations = append(violations, errors.New("workflow.workers must be between 1 and 5"))
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		violations = append(violations, errors.New("workflow.heartbeat_interval must be positive"))
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		violations = append(violations, errors.New("workflow.heartbeat_timeout must be positive"))
	} else if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		violations = append(violations, errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval"))
	}
	if c.Resources.MemoryAlertPercent >= c.Resources.MemoryCriticalPercent {
		violations = append(violations, errors.New("resources.memory_alert_percent must be below resources.memory_critical_percent"))
	}
	return violations
}

func (c *Config) validateDrive() []error {
	if !c.Drive.Enabled {
		return nil
	}
	var violations []error
	if strings.TrimSpace(c.Drive.CredentialsFile) == "" {
		violations = append(violations, errors.New("drive.credentials_file must be set when drive.enabled is true"))
	}
	if strings.TrimSpace(c.Drive.FolderID) == "" {
		violations = append(violations, errors.New("drive.folder_id must be set when drive.enabled is true"))
	}
	if c.Drive.RequestsPerSecond <= 0 {
		violations = append(violations, errors.New("drive.requests_per_second must be positive"))
	}
	return violations
}

func ensurePositiveMap(values map[string]int) []error {
	var violations []error
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			violations = append(violations, fmt.Errorf("%s must be positive", key))
		}
	}
	return violations
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
