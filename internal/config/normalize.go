package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCache(); err != nil {
		return err
	}
	if err := c.normalizeDrive(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.VaultDir, err = expandPath(c.Paths.VaultDir); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() error {
	var err error
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = defaultCacheDir()
	}
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = defaultCacheMaxEntries
	}
	if c.Cache.MaxAgeDays <= 0 {
		c.Cache.MaxAgeDays = defaultCacheMaxAgeDays
	}
	if c.Cache.SimilarityThreshold <= 0 {
		c.Cache.SimilarityThreshold = defaultCacheSimilarityThreshold
	}
	return nil
}

func (c *Config) normalizeDrive() error {
	var err error
	if c.Drive.CredentialsFile, err = expandPath(c.Drive.CredentialsFile); err != nil {
		return fmt.Errorf("drive.credentials_file: %w", err)
	}
	if c.Drive.TokenFile, err = expandPath(c.Drive.TokenFile); err != nil {
		return fmt.Errorf("drive.token_file: %w", err)
	}
	c.Drive.FolderID = strings.TrimSpace(c.Drive.FolderID)
	c.Drive.ProcessedFolderID = strings.TrimSpace(c.Drive.ProcessedFolderID)
	c.Drive.VaultFolderID = strings.TrimSpace(c.Drive.VaultFolderID)
	c.Drive.PollSchedule = strings.TrimSpace(c.Drive.PollSchedule)
	if c.Drive.PollSchedule == "" {
		c.Drive.PollSchedule = defaultDrivePollSchedule
	}
	if c.Drive.RequestsPerSecond <= 0 {
		c.Drive.RequestsPerSecond = defaultDriveRequestsPerSecond
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultWhisperBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if c.Transcription.RequestTimeout <= 0 {
		c.Transcription.RequestTimeout = defaultWhisperRequestTimeout
	}
	if c.Transcription.ChunkSeconds <= 0 {
		c.Transcription.ChunkSeconds = defaultChunkSeconds
	}
	if c.Transcription.MaxUploadMiB <= 0 {
		c.Transcription.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Transcription.ConvertTimeout <= 0 {
		c.Transcription.ConvertTimeout = defaultConvertTimeout
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.BaseURL = strings.TrimSpace(c.Analysis.BaseURL)
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = defaultAnalysisBaseURL
	}
	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	c.Analysis.Referer = strings.TrimSpace(c.Analysis.Referer)
	c.Analysis.Title = strings.TrimSpace(c.Analysis.Title)
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeoutSeconds
	}
	if c.Analysis.SpeakerChunkThreshold <= 0 {
		c.Analysis.SpeakerChunkThreshold = defaultSpeakerChunkThreshold
	}
	if c.Analysis.SpeakerChunkSize <= 0 {
		c.Analysis.SpeakerChunkSize = defaultSpeakerChunkSize
	}
	if c.Analysis.SpeakerChunkOverlap < 0 {
		c.Analysis.SpeakerChunkOverlap = defaultSpeakerChunkOverlap
	}
	if c.Analysis.MinOutputRatio <= 0 {
		c.Analysis.MinOutputRatio = defaultMinOutputRatio
	}
	if c.Analysis.MinChunkRatio <= 0 {
		c.Analysis.MinChunkRatio = defaultMinChunkRatio
	}
	if c.Analysis.MinRejoinedRatio <= 0 {
		c.Analysis.MinRejoinedRatio = defaultMinRejoinedRatio
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Batch.MaxConcurrent <= 0 {
		c.Batch.MaxConcurrent = defaultBatchMaxConcurrent
	}
	if c.Batch.MaxConcurrent > 5 {
		c.Batch.MaxConcurrent = 5
	}
	if c.Resources.SampleInterval <= 0 {
		c.Resources.SampleInterval = defaultResourceSampleInterval
	}
	if c.Resources.MemoryAlertPercent <= 0 {
		c.Resources.MemoryAlertPercent = defaultMemoryAlertPercent
	}
	if c.Resources.MemoryCriticalPercent <= 0 {
		c.Resources.MemoryCriticalPercent = defaultMemoryCriticalPercent
	}
	if c.Resources.ProcessMemoryLimitMiB <= 0 {
		c.Resources.ProcessMemoryLimitMiB = defaultProcessMemoryLimitMiB
	}
	if c.Resources.CPUHighPercent <= 0 {
		c.Resources.CPUHighPercent = defaultCPUHighPercent
	}
	if c.Resources.LowUsagePercent <= 0 {
		c.Resources.LowUsagePercent = defaultLowUsagePercent
	}
	if c.Watch.SettleSeconds < 0 {
		c.Watch.SettleSeconds = defaultWatchSettleSeconds
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
