package config

const (
	defaultInputDir   = "~/.local/share/scribe/input"
	defaultVaultDir   = "~/vault"
	defaultStagingDir = "~/.local/share/scribe/staging"
	defaultArchiveDir = "~/.local/share/scribe/processed"
	defaultLogDir     = "~/.local/share/scribe/logs"

	defaultWhisperBaseURL        = "https://api.openai.com/v1/audio/transcriptions"
	defaultWhisperModel          = "whisper-1"
	defaultWhisperRequestTimeout = 120
	defaultChunkSeconds          = 600
	defaultMaxUploadMiB          = 25
	defaultConvertTimeout        = 300

	defaultAnalysisBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultAnalysisModel          = "anthropic/claude-sonnet-4"
	defaultAnalysisReferer        = "https://github.com/scribe-notes/scribe"
	defaultAnalysisTitle          = "Scribe Meeting Analysis"
	defaultAnalysisTimeoutSeconds = 60

	defaultSpeakerChunkThreshold = 10000
	defaultSpeakerChunkSize      = 5000
	defaultSpeakerChunkOverlap   = 200
	defaultMinOutputRatio        = 0.85
	defaultMinChunkRatio         = 0.75
	defaultMinRejoinedRatio      = 0.7

	defaultCacheMaxEntries          = 1000
	defaultCacheMaxAgeDays          = 30
	defaultCacheSimilarityThreshold = 0.7

	defaultWorkers            = 2
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultBatchMaxConcurrent = 3

	defaultResourceSampleInterval = 30
	defaultMemoryAlertPercent     = 85
	defaultMemoryCriticalPercent  = 95
	defaultProcessMemoryLimitMiB  = 500
	defaultCPUHighPercent         = 90
	defaultLowUsagePercent        = 70

	defaultDrivePollSchedule      = "@every 1m"
	defaultDriveRequestsPerSecond = 5
	defaultDriveCredentialsFile   = "~/.config/scribe/drive_credentials.json"
	defaultDriveTokenFile         = "~/.config/scribe/drive_token.json"

	defaultWatchSettleSeconds = 2

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:   defaultInputDir,
			VaultDir:   defaultVaultDir,
			StagingDir: defaultStagingDir,
			ArchiveDir: defaultArchiveDir,
			LogDir:     defaultLogDir,
		},
		Transcription: Transcription{
			BaseURL:        defaultWhisperBaseURL,
			Model:          defaultWhisperModel,
			RequestTimeout: defaultWhisperRequestTimeout,
			ChunkSeconds:   defaultChunkSeconds,
			MaxUploadMiB:   defaultMaxUploadMiB,
			ConvertTimeout: defaultConvertTimeout,
		},
		Analysis: Analysis{
			BaseURL:               defaultAnalysisBaseURL,
			Model:                 defaultAnalysisModel,
			Referer:               defaultAnalysisReferer,
			Title:                 defaultAnalysisTitle,
			TimeoutSeconds:        defaultAnalysisTimeoutSeconds,
			SpeakerChunkThreshold: defaultSpeakerChunkThreshold,
			SpeakerChunkSize:      defaultSpeakerChunkSize,
			SpeakerChunkOverlap:   defaultSpeakerChunkOverlap,
			MinOutputRatio:        defaultMinOutputRatio,
			MinChunkRatio:         defaultMinChunkRatio,
			MinRejoinedRatio:      defaultMinRejoinedRatio,
		},
		Cache: Cache{
			Enabled:             true,
			Dir:                 defaultCacheDir(),
			MaxEntries:          defaultCacheMaxEntries,
			MaxAgeDays:          defaultCacheMaxAgeDays,
			SimilarityThreshold: defaultCacheSimilarityThreshold,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Batch: Batch{
			MaxConcurrent: defaultBatchMaxConcurrent,
		},
		Resources: Resources{
			SampleInterval:        defaultResourceSampleInterval,
			MemoryAlertPercent:    defaultMemoryAlertPercent,
			MemoryCriticalPercent: defaultMemoryCriticalPercent,
			ProcessMemoryLimitMiB: defaultProcessMemoryLimitMiB,
			CPUHighPercent:        defaultCPUHighPercent,
			LowUsagePercent:       defaultLowUsagePercent,
		},
		Drive: Drive{
			CredentialsFile:   defaultDriveCredentialsFile,
			TokenFile:         defaultDriveTokenFile,
			PollSchedule:      defaultDrivePollSchedule,
			RequestsPerSecond: defaultDriveRequestsPerSecond,
		},
		Watch: Watch{
			Enabled:       true,
			SettleSeconds: defaultWatchSettleSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
