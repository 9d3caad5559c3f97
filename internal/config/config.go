package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InputDir   string `toml:"input_dir"`
	VaultDir   string `toml:"vault_dir"`
	StagingDir string `toml:"staging_dir"`
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
}

// Transcription contains settings for the Whisper transcription API and
// the audio conversion that precedes it.
type Transcription struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	Language       string `toml:"language"`
	RequestTimeout int    `toml:"request_timeout"`
	ChunkSeconds   int    `toml:"chunk_seconds"`
	MaxUploadMiB   int    `toml:"max_upload_mib"`
	ConvertTimeout int    `toml:"convert_timeout"`
}

// Analysis contains settings for the LLM analysis API.
type Analysis struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// Speaker identification chunking. Transcripts longer than
	// speaker_chunk_threshold characters are processed in overlapping chunks.
	SpeakerChunkThreshold int `toml:"speaker_chunk_threshold"`
	SpeakerChunkSize      int `toml:"speaker_chunk_size"`
	SpeakerChunkOverlap   int `toml:"speaker_chunk_overlap"`

	// Truncation guards. Speaker-labelled output shorter than these ratios
	// of its input is rejected rather than saved truncated.
	MinOutputRatio   float64 `toml:"min_output_ratio"`
	MinChunkRatio    float64 `toml:"min_chunk_ratio"`
	MinRejoinedRatio float64 `toml:"min_rejoined_ratio"`
}

// Cache contains settings for the analysis result cache.
type Cache struct {
	Enabled             bool    `toml:"enabled"`
	Dir                 string  `toml:"dir"`
	MaxEntries          int     `toml:"max_entries"`
	MaxAgeDays          int     `toml:"max_age_days"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Workflow contains daemon timing and concurrency settings.
type Workflow struct {
	Workers            int  `toml:"workers"`
	QueuePollInterval  int  `toml:"queue_poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	HeartbeatInterval  int  `toml:"heartbeat_interval"`
	HeartbeatTimeout   int  `toml:"heartbeat_timeout"`
	TestingMode        bool `toml:"testing_mode"`
}

// Batch contains settings for batch submission concurrency.
type Batch struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Resources contains thresholds for resource monitoring.
type Resources struct {
	SampleInterval        int     `toml:"sample_interval"`
	MemoryAlertPercent    float64 `toml:"memory_alert_percent"`
	MemoryCriticalPercent float64 `toml:"memory_critical_percent"`
	ProcessMemoryLimitMiB int     `toml:"process_memory_limit_mib"`
	CPUHighPercent        float64 `toml:"cpu_high_percent"`
	LowUsagePercent       float64 `toml:"low_usage_percent"`
}

// Drive contains Google Drive ingest settings.
type Drive struct {
	Enabled           bool    `toml:"enabled"`
	CredentialsFile   string  `toml:"credentials_file"`
	TokenFile         string  `toml:"token_file"`
	FolderID          string  `toml:"folder_id"`
	ProcessedFolderID string  `toml:"processed_folder_id"`
	VaultFolderID     string  `toml:"vault_folder_id"`
	PollSchedule      string  `toml:"poll_schedule"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Watch contains local input folder watching settings.
type Watch struct {
	Enabled       bool `toml:"enabled"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Scribe.
//
// Configuration sections by subsystem:
//   - Paths: input, vault, staging, archive, and log directories
//   - Transcription: Whisper API connection and audio conversion settings
//   - Analysis: LLM connection, speaker chunking, and truncation guards
//   - Cache: analysis result cache sizing and similarity threshold
//   - Workflow: worker count, polling intervals, heartbeats
//   - Batch: batch submission concurrency bounds
//   - Resources: memory/CPU thresholds for adaptive throttling
//   - Drive: Google Drive folder ingest
//   - Watch: local input folder watching
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Cache         Cache         `toml:"cache"`
	Workflow      Workflow      `toml:"workflow"`
	Batch         Batch         `toml:"batch"`
	Resources     Resources     `toml:"resources"`
	Drive         Drive         `toml:"drive"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized, and API keys resolved from the
// environment when the file leaves them unset.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		// A .env beside the config file supplies API keys without storing
		// them in the config itself.
		_ = godotenv.Load(filepath.Join(filepath.Dir(resolvedPath), ".env"))

		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvironment()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvironment() {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		c.Transcription.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if strings.TrimSpace(c.Analysis.APIKey) == "" {
		c.Analysis.APIKey = strings.TrimSpace(os.Getenv("SCRIBE_ANALYSIS_API_KEY"))
	}
	if strings.TrimSpace(c.Analysis.APIKey) == "" {
		c.Analysis.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/scribe/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// VaultDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.StagingDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.VaultDir) != "" {
		_ = os.MkdirAll(c.Paths.VaultDir, 0o755)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) != "" {
		if err := os.MkdirAll(c.Cache.Dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Cache.Dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio conversion.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "scribe", "analysis")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/scribe/analysis"
	}
	return filepath.Join(home, ".cache", "scribe", "analysis")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
