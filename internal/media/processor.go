package media

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/resources"
	"scribe/internal/services"
)

// supportedExtensions lists the container and audio formats accepted for
// ingest.
var supportedExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".mkv": {}, ".avi": {}, ".webm": {},
	".m4a": {}, ".mp3": {}, ".wav": {}, ".flac": {},
}

// SupportedExtension reports whether the file's extension is processable.
func SupportedExtension(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr string, err error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Option configures the processor.
type Option func(*Processor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(p *Processor) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// Processor wraps ffmpeg and ffprobe for conversion, probing, and chunking.
type Processor struct {
	ffmpeg         string
	ffprobe        string
	convertTimeout time.Duration
	exec           Executor
	logger         *slog.Logger
}

// NewProcessor builds a processor from configuration.
func NewProcessor(cfg *config.Config, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Transcription.ConvertTimeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	p := &Processor{
		ffmpeg:         cfg.FFmpegBinary(),
		ffprobe:        cfg.FFprobeBinary(),
		convertTimeout: timeout,
		exec:           commandExecutor{},
		logger:         logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateInstallation confirms ffmpeg and ffprobe run at all.
func (p *Processor) ValidateInstallation(ctx context.Context) error {
	for _, binary := range []string{p.ffmpeg, p.ffprobe} {
		if _, _, err := p.exec.Run(ctx, binary, []string{"-version"}); err != nil {
			return services.New(services.ErrConfiguration, "", "media_check", "media tooling unavailable", err).
				WithContext("binary", binary)
		}
	}
	return nil
}

// Probe verifies the file decodes and contains an audio stream.
func (p *Processor) Probe(ctx context.Context, path string) error {
	args := []string{
		"-v", "error",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	}
	stdout, stderr, err := p.exec.Run(ctx, p.ffprobe, args)
	if err != nil {
		return services.New(services.ErrValidation, "validate", "probe", "file is not decodable media", err).
			WithContext("file", filepath.Base(path)).
			WithContext("detail", strings.TrimSpace(stderr))
	}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) == "audio" {
			return nil
		}
	}
	return services.New(services.ErrValidation, "validate", "probe", "file has no audio stream", nil).
		WithContext("file", filepath.Base(path))
}

// Duration returns the media duration reported by ffprobe.
func (p *Processor) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	}
	stdout, stderr, err := p.exec.Run(ctx, p.ffprobe, args)
	if err != nil {
		return 0, services.New(services.ErrAudioProcessing, "", "duration", "probe media duration", err).
			WithContext("detail", strings.TrimSpace(stderr))
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrAudioProcessing, "", "duration", "unparseable duration from ffprobe", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ConvertToFLAC extracts mono 16kHz FLAC audio from the source into destDir
// and returns the output path. Requires twice the source size free on the
// destination filesystem.
func (p *Processor) ConvertToFLAC(ctx context.Context, src, destDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "convert", "stat", "source file missing", err)
	}
	if err := resources.EnsureDiskSpace(destDir, uint64(info.Size())*2); err != nil {
		return "", err
	}
	if err := p.Probe(ctx, src); err != nil {
		return "", err
	}

	dst := filepath.Join(destDir, stem(src)+".flac")
	p.logger.Info("converting to flac",
		logging.String("source", filepath.Base(src)),
		logging.String("dest", filepath.Base(dst)))

	runCtx, cancel := context.WithTimeout(ctx, p.convertTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "flac",
		"-compression_level", "12",
		"-y",
		dst,
	}
	_, stderr, err := p.exec.Run(runCtx, p.ffmpeg, args)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", services.New(services.ErrTimeout, "convert", "ffmpeg", "conversion timeout exceeded", err).
				WithContext("timeout", p.convertTimeout.String())
		}
		return "", services.New(services.ErrAudioProcessing, "convert", "ffmpeg", friendlyFFmpegError(stderr), err).
			WithContext("file", filepath.Base(src))
	}

	if err := p.validateOutput(ctx, dst); err != nil {
		return "", err
	}
	if out, err := os.Stat(dst); err == nil {
		p.logger.Info("conversion complete",
			logging.String("file", filepath.Base(dst)),
			logging.Int64("bytes", out.Size()))
	}
	return dst, nil
}

// Chunk splits audio into fixed-length segments named
// <stem>_chunk_NN.flac in the source directory and returns them in order.
func (p *Processor) Chunk(ctx context.Context, src string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		chunkSeconds = 600
	}
	duration, err := p.Duration(ctx, src)
	if err != nil {
		return nil, err
	}
	p.logger.Info("chunking audio",
		logging.String("file", filepath.Base(src)),
		logging.Duration("duration", duration),
		logging.Int("chunk_seconds", chunkSeconds))

	dir := filepath.Dir(src)
	pattern := filepath.Join(dir, stem(src)+"_chunk_%02d.flac")
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-segment_start_number", "1",
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "flac",
		"-compression_level", "12",
		"-y",
		pattern,
	}
	_, stderr, err := p.exec.Run(ctx, p.ffmpeg, args)
	if err != nil {
		return nil, services.New(services.ErrAudioProcessing, "transcribe", "chunk", friendlyFFmpegError(stderr), err).
			WithContext("file", filepath.Base(src))
	}

	chunks, err := filepath.Glob(filepath.Join(dir, stem(src)+"_chunk_*.flac"))
	if err != nil || len(chunks) == 0 {
		return nil, services.Wrap(services.ErrAudioProcessing, "transcribe", "chunk", "segmentation produced no chunks", err)
	}
	sort.Strings(chunks)
	p.logger.Info("created audio chunks", logging.Int("count", len(chunks)))
	return chunks, nil
}

// CleanupChunks deletes chunk files, logging rather than failing on errors.
func (p *Processor) CleanupChunks(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("could not remove audio chunk",
				logging.String("path", path), logging.Error(err))
		}
	}
}

func (p *Processor) validateOutput(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrAudioProcessing, "convert", "validate_output", "conversion produced no output", err)
	}
	if info.Size() < 1024 {
		return services.New(services.ErrAudioProcessing, "convert", "validate_output", "conversion output suspiciously small", nil).
			WithContext("bytes", strconv.FormatInt(info.Size(), 10))
	}
	return p.Probe(ctx, path)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// friendlyFFmpegError maps common ffmpeg stderr patterns to actionable
// messages, falling back to the last informative line.
func friendlyFFmpegError(stderr string) string {
	lower := strings.ToLower(stderr)
	switch {
	case stderr == "":
		return "unknown ffmpeg error"
	case strings.Contains(lower, "no such file or directory"):
		return "input file not found or inaccessible"
	case strings.Contains(lower, "permission denied"):
		return "permission denied accessing file"
	case strings.Contains(lower, "no space left on device"):
		return "insufficient disk space"
	case strings.Contains(lower, "invalid data"), strings.Contains(lower, "could not find codec"):
		return "file appears to be corrupted or not valid media"
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "[") {
			return line
		}
	}
	return "unknown conversion error"
}
