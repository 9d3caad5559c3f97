package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/retry"
	"scribe/internal/services"
)

// Client talks to an OpenAI-compatible Whisper transcription endpoint.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	language       string
	maxUploadBytes int64
	requestTimeout time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a transcription client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	section := cfg.Transcription
	if strings.TrimSpace(section.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "whisper_init", "transcription api key required", nil)
	}
	timeout := time.Duration(section.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxUpload := int64(section.MaxUploadMiB) << 20
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	c := &Client{
		baseURL:        strings.TrimRight(section.BaseURL, "/"),
		apiKey:         section.APIKey,
		model:          section.Model,
		language:       section.Language,
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
		httpClient:     &http.Client{},
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExceedsUploadLimit reports whether the file is too large for a single
// upload and must be chunked.
func (c *Client) ExceedsUploadLimit(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, services.Wrap(services.ErrNotFound, "transcribe", "stat", "audio file missing", err)
	}
	return info.Size() > c.maxUploadBytes, nil
}

// Transcribe uploads a single audio file and returns its transcript text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "transcribe", "stat", "audio file missing", err)
	}
	if info.Size() > c.maxUploadBytes {
		return "", services.New(services.ErrValidation, "transcribe", "upload", "file exceeds upload limit", nil).
			WithContext("bytes", strconv.FormatInt(info.Size(), 10)).
			WithContext("limit_bytes", strconv.FormatInt(c.maxUploadBytes, 10))
	}

	c.logger.Info("transcribing audio",
		logging.String("file", filepath.Base(path)),
		logging.Int64("bytes", info.Size()))

	var text string
	err = retry.Do(ctx, retry.APIRetry, func() error {
		result, reqErr := c.request(ctx, path)
		if reqErr != nil {
			return reqErr
		}
		text = result
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "whisper", "transcription request failed", err)
	}

	c.logger.Info("transcription complete",
		logging.String("file", filepath.Base(path)),
		logging.Int("characters", len(text)))
	return text, nil
}

// TranscribeChunked transcribes each chunk in order and joins the results.
// A failed chunk contributes a placeholder instead of aborting the run, and
// every chunk file is deleted as soon as it has been attempted. Zero
// successful chunks is an error.
func (c *Client) TranscribeChunked(ctx context.Context, chunks []string) (string, error) {
	if len(chunks) == 0 {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "chunks", "no audio chunks to transcribe", nil)
	}

	parts := make([]string, 0, len(chunks))
	successful := 0
	for i, chunk := range chunks {
		number := i + 1
		c.logger.Info("transcribing chunk",
			logging.Int("chunk", number),
			logging.Int("total", len(chunks)))

		text, err := c.Transcribe(ctx, chunk)
		if err != nil {
			c.logger.Error("chunk transcription failed",
				logging.Int("chunk", number), logging.Error(err))
			parts = append(parts, chunkPlaceholder(number, err))
		} else {
			parts = append(parts, strings.TrimSpace(text))
			successful++
		}
		c.removeChunk(chunk)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if successful == 0 {
		return "", services.New(services.ErrTranscription, "transcribe", "chunks", "no chunks were successfully transcribed", nil).
			WithContext("chunks", strconv.Itoa(len(chunks)))
	}
	c.logger.Info("chunked transcription complete",
		logging.Int("successful", successful),
		logging.Int("total", len(chunks)))
	return strings.Join(parts, " "), nil
}

// HealthCheck verifies the client is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return services.Wrap(services.ErrConfiguration, "", "whisper_health", "transcription api key missing", nil)
	}
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "", "whisper_health", "transcription base url missing", nil)
	}
	return nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *Client) request(ctx context.Context, path string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, contentType, err := c.multipartBody(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", services.Wrap(services.ErrTimeout, "transcribe", "whisper", "request timed out", err)
		}
		return "", services.Wrap(services.ErrNetwork, "transcribe", "whisper", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "transcribe", "whisper", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &services.StatusError{
			StatusCode: resp.StatusCode,
			Body:       summarizeBody(payload),
			RetryAfter: services.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrTranscription, "transcribe", "whisper", "unparseable response", err)
	}
	return decoded.Text, nil
}

func (c *Client) multipartBody(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", services.Wrap(services.ErrNotFound, "transcribe", "open", "open audio file", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", services.Wrap(services.ErrStorage, "transcribe", "read", "read audio file", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) removeChunk(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("could not remove audio chunk",
			logging.String("path", path), logging.Error(err))
	}
}

func chunkPlaceholder(number int, err error) string {
	if errors.Is(err, services.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("[Audio section %d could not be transcribed - timeout]", number)
	}
	return fmt.Sprintf("[Audio section %d could not be transcribed]", number)
}

func summarizeBody(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}
