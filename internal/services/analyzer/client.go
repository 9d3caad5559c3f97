package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/retry"
	"scribe/internal/services"
)

const (
	maxAnalysisTokens = 4000
	maxSpeakerTokens  = 8000
	maxTopicTokens    = 100
	maxEntityTokens   = 1000
)

// Client talks to an OpenAI-compatible chat-completions endpoint for
// transcript analysis.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	referer        string
	title          string
	requestTimeout time.Duration

	chunkThreshold int
	chunkSize      int
	chunkOverlap   int
	minOutputRatio float64
	minChunkRatio  float64
	minJoinedRatio float64

	httpClient *http.Client
	logger     *slog.Logger
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

// New builds an analysis client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	section := cfg.Analysis
	if strings.TrimSpace(section.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "analyzer_init", "analysis api key required", nil)
	}
	timeout := time.Duration(section.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL:        strings.TrimRight(section.BaseURL, "/"),
		apiKey:         section.APIKey,
		model:          section.Model,
		referer:        section.Referer,
		title:          section.Title,
		requestTimeout: timeout,
		chunkThreshold: section.SpeakerChunkThreshold,
		chunkSize:      section.SpeakerChunkSize,
		chunkOverlap:   section.SpeakerChunkOverlap,
		minOutputRatio: section.MinOutputRatio,
		minChunkRatio:  section.MinChunkRatio,
		minJoinedRatio: section.MinRejoinedRatio,
		httpClient:     &http.Client{},
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HealthCheck verifies the client is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return services.Wrap(services.ErrConfiguration, "", "analyzer_health", "analysis api key missing", nil)
	}
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "", "analyzer_health", "analysis base url missing", nil)
	}
	return nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends a single user prompt and returns the model's text.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var content string
	err := retry.Do(ctx, retry.APIRetry, func() error {
		result, reqErr := c.request(ctx, prompt, maxTokens)
		if reqErr != nil {
			return reqErr
		}
		content = result
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrAnalysis, "analyze", "completion", "analysis request failed", err)
	}
	return content, nil
}

func (c *Client) request(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", services.Wrap(services.ErrTimeout, "analyze", "completion", "request timed out", err)
		}
		return "", services.Wrap(services.ErrNetwork, "analyze", "completion", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "analyze", "completion", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &services.StatusError{
			StatusCode: resp.StatusCode,
			Body:       summarizePayload(body),
			RetryAfter: services.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", services.Wrap(services.ErrAnalysis, "analyze", "completion", "unparseable response", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", services.Wrap(services.ErrAnalysis, "analyze", "completion", decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		// Empty completions are usually upstream flakiness worth retrying.
		return "", services.Wrap(services.ErrTransient, "analyze", "completion", "empty completion content", nil)
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

func summarizePayload(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}
