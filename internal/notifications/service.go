package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyFileDetected(ctx context.Context, filename, source string) error
	NotifyTranscriptionComplete(ctx context.Context, filename string, characters int) error
	NotifyProcessingCompleted(ctx context.Context, title, notePath string) error
	NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyFileDetected(ctx context.Context, filename, source string) error {
	filename = strings.TrimSpace(filename)
	source = strings.TrimSpace(source)
	if source == "" {
		source = "input folder"
	}
	data := payload{
		title:   "Scribe - Recording Detected",
		message: fmt.Sprintf("New recording: %s (%s)", filename, source),
		tags:    []string{"scribe", "ingest", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptionComplete(ctx context.Context, filename string, characters int) error {
	filename = strings.TrimSpace(filename)
	data := payload{
		title:   "Scribe - Transcribed",
		message: fmt.Sprintf("Transcription complete: %s (%d characters)", filename, characters),
		tags:    []string{"scribe", "transcribe", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProcessingCompleted(ctx context.Context, title, notePath string) error {
	if !n.completion {
		return nil
	}
	title = strings.TrimSpace(title)
	notePath = strings.TrimSpace(notePath)
	message := fmt.Sprintf("Meeting note ready: %s", title)
	if notePath != "" {
		message = fmt.Sprintf("%s\nNote: %s", message, notePath)
	}
	data := payload{
		title:    "Scribe - Complete",
		message:  message,
		tags:     []string{"scribe", "workflow", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.completion {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Scribe - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d recordings processed in %s", processed, durationText)
	} else {
		title = "Scribe - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"scribe", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Scribe - Error",
		message:  builder.String(),
		tags:     []string{"scribe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scribe - Test",
		message:  "Notification system test",
		tags:     []string{"scribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFileDetected(context.Context, string, string) error             { return nil }
func (noopService) NotifyTranscriptionComplete(context.Context, string, int) error       { return nil }
func (noopService) NotifyProcessingCompleted(context.Context, string, string) error      { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
