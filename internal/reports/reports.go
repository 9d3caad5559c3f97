// Package reports writes Markdown error reports for failed pipeline items so
// a user can diagnose and remediate without digging through logs.
package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
)

// Writer renders error reports into a directory.
type Writer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter returns a Writer that places reports under dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Writer{dir: dir, logger: logger, now: time.Now}
}

// Write renders a report for a failed source file and returns the report
// path. Report writing is best-effort infrastructure: the returned error is
// for logging, not for failing the item a second time.
func (w *Writer) Write(failure error, sourceFile string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	kind := services.KindName(failure)
	name := fmt.Sprintf("ERROR-%s-%s-%s.md",
		kind, sanitizeReportName(sourceFile), w.now().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)

	if err := os.WriteFile(path, []byte(Render(failure, sourceFile, w.now())), 0o644); err != nil {
		return "", fmt.Errorf("write error report: %w", err)
	}
	w.logger.Info("error report written",
		logging.String("path", path),
		logging.String("kind", kind))
	return path, nil
}

// Render builds the Markdown report body.
func Render(failure error, sourceFile string, now time.Time) string {
	kind := services.KindName(failure)
	_, stage, operation, message, contextual := services.Details(failure)
	if message == "" && failure != nil {
		message = failure.Error()
	}

	var b strings.Builder
	b.WriteString("# Processing Error Report\n\n")
	b.WriteString("## Error Information\n")
	fmt.Fprintf(&b, "- **Type:** %s\n", kind)
	fmt.Fprintf(&b, "- **File:** %s\n", sourceFile)
	if stage != "" {
		fmt.Fprintf(&b, "- **Stage:** %s\n", stage)
	}
	if operation != "" {
		fmt.Fprintf(&b, "- **Operation:** %s\n", operation)
	}
	fmt.Fprintf(&b, "- **Message:** %s\n", message)
	fmt.Fprintf(&b, "- **Time:** %s\n\n", now.Format(time.RFC3339))

	if failure != nil {
		fmt.Fprintf(&b, "## Details\n%s\n\n", failure.Error())
	}

	if len(contextual) > 0 {
		b.WriteString("## Context Information\n")
		keys := make([]string, 0, len(contextual))
		for key := range contextual {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "- **%s:** %s\n", titleize(key), contextual[key])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommended Solutions\n")
	for i, step := range remediationSteps(failure) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\n## Next Steps\n")
	b.WriteString("1. Review the error message and details above\n")
	b.WriteString("2. Try the recommended solutions in order\n")
	b.WriteString("3. Check system resources (disk space, memory, network)\n")
	b.WriteString("4. Retry the file once the cause is addressed\n")

	return b.String()
}

// remediationSteps maps the error kind to ordered, user-actionable fixes.
func remediationSteps(failure error) []string {
	switch {
	case errors.Is(failure, services.ErrConfiguration):
		return []string{
			"Check the configuration file for the field named in the message",
			"Set missing API keys in the .env file next to the config",
			"Verify configured paths exist and are accessible",
		}
	case errors.Is(failure, services.ErrAudioProcessing):
		return []string{
			"Verify the input file is a valid audio/video file",
			"Ensure ffmpeg and ffprobe are installed and on PATH",
			"Check available disk space for the converted audio",
			"Re-record or re-download the file if it is corrupted",
		}
	case errors.Is(failure, services.ErrTranscription):
		return []string{
			"Verify the Whisper API key is correct and has access",
			"Check your internet connection",
			"Split audio files longer than 30 minutes into chunks",
			"Wait and retry if the service is rate limiting",
		}
	case errors.Is(failure, services.ErrAnalysis):
		return []string{
			"Verify the analysis API key is correct",
			"Retry later if the provider is rate limiting",
			"Try a model with a larger context window for long transcripts",
		}
	case errors.Is(failure, services.ErrStorage):
		return []string{
			"Check vault path and directory permissions",
			"Verify sufficient disk space",
			"For Google Drive vaults, check credentials and folder IDs",
		}
	case errors.Is(failure, services.ErrResource):
		return []string{
			"Free up memory or disk space",
			"Process smaller files or lower the worker count",
			"Wait for other processes to finish and retry",
		}
	case errors.Is(failure, services.ErrNetwork), errors.Is(failure, services.ErrTimeout):
		return []string{
			"Check your internet connection",
			"Retry the operation in a few minutes",
			"Check the service status page for outages",
		}
	case errors.Is(failure, services.ErrNotFound):
		return []string{
			"Verify the file still exists at the recorded path",
			"Re-add the file to the input folder if it was moved",
		}
	default:
		return []string{
			"Retry the operation; the failure may be temporary",
			"Check the daemon log for surrounding errors",
		}
	}
}

func sanitizeReportName(name string) string {
	replacer := strings.NewReplacer(".", "_", " ", "_", "/", "_", "\\", "_")
	cleaned := replacer.Replace(name)
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

func titleize(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
