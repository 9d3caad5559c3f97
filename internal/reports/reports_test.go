package reports

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe/internal/services"
)

func TestWriteReportFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)
	w.now = func() time.Time { return time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC) }

	failure := services.New(services.ErrTranscription, "transcribe", "request",
		"whisper API returned status 429", errors.New("rate limited")).
		WithContext("audio_file", "standup.flac").
		WithContext("attempts", "3")

	path, err := w.Write(failure, "team standup.mp4")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := filepath.Base(path), "ERROR-Transcription-team_standup_mp4-20260301_143005.md"; got != want {
		t.Fatalf("report name = %q, want %q", got, want)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(content)
	for _, want := range []string{
		"# Processing Error Report",
		"- **Type:** Transcription",
		"- **File:** team standup.mp4",
		"- **Stage:** transcribe",
		"- **Message:** whisper API returned status 429",
		"- **Audio File:** standup.flac",
		"- **Attempts:** 3",
		"## Recommended Solutions",
		"1. Verify the Whisper API key",
		"## Next Steps",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRemediationStepsPerKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrAudioProcessing, "convert", "ffmpeg", "boom", nil), "ffmpeg"},
		{services.Wrap(services.ErrStorage, "save", "write", "boom", nil), "vault path"},
		{services.Wrap(services.ErrResource, "", "check", "boom", nil), "memory"},
		{errors.New("unclassified"), "Retry the operation"},
	}
	for _, tc := range cases {
		steps := remediationSteps(tc.err)
		joined := strings.Join(steps, "\n")
		if !strings.Contains(joined, tc.want) {
			t.Errorf("steps for %v missing %q: %v", tc.err, tc.want, steps)
		}
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "Reports")
	w := NewWriter(dir, nil)
	if _, err := w.Write(errors.New("boom"), "a.mp4"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %v, err = %v", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "ERROR-Transient-a_mp4-") {
		t.Fatalf("name = %q", entries[0].Name())
	}
}
