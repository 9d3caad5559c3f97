package whisper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"scribe/internal/config"
	"scribe/internal/services"
	"scribe/internal/testsupport"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.BaseURL = baseURL
	if mutate != nil {
		mutate(cfg)
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func writeAudio(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testsupport.WriteFile(t, path, int64(size))
	return path
}

func TestTranscribeSendsMultipartRequest(t *testing.T) {
	var gotAuth, gotModel, gotFormat, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFile = header.Filename
		}
		w.Write([]byte(`{"text": "weekly sync transcript"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	text, err := client.Transcribe(context.Background(), writeAudio(t, "sync.flac", 2048))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "weekly sync transcript" {
		t.Fatalf("text = %q", text)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotModel == "" || gotFormat != "verbose_json" {
		t.Fatalf("model = %q format = %q", gotModel, gotFormat)
	}
	if gotFile != "sync.flac" {
		t.Fatalf("file field = %q", gotFile)
	}
}

func TestTranscribeRejectsOversizedFile(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid", func(cfg *config.Config) {
		cfg.Transcription.MaxUploadMiB = 1
	})
	_, err := client.Transcribe(context.Background(), writeAudio(t, "huge.flac", 2<<20))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}

	over, err := client.ExceedsUploadLimit(writeAudio(t, "huge2.flac", 2<<20))
	if err != nil || !over {
		t.Fatalf("ExceedsUploadLimit = %v, %v; want true", over, err)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "recovered"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	text, err := client.Transcribe(context.Background(), writeAudio(t, "a.flac", 1024))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "recovered" || calls.Load() != 2 {
		t.Fatalf("text = %q after %d calls", text, calls.Load())
	}
}

func TestTranscribeDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.Transcribe(context.Background(), writeAudio(t, "a.flac", 1024))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("error = %v, want transcription kind", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestTranscribeChunkedUsesPlaceholderAndCleansUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			http.Error(w, "cannot decode", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"text": "section text"}`))
	}))
	defer server.Close()

	chunks := []string{
		writeAudio(t, "m_chunk_01.flac", 1024),
		writeAudio(t, "m_chunk_02.flac", 1024),
		writeAudio(t, "m_chunk_03.flac", 1024),
	}
	client := newTestClient(t, server.URL, nil)
	text, err := client.TranscribeChunked(context.Background(), chunks)
	if err != nil {
		t.Fatalf("TranscribeChunked: %v", err)
	}
	if !strings.Contains(text, "[Audio section 2 could not be transcribed]") {
		t.Fatalf("transcript missing placeholder: %q", text)
	}
	if strings.Count(text, "section text") != 2 {
		t.Fatalf("transcript = %q, want two successful sections", text)
	}
	for _, chunk := range chunks {
		if _, err := os.Stat(chunk); !os.IsNotExist(err) {
			t.Fatalf("chunk %s should be deleted", chunk)
		}
	}
}

func TestTranscribeChunkedAllFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer server.Close()

	chunks := []string{writeAudio(t, "x_chunk_01.flac", 1024)}
	client := newTestClient(t, server.URL, nil)
	_, err := client.TranscribeChunked(context.Background(), chunks)
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("error = %v, want transcription kind", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client := newTestClient(t, "https://api.example.com/v1/audio/transcriptions", nil)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
