package services

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestWrapTagsKind(t *testing.T) {
	err := Wrap(ErrTranscription, "transcribing", "upload chunk", "chunk 2 rejected", fs.ErrPermission)
	if !errors.Is(err, ErrTranscription) {
		t.Fatal("expected errors.Is to match ErrTranscription")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatal("expected cause to remain reachable")
	}
	msg := err.Error()
	for _, want := range []string{"transcription error", "transcribing", "upload chunk", "chunk 2 rejected"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "saving", "", "disk gone", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("expected transient kind")
	}
}

func TestDetailsRoundTrip(t *testing.T) {
	wrapped := Wrap(ErrAnalysis, "analyzing", "complete json", "empty payload", nil)
	var svcErr *Error
	if !errors.As(wrapped, &svcErr) {
		t.Fatal("expected *Error")
	}
	svcErr.WithContext("model", "test-model")

	kind, stage, op, msg, ctx := Details(wrapped)
	if !errors.Is(kind, ErrAnalysis) {
		t.Fatalf("kind = %v", kind)
	}
	if stage != "analyzing" || op != "complete json" || msg != "empty payload" {
		t.Fatalf("unexpected details: %q %q %q", stage, op, msg)
	}
	if ctx["model"] != "test-model" {
		t.Fatalf("context missing: %v", ctx)
	}
}

func TestDetailsUnclassified(t *testing.T) {
	kind, _, _, msg, _ := Details(errors.New("boom"))
	if !errors.Is(kind, ErrTransient) {
		t.Fatalf("kind = %v", kind)
	}
	if msg != "boom" {
		t.Fatalf("msg = %q", msg)
	}
}

func TestKindName(t *testing.T) {
	cases := map[string]error{
		"Configuration":   Wrap(ErrConfiguration, "", "", "", nil),
		"AudioProcessing": Wrap(ErrAudioProcessing, "", "", "", nil),
		"Transcription":   Wrap(ErrTranscription, "", "", "", nil),
		"Analysis":        Wrap(ErrAnalysis, "", "", "", nil),
		"Storage":         Wrap(ErrStorage, "", "", "", nil),
		"Network":         Wrap(ErrNetwork, "", "", "", nil),
		"Transient":       errors.New("anything"),
	}
	for want, err := range cases {
		if got := KindName(err); got != want {
			t.Fatalf("KindName(%v) = %q, want %q", err, got, want)
		}
	}
}
