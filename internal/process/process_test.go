package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/cache"
	"scribe/internal/queue"
	"scribe/internal/services/analyzer"
	"scribe/internal/testsupport"
)

type fakeProber struct {
	probeErr error
	duration time.Duration
}

func (f *fakeProber) ValidateInstallation(context.Context) error { return nil }
func (f *fakeProber) Probe(context.Context, string) error        { return f.probeErr }
func (f *fakeProber) Duration(context.Context, string) (time.Duration, error) {
	return f.duration, nil
}

type fakeConverter struct {
	out string
	err error
}

func (f *fakeConverter) ValidateInstallation(context.Context) error { return nil }
func (f *fakeConverter) ConvertToFLAC(_ context.Context, _, destDir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(destDir, f.out)
	if err := os.WriteFile(path, []byte("flac"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeSpeech struct {
	transcript string
	exceeds    bool
	chunked    bool
}

func (f *fakeSpeech) ExceedsUploadLimit(string) (bool, error) { return f.exceeds, nil }
func (f *fakeSpeech) Transcribe(context.Context, string) (string, error) {
	return f.transcript, nil
}
func (f *fakeSpeech) TranscribeChunked(context.Context, []string) (string, error) {
	f.chunked = true
	return f.transcript, nil
}
func (f *fakeSpeech) HealthCheck(context.Context) error { return nil }

type fakeChunker struct {
	chunks  []string
	cleaned bool
}

func (f *fakeChunker) Chunk(context.Context, string, int) ([]string, error) {
	return f.chunks, nil
}
func (f *fakeChunker) CleanupChunks([]string) { f.cleaned = true }

type fakeLLM struct {
	labeled     string
	labelErr    error
	analysis    string
	analyzeErr  error
	analyzed    int
	entities    analyzer.Entities
	entitiesErr error
	topic       string
}

func (f *fakeLLM) IdentifySpeakers(_ context.Context, transcript string) (string, error) {
	if f.labelErr != nil {
		return "", f.labelErr
	}
	if f.labeled != "" {
		return f.labeled, nil
	}
	return transcript, nil
}

func (f *fakeLLM) Analyze(context.Context, string, string) (*analyzer.Analysis, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	f.analyzed++
	return &analyzer.Analysis{Text: f.analysis}, nil
}

func (f *fakeLLM) ExtractEntities(context.Context, string) (analyzer.Entities, error) {
	return f.entities, f.entitiesErr
}

func (f *fakeLLM) ExtractTopic(context.Context, string) string { return f.topic }
func (f *fakeLLM) HealthCheck(context.Context) error           { return nil }

type fakeCache struct {
	entry Entry
	hit   bool
	puts  int
}

// Entry aliases the cache entry so the fake stays small.
type Entry = cache.Entry

func (f *fakeCache) Get(string) (Entry, bool) { return f.entry, f.hit }
func (f *fakeCache) Put(transcript, analysis string, entities map[string][]string, metadata map[string]string) (string, error) {
	f.puts++
	return "put-key", nil
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidatorAcceptsGoodRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := writeSource(t, cfg.Paths.InputDir, "standup.mp4", "video-bytes")
	item := &queue.Item{SourcePath: source}

	v := NewValidatorWithDependencies(cfg, &fakeProber{duration: 90 * time.Second}, nil, nil)
	if err := v.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if item.SourceName != "standup.mp4" {
		t.Fatalf("SourceName = %q", item.SourceName)
	}
	if err := v.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	meta, err := loadMetadata(item)
	if err != nil {
		t.Fatalf("loadMetadata: %v", err)
	}
	if meta.DurationSeconds != 90 {
		t.Fatalf("DurationSeconds = %v, want 90", meta.DurationSeconds)
	}
}

func TestValidatorRejectsBadInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	v := NewValidatorWithDependencies(cfg, &fakeProber{}, nil, nil)
	ctx := context.Background()

	empty := writeSource(t, cfg.Paths.InputDir, "empty.mp4", "")
	unsupported := writeSource(t, cfg.Paths.InputDir, "notes.pdf", "pdf")

	cases := map[string]string{
		"missing file":          filepath.Join(cfg.Paths.InputDir, "absent.mp4"),
		"empty file":            empty,
		"unsupported extension": unsupported,
	}
	for name, path := range cases {
		item := &queue.Item{SourcePath: path, SourceName: filepath.Base(path)}
		if err := v.Execute(ctx, item); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidatorSurfacesProbeFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := writeSource(t, cfg.Paths.InputDir, "corrupt.mp4", "not-media")
	v := NewValidatorWithDependencies(cfg, &fakeProber{probeErr: errors.New("no streams")}, nil, nil)

	item := &queue.Item{SourcePath: source, SourceName: "corrupt.mp4"}
	if err := v.Execute(context.Background(), item); err == nil {
		t.Fatal("expected probe error")
	}
}

func TestConverterSetsAudioPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := writeSource(t, cfg.Paths.InputDir, "standup.mp4", "video")
	item := &queue.Item{SourcePath: source, SourceName: "standup.mp4"}

	c := NewConverterWithDependencies(cfg, &fakeConverter{out: "standup.flac"}, nil, nil)
	if err := c.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if filepath.Base(item.AudioPath) != "standup.flac" {
		t.Fatalf("AudioPath = %q", item.AudioPath)
	}
}

func TestTranscriberWritesTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := writeSource(t, cfg.Paths.StagingDir, "standup.flac", "flac")
	item := &queue.Item{SourcePath: "standup.mp4", SourceName: "standup.mp4", AudioPath: audio}

	speech := &fakeSpeech{transcript: "Alice: shipping is on track."}
	tr := NewTranscriberWithDependencies(cfg, speech, &fakeChunker{}, nil, nil, nil)
	if err := tr.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if item.TranscriptPath == "" {
		t.Fatal("TranscriptPath not set")
	}
	content, err := os.ReadFile(item.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != speech.transcript {
		t.Fatalf("transcript = %q", content)
	}
	meta, _ := loadMetadata(item)
	if meta.TranscriptChars != len(speech.transcript) {
		t.Fatalf("TranscriptChars = %d", meta.TranscriptChars)
	}
}

func TestTranscriberChunksOversizedAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := writeSource(t, cfg.Paths.StagingDir, "long.flac", "flac")
	item := &queue.Item{SourceName: "long.mp4", AudioPath: audio}

	speech := &fakeSpeech{transcript: "chunked transcript", exceeds: true}
	chunker := &fakeChunker{chunks: []string{"a.flac", "b.flac"}}
	tr := NewTranscriberWithDependencies(cfg, speech, chunker, nil, nil, nil)
	if err := tr.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !speech.chunked {
		t.Fatal("expected chunked transcription path")
	}
	if !chunker.cleaned {
		t.Fatal("chunks were not cleaned up")
	}
}

func TestTranscriberRejectsEmptyTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	audio := writeSource(t, cfg.Paths.StagingDir, "silent.flac", "flac")
	item := &queue.Item{SourceName: "silent.mp4", AudioPath: audio}

	tr := NewTranscriberWithDependencies(cfg, &fakeSpeech{transcript: "  "}, &fakeChunker{}, nil, nil, nil)
	if err := tr.Execute(context.Background(), item); err == nil {
		t.Fatal("expected empty-transcript error")
	}
}

func TestAnalyzerCallsLLMOnCacheMiss(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcriptPath := writeSource(t, cfg.Paths.StagingDir, "standup.txt", "raw meeting words")
	item := &queue.Item{SourceName: "standup.mp4", TranscriptPath: transcriptPath}

	llm := &fakeLLM{labeled: "Alice: raw meeting words", analysis: "1. **Meeting Summary**: all good"}
	a := NewAnalyzerWithDependencies(cfg, llm, &fakeCache{}, nil, nil)
	if err := a.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if llm.analyzed != 1 {
		t.Fatalf("Analyze called %d times, want 1", llm.analyzed)
	}
	labeled, _ := os.ReadFile(transcriptPath)
	if string(labeled) != llm.labeled {
		t.Fatalf("transcript not relabeled: %q", labeled)
	}
	analysis, err := os.ReadFile(item.AnalysisPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(analysis) != llm.analysis {
		t.Fatalf("analysis = %q", analysis)
	}
	meta, _ := loadMetadata(item)
	if meta.CacheHit {
		t.Fatal("fresh analysis should not be marked as cache hit")
	}
}

func TestAnalyzerReusesCachedAnalysis(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcriptPath := writeSource(t, cfg.Paths.StagingDir, "repeat.txt", "same words again")
	item := &queue.Item{SourceName: "repeat.mp4", TranscriptPath: transcriptPath}

	llm := &fakeLLM{}
	cached := &fakeCache{
		hit: true,
		entry: Entry{
			Key:      "abc123",
			Analysis: "cached analysis",
			Entities: map[string][]string{"people": {"Alice"}},
			Metadata: map[string]string{"topic": "Weekly Standup"},
		},
	}
	a := NewAnalyzerWithDependencies(cfg, llm, cached, nil, nil)
	if err := a.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if llm.analyzed != 0 {
		t.Fatal("cache hit must not call the LLM")
	}
	meta, _ := loadMetadata(item)
	if !meta.CacheHit || meta.CacheKey != "abc123" {
		t.Fatalf("cache provenance not recorded: %+v", meta)
	}
	if meta.Topic != "Weekly Standup" {
		t.Fatalf("Topic = %q", meta.Topic)
	}
	if len(meta.Entities["people"]) != 1 {
		t.Fatalf("Entities = %v", meta.Entities)
	}
}

func TestAnalyzerToleratesSpeakerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcriptPath := writeSource(t, cfg.Paths.StagingDir, "plain.txt", "unlabeled words")
	item := &queue.Item{SourceName: "plain.mp4", TranscriptPath: transcriptPath}

	llm := &fakeLLM{labelErr: errors.New("llm unavailable"), analysis: "analysis text"}
	a := NewAnalyzerWithDependencies(cfg, llm, nil, nil, nil)
	if err := a.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	content, _ := os.ReadFile(transcriptPath)
	if string(content) != "unlabeled words" {
		t.Fatalf("transcript should stay raw, got %q", content)
	}
}

func TestEntityExtractorCachesFreshAnalysis(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcriptPath := writeSource(t, cfg.Paths.StagingDir, "fresh.txt", "Alice talked to Bob")
	analysisPath := writeSource(t, cfg.Paths.StagingDir, "fresh.analysis.md", "analysis")
	item := &queue.Item{SourceName: "fresh.mp4", TranscriptPath: transcriptPath, AnalysisPath: analysisPath}

	llm := &fakeLLM{
		entities: analyzer.Entities{People: []string{"Alice", "Bob"}},
		topic:    "Planning Sync",
	}
	store := &fakeCache{}
	e := NewEntityExtractorWithDependencies(cfg, llm, store, nil, nil)
	if err := e.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if store.puts != 1 {
		t.Fatalf("cache Put called %d times, want 1", store.puts)
	}
	meta, _ := loadMetadata(item)
	if meta.CacheKey != "put-key" {
		t.Fatalf("CacheKey = %q", meta.CacheKey)
	}
	if meta.Topic != "Planning Sync" {
		t.Fatalf("Topic = %q", meta.Topic)
	}
	if len(meta.Entities["people"]) != 2 {
		t.Fatalf("Entities = %v", meta.Entities)
	}
}

func TestEntityExtractorSkipsOnCacheHit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	item := &queue.Item{SourceName: "hit.mp4"}
	meta := Metadata{CacheHit: true, CacheKey: "abc", Entities: map[string][]string{"people": {"Alice"}}}
	if err := storeMetadata(item, meta); err != nil {
		t.Fatal(err)
	}

	store := &fakeCache{}
	e := NewEntityExtractorWithDependencies(cfg, &fakeLLM{}, store, nil, nil)
	if err := e.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if store.puts != 0 {
		t.Fatal("cache hit must not re-cache")
	}
}

func TestEntityExtractorToleratesExtractionFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcriptPath := writeSource(t, cfg.Paths.StagingDir, "odd.txt", "words")
	analysisPath := writeSource(t, cfg.Paths.StagingDir, "odd.analysis.md", "analysis")
	item := &queue.Item{SourceName: "odd.mp4", TranscriptPath: transcriptPath, AnalysisPath: analysisPath}

	llm := &fakeLLM{entitiesErr: errors.New("bad JSON"), topic: "Topic"}
	e := NewEntityExtractorWithDependencies(cfg, llm, nil, nil, nil)
	if err := e.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	meta, _ := loadMetadata(item)
	if len(meta.Entities["people"]) != 0 {
		t.Fatalf("Entities = %v, want empty", meta.Entities)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	item := &queue.Item{}
	in := Metadata{DurationSeconds: 42.5, Topic: "Standup", CacheHit: true, CacheKey: "k"}
	if err := storeMetadata(item, in); err != nil {
		t.Fatal(err)
	}
	out, err := loadMetadata(item)
	if err != nil {
		t.Fatal(err)
	}
	if out.DurationSeconds != in.DurationSeconds || out.Topic != in.Topic ||
		out.CacheHit != in.CacheHit || out.CacheKey != in.CacheKey {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}

	item.MetadataJSON = "{broken"
	if _, err := loadMetadata(item); err == nil {
		t.Fatal("expected decode error for corrupt metadata")
	}
}
