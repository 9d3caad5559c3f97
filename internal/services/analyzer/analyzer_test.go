package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/testsupport"
)

// chatHandler decodes a chat request and answers with the content produced
// by reply(prompt).
func chatHandler(t *testing.T, reply func(prompt string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		content := reply(req.Messages[0].Content)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestClient(t *testing.T, handler http.Handler, mutate func(*config.Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Analysis.BaseURL = server.URL
	cfg.Analysis.Referer = "https://example.com/scribe"
	cfg.Analysis.Title = "scribe"
	if mutate != nil {
		mutate(cfg)
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestAnalyze(t *testing.T) {
	var sawReferer string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawReferer = r.Header.Get("HTTP-Referer")
		chatHandler(t, func(prompt string) string {
			if !strings.Contains(prompt, "standup.mp4") {
				t.Errorf("prompt missing source file")
			}
			return "## Meeting Summary\nDiscussed the rollout."
		})(w, r)
	})

	client := newTestClient(t, handler, nil)
	analysis, err := client.Analyze(context.Background(), "we discussed the rollout plan", "standup.mp4")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(analysis.Text, "Discussed the rollout") {
		t.Fatalf("analysis text = %q", analysis.Text)
	}
	if analysis.SourceFile != "standup.mp4" || analysis.Transcript == "" {
		t.Fatalf("analysis metadata incomplete: %+v", analysis)
	}
	if sawReferer != "https://example.com/scribe" {
		t.Fatalf("referer header = %q", sawReferer)
	}
}

func TestExtractEntitiesFromFencedJSON(t *testing.T) {
	handler := chatHandler(t, func(string) string {
		return "```json\n{\"people\": [\"Dana Reyes\"], \"companies\": [\"Acme Corp\"], \"technologies\": [\"PostgreSQL\"]}\n```"
	})
	client := newTestClient(t, handler, nil)

	entities, err := client.ExtractEntities(context.Background(), "Dana from Acme talked PostgreSQL")
	if err != nil {
		t.Fatalf("ExtractEntities: %v", err)
	}
	if len(entities.People) != 1 || entities.People[0] != "Dana Reyes" {
		t.Fatalf("people = %v", entities.People)
	}
	if entities.Empty() {
		t.Fatal("entities should not be empty")
	}
	categories := entities.Categories()
	if categories["companies"][0] != "Acme Corp" {
		t.Fatalf("categories = %v", categories)
	}
	rebuilt := EntitiesFromCategories(categories)
	if rebuilt.Technologies[0] != "PostgreSQL" {
		t.Fatalf("round trip = %+v", rebuilt)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		People []string `json:"people"`
	}
	cases := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"plain", `{"people": ["a"]}`, true},
		{"fenced", "```json\n{\"people\": [\"a\"]}\n```", true},
		{"prose wrapped", "Here you go:\n{\"people\": [\"a\"]}\nHope that helps!", true},
		{"not json", "I could not find any entities.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out payload
			err := DecodeJSON(tc.raw, &out)
			if tc.valid && (err != nil || len(out.People) != 1) {
				t.Fatalf("DecodeJSON(%q) = %v, %v", tc.raw, out, err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("DecodeJSON(%q) should fail", tc.raw)
			}
		})
	}
}

func TestExtractTopicSanitized(t *testing.T) {
	handler := chatHandler(t, func(string) string { return " Budget--Planning--Session- " })
	client := newTestClient(t, handler, nil)
	if got := client.ExtractTopic(context.Background(), "budget talk"); got != "Budget-Planning-Session" {
		t.Fatalf("topic = %q", got)
	}
}

func TestExtractTopicFallsBack(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	client := newTestClient(t, handler, nil)
	if got := client.ExtractTopic(context.Background(), "anything"); got != fallbackTopic {
		t.Fatalf("topic = %q, want fallback", got)
	}
}

func TestIdentifySpeakersKeepsOriginalWhenTruncated(t *testing.T) {
	handler := chatHandler(t, func(string) string { return "too short" })
	client := newTestClient(t, handler, nil)

	transcript := strings.Repeat("we agreed on the deployment checklist and the rollback procedure. ", 20)
	out, err := client.IdentifySpeakers(context.Background(), transcript)
	if err != nil {
		t.Fatalf("IdentifySpeakers: %v", err)
	}
	if out != transcript {
		t.Fatal("truncated rewrite should be discarded in favor of the original")
	}
}

func TestIdentifySpeakersSinglePass(t *testing.T) {
	handler := chatHandler(t, func(prompt string) string {
		start := strings.Index(prompt, "Original transcript:\n")
		if start < 0 {
			t.Error("prompt missing transcript marker")
			return ""
		}
		body := prompt[start+len("Original transcript:\n"):]
		if end := strings.Index(body, "\n\nPlease return"); end > 0 {
			body = body[:end]
		}
		return "Speaker A: " + body
	})
	client := newTestClient(t, handler, nil)

	transcript := "let us review the incident timeline. the pager fired at nine."
	out, err := client.IdentifySpeakers(context.Background(), transcript)
	if err != nil {
		t.Fatalf("IdentifySpeakers: %v", err)
	}
	if !strings.HasPrefix(out, "Speaker A: ") || !strings.Contains(out, "incident timeline") {
		t.Fatalf("labeled output = %q", out)
	}
}

func TestIdentifySpeakersChunked(t *testing.T) {
	var requests int
	handler := chatHandler(t, func(prompt string) string {
		requests++
		start := strings.Index(prompt, "Original chunk:\n")
		if start < 0 {
			t.Error("prompt missing chunk marker")
			return ""
		}
		body := prompt[start+len("Original chunk:\n"):]
		if end := strings.Index(body, "\n\nRETURN ONLY"); end > 0 {
			body = body[:end]
		}
		return "Speaker A: " + body
	})
	client := newTestClient(t, handler, func(cfg *config.Config) {
		cfg.Analysis.SpeakerChunkThreshold = 200
		cfg.Analysis.SpeakerChunkSize = 120
		cfg.Analysis.SpeakerChunkOverlap = 20
	})

	var sb strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "sentence number %d covers a distinct agenda point in detail. ", i)
	}
	transcript := strings.TrimSpace(sb.String())

	out, err := client.IdentifySpeakers(context.Background(), transcript)
	if err != nil {
		t.Fatalf("IdentifySpeakers: %v", err)
	}
	if requests < 2 {
		t.Fatalf("requests = %d, want chunked processing", requests)
	}
	if !strings.Contains(out, "Speaker A: ") {
		t.Fatalf("output missing labels: %q", out)
	}
	if float64(len(out)) < 0.7*float64(len(transcript)) {
		t.Fatalf("output suspiciously short: %d vs %d", len(out), len(transcript))
	}
}

func TestSplitIntoChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "fact %d about the quarterly objectives. ", i)
	}
	text := strings.TrimSpace(sb.String())

	chunks := splitIntoChunks(text, 120, 20)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	joined := strings.Join(chunks, " ")
	for i := 0; i < 10; i++ {
		if !strings.Contains(joined, fmt.Sprintf("fact %d", i)) {
			t.Fatalf("chunking dropped sentence %d", i)
		}
	}
	single := splitIntoChunks("short text", 120, 20)
	if len(single) != 1 || !strings.HasPrefix(single[0], "short text") {
		t.Fatalf("short text should come back as a single chunk, got %v", single)
	}
}
