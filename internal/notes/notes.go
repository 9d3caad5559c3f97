// Package notes renders meeting analyses into Markdown notes with YAML
// frontmatter and derives the entity and task notes that link back to them.
package notes

import (
	"fmt"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"gopkg.in/yaml.v3"

	"scribe/internal/services"
	"scribe/internal/services/analyzer"
)

// Meeting is everything the note renderer needs about one processed
// recording.
type Meeting struct {
	Title        string
	Date         time.Time
	Source       string
	Duration     time.Duration
	Participants []string
	Topics       []string
	Analysis     string
	Transcript   string
	Entities     analyzer.Entities

	// Cache provenance, recorded in the frontmatter so a reader can tell
	// a fresh analysis from a reused one.
	CacheKey        string
	CacheHit        bool
	SimilarityScore float64
}

type frontmatter struct {
	Title        string   `yaml:"title"`
	Date         string   `yaml:"date"`
	Source       string   `yaml:"source"`
	Duration     string   `yaml:"duration,omitempty"`
	Participants []string `yaml:"participants,omitempty"`
	Topics       []string `yaml:"topics,omitempty"`
	Language     string   `yaml:"language,omitempty"`
	CacheKey     string   `yaml:"cache-key,omitempty"`
	CacheHit     bool     `yaml:"cache-hit,omitempty"`
	Similarity   string   `yaml:"cache-similarity,omitempty"`
	Tags         []string `yaml:"tags"`
}

// Render produces the full Markdown meeting note: YAML frontmatter followed
// by Summary, Decisions, Action Items, and Transcript sections.
func Render(m Meeting) ([]byte, error) {
	fm := frontmatter{
		Title:        m.Title,
		Date:         m.Date.Format("2006-01-02"),
		Source:       m.Source,
		Duration:     formatDuration(m.Duration),
		Participants: m.Participants,
		Topics:       m.Topics,
		Language:     DetectLanguage(m.Transcript),
		CacheKey:     m.CacheKey,
		CacheHit:     m.CacheHit,
		Tags:         []string{"meeting"},
	}
	if m.CacheHit && m.SimilarityScore > 0 {
		fm.Similarity = fmt.Sprintf("%.2f", m.SimilarityScore)
	}

	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "save", "render-note", "marshal frontmatter", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", m.Title)

	b.WriteString("## Summary\n\n")
	b.WriteString(sectionOrDefault(m.Analysis, "<!-- No summary available -->",
		"meeting summary", "summary"))

	b.WriteString("\n## Decisions\n\n")
	b.WriteString(sectionOrDefault(m.Analysis, "<!-- No decisions recorded -->",
		"major decisions", "decisions"))

	b.WriteString("\n## Action Items\n\n")
	b.WriteString(sectionOrDefault(m.Analysis, "<!-- No action items recorded -->",
		"action items"))

	b.WriteString("\n## Analysis\n\n")
	b.WriteString(strings.TrimSpace(m.Analysis))
	b.WriteString("\n")

	b.WriteString("\n## Transcript\n\n")
	b.WriteString(strings.TrimSpace(m.Transcript))
	b.WriteString("\n")

	return []byte(b.String()), nil
}

// DetectLanguage returns the ISO 639-1 code of the transcript's language, or
// an empty string when the text is too short to classify.
func DetectLanguage(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	info := whatlanggo.Detect(trimmed)
	if info.Lang == -1 {
		return ""
	}
	return info.Lang.Iso6391()
}

// sectionOrDefault extracts a named section from the analysis text, falling
// back to a placeholder comment when the section is absent or empty.
func sectionOrDefault(analysis, fallback string, names ...string) string {
	body := extractSection(analysis, names...)
	if body == "" {
		return fallback + "\n"
	}
	return body + "\n"
}

// extractSection finds a heading whose text contains one of the given names
// and returns its content up to the next heading. Headings may be Markdown
// (`## Major Decisions`) or numbered bold (`2. **Major Decisions**:`), with
// content either inline after the colon or on the following lines.
func extractSection(analysis string, names ...string) string {
	lines := strings.Split(analysis, "\n")
	start := -1
	var body []string
	for i, line := range lines {
		ok, headText, inline := splitHeading(line)
		if !ok {
			continue
		}
		lowered := strings.ToLower(headText)
		for _, name := range names {
			if strings.Contains(lowered, name) {
				start = i + 1
				if inline != "" {
					body = append(body, inline)
				}
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}

	for i := start; i < len(lines); i++ {
		if ok, _, _ := splitHeading(lines[i]); ok {
			break
		}
		body = append(body, lines[i])
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// splitHeading reports whether a line delimits a section, returning the
// heading text and any inline content following it. Plain numbered bullets
// are not headings; numbered items only delimit sections when bold.
func splitHeading(line string) (bool, string, string) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		return true, strings.TrimSpace(strings.TrimLeft(trimmed, "# ")), ""
	}
	if len(trimmed) > 0 && trimmed[0] >= '0' && trimmed[0] <= '9' {
		rest := strings.TrimLeft(trimmed, "0123456789")
		if !strings.HasPrefix(rest, ".") && !strings.HasPrefix(rest, ")") {
			return false, "", ""
		}
		trimmed = strings.TrimSpace(rest[1:])
		if !strings.HasPrefix(trimmed, "**") {
			return false, "", ""
		}
	}
	if !strings.HasPrefix(trimmed, "**") {
		return false, "", ""
	}
	closing := strings.Index(trimmed[2:], "**")
	if closing < 0 {
		return false, "", ""
	}
	headText := trimmed[2 : 2+closing]
	tail := strings.TrimSpace(trimmed[2+closing+2:])
	tail = strings.TrimSpace(strings.TrimPrefix(tail, ":"))
	return true, headText, tail
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "1m"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
