package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/services"
)

// Analysis is the structured result of analyzing one transcript.
type Analysis struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceFile string    `json:"source_file"`
	Transcript string    `json:"transcript"`
	Text       string    `json:"analysis"`
}

// Entities are the categorized names extracted from a transcript.
type Entities struct {
	People       []string `json:"people"`
	Companies    []string `json:"companies"`
	Technologies []string `json:"technologies"`
}

// Categories flattens the entities into the category map the cache and note
// writer consume.
func (e Entities) Categories() map[string][]string {
	return map[string][]string{
		"people":       e.People,
		"companies":    e.Companies,
		"technologies": e.Technologies,
	}
}

// Empty reports whether no entities were found.
func (e Entities) Empty() bool {
	return len(e.People) == 0 && len(e.Companies) == 0 && len(e.Technologies) == 0
}

// EntitiesFromCategories rebuilds Entities from the cache representation.
func EntitiesFromCategories(categories map[string][]string) Entities {
	return Entities{
		People:       categories["people"],
		Companies:    categories["companies"],
		Technologies: categories["technologies"],
	}
}

const analysisPromptTemplate = `Please analyze this meeting transcript and provide a comprehensive analysis:

**Audio File:** %s
**Transcript:**
%s

Please provide:

1. **Meeting Summary**: Brief overview of the meeting purpose and key topics
2. **Major Decisions**: List all decisions made during the meeting
3. **Action Items/Tasks**: Extract all tasks assigned, including who is responsible and deadlines if mentioned
4. **Key Discussion Points**: Important topics discussed in detail
5. **Participants**: List of people who spoke (if identifiable from the transcript)
6. **Next Steps**: Any follow-up actions or future meetings mentioned
7. **Important Quotes**: Any significant statements or commitments made

Format the response as a well-structured document that can be easily reviewed and shared.

IMPORTANT: Ensure the analysis captures ALL content from the transcript without summarization or omission of details.`

// Analyze produces the full meeting analysis for a transcript.
func (c *Client) Analyze(ctx context.Context, transcript, sourceFile string) (*Analysis, error) {
	c.logger.Info("analyzing transcript",
		logging.String("source", sourceFile),
		logging.Int("characters", len(transcript)))

	text, err := c.complete(ctx, fmt.Sprintf(analysisPromptTemplate, sourceFile, transcript), maxAnalysisTokens)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Timestamp:  time.Now(),
		SourceFile: sourceFile,
		Transcript: transcript,
		Text:       text,
	}, nil
}

const entityPromptTemplate = `Extract the named entities from this meeting transcript.

Return ONLY a JSON object with exactly these keys, each holding an array of
distinct name strings (empty arrays are fine):

{"people": [], "companies": [], "technologies": []}

Rules:
- "people": full names of individuals mentioned or speaking
- "companies": organizations, vendors, clients, teams with proper names
- "technologies": products, tools, platforms, languages, systems
- No commentary, no markdown fences, just the JSON object.

Transcript:
%s`

// ExtractEntities pulls categorized entity names out of the transcript.
func (c *Client) ExtractEntities(ctx context.Context, transcript string) (Entities, error) {
	raw, err := c.complete(ctx, fmt.Sprintf(entityPromptTemplate, transcript), maxEntityTokens)
	if err != nil {
		return Entities{}, err
	}
	var entities Entities
	if err := DecodeJSON(raw, &entities); err != nil {
		return Entities{}, services.Wrap(services.ErrAnalysis, "entities", "decode", "entity response was not valid JSON", err)
	}
	c.logger.Info("extracted entities",
		logging.Int("people", len(entities.People)),
		logging.Int("companies", len(entities.Companies)),
		logging.Int("technologies", len(entities.Technologies)))
	return entities, nil
}

const topicPromptTemplate = `Please analyze this meeting transcript and extract a concise meeting topic suitable for a filename.

Requirements:
- Maximum 4-6 words
- Use title case
- Replace spaces with hyphens
- Remove special characters that aren't suitable for filenames
- Focus on the main subject/purpose of the meeting

Examples of good topics:
- "Q3-Sales-Review"
- "Project-Kickoff-Meeting"
- "Budget-Planning-Session"

Transcript excerpt (first 1000 characters):
%s

Please respond with just the topic in the format specified above, nothing else.`

const fallbackTopic = "Meeting-Recording"

// ExtractTopic asks for a short filename-safe meeting topic. Failures fall
// back to a generic topic rather than blocking the pipeline.
func (c *Client) ExtractTopic(ctx context.Context, transcript string) string {
	excerpt := transcript
	if len(excerpt) > 1000 {
		excerpt = excerpt[:1000]
	}
	raw, err := c.complete(ctx, fmt.Sprintf(topicPromptTemplate, excerpt), maxTopicTokens)
	if err != nil {
		c.logger.Warn("topic extraction failed, using fallback", logging.Error(err))
		return fallbackTopic
	}
	topic := sanitizeTopic(raw)
	if topic == "" {
		return fallbackTopic
	}
	return topic
}

var (
	topicDisallowed = regexp.MustCompile(`[^\w\-]`)
	repeatedHyphens = regexp.MustCompile(`-+`)
	jsonFencePrefix = regexp.MustCompile("^```(?:json)?\\s*")
)

func sanitizeTopic(raw string) string {
	topic := topicDisallowed.ReplaceAllString(strings.TrimSpace(raw), "")
	topic = repeatedHyphens.ReplaceAllString(topic, "-")
	return strings.Trim(topic, "-")
}

// DecodeJSON unmarshals model output that may be wrapped in markdown fences
// or surrounded by prose.
func DecodeJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	text = jsonFencePrefix.ReplaceAllString(text, "")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	return json.Unmarshal([]byte(text), v)
}
