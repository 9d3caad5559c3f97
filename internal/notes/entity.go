package notes

import (
	"fmt"
	"strings"
	"time"
)

// Entity categories; the singular forms label the note frontmatter.
var entityKinds = map[string]string{
	"people":       "person",
	"companies":    "company",
	"technologies": "technology",
}

const meetingReferencesHeading = "## Meeting References"

// MeetingRef is a backlink from an entity or task note to the meeting note
// it was mentioned in.
type MeetingRef struct {
	NoteBase string // meeting filename without .md
	Date     string // YYYY-MM-DD
}

func (r MeetingRef) line() string {
	return fmt.Sprintf("- [[%s]] - %s", r.NoteBase, r.Date)
}

// Backlink returns the wiki-link a meeting note uses to point at an entity
// note, e.g. "[[Entities/Jane-Smith|Jane Smith]]".
func Backlink(dir, name string) string {
	return fmt.Sprintf("[[%s/%s|%s]]", dir, EntityFileName(name), name)
}

// RenderEntityNote produces a fresh note for a person, company, or
// technology, seeded with its first meeting reference.
func RenderEntityNote(category, name string, ref MeetingRef, now time.Time) []byte {
	kind, ok := entityKinds[category]
	if !ok {
		kind = "entity"
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "type: %s\n", kind)
	fmt.Fprintf(&b, "name: %s\n", name)
	fmt.Fprintf(&b, "first-mentioned: %s\n", ref.Date)
	fmt.Fprintf(&b, "last-updated: %s\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("tags:\n")
	fmt.Fprintf(&b, "  - %s\n", kind)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "**First Mentioned:** %s\n\n", ref.Date)
	b.WriteString(meetingReferencesHeading + "\n")
	b.WriteString(ref.line() + "\n")
	b.WriteString("\n## Notes\n")
	b.WriteString("<!-- Add observations and context here -->\n")

	return []byte(b.String())
}

// AppendMeetingReference adds a reference line to an existing entity note
// under its Meeting References heading, refreshing the last-updated
// frontmatter field. A reference already present leaves the note unchanged.
func AppendMeetingReference(content []byte, ref MeetingRef, now time.Time) []byte {
	text := string(content)
	if strings.Contains(text, ref.line()) {
		return content
	}

	lines := strings.Split(text, "\n")
	insert := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != meetingReferencesHeading {
			continue
		}
		// Insert after the last bullet in the existing reference list.
		insert = i + 1
		for insert < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[insert]), "- ") {
			insert++
		}
		break
	}

	if insert < 0 {
		// No reference section yet; append one at the end.
		text = strings.TrimRight(text, "\n") + "\n\n" + meetingReferencesHeading + "\n" + ref.line() + "\n"
		return []byte(updateFrontmatterField(text, "last-updated", now.Format("2006-01-02 15:04:05")))
	}

	updated := make([]string, 0, len(lines)+1)
	updated = append(updated, lines[:insert]...)
	updated = append(updated, ref.line())
	updated = append(updated, lines[insert:]...)
	text = strings.Join(updated, "\n")
	return []byte(updateFrontmatterField(text, "last-updated", now.Format("2006-01-02 15:04:05")))
}

// updateFrontmatterField rewrites one scalar field between the leading ---
// markers. Content without frontmatter is returned unchanged.
func updateFrontmatterField(content, field, value string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			break
		}
		if strings.HasPrefix(lines[i], field+":") {
			lines[i] = fmt.Sprintf("%s: %s", field, value)
			return strings.Join(lines, "\n")
		}
	}
	return content
}
