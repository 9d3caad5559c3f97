package notes

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ActionItem is one task extracted from the Action Items section of an
// analysis.
type ActionItem struct {
	Text  string
	Owner string
	Due   string
}

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	ownerPattern = regexp.MustCompile(`(?i)\b(?:assigned to|owner|responsible)\s*[:\-]?\s*([A-Z][\w.'-]*(?:\s+[A-Z][\w.'-]*)?)`)
	duePattern   = regexp.MustCompile(`(?i)\b(?:due|deadline|by)\s*[:\-]?\s*(\d{4}-\d{2}-\d{2}|[A-Z][a-z]+\s+\d{1,2}(?:,\s*\d{4})?)`)
	boldMarkers  = regexp.MustCompile(`\*\*?`)
)

// ExtractActionItems pulls the bulleted tasks out of the analysis text,
// picking up an owner and a due date when the bullet mentions them.
func ExtractActionItems(analysis string) []ActionItem {
	section := extractSection(analysis, "action items")
	if section == "" {
		return nil
	}

	var items []ActionItem
	for _, line := range strings.Split(section, "\n") {
		if !bulletPrefix.MatchString(line) {
			continue
		}
		text := bulletPrefix.ReplaceAllString(line, "")
		text = boldMarkers.ReplaceAllString(text, "")
		text = strings.TrimSpace(strings.TrimPrefix(text, "[ ]"))
		if text == "" {
			continue
		}

		item := ActionItem{Text: text}
		if m := ownerPattern.FindStringSubmatch(text); m != nil {
			item.Owner = strings.TrimSpace(m[1])
		}
		if m := duePattern.FindStringSubmatch(text); m != nil {
			item.Due = strings.TrimSpace(m[1])
		}
		items = append(items, item)
	}
	return items
}

// TaskFileBase builds the task note base name (no extension) from the
// meeting date and the task text.
func TaskFileBase(date time.Time, item ActionItem) string {
	slug := SanitizeTitle(item.Text)
	if runes := []rune(slug); len(runes) > 40 {
		slug = strings.TrimSpace(string(runes[:40]))
	}
	return fmt.Sprintf("%s %s", date.Format("2006-01-02"), slug)
}

// RenderTaskNote produces a task note with a checkbox line, owner and due
// metadata, and a backlink to the source meeting.
func RenderTaskNote(item ActionItem, ref MeetingRef, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("type: task\n")
	b.WriteString("status: open\n")
	if item.Owner != "" {
		fmt.Fprintf(&b, "owner: %s\n", item.Owner)
	}
	if item.Due != "" {
		fmt.Fprintf(&b, "due: %s\n", item.Due)
	}
	fmt.Fprintf(&b, "created: %s\n", ref.Date)
	fmt.Fprintf(&b, "last-updated: %s\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("tags:\n  - task\n")
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "- [ ] %s\n\n", item.Text)
	if item.Owner != "" {
		fmt.Fprintf(&b, "**Assigned To:** %s\n", item.Owner)
	}
	if item.Due != "" {
		fmt.Fprintf(&b, "**Due:** %s\n", item.Due)
	}
	b.WriteString("\n" + meetingReferencesHeading + "\n")
	b.WriteString(ref.line() + "\n")

	return []byte(b.String())
}

// TaskLink pairs a created task note with its display text for injection
// into the meeting note.
type TaskLink struct {
	NoteBase string // task filename without .md, relative to the vault
	Text     string
}

var actionItemsHeading = regexp.MustCompile(`(?im)^#{2,}[ \t]*Action[ \t]*Items?[ \t]*$`)

// InjectTaskLinks inserts a checkbox list of task links directly under the
// Action Items heading of a rendered meeting note. A note without that
// heading is returned unchanged.
func InjectTaskLinks(content []byte, links []TaskLink) []byte {
	if len(links) == 0 {
		return content
	}
	loc := actionItemsHeading.FindIndex(content)
	if loc == nil {
		return content
	}

	var list strings.Builder
	list.WriteString("\n")
	for _, link := range links {
		fmt.Fprintf(&list, "- [ ] [[%s|%s]]\n", link.NoteBase, link.Text)
	}

	insert := loc[1]
	out := make([]byte, 0, len(content)+list.Len())
	out = append(out, content[:insert]...)
	out = append(out, list.String()...)
	out = append(out, content[insert:]...)
	return out
}
