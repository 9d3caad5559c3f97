package notes

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxTitleRunes = 60

var (
	hostileChars    = regexp.MustCompile(`[<>:"/\\|?*]`)
	disallowedChars = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	hyphenRuns      = regexp.MustCompile(`-{2,}`)
)

// SanitizeTitle strips filesystem-hostile characters from a note title and
// collapses whitespace. An empty result falls back to "Meeting".
func SanitizeTitle(title string) string {
	cleaned := hostileChars.ReplaceAllString(title, "")
	cleaned = disallowedChars.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, " -_")
	if runes := []rune(cleaned); len(runes) > maxTitleRunes {
		cleaned = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	if cleaned == "" {
		return "Meeting"
	}
	return cleaned
}

// EntityFileName sanitizes an entity name for use as a note filename,
// replacing spaces with hyphens.
func EntityFileName(name string) string {
	cleaned := disallowedChars.ReplaceAllString(name, "")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, "-")
	cleaned = hyphenRuns.ReplaceAllString(cleaned, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

// MeetingFileName builds the note filename "YYYY-MM-DD <title>.md". When a
// note with that name already exists, a "-2", "-3", ... suffix is appended
// until a free name is found. The exists callback receives candidate
// filenames without any directory prefix.
func MeetingFileName(date time.Time, title string, exists func(string) (bool, error)) (string, error) {
	base := fmt.Sprintf("%s %s", date.Format("2006-01-02"), SanitizeTitle(title))
	return uniqueFileName(base, exists)
}

func uniqueFileName(base string, exists func(string) (bool, error)) (string, error) {
	candidate := base + ".md"
	for i := 2; ; i++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d.md", base, i)
	}
}
