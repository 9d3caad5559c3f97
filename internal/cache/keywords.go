package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	timestampPattern  = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)
	speakerPattern    = regexp.MustCompile(`\b(speaker|participant)\s*\d+\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const maxKeywords = 50

// stopWords are filtered from keyword extraction; they carry no topical
// signal for meeting similarity.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the a an and or but in on at to for of
		with by is are was were be been have has had
		do does did will would could should may might
		this that these those i you he she it we they
		me him her us them my your his its our
		their what which who when where why how all any
		both each few more most other some such no nor
		not only own same so than too very can just
		now really also like well get go know think see
		want need going make take come good great right
		okay yeah yes thanks thank please
		um uh uhm hmm mmm err`) {
		stopWords[w] = struct{}{}
	}
}

// NormalizeTranscript strips timestamps, generic speaker labels, and
// whitespace variance so that trivially re-exported transcripts hash equal.
func NormalizeTranscript(transcript string) string {
	text := strings.ToLower(transcript)
	text = timestampPattern.ReplaceAllString(text, "")
	text = speakerPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// HashTranscript returns the SHA-256 hex digest of the normalized transcript.
func HashTranscript(transcript string) string {
	sum := sha256.Sum256([]byte(NormalizeTranscript(transcript)))
	return hex.EncodeToString(sum[:])
}

// Similarity computes the Jaccard index over two keyword lists. Either list
// empty yields zero.
func Similarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// QueryKeywords extracts the deduplicated keyword set for a lookup
// transcript. Unlike stored entries the query side is not capped.
func QueryKeywords(transcript string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, word := range tokenize(transcript) {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

// ExtractKeywords builds the stored keyword set for a cache entry from the
// transcript, the analysis text, and extracted entity names, ranked by
// frequency (ties alphabetical) and capped.
func ExtractKeywords(transcript, analysis string, entities map[string][]string) []string {
	counts := map[string]int{}
	add := func(words []string) {
		for _, w := range words {
			counts[w]++
		}
	}
	add(tokenize(transcript))
	add(tokenize(analysis))
	for _, names := range entities {
		for _, name := range names {
			add(tokenize(name))
		}
	}

	ranked := make([]string, 0, len(counts))
	for word := range counts {
		ranked = append(ranked, word)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	return ranked
}

// tokenize lowercases, replaces punctuation with spaces, and keeps words of
// 3 to 20 characters that are not numbers, stop words, or filler noises.
func tokenize(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var out []string
	for _, word := range strings.Fields(mapped) {
		n := utf8.RuneCountInString(word)
		if n < 3 || n > 20 {
			continue
		}
		if isNumeric(word) {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		out = append(out, word)
	}
	return out
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(word) > 0
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
