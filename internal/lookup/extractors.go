package lookup

import (
	"regexp"
	"strings"
)

// NameExtractor pulls a candidate patient name out of free text.
type NameExtractor interface {
	Extract(text string) (string, bool)
}

// NameExtractorFunc adapts a function to NameExtractor.
type NameExtractorFunc func(text string) (string, bool)

// Extract implements NameExtractor.
func (f NameExtractorFunc) Extract(text string) (string, bool) {
	return f(text)
}

// PatternExtractor returns the first capture group of a regular expression.
type PatternExtractor struct {
	Name    string
	Pattern *regexp.Regexp
}

// Extract implements NameExtractor.
func (p PatternExtractor) Extract(text string) (string, bool) {
	m := p.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

var stopWords = map[string]struct{}{
	"patient": {}, "surgery": {}, "status": {}, "check": {}, "look": {}, "find": {},
	"search": {}, "info": {}, "about": {}, "for": {}, "of": {}, "on": {},
}

// words that the conversational patterns capture but that never name a person
var nonNames = map[string]struct{}{
	"you": {}, "it": {}, "he": {}, "she": {}, "they": {}, "we": {}, "i": {}, "me": {},
	"things": {}, "everything": {}, "everyone": {}, "that": {}, "this": {},
}

const edgePunct = " \t\r\n?!.,;:\"'()[]"

// DefaultExtractors is the ordered pattern list used when none is configured.
func DefaultExtractors() []NameExtractor {
	return []NameExtractor{
		PatternExtractor{Name: "how-is", Pattern: regexp.MustCompile(`(?i)\bhow\s+(?:is|are|was)\s+(.+?)\s+(?:doing|going|getting\s+on)\b`)},
		PatternExtractor{Name: "status-of", Pattern: regexp.MustCompile(`(?i)\b(?:status|update|progress)\s+(?:of|for|on)\s+(.+)`)},
		PatternExtractor{Name: "find", Pattern: regexp.MustCompile(`(?i)\b(?:find|search(?:\s+for)?|look\s+up|lookup|look\s+for|check\s+on|where\s+is|info(?:rmation)?\s+(?:on|about|for))\s+(.+)`)},
		PatternExtractor{Name: "patient", Pattern: regexp.MustCompile(`(?i)\bpatient\s+(?:named\s+|called\s+)?(.+)`)},
		PatternExtractor{Name: "capitalized", Pattern: regexp.MustCompile(`\b([A-Z][a-z'-]+(?:\s+[A-Z][a-z'-]+)+)\b`)},
	}
}

// CleanCandidate trims punctuation and strips stop-words from both ends of a candidate.
func CleanCandidate(raw string) string {
	fields := strings.Fields(strings.Trim(raw, edgePunct))
	for len(fields) > 0 && isStopWord(fields[0]) {
		fields = fields[1:]
	}
	for len(fields) > 0 && isStopWord(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Trim(strings.Join(fields, " "), edgePunct)
}

func isStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(strings.Trim(word, edgePunct))]
	return ok
}

func isNonName(candidate string) bool {
	_, ok := nonNames[strings.ToLower(candidate)]
	return ok
}
