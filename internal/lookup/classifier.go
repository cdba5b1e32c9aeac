package lookup

import (
	"strings"
	"unicode"

	"github.com/noah-isme/surgitrack-api/internal/models"
)

// CodeLength is the number of characters in a patient code.
const CodeLength = 6

// Classifier maps free text to a SearchIntent for a given role. It keeps no state
// between calls.
type Classifier struct {
	extractors []NameExtractor
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithExtractors replaces the name extraction strategies.
func WithExtractors(extractors ...NameExtractor) ClassifierOption {
	return func(c *Classifier) {
		c.extractors = append([]NameExtractor(nil), extractors...)
	}
}

// NewClassifier constructs a classifier using DefaultExtractors unless overridden.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{extractors: DefaultExtractors()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify turns text into an intent. Code tokens win over names. Name intents are
// only ever produced for roles allowed to search by name.
func (c *Classifier) Classify(text string, role models.Role) SearchIntent {
	if code, ok := FindCode(text); ok {
		return ByCode(code)
	}

	candidate, ok := c.extractName(text)
	if !ok {
		return None(false)
	}
	if !role.CanSearchByName() {
		intent := None(true)
		intent.EmbeddedCode = embeddedCode(candidate)
		return intent
	}
	return ByName(candidate)
}

func (c *Classifier) extractName(text string) (string, bool) {
	for _, ex := range c.extractors {
		raw, ok := ex.Extract(text)
		if !ok {
			continue
		}
		candidate := CleanCandidate(raw)
		if len(candidate) <= 1 || isNonName(candidate) {
			return "", false
		}
		return candidate, true
	}
	return "", false
}

// FindCode returns the first 6-character alphanumeric run in text that is not glued
// to letters. A letter directly adjacent, or separated by a single space, disqualifies
// the run so fragments of names are not mistaken for codes.
func FindCode(text string) (string, bool) {
	runes := []rune(text)
	for i := 0; i+CodeLength <= len(runes); i++ {
		if !allAlnum(runes[i : i+CodeLength]) {
			continue
		}
		if letterNear(runes, i-1, -1) || letterNear(runes, i+CodeLength, 1) {
			continue
		}
		return strings.ToUpper(string(runes[i : i+CodeLength])), true
	}
	return "", false
}

// embeddedCode returns the first word of candidate that is a well-formed code with at
// least one digit. All-letter words are left alone since they read as names.
func embeddedCode(candidate string) string {
	for _, word := range strings.Fields(candidate) {
		word = strings.Trim(word, edgePunct)
		if IsCode(word) && strings.ContainsAny(word, "0123456789") {
			return strings.ToUpper(word)
		}
	}
	return ""
}

// IsCode reports whether s is exactly a well-formed patient code.
func IsCode(s string) bool {
	runes := []rune(s)
	return len(runes) == CodeLength && allAlnum(runes)
}

func allAlnum(rs []rune) bool {
	for _, r := range rs {
		if !isASCIIAlnum(r) {
			return false
		}
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func letterNear(runes []rune, pos, step int) bool {
	if pos < 0 || pos >= len(runes) {
		return false
	}
	if runes[pos] == ' ' {
		pos += step
		if pos < 0 || pos >= len(runes) {
			return false
		}
	}
	return unicode.IsLetter(runes[pos])
}
