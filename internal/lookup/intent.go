// Package lookup turns free-text questions into typed patient searches and renders
// the results without disclosing identity to callers who may not see it.
package lookup

import "encoding/json"

// IntentType tags what a SearchIntent asks the directory for.
type IntentType string

const (
	IntentNone IntentType = ""
	IntentCode IntentType = "code"
	IntentName IntentType = "name"
)

// SearchIntent is the classified form of a free-text query.
//
// Restricted is set when the text looked like a name search but the caller's role
// may not search by name; it separates a refused search from text that was never a
// search at all. EmbeddedCode holds a code-shaped word found inside such a refused
// search, so the refusal can point the caller at it.
type SearchIntent struct {
	Type         IntentType
	Query        string
	Allowed      bool
	Restricted   bool
	EmbeddedCode string
}

// None returns an empty intent.
func None(restricted bool) SearchIntent {
	return SearchIntent{Type: IntentNone, Restricted: restricted}
}

// ByCode returns a code intent. Code lookups are open to every role.
func ByCode(code string) SearchIntent {
	return SearchIntent{Type: IntentCode, Query: code, Allowed: true}
}

// ByName returns an allowed name intent.
func ByName(fragment string) SearchIntent {
	return SearchIntent{Type: IntentName, Query: fragment, Allowed: true}
}

// MarshalJSON renders {type, query, allowed} with nulls for the empty intent.
func (i SearchIntent) MarshalJSON() ([]byte, error) {
	var typ, query *string
	if i.Type != IntentNone {
		t := string(i.Type)
		q := i.Query
		typ, query = &t, &q
	}
	return json.Marshal(struct {
		Type    *string `json:"type"`
		Query   *string `json:"query"`
		Allowed bool    `json:"allowed"`
	}{typ, query, i.Allowed})
}
