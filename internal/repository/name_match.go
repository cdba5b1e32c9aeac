package repository

import (
	"sort"
	"strings"

	"github.com/noah-isme/surgitrack-api/internal/models"
)

// NameScore ranks how well a patient's name matches a search fragment.
type NameScore struct {
	Exact bool
	Whole bool
	Words int
}

// Matched reports whether the fragment matched at all.
func (s NameScore) Matched() bool {
	return s.Whole || s.Words > 0
}

func (s NameScore) better(o NameScore) bool {
	if s.Exact != o.Exact {
		return s.Exact
	}
	if s.Whole != o.Whole {
		return s.Whole
	}
	return s.Words > o.Words
}

// MatchNameFragment compares fragment to the patient's names case-insensitively. The whole
// fragment, or any of its words, may appear in "first last", "last first" or either part.
func MatchNameFragment(p models.Patient, fragment string) NameScore {
	fragment = strings.ToLower(strings.Join(strings.Fields(fragment), " "))
	if fragment == "" {
		return NameScore{}
	}
	first := strings.ToLower(strings.TrimSpace(p.FirstName))
	last := strings.ToLower(strings.TrimSpace(p.LastName))
	haystacks := []string{
		strings.TrimSpace(first + " " + last),
		strings.TrimSpace(last + " " + first),
		first,
		last,
	}

	var score NameScore
	score.Exact = fragment == haystacks[0] || fragment == haystacks[1]
	score.Whole = containsAny(haystacks, fragment)
	for _, word := range strings.Fields(fragment) {
		if containsAny(haystacks, word) {
			score.Words++
		}
	}
	return score
}

// RankByName keeps the patients matching fragment, best match first, ties broken by last
// then first name.
func RankByName(patients []models.Patient, fragment string) []models.Patient {
	type scored struct {
		patient models.Patient
		score   NameScore
	}
	matches := make([]scored, 0, len(patients))
	for _, p := range patients {
		if s := MatchNameFragment(p, fragment); s.Matched() {
			matches = append(matches, scored{patient: p, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score.better(b.score)
		}
		if la, lb := strings.ToLower(a.patient.LastName), strings.ToLower(b.patient.LastName); la != lb {
			return la < lb
		}
		return strings.ToLower(a.patient.FirstName) < strings.ToLower(b.patient.FirstName)
	})

	ranked := make([]models.Patient, len(matches))
	for i, m := range matches {
		ranked[i] = m.patient
	}
	return ranked
}

func containsAny(haystacks []string, needle string) bool {
	for _, h := range haystacks {
		if h != "" && strings.Contains(h, needle) {
			return true
		}
	}
	return false
}
