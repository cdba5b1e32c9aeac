package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/surgitrack-api/internal/models"
)

func TestMatchNameFragment(t *testing.T) {
	jane := models.Patient{FirstName: "Jane", LastName: "Doe"}

	assert.Equal(t, NameScore{Exact: true, Whole: true, Words: 2}, MatchNameFragment(jane, "jane doe"))
	assert.Equal(t, NameScore{Exact: true, Whole: true, Words: 2}, MatchNameFragment(jane, "Doe  Jane"))
	assert.Equal(t, NameScore{Whole: true, Words: 1}, MatchNameFragment(jane, "Ja"))
	assert.Equal(t, NameScore{Words: 1}, MatchNameFragment(jane, "Jane Smith"))
	assert.False(t, MatchNameFragment(jane, "Smith").Matched())
	assert.False(t, MatchNameFragment(jane, "   ").Matched())
}

func TestRankByName(t *testing.T) {
	patients := []models.Patient{
		{Code: "A", FirstName: "Zoe", LastName: "Doe"},
		{Code: "B", FirstName: "Jane", LastName: "Doe"},
		{Code: "C", FirstName: "Janet", LastName: "Adams"},
		{Code: "D", FirstName: "Peter", LastName: "Parker"},
		{Code: "E", FirstName: "Adam", LastName: "Doe"},
	}

	ranked := RankByName(patients, "Jane Doe")
	codes := make([]string, len(ranked))
	for i, p := range ranked {
		codes[i] = p.Code
	}
	// exact match first, then single-word hits by last and first name
	assert.Equal(t, []string{"B", "C", "E", "A"}, codes)
}
