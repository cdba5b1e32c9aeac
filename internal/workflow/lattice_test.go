package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

func TestIndexOf(t *testing.T) {
	for want, status := range Stages() {
		got, err := IndexOf(status)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := IndexOf("cancelled")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnknownStatus))
}

func TestStagesIsACopy(t *testing.T) {
	s := Stages()
	s[0] = models.StatusDismissal
	assert.Equal(t, models.StatusCheckedIn, Stages()[0])
	assert.Len(t, Options(), 7)
	assert.Equal(t, "In Progress", Options()[2].Label)
}

func TestIsForward(t *testing.T) {
	forward, err := IsForward(models.StatusRecovery, models.StatusComplete)
	require.NoError(t, err)
	assert.True(t, forward)

	forward, err = IsForward(models.StatusRecovery, models.StatusClosing)
	require.NoError(t, err)
	assert.False(t, forward)

	forward, err = IsForward(models.StatusClosing, models.StatusClosing)
	require.NoError(t, err)
	assert.False(t, forward)

	_, err = IsForward(models.StatusClosing, "teleported")
	assert.Error(t, err)
}

func TestNeighbors(t *testing.T) {
	first, err := Neighbors(models.StatusCheckedIn)
	require.NoError(t, err)
	assert.Equal(t, []models.SurgeryStatus{models.StatusPreProcedure}, first)

	last, err := Neighbors(models.StatusDismissal)
	require.NoError(t, err)
	assert.Equal(t, []models.SurgeryStatus{models.StatusComplete}, last)

	mid, err := Neighbors(models.StatusClosing)
	require.NoError(t, err)
	assert.Equal(t, []models.SurgeryStatus{models.StatusInProgress, models.StatusRecovery}, mid)

	_, err = Neighbors("")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	for raw, want := range map[string]models.SurgeryStatus{
		"recovery":       models.StatusRecovery,
		" In Progress ":  models.StatusInProgress,
		"PRE-PROCEDURE":  models.StatusPreProcedure,
		"checked in":     models.StatusCheckedIn,
		"Checked-In":     models.StatusCheckedIn,
	} {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatus("discharged")
	assert.True(t, errors.Is(err, appErrors.ErrUnknownStatus))
}
