// Package workflow holds the surgery status ordering and the rule deciding which
// status changes a role may make.
package workflow

import (
	"fmt"
	"strings"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

var stages = []models.SurgeryStatus{
	models.StatusCheckedIn,
	models.StatusPreProcedure,
	models.StatusInProgress,
	models.StatusClosing,
	models.StatusRecovery,
	models.StatusComplete,
	models.StatusDismissal,
}

var stageIndex = func() map[models.SurgeryStatus]int {
	idx := make(map[models.SurgeryStatus]int, len(stages))
	for i, s := range stages {
		idx[s] = i
	}
	return idx
}()

// ErrUnknownStatus is returned for values outside the seven workflow stages.
var ErrUnknownStatus = appErrors.ErrUnknownStatus

// Stages returns the ordered workflow stages.
func Stages() []models.SurgeryStatus {
	out := make([]models.SurgeryStatus, len(stages))
	copy(out, stages)
	return out
}

// Options returns the ordered stages with their display labels.
func Options() []models.StatusOption {
	out := make([]models.StatusOption, len(stages))
	for i, s := range stages {
		out[i] = models.StatusOption{Value: s, Label: s.Label()}
	}
	return out
}

// IndexOf returns the position of status in the workflow (0..6).
func IndexOf(status models.SurgeryStatus) (int, error) {
	idx, ok := stageIndex[status]
	if !ok {
		return -1, appErrors.Wrap(fmt.Errorf("status %q", status), ErrUnknownStatus.Code, ErrUnknownStatus.Status, ErrUnknownStatus.Message)
	}
	return idx, nil
}

// Valid reports whether status is one of the workflow stages.
func Valid(status models.SurgeryStatus) bool {
	_, ok := stageIndex[status]
	return ok
}

// IsForward reports whether to comes strictly after from.
func IsForward(from, to models.SurgeryStatus) (bool, error) {
	fromIdx, err := IndexOf(from)
	if err != nil {
		return false, err
	}
	toIdx, err := IndexOf(to)
	if err != nil {
		return false, err
	}
	return toIdx > fromIdx, nil
}

// Neighbors returns the stages immediately before and after status, predecessor first.
func Neighbors(status models.SurgeryStatus) ([]models.SurgeryStatus, error) {
	idx, err := IndexOf(status)
	if err != nil {
		return nil, err
	}
	out := make([]models.SurgeryStatus, 0, 2)
	if idx > 0 {
		out = append(out, stages[idx-1])
	}
	if idx < len(stages)-1 {
		out = append(out, stages[idx+1])
	}
	return out, nil
}

// ParseStatus accepts a wire slug or a display label, ignoring case and surrounding space.
func ParseStatus(raw string) (models.SurgeryStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range stages {
		if norm == string(s) || norm == strings.ToLower(s.Label()) {
			return s, nil
		}
	}
	_, err := IndexOf(models.SurgeryStatus(raw))
	return "", err
}
