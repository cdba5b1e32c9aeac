package dto

import (
	"time"

	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/workflow"
)

// CreatePatientRequest registers a patient. The code and initial status are assigned by the server.
type CreatePatientRequest struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Address     string `json:"address" validate:"max=255"`
	Insurance   string `json:"insurance" validate:"max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=40"`
	SurgeryType string `json:"surgeryType" validate:"max=100"`
	SurgeryDate string `json:"surgeryDate" validate:"omitempty,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// UpdatePatientRequest replaces the descriptive fields. Status changes go through ChangeStatusRequest.
type UpdatePatientRequest CreatePatientRequest

// ChangeStatusRequest asks for a workflow transition.
type ChangeStatusRequest struct {
	Status models.SurgeryStatus `json:"status" validate:"required"`
}

// StatusChangeResponse reports an applied transition. Patient is filtered for the caller's role.
type StatusChangeResponse struct {
	Patient  lookup.PatientView   `json:"patient"`
	Previous models.SurgeryStatus `json:"previousStatus"`
	Changed  bool                 `json:"changed"`
}

// AuthorizeTransitionRequest is a dry-run authorization query.
type AuthorizeTransitionRequest struct {
	CurrentStatus   models.SurgeryStatus `json:"currentStatus" validate:"required"`
	RequestedStatus models.SurgeryStatus `json:"requestedStatus" validate:"required"`
}

// CodeLookupResponse is the role-filtered view of a patient found by code plus the
// statuses the caller could move the patient to.
type CodeLookupResponse struct {
	lookup.Envelope
	AllowedTargets []models.StatusOption `json:"allowedTargets"`
	Neighbors      []models.StatusOption `json:"neighbors"`
}

// TransitionDecisionResponse wraps an authorizer decision.
type TransitionDecisionResponse struct {
	workflow.Decision
	Message string `json:"message,omitempty"`
}

// StatusImportRow is the outcome of one spreadsheet row.
type StatusImportRow struct {
	Row     int                  `json:"row"`
	Code    string               `json:"code"`
	Status  models.SurgeryStatus `json:"status,omitempty"`
	Applied bool                 `json:"applied"`
	Error   string               `json:"error,omitempty"`
}

// StatusImportResult summarises a bulk import.
type StatusImportResult struct {
	Applied int               `json:"applied"`
	Failed  int               `json:"failed"`
	Rows    []StatusImportRow `json:"rows"`
}

// BackfillResult summarises a code backfill run.
type BackfillResult struct {
	Scanned  int       `json:"scanned"`
	Assigned int       `json:"assigned"`
	RanAt    time.Time `json:"ranAt"`
}
