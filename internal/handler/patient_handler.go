package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
	"github.com/noah-isme/surgitrack-api/pkg/response"
)

const maxImportBytes = 5 << 20

type patientService interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Patient, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreatePatientRequest) (*models.Patient, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdatePatientRequest) (*models.Patient, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	ChangeStatus(ctx context.Context, actor models.Actor, id string, requested models.SurgeryStatus) (*dto.StatusChangeResponse, error)
	ChangeStatusByCode(ctx context.Context, actor models.Actor, code string, requested models.SurgeryStatus) (*dto.StatusChangeResponse, error)
	ImportStatuses(ctx context.Context, actor models.Actor, r io.Reader) (*dto.StatusImportResult, error)
	BackfillCodes(ctx context.Context, actor models.Actor) (*dto.BackfillResult, error)
}

// PatientHandler manages patient records and their workflow status.
type PatientHandler struct {
	patients patientService
}

// NewPatientHandler constructs the handler.
func NewPatientHandler(patients patientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

// List godoc
// @Summary List patients
// @Tags Patients
// @Produce json
// @Param search query string false "Search by name or code"
// @Param status query string false "Filter by workflow status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /patients [get]
func (h *PatientHandler) List(c *gin.Context) {
	patients, pagination, err := h.patients.List(c.Request.Context(), patientFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patients, pagination)
}

// Get godoc
// @Summary Get patient detail
// @Tags Patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id} [get]
func (h *PatientHandler) Get(c *gin.Context) {
	patient, err := h.patients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// Create godoc
// @Summary Register patient
// @Description Creates a patient at the first workflow stage with a generated 6-character code
// @Tags Patients
// @Accept json
// @Produce json
// @Param payload body dto.CreatePatientRequest true "Patient payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /patients [post]
func (h *PatientHandler) Create(c *gin.Context) {
	var req dto.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	patient, err := h.patients.Create(c.Request.Context(), currentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, patient)
}

// Update godoc
// @Summary Update patient details
// @Tags Patients
// @Accept json
// @Produce json
// @Param id path string true "Patient ID"
// @Param payload body dto.UpdatePatientRequest true "Patient payload"
// @Success 200 {object} response.Envelope
// @Router /patients/{id} [put]
func (h *PatientHandler) Update(c *gin.Context) {
	var req dto.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	patient, err := h.patients.Update(c.Request.Context(), currentActor(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// Delete godoc
// @Summary Delete patient
// @Tags Patients
// @Param id path string true "Patient ID"
// @Success 204 {object} response.Envelope
// @Router /patients/{id} [delete]
func (h *PatientHandler) Delete(c *gin.Context) {
	if err := h.patients.Delete(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangeStatus godoc
// @Summary Change patient status
// @Description Surgical team members may only move forward; administrators may move anywhere
// @Tags Patients
// @Accept json
// @Produce json
// @Param id path string true "Patient ID"
// @Param payload body dto.ChangeStatusRequest true "Requested status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /patients/{id}/status [patch]
func (h *PatientHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.patients.ChangeStatus(c.Request.Context(), currentActor(c), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ChangeStatusByCode godoc
// @Summary Change patient status by code
// @Description Same rules as the ID-addressed change, for callers who only know the patient code
// @Tags Patients
// @Accept json
// @Produce json
// @Param code path string true "Patient code"
// @Param payload body dto.ChangeStatusRequest true "Requested status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /patients/by-code/{code}/status [patch]
func (h *PatientHandler) ChangeStatusByCode(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if !lookup.IsCode(code) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "patient code must be 6 letters or digits"))
		return
	}
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.patients.ChangeStatusByCode(c.Request.Context(), currentActor(c), code, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ImportStatuses godoc
// @Summary Bulk status import
// @Description Applies an XLSX sheet with "code" and "status" columns; each row is authorized separately
// @Tags Patients
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "XLSX workbook"
// @Success 200 {object} response.Envelope
// @Router /patients/status-import [post]
func (h *PatientHandler) ImportStatuses(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	if header.Size > maxImportBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds 5MB"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close()

	res, err := h.patients.ImportStatuses(c.Request.Context(), currentActor(c), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BackfillCodes godoc
// @Summary Assign codes to legacy patients
// @Tags Patients
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /patients/codes/backfill [post]
func (h *PatientHandler) BackfillCodes(c *gin.Context) {
	res, err := h.patients.BackfillCodes(c.Request.Context(), currentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
