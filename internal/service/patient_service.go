package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/workflow"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

type patientRepository interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
	FindByCode(ctx context.Context, code string) (*models.Patient, error)
	List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, int, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, patient *models.Patient) error
	Update(ctx context.Context, patient *models.Patient) error
	UpdateStatus(ctx context.Context, id string, expected, next models.SurgeryStatus, at time.Time) error
	ListWithoutCode(ctx context.Context) ([]models.Patient, error)
	SetCode(ctx context.Context, id, code string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type directoryInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

type statusNotifier interface {
	NotifyStatus(patient models.Patient)
}

// PatientServiceConfig carries policy knobs that are not part of the transition rule.
type PatientServiceConfig struct {
	CreateMinRole   models.Role
	CodeMaxAttempts int
	ImportMaxRows   int
}

// PatientServiceOption customises optional collaborators.
type PatientServiceOption func(*PatientService)

// WithDirectoryInvalidator drops cached lookups after writes.
func WithDirectoryInvalidator(inv directoryInvalidator) PatientServiceOption {
	return func(s *PatientService) {
		s.invalidator = inv
	}
}

// WithStatusNotifier publishes applied status changes.
func WithStatusNotifier(n statusNotifier) PatientServiceOption {
	return func(s *PatientService) {
		s.notifier = n
	}
}

// WithPatientMetrics records transition decisions.
func WithPatientMetrics(m *MetricsService) PatientServiceOption {
	return func(s *PatientService) {
		s.metrics = m
	}
}

// WithCodeGenerator overrides the random code source.
func WithCodeGenerator(gen CodeGenerator) PatientServiceOption {
	return func(s *PatientService) {
		if gen != nil {
			s.generateCode = gen
		}
	}
}

// PatientService owns patient records and every status change applied to them.
type PatientService struct {
	repo         patientRepository
	audit        auditRepository
	validator    *validator.Validate
	logger       *zap.Logger
	config       PatientServiceConfig
	invalidator  directoryInvalidator
	notifier     statusNotifier
	metrics      *MetricsService
	generateCode CodeGenerator
	now          func() time.Time
}

// NewPatientService constructs the patient service.
func NewPatientService(repo patientRepository, audit auditRepository, validate *validator.Validate, logger *zap.Logger, cfg PatientServiceConfig, opts ...PatientServiceOption) *PatientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.CreateMinRole.Valid() {
		cfg.CreateMinRole = models.RoleAdmin
	}
	if cfg.CodeMaxAttempts <= 0 {
		cfg.CodeMaxAttempts = 10
	}
	if cfg.ImportMaxRows <= 0 {
		cfg.ImportMaxRows = 500
	}
	s := &PatientService{
		repo:         repo,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		config:       cfg,
		generateCode: defaultCodeGenerator,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns patients and pagination metadata.
func (s *PatientService) List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, *models.Pagination, error) {
	if filter.Status != "" && !workflow.Valid(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrUnknownStatus, fmt.Sprintf("unknown status filter %q", filter.Status))
	}
	patients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list patients")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return patients, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a patient by ID.
func (s *PatientService) Get(ctx context.Context, id string) (*models.Patient, error) {
	patient, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	return patient, nil
}

// Create registers a patient at the first workflow stage with a fresh code.
func (s *PatientService) Create(ctx context.Context, actor models.Actor, req dto.CreatePatientRequest) (*models.Patient, error) {
	if !actor.Role.AtLeast(s.config.CreateMinRole) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("creating patients requires the %s role", s.config.CreateMinRole))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	patient := &models.Patient{
		Code:   code,
		Status: workflow.Stages()[0],
	}
	applyDetails(patient, req)
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create patient")
	}

	s.record(ctx, actor, models.AuditActionPatientCreate, patient.ID, nil, map[string]interface{}{"code": patient.Code, "status": patient.Status})
	s.notify(*patient)
	return patient, nil
}

// Update replaces descriptive fields. Code and status are left untouched.
func (s *PatientService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdatePatientRequest) (*models.Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	patient, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyDetails(patient, dto.CreatePatientRequest(req))
	if err := s.repo.Update(ctx, patient); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient")
	}
	s.invalidate(ctx, patient.Code)
	s.record(ctx, actor, models.AuditActionPatientUpdate, patient.ID, nil, nil)
	return patient, nil
}

// Delete removes a patient.
func (s *PatientService) Delete(ctx context.Context, actor models.Actor, id string) error {
	patient, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete patient")
	}
	s.invalidate(ctx, patient.Code)
	s.record(ctx, actor, models.AuditActionPatientDelete, patient.ID, map[string]interface{}{"code": patient.Code}, nil)
	return nil
}

// ChangeStatus moves a patient to requested if the workflow rule allows it for the actor.
// The stored status is re-read and the write only succeeds if it is still the one that was
// authorized; otherwise ErrStatusConflict is returned and the caller may retry.
func (s *PatientService) ChangeStatus(ctx context.Context, actor models.Actor, id string, requested models.SurgeryStatus) (*dto.StatusChangeResponse, error) {
	patient, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, actor, patient, requested)
}

// ChangeStatusByCode is ChangeStatus addressed by patient code.
func (s *PatientService) ChangeStatusByCode(ctx context.Context, actor models.Actor, code string, requested models.SurgeryStatus) (*dto.StatusChangeResponse, error) {
	patient, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status, appErrors.ErrDirectoryUnavailable.Message)
	}
	if patient == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no patient with code %s", strings.ToUpper(code)))
	}
	return s.changeStatus(ctx, actor, patient, requested)
}

func (s *PatientService) changeStatus(ctx context.Context, actor models.Actor, patient *models.Patient, requested models.SurgeryStatus) (*dto.StatusChangeResponse, error) {
	previous := patient.Status
	decision := workflow.Authorize(actor.Role, previous, requested)
	s.metrics.ObserveTransition(actor.Role, decision)
	if !decision.Allowed {
		s.logger.Info("status change denied",
			zap.String("patient_id", patient.ID),
			zap.String("role", string(actor.Role)),
			zap.String("from", string(previous)),
			zap.String("to", string(requested)),
			zap.String("reason", decision.Reason))
		return nil, DecisionError(decision)
	}
	if previous == requested {
		return &dto.StatusChangeResponse{Patient: lookup.Render(*patient, actor.Role), Previous: previous, Changed: false}, nil
	}

	at := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, patient.ID, previous, requested, at); err != nil {
		if errors.Is(err, appErrors.ErrStatusConflict) {
			return nil, appErrors.Clone(appErrors.ErrStatusConflict, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient status")
	}
	patient.Status = requested
	patient.UpdatedAt = at

	s.invalidate(ctx, patient.Code)
	s.record(ctx, actor, models.AuditActionStatusChange, patient.ID,
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": requested})
	s.notify(*patient)
	return &dto.StatusChangeResponse{Patient: lookup.Render(*patient, actor.Role), Previous: previous, Changed: true}, nil
}

// DecisionError converts a denial into the matching HTTP-aware error. It returns nil for
// an allowed decision.
func DecisionError(decision workflow.Decision) error {
	if decision.Allowed {
		return nil
	}
	switch decision.Reason {
	case workflow.ReasonInsufficientRole:
		return appErrors.Clone(appErrors.ErrInsufficientRole, "")
	case workflow.ReasonBackwardRestricted:
		return appErrors.Clone(appErrors.ErrBackwardTransitionRestricted, "")
	case workflow.ReasonUnknownStatus:
		return appErrors.Clone(appErrors.ErrUnknownStatus, "")
	}
	return appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
}

// ImportStatuses applies a spreadsheet of code/status rows. The first row must name a
// "code" and a "status" column; every following row goes through the same authorization
// as a single change, and failures are reported per row.
func (s *PatientService) ImportStatuses(ctx context.Context, actor models.Actor, r io.Reader) (*dto.StatusImportResult, error) {
	if !actor.Role.AtLeast(models.RoleSurgicalTeam) {
		return nil, appErrors.Clone(appErrors.ErrInsufficientRole, "")
	}
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is not a readable xlsx workbook")
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read worksheet")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "worksheet is empty")
	}
	codeCol, statusCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "code", "patient code":
			codeCol = i
		case "status":
			statusCol = i
		}
	}
	if codeCol < 0 || statusCol < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, `header row must contain "code" and "status" columns`)
	}
	if len(rows)-1 > s.config.ImportMaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import is limited to %d rows", s.config.ImportMaxRows))
	}

	result := &dto.StatusImportResult{Rows: make([]dto.StatusImportRow, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		line := dto.StatusImportRow{Row: i + 2, Code: strings.ToUpper(strings.TrimSpace(cell(row, codeCol)))}
		rawStatus := cell(row, statusCol)
		if line.Code == "" && strings.TrimSpace(rawStatus) == "" {
			continue
		}
		status, err := workflow.ParseStatus(rawStatus)
		if err == nil {
			line.Status = status
			_, err = s.ChangeStatusByCode(ctx, actor, line.Code, status)
		}
		if err != nil {
			line.Error = appErrors.FromError(err).Message
			result.Failed++
		} else {
			line.Applied = true
			result.Applied++
		}
		result.Rows = append(result.Rows, line)
	}
	return result, nil
}

// BackfillCodes assigns a code to every patient stored without one.
func (s *PatientService) BackfillCodes(ctx context.Context, actor models.Actor) (*dto.BackfillResult, error) {
	if !actor.Role.AtLeast(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "code backfill requires the admin role")
	}
	patients, err := s.repo.ListWithoutCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list patients without code")
	}
	result := &dto.BackfillResult{Scanned: len(patients), RanAt: s.now().UTC()}
	for _, p := range patients {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return result, err
		}
		assigned, err := s.repo.SetCode(ctx, p.ID, code)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign patient code")
		}
		if assigned {
			result.Assigned++
			s.record(ctx, actor, models.AuditActionCodeBackfill, p.ID, nil, map[string]interface{}{"code": code})
		}
	}
	s.logger.Info("patient code backfill finished", zap.Int("scanned", result.Scanned), zap.Int("assigned", result.Assigned))
	return result, nil
}

func (s *PatientService) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.config.CodeMaxAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrCodeGeneration.Code, appErrors.ErrCodeGeneration.Status, appErrors.ErrCodeGeneration.Message)
		}
		exists, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check patient code")
		}
		if !exists {
			return code, nil
		}
	}
	s.logger.Error("patient code space exhausted", zap.Int("attempts", s.config.CodeMaxAttempts))
	return "", appErrors.Clone(appErrors.ErrCodeGeneration, "")
}

func (s *PatientService) invalidate(ctx context.Context, code string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, code)
	}
}

func (s *PatientService) notify(patient models.Patient) {
	if s.notifier != nil {
		s.notifier.NotifyStatus(patient)
	}
}

func (s *PatientService) record(ctx context.Context, actor models.Actor, action, resourceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "patient",
		ResourceID: &resourceID,
		OldValues:  marshalAudit(oldValues),
		NewValues:  marshalAudit(newValues),
	}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func marshalAudit(values map[string]interface{}) []byte {
	if values == nil {
		return nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return raw
}

func applyDetails(p *models.Patient, req dto.CreatePatientRequest) {
	p.FirstName = strings.TrimSpace(req.FirstName)
	p.LastName = strings.TrimSpace(req.LastName)
	p.DateOfBirth = req.DateOfBirth
	p.Address = req.Address
	p.Insurance = req.Insurance
	p.Email = req.Email
	p.Phone = req.Phone
	p.SurgeryType = req.SurgeryType
	p.SurgeryDate = req.SurgeryDate
	p.Notes = req.Notes
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}
