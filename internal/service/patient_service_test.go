package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/workflow"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

type memoryPatientRepo struct {
	mu           sync.Mutex
	patients     map[string]models.Patient
	beforeUpdate func()
	updates      int
}

func newMemoryPatientRepo(patients ...models.Patient) *memoryPatientRepo {
	repo := &memoryPatientRepo{patients: map[string]models.Patient{}}
	for _, p := range patients {
		repo.patients[p.ID] = p
	}
	return repo
}

func (r *memoryPatientRepo) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r *memoryPatientRepo) FindByCode(ctx context.Context, code string) (*models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.Code != "" && strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memoryPatientRepo) List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		if filter.Status == "" || p.Status == filter.Status {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (r *memoryPatientRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	p, err := r.FindByCode(ctx, code)
	return p != nil, err
}

func (r *memoryPatientRepo) Create(ctx context.Context, patient *models.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if patient.ID == "" {
		patient.ID = "p-" + patient.Code
	}
	r.patients[patient.ID] = *patient
	return nil
}

func (r *memoryPatientRepo) Update(ctx context.Context, patient *models.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.patients[patient.ID]
	if !ok {
		return sql.ErrNoRows
	}
	updated := *patient
	updated.Code, updated.Status = stored.Code, stored.Status
	r.patients[patient.ID] = updated
	return nil
}

func (r *memoryPatientRepo) UpdateStatus(ctx context.Context, id string, expected, next models.SurgeryStatus, at time.Time) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.Status != expected {
		return appErrors.ErrStatusConflict
	}
	p.Status, p.UpdatedAt = next, at
	r.patients[id] = p
	r.updates++
	return nil
}

func (r *memoryPatientRepo) ListWithoutCode(ctx context.Context) ([]models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Patient
	for _, p := range r.patients {
		if p.Code == "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPatientRepo) SetCode(ctx context.Context, id, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.Code != "" {
		return false, nil
	}
	p.Code = code
	r.patients[id] = p
	return true, nil
}

func (r *memoryPatientRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.patients, id)
	return nil
}

func (r *memoryPatientRepo) status(id string) models.SurgeryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patients[id].Status
}

type auditRecorder struct {
	entries []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type invalidationRecorder struct {
	codes []string
}

func (i *invalidationRecorder) Invalidate(ctx context.Context, code string) {
	i.codes = append(i.codes, code)
}

type notifierRecorder struct {
	patients []models.Patient
}

func (n *notifierRecorder) NotifyStatus(p models.Patient) {
	n.patients = append(n.patients, p)
}

func sequenceCodes(codes ...string) CodeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

var (
	adminActor = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	teamActor  = models.Actor{UserID: "nurse-1", Role: models.RoleSurgicalTeam}
)

type patientFixture struct {
	repo     *memoryPatientRepo
	audit    *auditRecorder
	inv      *invalidationRecorder
	notifier *notifierRecorder
	svc      *PatientService
}

func newPatientFixture(cfg PatientServiceConfig, patients ...models.Patient) *patientFixture {
	f := &patientFixture{
		repo:     newMemoryPatientRepo(patients...),
		audit:    &auditRecorder{},
		inv:      &invalidationRecorder{},
		notifier: &notifierRecorder{},
	}
	f.svc = NewPatientService(f.repo, f.audit, nil, nil, cfg,
		WithDirectoryInvalidator(f.inv),
		WithStatusNotifier(f.notifier),
		WithPatientMetrics(NewMetricsService()),
		WithCodeGenerator(sequenceCodes("AAAAAA", "BBBBBB", "CCCCCC")),
	)
	return f
}

func errCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestPatientServiceCreate(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "existing", Code: "AAAAAA", Status: models.StatusRecovery})

	_, err := f.svc.Create(context.Background(), teamActor, dto.CreatePatientRequest{FirstName: "Jane", LastName: "Doe"})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	_, err = f.svc.Create(context.Background(), adminActor, dto.CreatePatientRequest{FirstName: "Jane"})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	patient, err := f.svc.Create(context.Background(), adminActor, dto.CreatePatientRequest{FirstName: " Jane ", LastName: "Doe", SurgeryDate: "2026-10-15"})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", patient.Code)
	assert.Equal(t, models.StatusCheckedIn, patient.Status)
	assert.Equal(t, "Jane", patient.FirstName)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionPatientCreate, f.audit.entries[0].Action)
	assert.Equal(t, "admin-1", *f.audit.entries[0].UserID)
	require.Len(t, f.notifier.patients, 1)
}

func TestPatientServiceCreateMinRoleIsConfigurable(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{CreateMinRole: models.RoleSurgicalTeam})

	patient, err := f.svc.Create(context.Background(), teamActor, dto.CreatePatientRequest{FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", patient.Code)

	_, err = f.svc.Create(context.Background(), models.GuestActor, dto.CreatePatientRequest{FirstName: "Jane", LastName: "Doe"})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}

func TestPatientServiceCodeSpaceExhausted(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{CodeMaxAttempts: 10}, models.Patient{ID: "existing", Code: "AAAAAA"})
	calls := 0
	f.svc.generateCode = func() (string, error) {
		calls++
		return "AAAAAA", nil
	}

	_, err := f.svc.Create(context.Background(), adminActor, dto.CreatePatientRequest{FirstName: "Jane", LastName: "Doe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCodeGeneration))
	assert.Equal(t, 10, calls)
}

func TestRandomCodeAlphabet(t *testing.T) {
	gen := RandomCode(bytes.NewReader(bytes.Repeat([]byte{0x00, 0x23, 0xff}, 64)))
	code, err := gen()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
	code, err = defaultCodeGenerator()
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestPatientServiceChangeStatus(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "p1", Code: "ABC123", FirstName: "Jane", Status: models.StatusRecovery})

	_, err := f.svc.ChangeStatus(context.Background(), teamActor, "p1", models.StatusClosing)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBackwardTransitionRestricted.Code, errCode(err))
	assert.Equal(t, 403, appErrors.FromError(err).Status)
	assert.Equal(t, models.StatusRecovery, f.repo.status("p1"))

	_, err = f.svc.ChangeStatus(context.Background(), models.GuestActor, "p1", models.StatusComplete)
	assert.Equal(t, appErrors.ErrInsufficientRole.Code, errCode(err))

	_, err = f.svc.ChangeStatus(context.Background(), teamActor, "p1", "teleported")
	assert.Equal(t, appErrors.ErrUnknownStatus.Code, errCode(err))
	assert.Equal(t, 400, appErrors.FromError(err).Status)

	res, err := f.svc.ChangeStatus(context.Background(), teamActor, "p1", models.StatusComplete)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusRecovery, res.Previous)
	assert.Equal(t, models.StatusComplete, f.repo.status("p1"))
	assert.Equal(t, []string{"ABC123"}, f.inv.codes)
	require.Len(t, f.notifier.patients, 1)
	assert.Equal(t, models.StatusComplete, f.notifier.patients[0].Status)
	require.Len(t, f.audit.entries, 1)
	assert.JSONEq(t, `{"status":"recovery"}`, string(f.audit.entries[0].OldValues))
	assert.JSONEq(t, `{"status":"complete"}`, string(f.audit.entries[0].NewValues))

	res, err = f.svc.ChangeStatus(context.Background(), adminActor, "p1", models.StatusCheckedIn)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusCheckedIn, f.repo.status("p1"))

	_, err = f.svc.ChangeStatus(context.Background(), adminActor, "missing", models.StatusCheckedIn)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestPatientServiceChangeStatusFiltersPatientForRole(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{
		ID: "p1", Code: "ABC123", FirstName: "Jane", LastName: "Doe", Address: "1 Main St",
		DateOfBirth: "1980-02-01", Notes: "allergic to latex", SurgeryType: "Knee", Status: models.StatusRecovery,
	})

	res, err := f.svc.ChangeStatusByCode(context.Background(), teamActor, "abc123", models.StatusComplete)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusComplete, f.repo.status("p1"))
	assert.Equal(t, "ABC123", res.Patient.Code)
	assert.Equal(t, models.StatusComplete, res.Patient.Status)
	assert.Equal(t, "Knee", res.Patient.SurgeryType)
	assert.Empty(t, res.Patient.FirstName)
	assert.Empty(t, res.Patient.LastName)
	assert.Empty(t, res.Patient.Notes)

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "Jane")
	assert.NotContains(t, string(body), "Main St")
	assert.NotContains(t, string(body), "1980-02-01")
	assert.NotContains(t, string(body), `"id"`)

	res, err = f.svc.ChangeStatusByCode(context.Background(), adminActor, "ABC123", models.StatusRecovery)
	require.NoError(t, err)
	assert.Equal(t, "Jane", res.Patient.FirstName)
	assert.Equal(t, "Doe", res.Patient.LastName)

	_, err = f.svc.ChangeStatusByCode(context.Background(), teamActor, "ZZZ999", models.StatusComplete)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestPatientServiceChangeStatusSameStatus(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "p1", Code: "ABC123", Status: models.StatusRecovery})

	res, err := f.svc.ChangeStatus(context.Background(), adminActor, "p1", models.StatusRecovery)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, f.repo.updates)
	assert.Empty(t, f.notifier.patients)

	_, err = f.svc.ChangeStatus(context.Background(), teamActor, "p1", models.StatusRecovery)
	assert.Equal(t, appErrors.ErrBackwardTransitionRestricted.Code, errCode(err))
}

func TestPatientServiceChangeStatusConflict(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "p1", Code: "ABC123", Status: models.StatusClosing})
	f.repo.beforeUpdate = func() {
		// an admin reverts the patient between our read and our write
		f.repo.beforeUpdate = nil
		f.repo.mu.Lock()
		p := f.repo.patients["p1"]
		p.Status = models.StatusInProgress
		f.repo.patients["p1"] = p
		f.repo.mu.Unlock()
	}

	_, err := f.svc.ChangeStatus(context.Background(), teamActor, "p1", models.StatusRecovery)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStatusConflict.Code, errCode(err))
	assert.Equal(t, 409, appErrors.FromError(err).Status)
	assert.Equal(t, models.StatusInProgress, f.repo.status("p1"))
	assert.Empty(t, f.notifier.patients)

	// retry re-reads and is authorized against the fresh status
	res, err := f.svc.ChangeStatus(context.Background(), teamActor, "p1", models.StatusRecovery)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.Previous)
}

func TestPatientServiceUpdateAndDelete(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "p1", Code: "ABC123", FirstName: "Jane", LastName: "Doe", Status: models.StatusRecovery})

	updated, err := f.svc.Update(context.Background(), adminActor, "p1", dto.UpdatePatientRequest{FirstName: "Janet", LastName: "Doe", Notes: "moved to bay 4"})
	require.NoError(t, err)
	assert.Equal(t, "Janet", updated.FirstName)
	assert.Equal(t, models.StatusRecovery, f.repo.status("p1"))

	require.NoError(t, f.svc.Delete(context.Background(), adminActor, "p1"))
	assert.Equal(t, []string{"ABC123", "ABC123"}, f.inv.codes)
	_, err = f.svc.Get(context.Background(), "p1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(f.svc.Delete(context.Background(), adminActor, "p1")))
}

func TestPatientServiceList(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{},
		models.Patient{ID: "p1", Code: "ABC123", Status: models.StatusRecovery},
		models.Patient{ID: "p2", Code: "DEF456", Status: models.StatusComplete})

	patients, pagination, err := f.svc.List(context.Background(), models.PatientFilter{Status: models.StatusRecovery})
	require.NoError(t, err)
	assert.Len(t, patients, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)

	_, _, err = f.svc.List(context.Background(), models.PatientFilter{Status: "lost"})
	assert.Equal(t, appErrors.ErrUnknownStatus.Code, errCode(err))
}

func statusWorkbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestPatientServiceImportStatuses(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{}, models.Patient{ID: "p1", Code: "ABC123", Status: models.StatusRecovery})

	book := statusWorkbook(t,
		[]interface{}{"Patient Code", "Status"},
		[]interface{}{"abc123", "Complete"},
		[]interface{}{"ABC123", "closing"},
		[]interface{}{"ZZZ999", "recovery"},
		[]interface{}{"", ""},
		[]interface{}{"ABC123", "teleported"},
	)

	res, err := f.svc.ImportStatuses(context.Background(), teamActor, book)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Rows, 4)
	assert.True(t, res.Rows[0].Applied)
	assert.Equal(t, 2, res.Rows[0].Row)
	assert.Equal(t, appErrors.ErrBackwardTransitionRestricted.Message, res.Rows[1].Error)
	assert.Contains(t, res.Rows[2].Error, "ZZZ999")
	assert.Equal(t, 6, res.Rows[3].Row)
	assert.Equal(t, models.StatusComplete, f.repo.status("p1"))
}

func TestPatientServiceImportRejectsBadInput(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{ImportMaxRows: 1}, models.Patient{ID: "p1", Code: "ABC123", Status: models.StatusRecovery})

	_, err := f.svc.ImportStatuses(context.Background(), teamActor, strings.NewReader("not a workbook"))
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.ImportStatuses(context.Background(), teamActor, statusWorkbook(t, []interface{}{"Name", "Status"}))
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.ImportStatuses(context.Background(), teamActor, statusWorkbook(t,
		[]interface{}{"Code", "Status"}, []interface{}{"ABC123", "complete"}, []interface{}{"ABC123", "dismissal"}))
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = f.svc.ImportStatuses(context.Background(), models.GuestActor, statusWorkbook(t, []interface{}{"Code", "Status"}))
	assert.Equal(t, appErrors.ErrInsufficientRole.Code, errCode(err))
}

func TestPatientServiceBackfillCodes(t *testing.T) {
	f := newPatientFixture(PatientServiceConfig{},
		models.Patient{ID: "legacy-1", Status: models.StatusCheckedIn},
		models.Patient{ID: "legacy-2", Status: models.StatusCheckedIn},
		models.Patient{ID: "coded", Code: "AAAAAA", Status: models.StatusCheckedIn})

	_, err := f.svc.BackfillCodes(context.Background(), teamActor)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	res, err := f.svc.BackfillCodes(context.Background(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Assigned)

	codes := map[string]bool{}
	for _, p := range f.repo.patients {
		require.NotEmpty(t, p.Code)
		assert.False(t, codes[p.Code], "duplicate code %s", p.Code)
		codes[p.Code] = true
	}
	assert.Len(t, f.audit.entries, 2)
}

func TestDecisionError(t *testing.T) {
	assert.NoError(t, DecisionError(workflow.Allow))

	cases := map[string]*appErrors.Error{
		workflow.ReasonInsufficientRole:   appErrors.ErrInsufficientRole,
		workflow.ReasonBackwardRestricted: appErrors.ErrBackwardTransitionRestricted,
		workflow.ReasonUnknownStatus:      appErrors.ErrUnknownStatus,
		"something-else":                  appErrors.ErrForbidden,
	}
	for reason, want := range cases {
		err := DecisionError(workflow.Deny(reason))
		assert.Equal(t, want.Code, errCode(err), reason)
		assert.Equal(t, want.Status, appErrors.FromError(err).Status, reason)
	}
}
