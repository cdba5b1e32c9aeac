package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

const patientColumns = `id, COALESCE(code, '') AS code, first_name, last_name, date_of_birth, address, insurance, email, phone, status, surgery_type, surgery_date, notes, created_at, updated_at`

// nameCandidateLimit caps the rows pulled for in-memory name ranking. The query orders by
// relevance before the cap applies.
const nameCandidateLimit = 200

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PatientRepository provides database access for patients.
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository constructs a PatientRepository.
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// FindByCode returns the patient carrying code, ignoring case. A missing patient yields (nil, nil).
func (r *PatientRepository) FindByCode(ctx context.Context, code string) (*models.Patient, error) {
	query := fmt.Sprintf(`SELECT %s FROM patients WHERE UPPER(code) = $1 LIMIT 1`, patientColumns)
	var patient models.Patient
	if err := r.db.GetContext(ctx, &patient, query, strings.ToUpper(strings.TrimSpace(code))); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find patient by code: %w", err)
	}
	return &patient, nil
}

// FindByNameFragment returns patients whose names match fragment, most relevant first.
func (r *PatientRepository) FindByNameFragment(ctx context.Context, fragment string) ([]models.Patient, error) {
	fragment = strings.Join(strings.Fields(fragment), " ")
	if fragment == "" {
		return nil, nil
	}

	patterns := []string{fragment}
	for _, word := range strings.Fields(fragment) {
		if !strings.EqualFold(word, fragment) {
			patterns = append(patterns, word)
		}
	}

	conditions := make([]string, 0, len(patterns))
	args := make([]interface{}, 0, len(patterns))
	for _, pattern := range patterns {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR (first_name || ' ' || last_name) ILIKE $%[1]d OR (last_name || ' ' || first_name) ILIKE $%[1]d", n))
		args = append(args, "%"+likeEscaper.Replace(pattern)+"%")
	}

	// Exact full names rank first, then whole-fragment hits, so the cap never drops them.
	args = append(args, strings.ToLower(fragment))
	relevance := fmt.Sprintf(
		"CASE WHEN LOWER(first_name || ' ' || last_name) = $%[1]d OR LOWER(last_name || ' ' || first_name) = $%[1]d THEN 0 WHEN (%[2]s) THEN 1 ELSE 2 END",
		len(args), conditions[0])

	query := fmt.Sprintf(`SELECT %s FROM patients WHERE %s ORDER BY %s, last_name, first_name LIMIT %d`,
		patientColumns, strings.Join(conditions, " OR "), relevance, nameCandidateLimit)

	var candidates []models.Patient
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("find patients by name: %w", err)
	}
	return RankByName(candidates, fragment), nil
}

// FindByID fetches a patient by identifier.
func (r *PatientRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	query := fmt.Sprintf(`SELECT %s FROM patients WHERE id = $1`, patientColumns)
	var patient models.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, err
	}
	return &patient, nil
}

// List returns patients matching the filter with the total count.
func (r *PatientRepository) List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, int, error) {
	base := "FROM patients"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR code ILIKE $%[1]d)", n))
		args = append(args, "%"+likeEscaper.Replace(strings.TrimSpace(filter.Search))+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"last_name":    "last_name",
		"first_name":   "first_name",
		"code":         "code",
		"status":       "status",
		"surgery_date": "surgery_date",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", patientColumns, base, column, order, size, offset)
	var patients []models.Patient
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	return patients, total, nil
}

// ListBoard returns the code and status of every coded patient, most recently updated first.
func (r *PatientRepository) ListBoard(ctx context.Context) ([]models.StatusBoardEntry, error) {
	const query = `SELECT code, status, updated_at FROM patients WHERE code IS NOT NULL AND code <> '' ORDER BY updated_at DESC`
	var entries []models.StatusBoardEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list status board: %w", err)
	}
	for i := range entries {
		entries[i].StatusLabel = entries[i].Status.Label()
	}
	return entries, nil
}

// ExistsByCode reports whether a patient already carries code.
func (r *PatientRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM patients WHERE UPPER(code) = $1 LIMIT 1`, strings.ToUpper(code)); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check patient code: %w", err)
	}
	return true, nil
}

// Create inserts a new patient.
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now

	const query = `INSERT INTO patients (id, code, first_name, last_name, date_of_birth, address, insurance, email, phone, status, surgery_type, surgery_date, notes, created_at, updated_at)
        VALUES (:id, :code, :first_name, :last_name, :date_of_birth, :address, :insurance, :email, :phone, :status, :surgery_type, :surgery_date, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, patient); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

// Update writes the descriptive fields. Code and status are never touched here.
func (r *PatientRepository) Update(ctx context.Context, patient *models.Patient) error {
	patient.UpdatedAt = time.Now().UTC()
	const query = `UPDATE patients SET first_name = :first_name, last_name = :last_name, date_of_birth = :date_of_birth, address = :address,
        insurance = :insurance, email = :email, phone = :phone, surgery_type = :surgery_type, surgery_date = :surgery_date, notes = :notes, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, patient)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatus moves a patient from expected to next. It fails with ErrStatusConflict when
// the stored status is no longer expected.
func (r *PatientRepository) UpdateStatus(ctx context.Context, id string, expected, next models.SurgeryStatus, at time.Time) error {
	const query = `UPDATE patients SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, next, at, id, expected)
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient status: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrStatusConflict
	}
	return nil
}

// ListWithoutCode returns legacy patients that were never assigned a code.
func (r *PatientRepository) ListWithoutCode(ctx context.Context) ([]models.Patient, error) {
	query := fmt.Sprintf(`SELECT %s FROM patients WHERE code IS NULL OR code = '' ORDER BY created_at`, patientColumns)
	var patients []models.Patient
	if err := r.db.SelectContext(ctx, &patients, query); err != nil {
		return nil, fmt.Errorf("list patients without code: %w", err)
	}
	return patients, nil
}

// SetCode assigns code to a patient that has none. Returns false when the patient already had one.
func (r *PatientRepository) SetCode(ctx context.Context, id, code string) (bool, error) {
	const query = `UPDATE patients SET code = $2, updated_at = $3 WHERE id = $1 AND (code IS NULL OR code = '')`
	res, err := r.db.ExecContext(ctx, query, id, code, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set patient code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set patient code: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a patient.
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
