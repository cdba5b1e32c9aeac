package models

import "time"

// Audit actions recorded by the service layer.
const (
	AuditActionLogin         = "LOGIN"
	AuditActionPatientCreate = "PATIENT_CREATE"
	AuditActionPatientUpdate = "PATIENT_UPDATE"
	AuditActionPatientDelete = "PATIENT_DELETE"
	AuditActionStatusChange  = "STATUS_CHANGE"
	AuditActionCodeBackfill  = "CODE_BACKFILL"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
