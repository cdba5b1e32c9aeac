package models

import "time"

// Patient is a tracked surgical patient. Code is the public identifier shared with family.
type Patient struct {
	ID          string        `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	FirstName   string        `db:"first_name" json:"firstName"`
	LastName    string        `db:"last_name" json:"lastName"`
	DateOfBirth string        `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Address     string        `db:"address" json:"address,omitempty"`
	Insurance   string        `db:"insurance" json:"insurance,omitempty"`
	Email       string        `db:"email" json:"email,omitempty"`
	Phone       string        `db:"phone" json:"phone,omitempty"`
	Status      SurgeryStatus `db:"status" json:"status"`
	SurgeryType string        `db:"surgery_type" json:"surgeryType,omitempty"`
	SurgeryDate string        `db:"surgery_date" json:"surgeryDate,omitempty"`
	Notes       string        `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}

// FullName joins first and last names.
func (p Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PatientFilter captures listing criteria.
type PatientFilter struct {
	Search    string
	Status    SurgeryStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// StatusBoardEntry is the public, identity-free row of the waiting-room board.
type StatusBoardEntry struct {
	Code        string        `db:"code" json:"code"`
	Status      SurgeryStatus `db:"status" json:"status"`
	StatusLabel string        `db:"-" json:"statusLabel"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`
}
