package lookup

import "github.com/noah-isme/surgitrack-api/internal/models"

// Outcome tags a lookup Result.
type Outcome string

const (
	OutcomeNoLookup        Outcome = "no_lookup"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeSingleMatch     Outcome = "single_match"
	OutcomeMultipleMatches Outcome = "multiple_matches"
	OutcomeDenied          Outcome = "denied"
)

// ResultType is the coarse shape of a result exposed to clients.
type ResultType string

const (
	ResultSingle   ResultType = "single"
	ResultMultiple ResultType = "multiple"
	ResultNone     ResultType = "none"
)

// ReasonNameSearchRestricted is the denial reason for name searches by non-admins.
const ReasonNameSearchRestricted = "name-search-restricted-to-admin"

// MessageNameSearchRestricted tells a refused caller what to do instead.
const MessageNameSearchRestricted = "Searching by name is restricted to administrators. Please provide the 6-character patient code instead."

// MessageCodeNotSeparated is the refusal used when the refused text already carried a
// code; the %s verb is the code.
const MessageCodeNotSeparated = "Searching by name is restricted to administrators. It looks like you included the code %s; please send it on its own, for example \"Code: %[1]s\"."

// PatientView is the role-filtered rendering of a patient. Identity fields are only
// populated for callers allowed to see them.
type PatientView struct {
	Code        string               `json:"code"`
	Status      models.SurgeryStatus `json:"status,omitempty"`
	StatusLabel string               `json:"statusLabel,omitempty"`
	SurgeryType string               `json:"surgeryType,omitempty"`
	SurgeryDate string               `json:"surgeryDate,omitempty"`
	FirstName   string               `json:"firstName,omitempty"`
	LastName    string               `json:"lastName,omitempty"`
	Notes       string               `json:"notes,omitempty"`
}

// Result is the outcome of evaluating a SearchIntent.
type Result struct {
	Outcome  Outcome
	Intent   SearchIntent
	Reason   string
	Message  string
	Patient  *PatientView
	Patients []PatientView
}

// Found reports whether at least one patient matched.
func (r Result) Found() bool {
	return r.Outcome == OutcomeSingleMatch || r.Outcome == OutcomeMultipleMatches
}

// ResultType maps the outcome to single, multiple or none.
func (r Result) ResultType() ResultType {
	switch r.Outcome {
	case OutcomeSingleMatch:
		return ResultSingle
	case OutcomeMultipleMatches:
		return ResultMultiple
	default:
		return ResultNone
	}
}

// Allowed is false only when the lookup was refused.
func (r Result) Allowed() bool {
	return r.Outcome != OutcomeDenied
}

// Envelope is the machine-checkable summary returned alongside any generated prose.
type Envelope struct {
	Found      bool          `json:"found"`
	ResultType ResultType    `json:"resultType"`
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	Message    string        `json:"message,omitempty"`
	Patient    *PatientView  `json:"patient,omitempty"`
	Patients   []PatientView `json:"patients,omitempty"`
}

// Envelope builds the client envelope for r.
func (r Result) Envelope() Envelope {
	return Envelope{
		Found:      r.Found(),
		ResultType: r.ResultType(),
		Allowed:    r.Allowed(),
		Reason:     r.Reason,
		Message:    r.Message,
		Patient:    r.Patient,
		Patients:   r.Patients,
	}
}

// Render builds the view of p appropriate for role.
func Render(p models.Patient, role models.Role) PatientView {
	view := PatientView{
		Code:        p.Code,
		Status:      p.Status,
		StatusLabel: p.Status.Label(),
		SurgeryType: p.SurgeryType,
		SurgeryDate: p.SurgeryDate,
	}
	if role.CanSeeIdentity() {
		view.FirstName = p.FirstName
		view.LastName = p.LastName
		view.Notes = p.Notes
	}
	return view
}

// renderChoice builds a disambiguation entry: names for admins, the code alone otherwise.
func renderChoice(p models.Patient, role models.Role) PatientView {
	if role.CanSeeIdentity() {
		return PatientView{Code: p.Code, FirstName: p.FirstName, LastName: p.LastName, Status: p.Status, StatusLabel: p.Status.Label()}
	}
	return PatientView{Code: p.Code}
}
