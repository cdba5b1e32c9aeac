package models

// SurgeryStatus is a stage of the surgery workflow. The order of Stages is significant.
type SurgeryStatus string

const (
	StatusCheckedIn    SurgeryStatus = "checked-in"
	StatusPreProcedure SurgeryStatus = "pre-procedure"
	StatusInProgress   SurgeryStatus = "in-progress"
	StatusClosing      SurgeryStatus = "closing"
	StatusRecovery     SurgeryStatus = "recovery"
	StatusComplete     SurgeryStatus = "complete"
	StatusDismissal    SurgeryStatus = "dismissal"
)

var statusLabels = map[SurgeryStatus]string{
	StatusCheckedIn:    "Checked In",
	StatusPreProcedure: "Pre-Procedure",
	StatusInProgress:   "In Progress",
	StatusClosing:      "Closing",
	StatusRecovery:     "Recovery",
	StatusComplete:     "Complete",
	StatusDismissal:    "Dismissal",
}

// Label returns the human readable name shown on boards and pickers.
func (s SurgeryStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// StatusOption pairs a status with its label for picker payloads.
type StatusOption struct {
	Value SurgeryStatus `json:"value"`
	Label string        `json:"label"`
}
