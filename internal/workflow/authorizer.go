package workflow

import "github.com/noah-isme/surgitrack-api/internal/models"

// Denial reasons carried by a Decision.
const (
	ReasonInsufficientRole   = "insufficient-role"
	ReasonBackwardRestricted = "backward-transition-restricted"
	ReasonUnknownStatus      = "unknown-status"
)

// Decision is the outcome of a transition check. Reason is empty when Allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the allowed decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize decides whether role may move a patient from current to requested.
// It holds no state and never mutates anything.
func Authorize(role models.Role, current, requested models.SurgeryStatus) Decision {
	if !role.AtLeast(models.RoleSurgicalTeam) {
		return Deny(ReasonInsufficientRole)
	}
	if !Valid(current) || !Valid(requested) {
		return Deny(ReasonUnknownStatus)
	}
	switch {
	case role.AtLeast(models.RoleAdmin):
		return Allow
	default:
		forward, _ := IsForward(current, requested)
		if forward {
			return Allow
		}
		return Deny(ReasonBackwardRestricted)
	}
}

// AllowedTargets lists every stage role may move to from current, in workflow order.
func AllowedTargets(role models.Role, current models.SurgeryStatus) []models.SurgeryStatus {
	out := make([]models.SurgeryStatus, 0, len(stages))
	for _, s := range stages {
		if s == current {
			continue
		}
		if Authorize(role, current, s).Allowed {
			out = append(out, s)
		}
	}
	return out
}
