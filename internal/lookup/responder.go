package lookup

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

// Directory is the policy-free patient query surface.
// FindByCode returns (nil, nil) when no patient carries the code.
type Directory interface {
	FindByCode(ctx context.Context, code string) (*models.Patient, error)
	FindByNameFragment(ctx context.Context, fragment string) ([]models.Patient, error)
}

// Observer receives one notification per evaluated intent.
type Observer interface {
	ObserveLookup(intent IntentType, outcome Outcome)
}

// Responder evaluates intents against the directory and filters what each role sees.
type Responder struct {
	directory Directory
	observer  Observer
	logger    *zap.Logger
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithObserver attaches a lookup observer, typically metrics.
func WithObserver(o Observer) ResponderOption {
	return func(r *Responder) {
		r.observer = o
	}
}

// NewResponder constructs a Responder.
func NewResponder(directory Directory, logger *zap.Logger, opts ...ResponderOption) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Responder{directory: directory, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Respond evaluates intent for role. The only error is directory unavailability.
func (r *Responder) Respond(ctx context.Context, intent SearchIntent, role models.Role) (Result, error) {
	result, err := r.respond(ctx, intent, role)
	if err != nil {
		return Result{}, err
	}
	result.Intent = intent
	if r.observer != nil {
		r.observer.ObserveLookup(intent.Type, result.Outcome)
	}
	return result, nil
}

func (r *Responder) respond(ctx context.Context, intent SearchIntent, role models.Role) (Result, error) {
	switch intent.Type {
	case IntentCode:
		return r.byCode(ctx, intent.Query, role)
	case IntentName:
		if !intent.Allowed || !role.CanSearchByName() {
			return denied(), nil
		}
		return r.byName(ctx, intent.Query, role)
	default:
		if intent.Restricted {
			res := denied()
			if intent.EmbeddedCode != "" {
				res.Message = fmt.Sprintf(MessageCodeNotSeparated, intent.EmbeddedCode)
			}
			return res, nil
		}
		return Result{Outcome: OutcomeNoLookup}, nil
	}
}

func (r *Responder) byCode(ctx context.Context, code string, role models.Role) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	patient, err := r.directory.FindByCode(ctx, code)
	if err != nil {
		return Result{}, r.unavailable(err, "code")
	}
	if patient == nil {
		return Result{
			Outcome: OutcomeNotFound,
			Message: fmt.Sprintf("No patient was found with code %s. Please double-check the code.", code),
		}, nil
	}
	view := Render(*patient, role)
	return Result{Outcome: OutcomeSingleMatch, Patient: &view, Message: describe(view)}, nil
}

func (r *Responder) byName(ctx context.Context, fragment string, role models.Role) (Result, error) {
	patients, err := r.directory.FindByNameFragment(ctx, fragment)
	if err != nil {
		return Result{}, r.unavailable(err, "name")
	}
	switch len(patients) {
	case 0:
		return Result{
			Outcome: OutcomeNotFound,
			Message: fmt.Sprintf("No patient matching %q was found.", fragment),
		}, nil
	case 1:
		view := Render(patients[0], role)
		return Result{Outcome: OutcomeSingleMatch, Patient: &view, Message: describe(view)}, nil
	}
	choices := make([]PatientView, len(patients))
	labels := make([]string, len(patients))
	for i, p := range patients {
		choices[i] = renderChoice(p, role)
		labels[i] = choiceLabel(choices[i])
	}
	return Result{
		Outcome:  OutcomeMultipleMatches,
		Patients: choices,
		Message:  fmt.Sprintf("%d patients match %q. Which one do you mean: %s?", len(patients), fragment, strings.Join(labels, ", ")),
	}, nil
}

func (r *Responder) unavailable(err error, intent string) error {
	r.logger.Error("patient directory lookup failed", zap.String("intent", intent), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status, appErrors.ErrDirectoryUnavailable.Message)
}

func denied() Result {
	return Result{Outcome: OutcomeDenied, Reason: ReasonNameSearchRestricted, Message: MessageNameSearchRestricted}
}

func describe(v PatientView) string {
	subject := "Patient " + v.Code
	if name := strings.TrimSpace(v.FirstName + " " + v.LastName); name != "" {
		subject = fmt.Sprintf("%s (code %s)", name, v.Code)
	}
	return fmt.Sprintf("%s is currently %s.", subject, v.StatusLabel)
}

func choiceLabel(v PatientView) string {
	if name := strings.TrimSpace(v.FirstName + " " + v.LastName); name != "" {
		return fmt.Sprintf("%s (%s)", name, v.Code)
	}
	return v.Code
}
