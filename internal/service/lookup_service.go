package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/workflow"
	"github.com/noah-isme/surgitrack-api/pkg/assistant"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

const greetingReply = "Hello! I can tell you where a patient is in the surgery process. Please share the 6-character patient code you were given at check-in."

const assistantInstruction = `You are the front-desk assistant of a surgery center talking to a visitor.
Answer briefly and warmly in plain language.
Only state patient facts that appear in the lookup result. Never guess names, codes or statuses.
If the lookup result is empty, ask for the 6-character patient code.`

type replyGenerator interface {
	Generate(ctx context.Context, prompt assistant.Prompt) (string, error)
}

// LookupService answers code lookups, chat messages and transition dry-runs.
type LookupService struct {
	classifier *lookup.Classifier
	responder  *lookup.Responder
	generator  replyGenerator
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// LookupServiceOption customises a LookupService.
type LookupServiceOption func(*LookupService)

// WithReplyGenerator lets an assistant phrase chat replies. Without one, the
// responder's message is returned verbatim.
func WithReplyGenerator(g replyGenerator) LookupServiceOption {
	return func(s *LookupService) {
		s.generator = g
	}
}

// NewLookupService constructs the service.
func NewLookupService(classifier *lookup.Classifier, responder *lookup.Responder, validate *validator.Validate, logger *zap.Logger, opts ...LookupServiceOption) *LookupService {
	if classifier == nil {
		classifier = lookup.NewClassifier()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LookupService{
		classifier: classifier,
		responder:  responder,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// LookupCode resolves a patient code for actor and lists the statuses actor could
// move the patient to.
func (s *LookupService) LookupCode(ctx context.Context, actor models.Actor, code string) (*dto.CodeLookupResponse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !lookup.IsCode(code) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient codes are 6 letters or digits")
	}
	result, err := s.responder.Respond(ctx, lookup.ByCode(code), actor.Role)
	if err != nil {
		return nil, err
	}
	resp := &dto.CodeLookupResponse{
		Envelope:       result.Envelope(),
		AllowedTargets: []models.StatusOption{},
		Neighbors:      []models.StatusOption{},
	}
	if result.Patient != nil {
		current := result.Patient.Status
		resp.AllowedTargets = statusOptions(workflow.AllowedTargets(actor.Role, current))
		if neighbors, err := workflow.Neighbors(current); err == nil {
			resp.Neighbors = statusOptions(neighbors)
		}
	}
	return resp, nil
}

// AuthorizeTransition reports whether actor may move a patient between two statuses
// without touching any record.
func (s *LookupService) AuthorizeTransition(actor models.Actor, req dto.AuthorizeTransitionRequest) dto.TransitionDecisionResponse {
	decision := workflow.Authorize(actor.Role, req.CurrentStatus, req.RequestedStatus)
	resp := dto.TransitionDecisionResponse{Decision: decision}
	if err := DecisionError(decision); err != nil {
		resp.Message = appErrors.FromError(err).Message
	}
	return resp
}

// Chat classifies a visitor message, runs the lookup the caller's role permits and
// phrases a reply. The envelope is authoritative; the reply is presentation only.
func (s *LookupService) Chat(ctx context.Context, actor models.Actor, req dto.ChatRequest) (*dto.ChatResponse, error) {
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "message is required")
	}

	intent := s.classifier.Classify(req.Message, actor.Role)
	result, err := s.responder.Respond(ctx, intent, actor.Role)
	if err != nil {
		return nil, err
	}

	return &dto.ChatResponse{
		Reply:     s.reply(ctx, req.Message, result),
		Envelope:  result.Envelope(),
		Timestamp: s.now().UTC(),
		MessageID: s.newID(),
	}, nil
}

func (s *LookupService) reply(ctx context.Context, message string, result lookup.Result) string {
	fallback := result.Message
	if fallback == "" {
		fallback = greetingReply
	}
	// refusals are returned verbatim so the guidance cannot be paraphrased away
	if s.generator == nil || !result.Allowed() {
		return fallback
	}

	prompt := assistant.Prompt{Instruction: assistantInstruction, Message: message}
	if result.Outcome != lookup.OutcomeNoLookup {
		facts, err := json.Marshal(result.Envelope())
		if err == nil {
			prompt.Facts = string(facts)
		}
	}
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("assistant reply failed, using template", zap.String("outcome", string(result.Outcome)), zap.Error(err))
		return fallback
	}
	return text
}

func statusOptions(statuses []models.SurgeryStatus) []models.StatusOption {
	out := make([]models.StatusOption, len(statuses))
	for i, st := range statuses {
		out[i] = models.StatusOption{Value: st, Label: st.Label()}
	}
	return out
}

