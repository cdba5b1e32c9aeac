package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/middleware"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/workflow"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
	"github.com/noah-isme/surgitrack-api/pkg/response"
)

type lookupService interface {
	LookupCode(ctx context.Context, actor models.Actor, code string) (*dto.CodeLookupResponse, error)
	Chat(ctx context.Context, actor models.Actor, req dto.ChatRequest) (*dto.ChatResponse, error)
	AuthorizeTransition(actor models.Actor, req dto.AuthorizeTransitionRequest) dto.TransitionDecisionResponse
}

// LookupHandler serves the visitor-facing lookup surface. Every endpoint is open to
// guests; what they see depends on the caller's role.
type LookupHandler struct {
	lookup lookupService
}

// NewLookupHandler constructs the handler.
func NewLookupHandler(lookup lookupService) *LookupHandler {
	return &LookupHandler{lookup: lookup}
}

// Statuses godoc
// @Summary Workflow stages
// @Tags Lookup
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statuses [get]
func (h *LookupHandler) Statuses(c *gin.Context) {
	response.JSON(c, http.StatusOK, workflow.Options(), nil)
}

// Lookup godoc
// @Summary Look up a patient by code
// @Tags Lookup
// @Produce json
// @Param code path string true "6-character patient code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /lookup/{code} [get]
func (h *LookupHandler) Lookup(c *gin.Context) {
	res, err := h.lookup.LookupCode(c.Request.Context(), currentActor(c), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil, middleware.ResponseMeta(c))
}

// Chat godoc
// @Summary Ask about a patient
// @Description Free-text question; the envelope fields are authoritative, reply is prose
// @Tags Lookup
// @Accept json
// @Produce json
// @Param payload body dto.ChatRequest true "Message"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /chat [post]
func (h *LookupHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "message is required"))
		return
	}
	res, err := h.lookup.Chat(c.Request.Context(), currentActor(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil, middleware.ResponseMeta(c))
}

// AuthorizeTransition godoc
// @Summary Dry-run a status transition
// @Tags Lookup
// @Accept json
// @Produce json
// @Param payload body dto.AuthorizeTransitionRequest true "Transition"
// @Success 200 {object} response.Envelope
// @Router /transitions/authorize [post]
func (h *LookupHandler) AuthorizeTransition(c *gin.Context) {
	var req dto.AuthorizeTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	response.JSON(c, http.StatusOK, h.lookup.AuthorizeTransition(currentActor(c), req), nil)
}
