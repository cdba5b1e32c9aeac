package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/service"
	"github.com/noah-isme/surgitrack-api/pkg/response"
)

type statusBoardService interface {
	Entries(ctx context.Context) ([]models.StatusBoardEntry, error)
	Export(ctx context.Context, format string) (*service.BoardFile, error)
}

// StatusBoardHandler serves the public waiting-room board.
type StatusBoardHandler struct {
	board statusBoardService
}

// NewStatusBoardHandler constructs the handler.
func NewStatusBoardHandler(board statusBoardService) *StatusBoardHandler {
	return &StatusBoardHandler{board: board}
}

// Board godoc
// @Summary Waiting-room status board
// @Description Codes and statuses only. format=csv|pdf|xlsx downloads a file instead of JSON
// @Tags Lookup
// @Produce json
// @Param format query string false "json, csv, pdf or xlsx"
// @Success 200 {object} response.Envelope
// @Router /status-board [get]
func (h *StatusBoardHandler) Board(c *gin.Context) {
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
	if format == "json" {
		entries, err := h.board.Entries(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, entries, nil)
		return
	}

	file, err := h.board.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
