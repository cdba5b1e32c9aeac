package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/surgitrack-api/internal/models"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
	"github.com/noah-isme/surgitrack-api/pkg/export"
)

type statusBoardRepository interface {
	ListBoard(ctx context.Context) ([]models.StatusBoardEntry, error)
}

var boardHeaders = []string{"Code", "Status", "Updated"}

// BoardFile is a rendered status board ready to be served as a download.
type BoardFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// StatusBoardService serves the public waiting-room board. Entries carry codes and
// statuses only, never names.
type StatusBoardService struct {
	repo     statusBoardRepository
	renderer func(export.Format, export.Dataset) ([]byte, error)
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatusBoardService constructs the board service.
func NewStatusBoardService(repo statusBoardRepository, logger *zap.Logger) *StatusBoardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusBoardService{repo: repo, renderer: export.Render, logger: logger, now: time.Now}
}

// Entries returns the board rows, most recently updated first.
func (s *StatusBoardService) Entries(ctx context.Context) ([]models.StatusBoardEntry, error) {
	entries, err := s.repo.ListBoard(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDirectoryUnavailable.Code, appErrors.ErrDirectoryUnavailable.Status, appErrors.ErrDirectoryUnavailable.Message)
	}
	if entries == nil {
		entries = []models.StatusBoardEntry{}
	}
	return entries, nil
}

// Export renders the board as csv, pdf or xlsx.
func (s *StatusBoardService) Export(ctx context.Context, rawFormat string) (*BoardFile, error) {
	format, ok := export.ParseFormat(rawFormat)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported board format %q", rawFormat))
	}
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	payload, err := s.renderer(format, boardDataset(entries, now))
	if err != nil {
		s.logger.Error("status board render failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render status board")
	}
	return &BoardFile{
		Filename:    fmt.Sprintf("status-board-%s.%s", now.Format("20060102-1504"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func boardDataset(entries []models.StatusBoardEntry, at time.Time) export.Dataset {
	rows := make([]map[string]string, len(entries))
	for i, e := range entries {
		rows[i] = map[string]string{
			"Code":    e.Code,
			"Status":  e.StatusLabel,
			"Updated": e.UpdatedAt.UTC().Format("2006-01-02 15:04"),
		}
	}
	return export.Dataset{
		Title:   "Surgery Status Board " + at.Format("2006-01-02 15:04 MST"),
		Headers: boardHeaders,
		Rows:    rows,
	}
}
