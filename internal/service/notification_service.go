package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/pkg/jobs"
	"github.com/noah-isme/surgitrack-api/pkg/notify"
)

const statusEventJob = "status_event"

type statusPublisher interface {
	PublishStatus(ctx context.Context, event notify.StatusEvent) error
}

// NotificationService fans status changes out to waiting-room displays through a worker
// queue so a slow broker never delays the request that changed the status.
type NotificationService struct {
	publisher statusPublisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// NotificationConfig sizes the worker pool.
type NotificationConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// NewNotificationService builds the service. A nil publisher disables notifications.
func NewNotificationService(publisher statusPublisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{publisher: publisher, metrics: metrics, logger: logger}
	if publisher == nil {
		return s
	}
	s.queue = jobs.NewQueue("status-notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDone: func(_ jobs.Job, err error) {
			metrics.ObserveNotification(err)
		},
	})
	return s
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// NotifyStatus queues an identity-free event for patient. It never blocks.
func (s *NotificationService) NotifyStatus(patient models.Patient) {
	if s == nil || s.queue == nil || patient.Code == "" {
		return
	}
	event := notify.StatusEvent{
		Code:      patient.Code,
		Status:    string(patient.Status),
		Label:     patient.Status.Label(),
		UpdatedAt: patient.UpdatedAt,
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: statusEventJob, Payload: event}); err != nil {
		s.metrics.ObserveNotification(err)
		s.logger.Warn("status notification dropped", zap.String("code", patient.Code), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(notify.StatusEvent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.publisher.PublishStatus(pubCtx, event); err != nil {
		s.logger.Warn("status notification failed", zap.String("code", event.Code), zap.Int("attempt", job.Attempt+1), zap.Error(err))
		return err
	}
	return nil
}
