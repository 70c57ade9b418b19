package jobs

import (
	"context"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/avralt/eduwallet/internal/core/usecase"
	"github.com/robfig/cron/v3"
)

// Scheduler управляет фоновыми задачами: отмена зависших заявок.
type Scheduler struct {
	cron       *cron.Cron
	requests   repository.OrderRequestRepository
	notifier   usecase.Notifier
	log        logger.Logger
	pendingTTL time.Duration
}

func NewScheduler(requests repository.OrderRequestRepository, notifier usecase.Notifier, log logger.Logger, pendingTTL time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		requests:   requests,
		notifier:   notifier,
		log:        log,
		pendingTTL: pendingTTL,
	}
}

// Start запускает задачи. Зависшие в PENDING заявки отменяются каждый час.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("0 * * * *", func() {
		if err := s.CancelStaleRequests(ctx); err != nil {
			s.log.Error("stale request sweep failed", logger.ErrorField("error", err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("job scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("job scheduler stopped")
}

// CancelStaleRequests отменяет заявки, ожидающие одобрения дольше TTL.
// Переход защищён текущим статусом: заявка, одобренная между выборкой и
// отменой, затронута не будет.
func (s *Scheduler) CancelStaleRequests(ctx context.Context) error {
	cutoff := time.Now().Add(-s.pendingTTL)

	stale, err := s.requests.ListStalePending(ctx, cutoff, 100)
	if err != nil {
		return err
	}

	for _, req := range stale {
		err := s.requests.Transition(ctx, req.ID, models.RequestPending, models.RequestCancelled, repository.RequestUpdate{})
		if err != nil {
			s.log.Warn("failed to cancel stale request",
				logger.StringField("request_number", req.RequestNumber),
				logger.ErrorField("error", err))
			continue
		}

		s.log.Info("stale request cancelled",
			logger.StringField("request_number", req.RequestNumber))

		if s.notifier != nil {
			if nerr := s.notifier.Notify(ctx, req.UserID, usecase.EventRequestCancelled, map[string]interface{}{
				"request_number": req.RequestNumber,
			}); nerr != nil {
				s.log.Warn("notification delivery failed",
					logger.StringField("request_number", req.RequestNumber),
					logger.ErrorField("error", nerr))
			}
		}
	}

	return nil
}
