package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
)

// PurchaseSaga координирует жизненный цикл заявки на покупку:
// создание -> одобрение -> списание -> материализация заказа -> завершение.
// Каждый шаг - явный вызов с собственной границей транзакции; автооплата
// запускается только после того, как одобрение записано в базу.
type PurchaseSaga interface {
	Create(ctx context.Context, userID, productID uuid.UUID, formData []byte) (*models.OrderRequest, error)
	Approve(ctx context.Context, requestID, approverID uuid.UUID) (*models.OrderRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, reason string) error
	Pay(ctx context.Context, requestID uuid.UUID) (*models.OrderRequest, error)
	Cancel(ctx context.Context, requestID uuid.UUID) error
	Get(ctx context.Context, requestID uuid.UUID) (*models.OrderRequest, error)
}

type purchaseSaga struct {
	requests repository.OrderRequestRepository
	products repository.ProductRepository
	wallets  repository.WalletRepository
	notifier Notifier
	log      logger.Logger
}

func NewPurchaseSaga(
	requests repository.OrderRequestRepository,
	products repository.ProductRepository,
	wallets repository.WalletRepository,
	notifier Notifier,
	log logger.Logger,
) PurchaseSaga {
	return &purchaseSaga{
		requests: requests,
		products: products,
		wallets:  wallets,
		notifier: notifier,
		log:      log,
	}
}

// Create создаёт заявку в статусе PENDING. Итог фиксируется из текущей цены
// продукта: последующие изменения цены открытую заявку не затрагивают.
func (s *purchaseSaga) Create(ctx context.Context, userID, productID uuid.UUID, formData []byte) (*models.OrderRequest, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if !product.Active {
		return nil, ErrProductInactive
	}

	req := &models.OrderRequest{
		ID:            uuid.New(),
		RequestNumber: models.NewRequestNumber(time.Now()),
		UserID:        userID,
		ProductID:     productID,
		Total:         product.Price,
		Status:        models.RequestPending,
		FormData:      formData,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.log.Info("purchase request created",
		logger.StringField("request_number", req.RequestNumber),
		logger.StringField("product_id", productID.String()),
		logger.Int64Field("total", req.Total))

	notify(ctx, s.log, s.notifier, userID, EventRequestCreated, map[string]interface{}{
		"request_number": req.RequestNumber,
		"total":          req.Total,
	})

	return req, nil
}

// Approve переводит заявку PENDING -> APPROVED и фиксирует одобрившего.
// Если продукт настроен на автоодобрение, сага сразу пытается оплатить -
// уже после того, как одобрение закоммичено: сбой списания не должен
// откатить само одобрение. Недостаток средств оставляет заявку APPROVED.
func (s *purchaseSaga) Approve(ctx context.Context, requestID, approverID uuid.UUID) (*models.OrderRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	err = s.requests.Transition(ctx, requestID, req.Status, models.RequestApproved, repository.RequestUpdate{
		ApproverID: &approverID,
	})
	if err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	s.log.Info("purchase request approved",
		logger.StringField("request_number", req.RequestNumber),
		logger.StringField("approver_id", approverID.String()))

	notify(ctx, s.log, s.notifier, req.UserID, EventRequestApproved, map[string]interface{}{
		"request_number": req.RequestNumber,
	})

	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	if product.AutoApprove {
		if payErr := s.attemptAutoPay(ctx, req); payErr != nil {
			return nil, payErr
		}
	}

	return s.requests.GetByID(ctx, requestID)
}

// attemptAutoPay - цепочка автооплаты после одобрения. Баланс сперва
// проверяется без блокировки, а решающая проверка происходит внутри Pay
// под FOR UPDATE, поэтому два параллельных одобрения не приведут к
// двойному списанию.
func (s *purchaseSaga) attemptAutoPay(ctx context.Context, req *models.OrderRequest) error {
	wallet, err := s.wallets.GetByUserID(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("auto pay: %w", err)
	}

	enough, err := s.wallets.SufficientBalance(ctx, wallet.ID, req.Total)
	if err != nil {
		return fmt.Errorf("auto pay: %w", err)
	}
	if !enough {
		s.notifyInsufficientFunds(ctx, req)
		return nil
	}

	_, err = s.Pay(ctx, req.ID)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			s.notifyInsufficientFunds(ctx, req)
			return nil
		}
		if errors.Is(err, ErrIllegalTransition) {
			// Конкурирующая оплата уже прошла.
			return nil
		}
		return err
	}

	return nil
}

// Pay переводит заявку APPROVED -> PAID: списание с кошелька, заказ,
// позиция и доступ создаются одной транзакцией хранилища. После успеха
// заявка сразу закрывается переходом PAID -> COMPLETED.
func (s *purchaseSaga) Pay(ctx context.Context, requestID uuid.UUID) (*models.OrderRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("pay request: %w", err)
	}
	if req.Status != models.RequestApproved {
		return nil, fmt.Errorf("%w: request is %s", ErrIllegalTransition, req.Status)
	}

	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("pay request: %w", err)
	}

	wallet, err := s.wallets.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("pay request: %w", err)
	}

	order, err := s.requests.Pay(ctx, req, product, wallet.ID)
	if err != nil {
		s.log.Warn("request payment failed",
			logger.StringField("request_number", req.RequestNumber),
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("pay request: %w", err)
	}

	s.log.Info("purchase request paid",
		logger.StringField("request_number", req.RequestNumber),
		logger.StringField("order_number", order.OrderNumber),
		logger.Int64Field("total", req.Total))

	// Завершение - чисто учётный маркер; повторное завершение - no-op.
	err = s.requests.Transition(ctx, requestID, models.RequestPaid, models.RequestCompleted, repository.RequestUpdate{})
	if err != nil && !errors.Is(err, ErrIllegalTransition) {
		return nil, fmt.Errorf("complete request: %w", err)
	}

	notify(ctx, s.log, s.notifier, req.UserID, EventRequestPaid, map[string]interface{}{
		"request_number": req.RequestNumber,
		"order_number":   order.OrderNumber,
		"total":          req.Total,
	})

	return s.requests.GetByID(ctx, requestID)
}

// Reject переводит заявку PENDING -> REJECTED; причина обязательна.
func (s *purchaseSaga) Reject(ctx context.Context, requestID uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}

	err = s.requests.Transition(ctx, requestID, req.Status, models.RequestRejected, repository.RequestUpdate{
		RejectionReason: reason,
	})
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}

	notify(ctx, s.log, s.notifier, req.UserID, EventRequestRejected, map[string]interface{}{
		"request_number": req.RequestNumber,
		"reason":         reason,
	})

	return nil
}

// Cancel закрывает заявку без влияния на баланс.
func (s *purchaseSaga) Cancel(ctx context.Context, requestID uuid.UUID) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}

	err = s.requests.Transition(ctx, requestID, req.Status, models.RequestCancelled, repository.RequestUpdate{})
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}

	notify(ctx, s.log, s.notifier, req.UserID, EventRequestCancelled, map[string]interface{}{
		"request_number": req.RequestNumber,
	})

	return nil
}

func (s *purchaseSaga) Get(ctx context.Context, requestID uuid.UUID) (*models.OrderRequest, error) {
	return s.requests.GetByID(ctx, requestID)
}

func (s *purchaseSaga) notifyInsufficientFunds(ctx context.Context, req *models.OrderRequest) {
	s.log.Warn("insufficient funds for auto payment",
		logger.StringField("request_number", req.RequestNumber),
		logger.Int64Field("total", req.Total))

	notify(ctx, s.log, s.notifier, req.UserID, EventInsufficientFunds, map[string]interface{}{
		"request_number": req.RequestNumber,
		"total":          req.Total,
	})
}
