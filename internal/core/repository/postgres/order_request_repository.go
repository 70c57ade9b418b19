package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresOrderRequestRepo struct {
	db          *sqlx.DB
	log         logger.Logger
	orderPrefix string
}

func NewPostgresOrderRequestRepo(db *sqlx.DB, log logger.Logger, orderPrefix string) repository.OrderRequestRepository {
	return &postgresOrderRequestRepo{
		db:          db,
		log:         log,
		orderPrefix: orderPrefix,
	}
}

func (r *postgresOrderRequestRepo) Create(ctx context.Context, req *models.OrderRequest) error {
	const query = `INSERT INTO order_requests
		(id, request_number, user_id, product_id, total, status, form_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	for attempt := 0; attempt < 2; attempt++ {
		_, err := r.db.ExecContext(ctx, query,
			req.ID, req.RequestNumber, req.UserID, req.ProductID, req.Total, req.Status, req.FormData)
		if err == nil {
			return nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation && attempt == 0 {
			req.RequestNumber = models.NewRequestNumber(time.Now())
			continue
		}
		return fmt.Errorf("create order request: %w", err)
	}

	return fmt.Errorf("create order request: duplicate request number %s", req.RequestNumber)
}

func (r *postgresOrderRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.OrderRequest, error) {
	var req models.OrderRequest
	query := `SELECT id, request_number, user_id, product_id, total, status, approver_id, order_id,
	                 rejection_reason, form_data, approved_at, rejected_at, paid_at, created_at, updated_at
	          FROM order_requests WHERE id = $1`
	err := r.db.GetContext(ctx, &req, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrRequestNotFound, id)
		}
		return nil, fmt.Errorf("error getting order request: %w", err)
	}

	return &req, nil
}

// Transition атомарно переводит заявку из from в to. Условие по текущему
// статусу стоит прямо в UPDATE: конкурирующий переход увидит ноль
// затронутых строк и получит ErrIllegalTransition, а не перезапишет статус.
func (r *postgresOrderRequestRepo) Transition(ctx context.Context, id uuid.UUID, from, to models.RequestStatus, upd repository.RequestUpdate) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrIllegalTransition, from, to)
	}

	var res sql.Result
	var err error

	switch to {
	case models.RequestApproved:
		res, err = r.db.ExecContext(ctx,
			`UPDATE order_requests SET status = $1, approver_id = $2, approved_at = NOW(), updated_at = NOW()
			 WHERE id = $3 AND status = $4`,
			to, upd.ApproverID, id, from)
	case models.RequestRejected:
		res, err = r.db.ExecContext(ctx,
			`UPDATE order_requests SET status = $1, rejection_reason = $2, rejected_at = NOW(), updated_at = NOW()
			 WHERE id = $3 AND status = $4`,
			to, upd.RejectionReason, id, from)
	case models.RequestPaid:
		res, err = r.db.ExecContext(ctx,
			`UPDATE order_requests SET status = $1, order_id = $2, paid_at = NOW(), updated_at = NOW()
			 WHERE id = $3 AND status = $4`,
			to, upd.OrderID, id, from)
	default:
		res, err = r.db.ExecContext(ctx,
			`UPDATE order_requests SET status = $1, updated_at = NOW()
			 WHERE id = $2 AND status = $3`,
			to, id, from)
	}
	if err != nil {
		return fmt.Errorf("transition order request: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition order request: %w", err)
	}
	if rows == 0 {
		return r.transitionConflict(ctx, id, from, to)
	}

	return nil
}

func (r *postgresOrderRequestRepo) transitionConflict(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) error {
	var current models.RequestStatus
	err := r.db.GetContext(ctx, &current, `SELECT status FROM order_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %s", repository.ErrRequestNotFound, id)
		}
		return fmt.Errorf("transition order request: %w", err)
	}

	return fmt.Errorf("%w: request is %s, wanted %s -> %s", repository.ErrIllegalTransition, current, from, to)
}

// Pay - единая транзакция оплаты заявки: защита статуса, списание с
// кошелька под FOR UPDATE, материализация заказа с позицией и доступом,
// привязка заказа к заявке. Любой сбой откатывает всё: частичная оплата
// не наблюдаема.
func (r *postgresOrderRequestRepo) Pay(ctx context.Context, req *models.OrderRequest, product *models.Product, walletID uuid.UUID) (*models.Order, error) {
	var order *models.Order

	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE order_requests SET status = $1, paid_at = NOW(), updated_at = NOW()
			 WHERE id = $2 AND status = $3`,
			models.RequestPaid, req.ID, models.RequestApproved)
		if err != nil {
			return fmt.Errorf("mark request paid: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark request paid: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: request %s is not approved", repository.ErrIllegalTransition, req.RequestNumber)
		}

		_, err = applyLedgerEntry(ctx, tx, walletID, models.OperationWithdraw, -req.Total, entryRefs{
			RequestID:   &req.ID,
			Description: "payment for request " + req.RequestNumber,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order = &models.Order{
			ID:            uuid.New(),
			OrderNumber:   models.NewOrderNumber(r.orderPrefix, now),
			UserID:        req.UserID,
			Total:         req.Total,
			Status:        models.OrderPaid,
			PaymentMethod: models.PaymentWallet,
			PaidAt:        &now,
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		item := models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: product.ID,
			UnitPrice: req.Total,
			Quantity:  1,
		}
		if err := insertOrderItem(ctx, tx, &item); err != nil {
			return err
		}

		if err := grantAccess(ctx, tx, req.UserID, product.ID, order.ID, product.AccessExpiry(now)); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE order_requests SET order_id = $1, updated_at = NOW() WHERE id = $2`,
			order.ID, req.ID)
		if err != nil {
			return fmt.Errorf("link order to request: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *postgresOrderRequestRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.OrderRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	var reqs []models.OrderRequest
	query := `SELECT id, request_number, user_id, product_id, total, status, approver_id, order_id,
	                 rejection_reason, form_data, approved_at, rejected_at, paid_at, created_at, updated_at
	          FROM order_requests
	          WHERE status = $1 AND created_at < $2
	          ORDER BY created_at ASC
	          LIMIT $3`
	err := r.db.SelectContext(ctx, &reqs, query, models.RequestPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}

	return reqs, nil
}
