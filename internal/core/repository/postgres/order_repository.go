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

const pgUniqueViolation = "23505"

type postgresOrderRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresOrderRepo(db *sqlx.DB, log logger.Logger) repository.OrderRepository {
	return &postgresOrderRepo{
		db:  db,
		log: log,
	}
}

func (r *postgresOrderRepo) Create(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if order.Total != models.ItemsTotal(items) {
		return repository.ErrTotalMismatch
	}

	return execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := insertOrderItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *postgresOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT id, order_number, user_id, total, status, payment_method, external_ref, paid_at, created_at, updated_at
	          FROM orders WHERE id = $1`
	err := r.db.GetContext(ctx, &order, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	return &order, nil
}

func (r *postgresOrderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	query := `SELECT id, order_number, user_id, total, status, payment_method, external_ref, paid_at, created_at, updated_at
	          FROM orders WHERE order_number = $1`
	err := r.db.GetContext(ctx, &order, query, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: number %s", repository.ErrOrderNotFound, number)
		}
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	return &order, nil
}

func (r *postgresOrderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	query := `SELECT id, order_id, product_id, unit_price, quantity, created_at
	          FROM order_items WHERE order_id = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &items, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	return items, nil
}

// PayWithWallet одной транзакцией: перевод заказа в PAID под защитой
// текущего статуса, списание с кошелька и выдача доступов по всем позициям.
// Недостаток средств откатывает всё: заказ остаётся в исходном статусе.
func (r *postgresOrderRepo) PayWithWallet(ctx context.Context, orderID, walletID uuid.UUID) (*models.LedgerResult, error) {
	var result *models.LedgerResult

	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.Status.CanTransition(models.OrderPaid) {
			return fmt.Errorf("%w: order %s is %s", repository.ErrIllegalTransition, order.OrderNumber, order.Status)
		}

		result, err = applyLedgerEntry(ctx, tx, walletID, models.OperationWithdraw, -order.Total, entryRefs{
			OrderID:     &order.ID,
			Description: "payment for order " + order.OrderNumber,
		})
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, payment_method = $2, paid_at = NOW(), updated_at = NOW() WHERE id = $3`,
			models.OrderPaid, models.PaymentWallet, order.ID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		return grantOrderAccesses(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *postgresOrderRepo) MarkPaidByGateway(ctx context.Context, orderID uuid.UUID, externalRef string) error {
	return execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.Status.CanTransition(models.OrderPaid) {
			return fmt.Errorf("%w: order %s is %s", repository.ErrIllegalTransition, order.OrderNumber, order.Status)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, payment_method = $2, external_ref = $3, paid_at = NOW(), updated_at = NOW() WHERE id = $4`,
			models.OrderPaid, models.PaymentGateway, externalRef, order.ID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		return grantOrderAccesses(ctx, tx, order)
	})
}

func (r *postgresOrderRepo) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status IN ($3, $4)`,
		models.OrderFailed, orderID, models.OrderPending, models.OrderProcessing)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: order %s", repository.ErrIllegalTransition, orderID)
	}

	return nil
}

// Refund одной транзакцией: перевод в REFUNDED, отзыв выданных доступов и,
// для оплаченных кошельком заказов, возврат суммы на кошелёк.
func (r *postgresOrderRepo) Refund(ctx context.Context, orderID uuid.UUID, walletID *uuid.UUID, description string) (*models.LedgerResult, error) {
	var result *models.LedgerResult

	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.Status.CanTransition(models.OrderRefunded) {
			return fmt.Errorf("%w: order %s is %s", repository.ErrIllegalTransition, order.OrderNumber, order.Status)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			models.OrderRefunded, order.ID)
		if err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM product_accesses WHERE order_id = $1`, order.ID)
		if err != nil {
			return fmt.Errorf("revoke accesses: %w", err)
		}

		if walletID != nil {
			result, err = applyLedgerEntry(ctx, tx, *walletID, models.OperationRefund, order.Total, entryRefs{
				OrderID:     &order.ID,
				Description: description,
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *postgresOrderRepo) GetAccess(ctx context.Context, userID, productID uuid.UUID) (*models.ProductAccess, error) {
	var access models.ProductAccess
	query := `SELECT id, user_id, product_id, order_id, expires_at, created_at, updated_at
	          FROM product_accesses WHERE user_id = $1 AND product_id = $2`
	err := r.db.GetContext(ctx, &access, query, userID, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s product %s", repository.ErrAccessNotFound, userID, productID)
		}
		return nil, fmt.Errorf("error getting product access: %w", err)
	}

	return &access, nil
}

func lockOrder(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT id, order_number, user_id, total, status, payment_method, external_ref, paid_at, created_at, updated_at
	          FROM orders WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &order, query, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return &order, nil
}

// insertOrder вставляет заказ; коллизия номера (уникальный индекс) считается
// транзиентной: номер генерируется заново один раз. Неудавшийся INSERT
// переводит всю транзакцию в aborted-состояние, поэтому повтор возможен
// только после отката к savepoint.
func insertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT insert_order"); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	err := execInsertOrder(ctx, tx, order)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT insert_order"); rbErr != nil {
			return fmt.Errorf("create order: %w", rbErr)
		}
		order.OrderNumber = models.NewOrderNumber(orderNumberPrefix(order.OrderNumber), time.Now())
		err = execInsertOrder(ctx, tx, order)
	}
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT insert_order"); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func execInsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders
		(id, order_number, user_id, total, status, payment_method, external_ref, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		order.ID, order.OrderNumber, order.UserID, order.Total, order.Status,
		order.PaymentMethod, order.ExternalRef, order.PaidAt)
	return err
}

func orderNumberPrefix(number string) string {
	for i := 0; i < len(number); i++ {
		if number[i] == '-' {
			return number[:i]
		}
	}
	return number
}

func insertOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, unit_price, quantity, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		item.ID, item.OrderID, item.ProductID, item.UnitPrice, item.Quantity)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

// grantAccess выдаёт доступ find-or-create: повторная покупка того же
// продукта обновляет срок существующего доступа, дубль не создаётся.
func grantAccess(ctx context.Context, tx *sqlx.Tx, userID, productID, orderID uuid.UUID, expiresAt *time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO product_accesses (id, user_id, product_id, order_id, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET order_id = EXCLUDED.order_id, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		uuid.New(), userID, productID, orderID, expiresAt)
	if err != nil {
		return fmt.Errorf("grant product access: %w", err)
	}

	return nil
}

// grantOrderAccesses выдаёт доступы по всем позициям заказа, срок берётся
// из настройки продукта.
func grantOrderAccesses(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	type itemWithAccess struct {
		ProductID  uuid.UUID `db:"product_id"`
		AccessDays int       `db:"access_days"`
	}

	var items []itemWithAccess
	err := tx.SelectContext(ctx, &items,
		`SELECT oi.product_id, p.access_days
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	now := time.Now().UTC()
	for _, it := range items {
		product := models.Product{AccessDays: it.AccessDays}
		if err := grantAccess(ctx, tx, order.UserID, it.ProductID, order.ID, product.AccessExpiry(now)); err != nil {
			return err
		}
	}

	return nil
}
