package repository

import (
	"context"
	"time"

	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/google/uuid"
)

type WalletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// SufficientBalance - чтение без блокировки, только рекомендательное:
	// перед списанием баланс перепроверяется под блокировкой строки.
	SufficientBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	Withdraw(ctx context.Context, walletID uuid.UUID, amount int64, requestID *uuid.UUID, description string) (*models.LedgerResult, error)
	Deposit(ctx context.Context, walletID uuid.UUID, amount int64, externalRef, description string) (*models.LedgerResult, error)
	Refund(ctx context.Context, walletID uuid.UUID, amount int64, orderID *uuid.UUID, description string) (*models.LedgerResult, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// RequestUpdate - необязательные поля, записываемые вместе с переходом.
type RequestUpdate struct {
	ApproverID      *uuid.UUID
	RejectionReason string
	OrderID         *uuid.UUID
}

type OrderRequestRepository interface {
	Create(ctx context.Context, req *models.OrderRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.OrderRequest, error)
	// Transition атомарно переводит заявку из from в to:
	// UPDATE ... WHERE id = $1 AND status = $2. Несовпадение текущего
	// статуса возвращает ErrIllegalTransition.
	Transition(ctx context.Context, id uuid.UUID, from, to models.RequestStatus, upd RequestUpdate) error
	// Pay выполняет списание с кошелька, материализацию заказа и перевод
	// заявки в PAID одной транзакцией.
	Pay(ctx context.Context, req *models.OrderRequest, product *models.Product, walletID uuid.UUID) (*models.Order, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.OrderRequest, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	// PayWithWallet атомарно: списание с кошелька + статус PAID + выдача доступов.
	PayWithWallet(ctx context.Context, orderID, walletID uuid.UUID) (*models.LedgerResult, error)
	// MarkPaidByGateway - тот же переход в PAID по вебхуку шлюза, без списания.
	MarkPaidByGateway(ctx context.Context, orderID uuid.UUID, externalRef string) error
	MarkFailed(ctx context.Context, orderID uuid.UUID) error
	// Refund атомарно: статус REFUNDED + отзыв доступов; возврат на кошелёк
	// выполняется только для заказов, оплаченных кошельком.
	Refund(ctx context.Context, orderID uuid.UUID, walletID *uuid.UUID, description string) (*models.LedgerResult, error)
	GetAccess(ctx context.Context, userID, productID uuid.UUID) (*models.ProductAccess, error)
}
