package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
)

// CheckoutItem - позиция корзины.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CheckoutUsecase - прямой путь покупки без заявки: корзина превращается
// в заказ, оплата либо сразу с кошелька, либо позже через вебхук шлюза.
// Оба пути сходятся на одном переходе заказа в PAID.
type CheckoutUsecase interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, items []CheckoutItem) (*models.Order, error)
	PayWithWallet(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkPaidByGateway(ctx context.Context, orderNumber, externalRef string) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type checkoutUsecase struct {
	orders      repository.OrderRepository
	products    repository.ProductRepository
	wallets     repository.WalletRepository
	notifier    Notifier
	log         logger.Logger
	orderPrefix string
}

func NewCheckoutUsecase(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	wallets repository.WalletRepository,
	notifier Notifier,
	log logger.Logger,
	orderPrefix string,
) CheckoutUsecase {
	return &checkoutUsecase{
		orders:      orders,
		products:    products,
		wallets:     wallets,
		notifier:    notifier,
		log:         log,
		orderPrefix: orderPrefix,
	}
}

// CreateOrder создаёт заказ в статусе PENDING. Цены позиций фиксируются на
// момент оформления; итог заказа обязан совпадать с суммой позиций.
func (uc *checkoutUsecase) CreateOrder(ctx context.Context, userID uuid.UUID, items []CheckoutItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	orderID := uuid.New()
	orderItems := make([]models.OrderItem, 0, len(items))
	var total int64

	for _, it := range items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}

		product, err := uc.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		if !product.Active {
			return nil, ErrProductInactive
		}

		orderItems = append(orderItems, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: product.ID,
			UnitPrice: product.Price,
			Quantity:  it.Quantity,
		})
		total += product.Price * int64(it.Quantity)
	}

	order := &models.Order{
		ID:          orderID,
		OrderNumber: models.NewOrderNumber(uc.orderPrefix, time.Now()),
		UserID:      userID,
		Total:       total,
		Status:      models.OrderPending,
	}

	if err := uc.orders.Create(ctx, order, orderItems); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	uc.log.Info("order created",
		logger.StringField("order_number", order.OrderNumber),
		logger.Int64Field("total", total),
		logger.IntField("items", len(orderItems)))

	return order, nil
}

// PayWithWallet оплачивает заказ с кошелька владельца. Недостаток средств
// переводит заказ в FAILED; баланс при этом не меняется.
func (uc *checkoutUsecase) PayWithWallet(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("pay order: %w", err)
	}

	wallet, err := uc.wallets.GetByUserID(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("pay order: %w", err)
	}

	result, err := uc.orders.PayWithWallet(ctx, orderID, wallet.ID)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			if failErr := uc.orders.MarkFailed(ctx, orderID); failErr != nil {
				uc.log.Error("failed to mark order failed",
					logger.StringField("order_number", order.OrderNumber),
					logger.ErrorField("error", failErr))
			}
			notify(ctx, uc.log, uc.notifier, order.UserID, EventInsufficientFunds, map[string]interface{}{
				"order_number": order.OrderNumber,
				"total":        order.Total,
			})
		}
		return nil, fmt.Errorf("pay order: %w", err)
	}

	uc.log.Info("order paid with wallet",
		logger.StringField("order_number", order.OrderNumber),
		logger.Int64Field("new_balance", result.NewBalance))

	notify(ctx, uc.log, uc.notifier, order.UserID, EventOrderPaid, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total":        order.Total,
	})

	return uc.orders.GetByID(ctx, orderID)
}

// MarkPaidByGateway - обработка вебхука платёжного шлюза.
func (uc *checkoutUsecase) MarkPaidByGateway(ctx context.Context, orderNumber, externalRef string) (*models.Order, error) {
	order, err := uc.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("gateway payment: %w", err)
	}

	if err := uc.orders.MarkPaidByGateway(ctx, order.ID, externalRef); err != nil {
		return nil, fmt.Errorf("gateway payment: %w", err)
	}

	uc.log.Info("order paid by gateway",
		logger.StringField("order_number", order.OrderNumber),
		logger.StringField("external_ref", externalRef))

	notify(ctx, uc.log, uc.notifier, order.UserID, EventOrderPaid, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total":        order.Total,
	})

	return uc.orders.GetByID(ctx, order.ID)
}

// Refund возвращает заказ: доступы отзываются всегда, деньги возвращаются
// на кошелёк только если заказ был оплачен кошельком. Возвраты по шлюзу
// проводятся на стороне шлюза.
func (uc *checkoutUsecase) Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := uc.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}

	var walletID *uuid.UUID
	if order.PaymentMethod == models.PaymentWallet {
		wallet, err := uc.wallets.GetByUserID(ctx, order.UserID)
		if err != nil {
			return nil, fmt.Errorf("refund order: %w", err)
		}
		walletID = &wallet.ID
	}

	description := "refund for order " + order.OrderNumber
	if reason != "" {
		description += ": " + reason
	}

	if _, err := uc.orders.Refund(ctx, orderID, walletID, description); err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}

	uc.log.Info("order refunded",
		logger.StringField("order_number", order.OrderNumber),
		logger.StringField("reason", reason))

	notify(ctx, uc.log, uc.notifier, order.UserID, EventOrderRefunded, map[string]interface{}{
		"order_number": order.OrderNumber,
		"reason":       reason,
	})

	return uc.orders.GetByID(ctx, orderID)
}

func (uc *checkoutUsecase) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return uc.orders.GetByID(ctx, orderID)
}
