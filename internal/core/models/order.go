package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus - статус заказа.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderPaid       OrderStatus = "PAID"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderFailed     OrderStatus = "FAILED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderPaid, OrderFailed},
	OrderProcessing: {OrderPaid, OrderFailed},
	OrderPaid:       {OrderCompleted, OrderRefunded},
	OrderCompleted:  {OrderRefunded},
}

// CanTransition проверяет допустимость перехода from -> to.
func (from OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod - способ оплаты заказа.
type PaymentMethod string

const (
	PaymentWallet  PaymentMethod = "WALLET"
	PaymentGateway PaymentMethod = "GATEWAY"
)

// Order - заказ. Создаётся либо напрямую (корзина), либо сагой заявки.
type Order struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	OrderNumber   string        `json:"order_number" db:"order_number"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	Total         int64         `json:"total" db:"total"`
	Status        OrderStatus   `json:"status" db:"status"`
	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
	ExternalRef   string        `json:"external_ref,omitempty" db:"external_ref"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// OrderItem - позиция заказа с ценой, зафиксированной на момент покупки.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	UnitPrice int64     `json:"unit_price" db:"unit_price"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ItemsTotal считает сумму позиций.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}
