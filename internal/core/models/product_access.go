package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductAccess - право доступа пользователя к продукту.
// Уникален по паре (user_id, product_id): повторная покупка не создаёт дубль.
type ProductAccess struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	ProductID uuid.UUID  `json:"product_id" db:"product_id"`
	OrderID   uuid.UUID  `json:"order_id" db:"order_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Active сообщает, действует ли доступ на момент now.
func (a *ProductAccess) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}
