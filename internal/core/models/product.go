package models

import (
	"time"

	"github.com/google/uuid"
)

// Product - продаваемый курс или продукт платформы.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Price       int64     `json:"price" db:"price"` // в копейках
	AutoApprove bool      `json:"auto_approve" db:"auto_approve"`
	// AccessDays - срок доступа в днях; 0 означает бессрочный доступ.
	AccessDays int       `json:"access_days" db:"access_days"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AccessExpiry возвращает срок действия доступа от момента from.
// nil - доступ бессрочный.
func (p *Product) AccessExpiry(from time.Time) *time.Time {
	if p.AccessDays <= 0 {
		return nil
	}
	t := from.AddDate(0, 0, p.AccessDays)
	return &t
}
