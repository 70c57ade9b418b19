package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction - запись леджера: одно изменение баланса кошелька.
// После записи никогда не изменяется и не удаляется.
type Transaction struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	WalletID      uuid.UUID     `json:"wallet_id" db:"wallet_id"`
	OperationType OperationType `json:"operation_type" db:"operation_type"`
	Amount        int64         `json:"amount" db:"amount"` // со знаком: снятие отрицательное
	BalanceBefore int64         `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64         `json:"balance_after" db:"balance_after"`
	RequestID     *uuid.UUID    `json:"request_id,omitempty" db:"request_id"`
	OrderID       *uuid.UUID    `json:"order_id,omitempty" db:"order_id"`
	ExternalRef   string        `json:"external_ref,omitempty" db:"external_ref"`
	Description   string        `json:"description,omitempty" db:"description"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// LedgerResult - результат успешной операции леджера.
type LedgerResult struct {
	NewBalance    int64
	TransactionID uuid.UUID
}
