package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet представляет модель кошелька
type Wallet struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Balance      int64     `json:"balance" db:"balance"` // в копейках, никогда не отрицательный
	CurrencyCode string    `json:"currency" db:"currency_code"` // ISO 4217: "RUB", "USD"
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// OperationType определяет тип операции с кошельком
type OperationType string

const (
	// OperationDeposit - пополнение кошелька
	OperationDeposit OperationType = "DEPOSIT"
	// OperationWithdraw - снятие средств с кошелька
	OperationWithdraw OperationType = "WITHDRAW"
	// OperationRefund - возврат средств за покупку
	OperationRefund OperationType = "REFUND"
)

// MinorUnitsPerRuble - сколько копеек в рубле
const MinorUnitsPerRuble = 100

// WalletOperation представляет запрос на операцию с кошельком
type WalletOperation struct {
	WalletID      uuid.UUID       `json:"walletId"`
	OperationType OperationType   `json:"operationType"`
	Amount        string          `json:"amount"`
	Description   string          `json:"description,omitempty"`
	ExternalRef   string          `json:"externalRef,omitempty"`
	DecimalAmount decimal.Decimal `json:"-"`
}

// ToMinorUnits переводит сумму в основных единицах в копейки.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(MinorUnitsPerRuble)).IntPart()
}

// FromMinorUnits переводит копейки обратно в основные единицы.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(MinorUnitsPerRuble))
}
