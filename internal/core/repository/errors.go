package repository

import "errors"

// Ошибки доменного слоя. Ожидаемые (недостаток средств, неверная сумма,
// недопустимый переход) отличаются от транзиентных сбоев хранилища.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrRequestNotFound   = errors.New("order request not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAccessNotFound    = errors.New("product access not found")
	ErrTotalMismatch     = errors.New("order total does not match items")
	ErrTransientFailure  = errors.New("transient storage failure")
)
