package usecase

import (
	"errors"

	"github.com/avralt/eduwallet/internal/core/repository"
)

// Определение ошибок сервиса. Сентинелы хранилища пробрасываются как есть,
// чтобы обработчики различали их через errors.Is.
var (
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrInvalidAmount     = repository.ErrInvalidAmount
	ErrIllegalTransition = repository.ErrIllegalTransition
	ErrWalletNotFound    = repository.ErrWalletNotFound
	ErrProductNotFound   = repository.ErrProductNotFound
	ErrRequestNotFound   = repository.ErrRequestNotFound
	ErrOrderNotFound     = repository.ErrOrderNotFound

	ErrReasonRequired   = errors.New("rejection reason is required")
	ErrProductInactive  = errors.New("product is not available for purchase")
	ErrEmptyOrder       = errors.New("order must contain at least one item")
	ErrInvalidOperation = errors.New("invalid operation type")
)
