package usecase

import (
	"context"
	"fmt"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletUsecase interface {
	OperateWallet(ctx context.Context, op models.WalletOperation) (decimal.Decimal, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, error)
}

type walletUsecase struct {
	repo repository.WalletRepository
	log  logger.Logger
}

func NewWalletUsecase(repo repository.WalletRepository, log logger.Logger) WalletUsecase {
	return &walletUsecase{repo: repo, log: log}
}

func (uc *walletUsecase) OperateWallet(ctx context.Context, op models.WalletOperation) (decimal.Decimal, error) {
	uc.log.Info("Starting operation",
		logger.StringField("wallet_id", op.WalletID.String()),
		logger.StringField("type", string(op.OperationType)),
		logger.StringField("amount", op.DecimalAmount.String()))

	amount := models.ToMinorUnits(op.DecimalAmount)
	if amount <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	var result *models.LedgerResult
	var err error

	switch op.OperationType {
	case models.OperationDeposit:
		result, err = uc.repo.Deposit(ctx, op.WalletID, amount, op.ExternalRef, op.Description)
	case models.OperationWithdraw:
		result, err = uc.repo.Withdraw(ctx, op.WalletID, amount, nil, op.Description)
	case models.OperationRefund:
		result, err = uc.repo.Refund(ctx, op.WalletID, amount, nil, op.Description)
	default:
		return decimal.Zero, ErrInvalidOperation
	}
	if err != nil {
		uc.log.Warn("Wallet operation failed",
			logger.StringField("wallet_id", op.WalletID.String()),
			logger.StringField("type", string(op.OperationType)),
			logger.ErrorField("error", err))
		return decimal.Zero, fmt.Errorf("operate wallet: %w", err)
	}

	uc.log.Info("Wallet operation completed",
		logger.StringField("wallet_id", op.WalletID.String()),
		logger.StringField("transaction_id", result.TransactionID.String()),
		logger.Int64Field("new_balance", result.NewBalance))

	return models.FromMinorUnits(result.NewBalance), nil
}

func (uc *walletUsecase) GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := uc.repo.GetByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return wallet, nil
}

func (uc *walletUsecase) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	txs, err := uc.repo.ListTransactions(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
