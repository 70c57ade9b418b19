package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type postgresWalletRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresWalletRepo(db *sqlx.DB, log logger.Logger) repository.WalletRepository {
	return &postgresWalletRepo{
		db:  db,
		log: log,
	}
}

func (r *postgresWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT id, user_id, balance, currency_code, created_at, updated_at FROM wallets WHERE id = $1`
	err := r.db.GetContext(ctx, &wallet, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	return &wallet, nil
}

func (r *postgresWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT id, user_id, balance, currency_code, created_at, updated_at FROM wallets WHERE user_id = $1`
	err := r.db.GetContext(ctx, &wallet, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", repository.ErrWalletNotFound, userID)
		}
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}

	return &wallet, nil
}

// SufficientBalance читает баланс без блокировки. Результат только
// рекомендательный: между проверкой и списанием баланс может измениться,
// поэтому Withdraw перепроверяет его под FOR UPDATE.
func (r *postgresWalletRepo) SufficientBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: id %s", repository.ErrWalletNotFound, walletID)
		}
		return false, fmt.Errorf("error reading balance: %w", err)
	}
	return balance >= amount, nil
}

func (r *postgresWalletRepo) Withdraw(ctx context.Context, walletID uuid.UUID, amount int64, requestID *uuid.UUID, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}

	var result *models.LedgerResult
	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		var err error
		result, err = applyLedgerEntry(ctx, tx, walletID, models.OperationWithdraw, -amount, entryRefs{
			RequestID:   requestID,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *postgresWalletRepo) Deposit(ctx context.Context, walletID uuid.UUID, amount int64, externalRef, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}

	var result *models.LedgerResult
	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		var err error
		result, err = applyLedgerEntry(ctx, tx, walletID, models.OperationDeposit, amount, entryRefs{
			ExternalRef: externalRef,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *postgresWalletRepo) Refund(ctx context.Context, walletID uuid.UUID, amount int64, orderID *uuid.UUID, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}

	var result *models.LedgerResult
	err := execTx(ctx, r.db, r.log, func(tx *sqlx.Tx) error {
		var err error
		result, err = applyLedgerEntry(ctx, tx, walletID, models.OperationRefund, amount, entryRefs{
			OrderID:     orderID,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *postgresWalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []models.Transaction
	query := `
		SELECT id, wallet_id, operation_type, amount, balance_before, balance_after,
		       request_id, order_id, external_ref, description, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &txs, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return txs, nil
}

// entryRefs - необязательные ссылки записи леджера.
type entryRefs struct {
	RequestID   *uuid.UUID
	OrderID     *uuid.UUID
	ExternalRef string
	Description string
}

// applyLedgerEntry - единая точка изменения баланса. Порядок строгий:
// сначала блокировка строки кошелька, затем чтение баланса, затем запись
// нового баланса и добавление записи леджера. Всё в рамках транзакции tx
// вызывающей стороны; откат tx отменяет и баланс, и запись леджера.
func applyLedgerEntry(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, opType models.OperationType, signedAmount int64, refs entryRefs) (*models.LedgerResult, error) {
	if signedAmount == 0 {
		return nil, repository.ErrInvalidAmount
	}

	var balanceBefore int64
	err := tx.GetContext(ctx, &balanceBefore,
		`SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrWalletNotFound, walletID)
		}
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	balanceAfter := balanceBefore + signedAmount
	if balanceAfter < 0 {
		return nil, repository.ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`,
		balanceAfter, walletID)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	entryID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions
		 (id, wallet_id, operation_type, amount, balance_before, balance_after, request_id, order_id, external_ref, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entryID, walletID, opType, signedAmount, balanceBefore, balanceAfter,
		refs.RequestID, refs.OrderID, refs.ExternalRef, refs.Description, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}

	return &models.LedgerResult{
		NewBalance:    balanceAfter,
		TransactionID: entryID,
	}, nil
}
