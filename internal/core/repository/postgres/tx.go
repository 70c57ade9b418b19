package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const maxRetries = 3

// isRetryableError определяет транзиентные сбои PostgreSQL:
// 40001 - serialization failure
// 40P01 - deadlock detected
// 55P03 - lock not available
func isRetryableError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

// execTx выполняет fn внутри транзакции с повтором на транзиентных ошибках.
// Любая ошибка fn откатывает транзакцию целиком: частичных записей не бывает.
func execTx(ctx context.Context, db *sqlx.DB, log logger.Logger, fn func(tx *sqlx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := runTx(ctx, db, log, fn)
		if err == nil {
			return nil
		}

		if !isRetryableError(err) {
			return err
		}

		lastErr = err
		log.Warn("retrying transaction after transient failure",
			logger.IntField("attempt", attempt),
			logger.ErrorField("error", err))

		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: after %d attempts: %v", repository.ErrTransientFailure, maxRetries, lastErr)
}

func runTx(ctx context.Context, db *sqlx.DB, log logger.Logger, fn func(tx *sqlx.Tx) error) (err error) {
	var isCommitted bool
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Error("Error beginning transaction",
			logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("Transaction rollback failed",
					logger.ErrorField("error", rbErr))
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			} else {
				log.Warn("Transaction rolled back due to error",
					logger.ErrorField("error", err))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		log.Error("Error committing transaction",
			logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return nil
}
