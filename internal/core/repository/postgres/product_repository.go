package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type postgresProductRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresProductRepo(db *sqlx.DB, log logger.Logger) repository.ProductRepository {
	return &postgresProductRepo{
		db:  db,
		log: log,
	}
}

func (r *postgresProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	query := `SELECT id, name, price, auto_approve, access_days, active, created_at, updated_at
	          FROM products WHERE id = $1`
	err := r.db.GetContext(ctx, &product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", repository.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return &product, nil
}
