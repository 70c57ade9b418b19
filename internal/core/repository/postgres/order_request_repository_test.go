package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/avralt/eduwallet/internal/core/repository/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pqError23505 = pq.Error{Code: "23505"}

func setupRequestMock(t *testing.T) (repository.OrderRequestRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := postgres.NewPostgresOrderRequestRepo(sqlxDB, logger.NewNop(), "EDU")

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestTransitionApprove(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	reqID := uuid.New()
	approverID := uuid.New()

	mock.ExpectExec("UPDATE order_requests SET status = (.+), approver_id = (.+), approved_at = NOW()").
		WithArgs(models.RequestApproved, &approverID, reqID, models.RequestPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), reqID, models.RequestPending, models.RequestApproved,
		repository.RequestUpdate{ApproverID: &approverID})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusGuardConflict(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	reqID := uuid.New()

	// Ноль затронутых строк: заявку уже перевёл кто-то другой.
	mock.ExpectExec("UPDATE order_requests SET status =").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM order_requests WHERE id = $1`)).
		WithArgs(reqID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))

	err := repo.Transition(context.Background(), reqID, models.RequestPending, models.RequestApproved, repository.RequestUpdate{})
	assert.ErrorIs(t, err, repository.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRequestGone(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	reqID := uuid.New()

	mock.ExpectExec("UPDATE order_requests SET status =").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM order_requests WHERE id = $1`)).
		WithArgs(reqID).
		WillReturnError(sql.ErrNoRows)

	err := repo.Transition(context.Background(), reqID, models.RequestPending, models.RequestApproved, repository.RequestUpdate{})
	assert.ErrorIs(t, err, repository.ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionIllegalPairRejectedBeforeDB(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	// PAID -> APPROVED не входит в таблицу переходов, база не трогается.
	err := repo.Transition(context.Background(), uuid.New(), models.RequestPaid, models.RequestApproved, repository.RequestUpdate{})
	assert.ErrorIs(t, err, repository.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func payFixture() (*models.OrderRequest, *models.Product, uuid.UUID) {
	req := &models.OrderRequest{
		ID:            uuid.New(),
		RequestNumber: "REQ-2025-0A1B2C3D",
		UserID:        uuid.New(),
		ProductID:     uuid.New(),
		Total:         30000,
		Status:        models.RequestApproved,
	}
	product := &models.Product{
		ID:    req.ProductID,
		Price: 30000,
	}
	return req, product, uuid.New()
}

func TestPaySingleTransaction(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	req, product, walletID := payFixture()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_requests SET status = (.+), paid_at = NOW()").
		WithArgs(models.RequestPaid, req.ID, models.RequestApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`)).
		WithArgs(walletID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100000))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(int64(70000), walletID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WithArgs(sqlmock.AnyArg(), walletID, models.OperationWithdraw, int64(-30000), int64(100000), int64(70000),
			req.ID, nil, "", "payment for request "+req.RequestNumber, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SAVEPOINT insert_order").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), req.UserID, int64(30000), models.OrderPaid,
			models.PaymentWallet, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT insert_order").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), product.ID, int64(30000), 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO product_accesses`)).
		WithArgs(sqlmock.AnyArg(), req.UserID, product.ID, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE order_requests SET order_id = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), req.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := repo.Pay(context.Background(), req, product, walletID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	assert.Equal(t, models.PaymentWallet, order.PaymentMethod)
	assert.Equal(t, int64(30000), order.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayInsufficientFundsRollsBackEverything(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	req, product, walletID := payFixture()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_requests SET status = (.+), paid_at = NOW()").
		WithArgs(models.RequestPaid, req.ID, models.RequestApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`)).
		WithArgs(walletID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10000))
	// Заказ не создаётся, смена статуса заявки откатывается вместе со всем.
	mock.ExpectRollback()

	_, err := repo.Pay(context.Background(), req, product, walletID)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayRejectsNotApprovedRequest(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	req, product, walletID := payFixture()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_requests SET status = (.+), paid_at = NOW()").
		WithArgs(models.RequestPaid, req.ID, models.RequestApproved).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Pay(context.Background(), req, product, walletID)
	assert.ErrorIs(t, err, repository.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayAccessExpiryFromProduct(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	req, product, walletID := payFixture()
	product.AccessDays = 30

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_requests SET status = (.+), paid_at = NOW()").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100000))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE wallets SET balance`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO wallet_transactions`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SAVEPOINT insert_order").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RELEASE SAVEPOINT insert_order").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Ограниченный доступ: expires_at не NULL.
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO product_accesses`)).
		WithArgs(sqlmock.AnyArg(), req.UserID, product.ID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE order_requests SET order_id`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := repo.Pay(context.Background(), req, product, walletID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRetriesOnDuplicateNumber(t *testing.T) {
	repo, mock, teardown := setupRequestMock(t)
	defer teardown()

	req := &models.OrderRequest{
		ID:            uuid.New(),
		RequestNumber: "REQ-2025-0A1B2C3D",
		UserID:        uuid.New(),
		ProductID:     uuid.New(),
		Total:         30000,
		Status:        models.RequestPending,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_requests`)).
		WillReturnError(&pqError23505)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_requests`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	// После коллизии номер перегенерирован.
	assert.NotEqual(t, "REQ-2025-0A1B2C3D", req.RequestNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
