package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avralt/eduwallet/internal/core/models"
	"github.com/avralt/eduwallet/internal/core/repository"
	"github.com/google/uuid"
)

// In-memory фейки репозиториев, повторяющие транзакционную семантику
// Postgres-реализаций: списание и материализация либо проходят целиком,
// либо не оставляют следов.

type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	entries []models.Transaction
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (r *fakeWalletRepo) addWallet(userID uuid.UUID, balance int64) *models.Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &models.Wallet{ID: uuid.New(), UserID: userID, Balance: balance, CurrencyCode: "RUB"}
	r.wallets[w.ID] = w
	return w
}

func (r *fakeWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *fakeWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repository.ErrWalletNotFound
}

func (r *fakeWalletRepo) SufficientBalance(_ context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return false, repository.ErrWalletNotFound
	}
	return w.Balance >= amount, nil
}

func (r *fakeWalletRepo) apply(walletID uuid.UUID, op models.OperationType, signed int64, refs models.Transaction) (*models.LedgerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	after := w.Balance + signed
	if after < 0 {
		return nil, repository.ErrInsufficientFunds
	}
	entry := refs
	entry.ID = uuid.New()
	entry.WalletID = walletID
	entry.OperationType = op
	entry.Amount = signed
	entry.BalanceBefore = w.Balance
	entry.BalanceAfter = after
	entry.CreatedAt = time.Now()
	w.Balance = after
	r.entries = append(r.entries, entry)
	return &models.LedgerResult{NewBalance: after, TransactionID: entry.ID}, nil
}

func (r *fakeWalletRepo) Withdraw(_ context.Context, walletID uuid.UUID, amount int64, requestID *uuid.UUID, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	return r.apply(walletID, models.OperationWithdraw, -amount, models.Transaction{RequestID: requestID, Description: description})
}

func (r *fakeWalletRepo) Deposit(_ context.Context, walletID uuid.UUID, amount int64, externalRef, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	return r.apply(walletID, models.OperationDeposit, amount, models.Transaction{ExternalRef: externalRef, Description: description})
}

func (r *fakeWalletRepo) Refund(_ context.Context, walletID uuid.UUID, amount int64, orderID *uuid.UUID, description string) (*models.LedgerResult, error) {
	if amount <= 0 {
		return nil, repository.ErrInvalidAmount
	}
	return r.apply(walletID, models.OperationRefund, amount, models.Transaction{OrderID: orderID, Description: description})
}

func (r *fakeWalletRepo) ListTransactions(_ context.Context, walletID uuid.UUID, _, _ int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, e := range r.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uuid.UUID]*models.Product)}
}

func (r *fakeProductRepo) addProduct(price int64, autoApprove bool, accessDays int) *models.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &models.Product{ID: uuid.New(), Name: "course", Price: price, AutoApprove: autoApprove, AccessDays: accessDays, Active: true}
	r.products[p.ID] = p
	return p
}

func (r *fakeProductRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type accessKey struct {
	userID    uuid.UUID
	productID uuid.UUID
}

type fakeOrderRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.OrderRequest
	wallets  *fakeWalletRepo
	orders   *fakeOrderRepo
}

func newFakeOrderRequestRepo(wallets *fakeWalletRepo, orders *fakeOrderRepo) *fakeOrderRequestRepo {
	return &fakeOrderRequestRepo{
		requests: make(map[uuid.UUID]*models.OrderRequest),
		wallets:  wallets,
		orders:   orders,
	}
}

func (r *fakeOrderRequestRepo) Create(_ context.Context, req *models.OrderRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeOrderRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.OrderRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeOrderRequestRepo) Transition(_ context.Context, id uuid.UUID, from, to models.RequestStatus, upd repository.RequestUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return repository.ErrRequestNotFound
	}
	if req.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrIllegalTransition, req.Status, to)
	}
	now := time.Now()
	req.Status = to
	switch to {
	case models.RequestApproved:
		req.ApproverID = upd.ApproverID
		req.ApprovedAt = &now
	case models.RequestRejected:
		req.RejectionReason = upd.RejectionReason
		req.RejectedAt = &now
	case models.RequestPaid:
		req.OrderID = upd.OrderID
		req.PaidAt = &now
	}
	return nil
}

func (r *fakeOrderRequestRepo) Pay(_ context.Context, req *models.OrderRequest, product *models.Product, walletID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	stored, ok := r.requests[req.ID]
	if !ok {
		r.mu.Unlock()
		return nil, repository.ErrRequestNotFound
	}
	if stored.Status != models.RequestApproved {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: request is %s", repository.ErrIllegalTransition, stored.Status)
	}
	r.mu.Unlock()

	// Списание решает исход; при отказе заявка остаётся APPROVED.
	_, err := r.wallets.Withdraw(context.Background(), walletID, req.Total, &req.ID, "payment for request "+req.RequestNumber)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   models.NewOrderNumber("EDU", now),
		UserID:        req.UserID,
		Total:         req.Total,
		Status:        models.OrderPaid,
		PaymentMethod: models.PaymentWallet,
		PaidAt:        &now,
	}
	items := []models.OrderItem{{
		ID: uuid.New(), OrderID: order.ID, ProductID: product.ID, UnitPrice: req.Total, Quantity: 1,
	}}
	r.orders.put(order, items)
	r.orders.grant(req.UserID, product.ID, order.ID, product.AccessExpiry(now))

	r.mu.Lock()
	stored.Status = models.RequestPaid
	stored.OrderID = &order.ID
	stored.PaidAt = &now
	r.mu.Unlock()

	return order, nil
}

func (r *fakeOrderRequestRepo) ListStalePending(_ context.Context, olderThan time.Time, _ int) ([]models.OrderRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderRequest
	for _, req := range r.requests {
		if req.Status == models.RequestPending && req.CreatedAt.Before(olderThan) {
			out = append(out, *req)
		}
	}
	return out, nil
}

type fakeOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*models.Order
	items    map[uuid.UUID][]models.OrderItem
	accesses map[accessKey]*models.ProductAccess
	products *fakeProductRepo
	wallets  *fakeWalletRepo
}

func newFakeOrderRepo(products *fakeProductRepo, wallets *fakeWalletRepo) *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[uuid.UUID]*models.Order),
		items:    make(map[uuid.UUID][]models.OrderItem),
		accesses: make(map[accessKey]*models.ProductAccess),
		products: products,
		wallets:  wallets,
	}
}

func (r *fakeOrderRepo) put(order *models.Order, items []models.OrderItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	r.items[order.ID] = items
}

func (r *fakeOrderRepo) grant(userID, productID, orderID uuid.UUID, expiresAt *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accessKey{userID, productID}
	if existing, ok := r.accesses[key]; ok {
		existing.OrderID = orderID
		existing.ExpiresAt = expiresAt
		return
	}
	r.accesses[key] = &models.ProductAccess{
		ID: uuid.New(), UserID: userID, ProductID: productID, OrderID: orderID, ExpiresAt: expiresAt,
	}
}

func (r *fakeOrderRepo) Create(_ context.Context, order *models.Order, items []models.OrderItem) error {
	if order.Total != models.ItemsTotal(items) {
		return repository.ErrTotalMismatch
	}
	r.put(order, items)
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) GetByNumber(_ context.Context, number string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *fakeOrderRepo) ListItems(_ context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[orderID], nil
}

func (r *fakeOrderRepo) PayWithWallet(ctx context.Context, orderID, walletID uuid.UUID) (*models.LedgerResult, error) {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return nil, repository.ErrOrderNotFound
	}
	if !o.Status.CanTransition(models.OrderPaid) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: order is %s", repository.ErrIllegalTransition, o.Status)
	}
	total := o.Total
	items := r.items[orderID]
	r.mu.Unlock()

	result, err := r.wallets.Withdraw(ctx, walletID, total, nil, "payment for order "+o.OrderNumber)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	r.mu.Lock()
	o.Status = models.OrderPaid
	o.PaymentMethod = models.PaymentWallet
	o.PaidAt = &now
	r.mu.Unlock()

	for _, it := range items {
		product, perr := r.products.GetByID(ctx, it.ProductID)
		if perr != nil {
			return nil, perr
		}
		r.grant(o.UserID, it.ProductID, orderID, product.AccessExpiry(now))
	}

	return result, nil
}

func (r *fakeOrderRepo) MarkPaidByGateway(ctx context.Context, orderID uuid.UUID, externalRef string) error {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return repository.ErrOrderNotFound
	}
	if !o.Status.CanTransition(models.OrderPaid) {
		r.mu.Unlock()
		return fmt.Errorf("%w: order is %s", repository.ErrIllegalTransition, o.Status)
	}
	now := time.Now()
	o.Status = models.OrderPaid
	o.PaymentMethod = models.PaymentGateway
	o.ExternalRef = externalRef
	o.PaidAt = &now
	items := r.items[orderID]
	userID := o.UserID
	r.mu.Unlock()

	for _, it := range items {
		product, perr := r.products.GetByID(ctx, it.ProductID)
		if perr != nil {
			return perr
		}
		r.grant(userID, it.ProductID, orderID, product.AccessExpiry(now))
	}
	return nil
}

func (r *fakeOrderRepo) MarkFailed(_ context.Context, orderID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if !o.Status.CanTransition(models.OrderFailed) {
		return fmt.Errorf("%w: order is %s", repository.ErrIllegalTransition, o.Status)
	}
	o.Status = models.OrderFailed
	return nil
}

func (r *fakeOrderRepo) Refund(ctx context.Context, orderID uuid.UUID, walletID *uuid.UUID, description string) (*models.LedgerResult, error) {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return nil, repository.ErrOrderNotFound
	}
	if !o.Status.CanTransition(models.OrderRefunded) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: order is %s", repository.ErrIllegalTransition, o.Status)
	}
	o.Status = models.OrderRefunded
	for key, a := range r.accesses {
		if a.OrderID == orderID {
			delete(r.accesses, key)
		}
	}
	total := o.Total
	r.mu.Unlock()

	if walletID != nil {
		return r.wallets.Refund(ctx, *walletID, total, &orderID, description)
	}
	return nil, nil
}

func (r *fakeOrderRepo) GetAccess(_ context.Context, userID, productID uuid.UUID) (*models.ProductAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accesses[accessKey{userID, productID}]
	if !ok {
		return nil, repository.ErrAccessNotFound
	}
	cp := *a
	return &cp, nil
}

type notifiedEvent struct {
	UserID uuid.UUID
	Event  NotificationEvent
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
	fail   bool
}

func (n *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, event NotificationEvent, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("notification channel down")
	}
	n.events = append(n.events, notifiedEvent{UserID: userID, Event: event})
	return nil
}

func (n *fakeNotifier) has(event NotificationEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Event == event {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}
