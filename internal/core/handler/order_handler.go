package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type OrderHandler struct {
	checkout usecase.CheckoutUsecase
	log      logger.Logger
}

func NewOrderHandler(checkout usecase.CheckoutUsecase, log logger.Logger) *OrderHandler {
	return &OrderHandler{checkout: checkout, log: log}
}

func (h *OrderHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/orders", h.Create).Methods("POST")
	router.HandleFunc("/api/v1/orders/{id}", h.Get).Methods("GET")
	router.HandleFunc("/api/v1/orders/{id}/pay", h.PayWithWallet).Methods("POST")
	router.HandleFunc("/api/v1/orders/{id}/refund", h.Refund).Methods("POST")
	router.HandleFunc("/api/v1/payments/webhook", h.GatewayWebhook).Methods("POST")
}

type createOrderPayload struct {
	UserID uuid.UUID              `json:"user_id"`
	Items  []usecase.CheckoutItem `json:"items"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if payload.UserID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	order, err := h.checkout.CreateOrder(r.Context(), payload.UserID, payload.Items)
	if err != nil {
		h.handleOrderError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), id)
	if err != nil {
		h.handleOrderError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.PayWithWallet(r.Context(), id)
	if err != nil {
		h.handleOrderError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

type refundPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	// Тело необязательно: возврат без причины допустим, но мусор в теле - нет.
	var payload refundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	order, err := h.checkout.Refund(r.Context(), id, payload.Reason)
	if err != nil {
		h.handleOrderError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

type webhookPayload struct {
	OrderNumber string `json:"order_number"`
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"`
}

// GatewayWebhook - обратный вызов платёжного шлюза; сходится на тот же
// переход заказа в PAID, что и оплата кошельком.
func (h *OrderHandler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	defer r.Body.Close()

	if payload.Status != "succeeded" {
		h.log.Info("ignoring gateway webhook",
			logger.StringField("order_number", payload.OrderNumber),
			logger.StringField("status", payload.Status))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	order, err := h.checkout.MarkPaidByGateway(r.Context(), payload.OrderNumber, payload.ExternalRef)
	if err != nil {
		h.handleOrderError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrderHandler) handleOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrOrderNotFound),
		errors.Is(err, usecase.ErrProductNotFound),
		errors.Is(err, usecase.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrIllegalTransition):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrInsufficientFunds):
		respondWithError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, usecase.ErrEmptyOrder), errors.Is(err, usecase.ErrProductInactive):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("order operation failed", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to process order")
	}
}
