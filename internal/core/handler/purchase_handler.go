package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avralt/eduwallet/internal/core/logger"
	"github.com/avralt/eduwallet/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type PurchaseHandler struct {
	saga usecase.PurchaseSaga
	log  logger.Logger
}

func NewPurchaseHandler(saga usecase.PurchaseSaga, log logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{saga: saga, log: log}
}

func (h *PurchaseHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/purchase-requests", h.Create).Methods("POST")
	router.HandleFunc("/api/v1/purchase-requests/{id}", h.Get).Methods("GET")
	router.HandleFunc("/api/v1/purchase-requests/{id}/approve", h.Approve).Methods("POST")
	router.HandleFunc("/api/v1/purchase-requests/{id}/reject", h.Reject).Methods("POST")
	router.HandleFunc("/api/v1/purchase-requests/{id}/pay", h.Pay).Methods("POST")
	router.HandleFunc("/api/v1/purchase-requests/{id}/cancel", h.Cancel).Methods("POST")
}

type createRequestPayload struct {
	UserID    uuid.UUID       `json:"user_id"`
	ProductID uuid.UUID       `json:"product_id"`
	FormData  json.RawMessage `json:"form_data,omitempty"`
}

func (h *PurchaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if payload.UserID == uuid.Nil || payload.ProductID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "user_id and product_id are required")
		return
	}

	req, err := h.saga.Create(r.Context(), payload.UserID, payload.ProductID, payload.FormData)
	if err != nil {
		h.handleSagaError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, req)
}

func (h *PurchaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, err := h.saga.Get(r.Context(), id)
	if err != nil {
		h.handleSagaError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, req)
}

type approvePayload struct {
	ApproverID uuid.UUID `json:"approver_id"`
}

func (h *PurchaseHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var payload approvePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if payload.ApproverID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "approver_id is required")
		return
	}

	req, err := h.saga.Approve(r.Context(), id, payload.ApproverID)
	if err != nil {
		h.handleSagaError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, req)
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

func (h *PurchaseHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var payload rejectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.saga.Reject(r.Context(), id, payload.Reason); err != nil {
		h.handleSagaError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PurchaseHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	req, err := h.saga.Pay(r.Context(), id)
	if err != nil {
		h.handleSagaError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, req)
}

func (h *PurchaseHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	if err := h.saga.Cancel(r.Context(), id); err != nil {
		h.handleSagaError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PurchaseHandler) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *PurchaseHandler) handleSagaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrRequestNotFound),
		errors.Is(err, usecase.ErrProductNotFound),
		errors.Is(err, usecase.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrIllegalTransition):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrInsufficientFunds):
		respondWithError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, usecase.ErrReasonRequired), errors.Is(err, usecase.ErrProductInactive):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("purchase request operation failed", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to process request")
	}
}
