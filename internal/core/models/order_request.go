package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus - статус заявки на покупку.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestPaid      RequestStatus = "PAID"
	RequestCompleted RequestStatus = "COMPLETED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// requestTransitions - таблица допустимых переходов состояния заявки.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected, RequestCancelled},
	RequestApproved: {RequestPaid, RequestCancelled},
	RequestPaid:     {RequestCompleted},
}

// CanTransition проверяет допустимость перехода from -> to.
func (from RequestStatus) CanTransition(to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// OrderRequest - заявка на покупку продукта.
// Total фиксируется из цены продукта при создании и далее не меняется.
type OrderRequest struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	RequestNumber   string        `json:"request_number" db:"request_number"`
	UserID          uuid.UUID     `json:"user_id" db:"user_id"`
	ProductID       uuid.UUID     `json:"product_id" db:"product_id"`
	Total           int64         `json:"total" db:"total"`
	Status          RequestStatus `json:"status" db:"status"`
	ApproverID      *uuid.UUID    `json:"approver_id,omitempty" db:"approver_id"`
	OrderID         *uuid.UUID    `json:"order_id,omitempty" db:"order_id"`
	RejectionReason string        `json:"rejection_reason,omitempty" db:"rejection_reason"`
	FormData        []byte        `json:"form_data,omitempty" db:"form_data"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty" db:"rejected_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}
