// Package remote talks to the central data service that owns reference data
// and receives transmitted orders.
package remote

import (
	"context"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

// ResultStatus is the server's verdict on one transmitted order.
type ResultStatus string

const (
	ResultAccepted  ResultStatus = "accepted"
	ResultDuplicate ResultStatus = "duplicate"
	ResultRejected  ResultStatus = "rejected"
)

// Succeeded reports whether the server holds the order after this result.
func (s ResultStatus) Succeeded() bool {
	return s == ResultAccepted || s == ResultDuplicate
}

// OrderResult is the per-order outcome of a batch transmission.
type OrderResult struct {
	OrderID string       `json:"order_id" validate:"required"`
	Status  ResultStatus `json:"status" validate:"required,oneof=accepted duplicate rejected"`
	Message string       `json:"message,omitempty"`
}

// TransmitResponse is returned by a successful batch call. Results may be
// empty when the server acknowledges the batch as a whole.
type TransmitResponse struct {
	Success bool          `json:"success"`
	Results []OrderResult `json:"results" validate:"dive"`
}

// ResultFor looks up the per-order result, if the server sent one.
func (r TransmitResponse) ResultFor(orderID string) (OrderResult, bool) {
	for _, res := range r.Results {
		if res.OrderID == orderID {
			return res, true
		}
	}
	return OrderResult{}, false
}

// LoginRequest authenticates a rep by code and password.
type LoginRequest struct {
	RepCode  string `json:"rep_code" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is the credential handed out by Login.
type Session struct {
	Token     string    `json:"token" validate:"required"`
	RepID     string    `json:"rep_id" validate:"required"`
	RepCode   string    `json:"rep_code"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TransmitRequest is the body of the batch order endpoint.
type TransmitRequest struct {
	Orders []models.Order `json:"orders" validate:"required,min=1"`
}

// Service is the remote data contract used by sync and transmission.
type Service interface {
	Login(ctx context.Context, repCode, password string) (Session, error)
	FetchClients(ctx context.Context, repID, credential string) ([]models.Client, error)
	FetchProducts(ctx context.Context, credential string) ([]models.Product, error)
	FetchPaymentTables(ctx context.Context, credential string) ([]models.PaymentTable, error)
	TransmitOrders(ctx context.Context, orders []models.Order, credential string) (TransmitResponse, error)
}
