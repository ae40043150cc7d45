// internal/domain/order.go
package domain

import "context"

// OrderStatus mirrors the merchant order lifecycle. Only a subset is
// reachable from this service; the storefront owns the rest.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusOnHold     OrderStatus = "on-hold"
	StatusCompleted  OrderStatus = "completed"
	StatusRefunded   OrderStatus = "refunded"
	StatusFailed     OrderStatus = "failed"
)

// Reconcilable reports whether a payment callback is still allowed to move
// the order. A completed order is terminal: duplicate or late callbacks
// must leave it untouched. Refunds go through the explicit reversal flow,
// never through reconciliation.
func (s OrderStatus) Reconcilable() bool {
	return s != StatusCompleted
}

// PaymentMethodMpesa is the payment method identifier stored on orders paid
// through this gateway.
const PaymentMethodMpesa = "mpesa"

// Order is a read snapshot of the merchant order record. The record itself
// is owned by the surrounding order system; mutations go through OrderGateway.
type Order struct {
	ID            int64
	TenantID      int64
	Status        OrderStatus
	Total         float64
	BillingPhone  string
	TransactionID string
	TrackingID    string
	PaymentMethod string
}

// OrderGateway is the boundary to the order store. Every mutation is atomic
// per call; the store is free to back this with Postgres, the storefront's
// own API, or memory in tests.
type OrderGateway interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	// FindByTrackingID resolves an order by the provider correlation id
	// stored at initiation time (MerchantRequestID or, after a reversal,
	// OriginatorConversationID).
	FindByTrackingID(ctx context.Context, trackingID string) (*Order, error)

	UpdateStatus(ctx context.Context, id int64, status OrderStatus, note string) error
	SetTransactionID(ctx context.Context, id int64, transactionID string) error
	SetTrackingID(ctx context.Context, id int64, trackingID string) error
	SetBillingPhone(ctx context.Context, id int64, phone string) error
	AddNote(ctx context.Context, id int64, note string) error
	LatestNote(ctx context.Context, id int64) (string, error)
}
