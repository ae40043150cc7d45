// internal/usecase/payments.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mpesa-gateway/internal/cache"
	"mpesa-gateway/internal/domain"
	"mpesa-gateway/internal/provider/mpesa"
)

// Identifier type 3 addresses the receiver as an organization shortcode;
// reversals return funds through the original short code.
const reversalReceiverType = 3

const (
	debugNamespace = "mpesa_request"
	debugTTL       = 15 * time.Minute
)

// Payments drives the outbound provider flows: push-payment initiation and
// resend, C2B URL registration, status queries and reversals.
type Payments struct {
	client    *mpesa.Client
	orders    domain.OrderGateway
	tenants   domain.TenantResolver
	requests  *cache.Cache // last outbound request bodies, debug only
	storeName string
	debug     bool
	logger    *zap.Logger
}

func NewPayments(client *mpesa.Client, orders domain.OrderGateway, tenants domain.TenantResolver, requests *cache.Cache, storeName string, debug bool, logger *zap.Logger) *Payments {
	return &Payments{
		client:    client,
		orders:    orders,
		tenants:   tenants,
		requests:  requests,
		storeName: storeName,
		debug:     debug,
		logger:    logger,
	}
}

// Initiate sends the STK prompt for an order and persists the returned
// tracking ids. The payment itself completes later through the reconcile
// webhook; a response without tracking ids records nothing.
func (p *Payments) Initiate(ctx context.Context, tenantID, orderID int64, phone string) (*mpesa.STKPushResponse, error) {
	cfg, err := p.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if phone == "" {
		phone = order.BillingPhone
	}

	description := p.storeName + " Purchase"
	resp, err := p.client.STKPush(ctx, tenantID, cfg, phone, order.Total, orderID, description, "Online Payment", p.debug)
	if err != nil {
		return nil, err
	}

	if resp.Accepted() {
		normalized := mpesa.NormalizePhone(phone)
		if err := p.orders.SetTrackingID(ctx, orderID, resp.MerchantRequestID); err != nil {
			return nil, err
		}
		if err := p.orders.SetBillingPhone(ctx, orderID, normalized); err != nil {
			return nil, err
		}
		note := fmt.Sprintf("Awaiting M-Pesa confirmation of payment from %s for request %s.", normalized, resp.MerchantRequestID)
		if err := p.orders.AddNote(ctx, orderID, note); err != nil {
			return nil, err
		}
	}

	p.storeDebugRequest(ctx, orderID, resp)
	return resp, nil
}

// Resend pushes a fresh STK prompt for an order whose first prompt failed
// or expired, replacing the stored tracking id on success.
func (p *Payments) Resend(ctx context.Context, orderID int64) (*mpesa.STKPushResponse, error) {
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	cfg, err := p.tenants.Resolve(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}

	description := p.storeName + " Purchase"
	resp, err := p.client.STKPush(ctx, order.TenantID, cfg, order.BillingPhone, order.Total, orderID, description, "Online Payment", p.debug)
	if err != nil {
		return nil, err
	}

	if resp.Accepted() {
		if err := p.orders.SetTrackingID(ctx, orderID, resp.MerchantRequestID); err != nil {
			return nil, err
		}
		note := fmt.Sprintf("STK push resent. Awaiting M-Pesa confirmation of payment for request %s.", resp.MerchantRequestID)
		if err := p.orders.AddNote(ctx, orderID, note); err != nil {
			return nil, err
		}
	}

	p.storeDebugRequest(ctx, orderID, resp)
	return resp, nil
}

// RegisterURLs points the provider's C2B callbacks at this engine.
func (p *Payments) RegisterURLs(ctx context.Context, tenantID int64) (*mpesa.RegisterURLsResponse, error) {
	cfg, err := p.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return p.client.RegisterURLs(ctx, tenantID, cfg)
}

// TransactionStatus submits a provider status query for a transaction id.
func (p *Payments) TransactionStatus(ctx context.Context, tenantID int64, transaction string) (map[string]any, error) {
	cfg, err := p.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return p.client.TransactionStatus(ctx, tenantID, cfg, transaction)
}

// ReverseOrder refunds an order's transaction. On acceptance the provider's
// OriginatorConversationID replaces the stored tracking id so the later
// result webhook can correlate, and the order moves to refunded; a rejected
// reversal marks the order failed with the provider's message. Orders paid
// through other methods are left alone.
func (p *Payments) ReverseOrder(ctx context.Context, orderID int64) error {
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if order.PaymentMethod != domain.PaymentMethodMpesa {
		return nil
	}
	cfg, err := p.tenants.Resolve(ctx, order.TenantID)
	if err != nil {
		return err
	}

	occasion := "Order " + uuid.NewString()[:8]
	resp, err := p.client.Reverse(ctx, order.TenantID, cfg, order.TransactionID, order.Total,
		order.BillingPhone, reversalReceiverType, "Transaction Reversal", occasion)
	if err != nil {
		return err
	}

	if resp.Accepted() {
		if err := p.orders.SetTrackingID(ctx, orderID, resp.OriginatorConversationID); err != nil {
			return err
		}
		return p.orders.UpdateStatus(ctx, orderID, domain.StatusRefunded, "M-Pesa reversal submitted.")
	}

	p.logger.Warn("reversal rejected",
		zap.Int64("order_id", orderID),
		zap.String("error_code", resp.ErrorCode))
	return p.orders.UpdateStatus(ctx, orderID, domain.StatusFailed, resp.ErrorMessage)
}

// Receipt returns the order's transaction id and latest note for the
// payment-pending page poller.
func (p *Payments) Receipt(ctx context.Context, orderID int64) (receipt, note string, err error) {
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", "", err
	}
	if order == nil {
		return "", "", domain.ErrOrderNotFound
	}
	note, err = p.orders.LatestNote(ctx, orderID)
	if err != nil {
		return "", "", err
	}
	return order.TransactionID, note, nil
}

// LastRequest returns the captured outbound request body for an order,
// available only in debug mode.
func (p *Payments) LastRequest(ctx context.Context, orderID int64) (string, error) {
	if p.requests == nil {
		return "", nil
	}
	return p.requests.Get(ctx, debugNamespace, fmt.Sprintf("%d", orderID))
}

func (p *Payments) storeDebugRequest(ctx context.Context, orderID int64, resp *mpesa.STKPushResponse) {
	if !p.debug || p.requests == nil || len(resp.Requested) == 0 {
		return
	}
	if err := p.requests.Set(ctx, debugNamespace, fmt.Sprintf("%d", orderID), string(resp.Requested), debugTTL); err != nil {
		p.logger.Warn("debug request store failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
