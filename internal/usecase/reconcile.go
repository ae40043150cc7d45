// internal/usecase/reconcile.go
package usecase

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
)

// Notifier is the fire-and-forget side channel informed when a payment
// completes. Failures are the notifier's problem; reconciliation never
// blocks on it.
type Notifier interface {
	PaymentReceived(ctx context.Context, order *domain.Order, metadata map[string]any)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) PaymentReceived(context.Context, *domain.Order, map[string]any) {}

// Reconciler applies provider callbacks to orders exactly once. The
// terminal-state guard plus per-order serialization make duplicate and
// out-of-order deliveries harmless.
type Reconciler struct {
	orders   domain.OrderGateway
	notifier Notifier
	locks    orderLocks
	logger   *zap.Logger
}

func NewReconciler(orders domain.OrderGateway, notifier Notifier, logger *zap.Logger) *Reconciler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reconciler{orders: orders, notifier: notifier, logger: logger}
}

// Apply reconciles a push-payment result against its order. The order is
// resolved by the explicit id when the callback URL carried one, otherwise
// by the stored tracking id. Returns false for an already-completed order
// (duplicate delivery) without touching it.
func (r *Reconciler) Apply(ctx context.Context, cfg domain.TenantConfig, cb *domain.STKCallback, orderIDHint int64) (bool, error) {
	order, err := r.resolve(ctx, orderIDHint, cb.MerchantRequestID)
	if err != nil {
		return false, err
	}

	unlock := r.locks.lock(order.ID)
	defer unlock()

	// Re-read under the lock: a concurrent duplicate may have won the race.
	order, err = r.orders.FindByID(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}
	if !order.Status.Reconcilable() {
		r.logger.Info("reconcile skipped, order already completed",
			zap.Int64("order_id", order.ID),
			zap.String("merchant_request_id", cb.MerchantRequestID))
		return false, nil
	}

	if cb.ResultCode == 0 && cb.HasMetadata() {
		parsed := cb.Metadata()
		receipt := cb.MetadataString("MpesaReceiptNumber")
		phone := cb.MetadataString("PhoneNumber")

		if err := r.orders.SetTransactionID(ctx, order.ID, receipt); err != nil {
			return false, err
		}
		note := fmt.Sprintf("Full M-Pesa payment received from %s. Transaction ID %s.", phone, receipt)
		if err := r.orders.UpdateStatus(ctx, order.ID, cfg.Completion(), note); err != nil {
			return false, err
		}

		r.logger.Info("payment reconciled",
			zap.Int64("order_id", order.ID),
			zap.String("receipt", receipt))
		order.TransactionID = receipt
		order.Status = cfg.Completion()
		r.notify(order, parsed)
		return true, nil
	}

	// Cancelled prompts, wrong PINs and missing metadata all land here:
	// recognized outcomes that park the order for manual follow-up.
	note := fmt.Sprintf("(M-Pesa error) %d: %s.", cb.ResultCode, cb.ResultDesc)
	if err := r.orders.UpdateStatus(ctx, order.ID, domain.StatusOnHold, note); err != nil {
		return false, err
	}
	r.logger.Info("payment reconciled as failed",
		zap.Int64("order_id", order.ID),
		zap.Int("result_code", cb.ResultCode))
	return true, nil
}

// Confirm settles a C2B confirmation against its order using the amount
// comparison rule: exact or over-payment completes the order, anything
// short parks it on hold.
func (r *Reconciler) Confirm(ctx context.Context, cfg domain.TenantConfig, payload *domain.ConfirmationPayload) (bool, error) {
	orderID := payload.OrderID()
	if orderID == 0 {
		return false, domain.ErrOrderNotFound
	}
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}

	unlock := r.locks.lock(order.ID)
	defer unlock()

	order, err = r.orders.FindByID(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}
	if !order.Status.Reconcilable() {
		return false, nil
	}

	balance := math.Round(order.Total) - math.Round(payload.Amount())
	receipt := payload.TransID
	phone := payload.MSISDN
	parsed := map[string]any{
		"Amount":             payload.Amount(),
		"MpesaReceiptNumber": receipt,
		"TransactionDate":    payload.TransTime,
		"PhoneNumber":        phone,
	}

	switch {
	case balance == 0:
		if err := r.orders.SetTransactionID(ctx, order.ID, receipt); err != nil {
			return false, err
		}
		note := fmt.Sprintf("Full M-Pesa payment received from %s. Transaction ID %s.", phone, receipt)
		if err := r.orders.UpdateStatus(ctx, order.ID, cfg.Completion(), note); err != nil {
			return false, err
		}
		order.TransactionID = receipt
		order.Status = cfg.Completion()
		r.notify(order, parsed)
		return true, nil

	case balance < 0:
		if err := r.orders.SetTransactionID(ctx, order.ID, receipt); err != nil {
			return false, err
		}
		note := fmt.Sprintf("%s has overpaid by %.0f. Transaction ID %s.", phone, math.Abs(balance), receipt)
		if err := r.orders.UpdateStatus(ctx, order.ID, cfg.Completion(), note); err != nil {
			return false, err
		}
		order.TransactionID = receipt
		order.Status = cfg.Completion()
		r.notify(order, parsed)
		return true, nil

	default:
		note := fmt.Sprintf("M-Pesa payment from %s incomplete.", phone)
		if err := r.orders.UpdateStatus(ctx, order.ID, domain.StatusOnHold, note); err != nil {
			return false, err
		}
		return false, nil
	}
}

// ApplyResult correlates the asynchronous outcome of a reversal or status
// query back to its order via the stored OriginatorConversationID. Each
// result parameter is read by its declared key.
func (r *Reconciler) ApplyResult(ctx context.Context, result *domain.ResultCallback) (bool, error) {
	order, err := r.orders.FindByTrackingID(ctx, result.OriginatorConversationID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}

	unlock := r.locks.lock(order.ID)
	defer unlock()

	note := result.ResultDesc
	if receipt := result.ParameterString("ReceiptNo"); receipt != "" {
		note = fmt.Sprintf("%s Receipt %s.", note, receipt)
	}
	if err := r.orders.UpdateStatus(ctx, order.ID, domain.StatusRefunded, note); err != nil {
		return false, err
	}
	if result.TransactionID != "" {
		if err := r.orders.SetTransactionID(ctx, order.ID, result.TransactionID); err != nil {
			return false, err
		}
	}
	r.logger.Info("reversal result applied",
		zap.Int64("order_id", order.ID),
		zap.String("originator_conversation_id", result.OriginatorConversationID))
	return true, nil
}

// ApplyTimeout handles the provider's queue-timeout notification by putting
// the order back to pending so the customer can retry. A timeout that lands
// after the payment completed is a stale delivery and changes nothing.
func (r *Reconciler) ApplyTimeout(ctx context.Context, cb *domain.STKCallback) (bool, error) {
	order, err := r.orders.FindByTrackingID(ctx, cb.MerchantRequestID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}

	unlock := r.locks.lock(order.ID)
	defer unlock()

	order, err = r.orders.FindByID(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}
	if !order.Status.Reconcilable() {
		r.logger.Info("timeout skipped, order already completed",
			zap.Int64("order_id", order.ID),
			zap.String("merchant_request_id", cb.MerchantRequestID))
		return false, nil
	}

	if err := r.orders.UpdateStatus(ctx, order.ID, domain.StatusPending, "M-Pesa payment timed out."); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) resolve(ctx context.Context, orderIDHint int64, trackingID string) (*domain.Order, error) {
	if orderIDHint > 0 {
		order, err := r.orders.FindByID(ctx, orderIDHint)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if trackingID != "" {
		order, err := r.orders.FindByTrackingID(ctx, trackingID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *Reconciler) notify(order *domain.Order, metadata map[string]any) {
	o := *order
	go r.notifier.PaymentReceived(context.Background(), &o, metadata)
}
