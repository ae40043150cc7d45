// internal/handler/payment.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
	"mpesa-gateway/internal/response"
	"mpesa-gateway/internal/usecase"
)

// PaymentHandler serves the merchant-facing API: STK initiation, reversal,
// and the receipt endpoints polled by the payment-pending page.
type PaymentHandler struct {
	payments *usecase.Payments
	logger   *zap.Logger
}

func NewPaymentHandler(payments *usecase.Payments, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

type initiateRequest struct {
	TenantID int64  `json:"tenant_id"`
	OrderID  int64  `json:"order_id"`
	Phone    string `json:"phone"`
}

// Initiate sends an STK prompt for an order.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == 0 {
		response.Error(w, http.StatusBadRequest, "missing order_id")
		return
	}

	resp, err := h.payments.Initiate(r.Context(), req.TenantID, req.OrderID, req.Phone)
	if err != nil {
		h.handleError(w, req.OrderID, "initiation failed", err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"accepted":            resp.Accepted(),
		"merchant_request_id": resp.MerchantRequestID,
		"checkout_request_id": resp.CheckoutRequestID,
		"customer_message":    resp.CustomerMessage,
		"error_code":          resp.ErrorCode,
		"error_message":       resp.ErrorMessage,
	})
}

type reverseRequest struct {
	OrderID int64 `json:"order_id"`
}

// Reverse submits a transaction reversal for an order.
func (h *PaymentHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == 0 {
		response.Error(w, http.StatusBadRequest, "missing order_id")
		return
	}

	if err := h.payments.ReverseOrder(r.Context(), req.OrderID); err != nil {
		h.handleError(w, req.OrderID, "reversal failed", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"submitted": true})
}

// Receipt returns the order's transaction id and latest note. The
// payment-pending page polls it until the transaction id appears.
func (h *PaymentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	orderID := queryInt64(r, "order")
	if orderID == 0 {
		response.Error(w, http.StatusBadRequest, "missing order")
		return
	}

	receipt, note, err := h.payments.Receipt(r.Context(), orderID)
	if err != nil {
		h.handleError(w, orderID, "receipt lookup failed", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"receipt": receipt,
		"note":    note,
		"paid":    receipt != "",
	})
}

// LastRequest echoes the captured outbound request body for an order.
// Returns nothing unless debug mode is on.
func (h *PaymentHandler) LastRequest(w http.ResponseWriter, r *http.Request) {
	orderID := queryInt64(r, "order")
	if orderID == 0 {
		response.Error(w, http.StatusBadRequest, "missing order")
		return
	}

	body, err := h.payments.LastRequest(r.Context(), orderID)
	if err != nil {
		h.handleError(w, orderID, "request lookup failed", err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"request": body})
}

func (h *PaymentHandler) handleError(w http.ResponseWriter, orderID int64, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		response.Error(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrTenantNotFound):
		response.Error(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, domain.ErrAuth):
		h.logger.Error(msg, zap.Int64("order_id", orderID), zap.Error(err))
		response.Error(w, http.StatusBadGateway, "provider authentication failed")
	default:
		h.logger.Error(msg, zap.Int64("order_id", orderID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, msg)
	}
}
