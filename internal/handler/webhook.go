// internal/handler/webhook.go
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
	"mpesa-gateway/internal/response"
	"mpesa-gateway/internal/usecase"
)

// WebhookHandler serves the single provider-facing callback endpoint. The
// action query parameter selects the flow; every recognized action is
// answered 200 with the ack body that action's caller expects, because the
// provider treats non-200 responses as delivery failures and retries.
type WebhookHandler struct {
	reconciler *usecase.Reconciler
	payments   *usecase.Payments
	tenants    domain.TenantResolver
	validator  usecase.Predicate
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *usecase.Reconciler, payments *usecase.Payments, tenants domain.TenantResolver, validator usecase.Predicate, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		payments:   payments,
		tenants:    tenants,
		validator:  validator,
		logger:     logger,
	}
}

// Handle dispatches on the action parameter.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	action := domain.ParseAction(r.URL.Query().Get("action"))

	h.logger.Info("webhook received",
		zap.String("action", string(action)),
		zap.String("remote_addr", r.RemoteAddr))

	switch action {
	case domain.ActionRequest:
		h.handleRequest(w, r)
	case domain.ActionValidate:
		h.handleValidate(w, r)
	case domain.ActionConfirm:
		h.handleConfirm(w, r)
	case domain.ActionReconcile:
		h.handleReconcile(w, r)
	case domain.ActionRegister:
		h.handleRegister(w, r)
	case domain.ActionStatus:
		h.handleStatus(w, r)
	case domain.ActionResult:
		h.handleResult(w, r)
	case domain.ActionTimeout:
		h.handleTimeout(w, r)
	default:
		// Legacy and misrouted callers get a plain validation ack so the
		// provider does not retry indefinitely.
		response.Raw(w, http.StatusOK, domain.AckSuccess)
	}
}

// handleRequest re-sends the STK prompt for an order whose first prompt
// failed or expired. Driven by the payment-pending page, not the provider.
func (h *WebhookHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	orderID := queryInt64(r, "order")
	if orderID == 0 {
		response.Error(w, http.StatusBadRequest, "missing order")
		return
	}

	resp, err := h.payments.Resend(r.Context(), orderID)
	if err != nil {
		h.logger.Error("resend failed", zap.Int64("order_id", orderID), zap.Error(err))
		response.Error(w, http.StatusBadGateway, "request could not be sent")
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *WebhookHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var payload domain.ConfirmationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("validation body undecodable", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}
	response.Raw(w, http.StatusOK, usecase.ValidationAck(h.validator, &payload))
}

func (h *WebhookHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var payload domain.ConfirmationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("confirmation body undecodable", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}

	cfg, err := h.tenants.Resolve(r.Context(), queryInt64(r, "tenant"))
	if err != nil {
		h.logger.Error("tenant resolve failed", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}

	// The ack mirrors the validate contract: a settlement the hook rejects
	// (underpaid, unresolvable order, already completed) answers failed.
	ok, err := h.reconciler.Confirm(r.Context(), cfg, &payload)
	if err != nil {
		h.logger.Error("confirmation failed",
			zap.String("trans_id", payload.TransID),
			zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}
	if !ok {
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}
	response.Raw(w, http.StatusOK, domain.AckSuccess)
}

func (h *WebhookHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.tenants.Resolve(r.Context(), queryInt64(r, "tenant"))
	if err != nil {
		h.logger.Error("tenant resolve failed", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.ReconcileFailed)
		return
	}

	if !signatureValid(r.URL.Query().Get("sign"), cfg.Signature) {
		// Reject without detail. The expected value stays out of logs and
		// responses.
		h.logger.Warn("reconcile signature mismatch", zap.String("remote_addr", r.RemoteAddr))
		response.Raw(w, http.StatusOK, domain.ReconcileFailed)
		return
	}

	var envelope domain.STKCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("reconcile body undecodable", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.ReconcileFailed)
		return
	}

	ok, err := h.reconciler.Apply(r.Context(), cfg, &envelope.Body.StkCallback, queryInt64(r, "order"))
	if err != nil {
		h.logger.Error("reconcile failed",
			zap.String("merchant_request_id", envelope.Body.StkCallback.MerchantRequestID),
			zap.Error(err))
		response.Raw(w, http.StatusOK, domain.ReconcileFailed)
		return
	}
	if !ok {
		response.Raw(w, http.StatusOK, domain.ReconcileFailed)
		return
	}
	response.Raw(w, http.StatusOK, domain.ReconcileOK)
}

func (h *WebhookHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	resp, err := h.payments.RegisterURLs(r.Context(), queryInt64(r, "tenant"))
	if err != nil {
		h.logger.Error("url registration failed", zap.Error(err))
		response.Error(w, http.StatusBadGateway, "registration could not be sent")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"registered": resp.Registered(),
		"message":    resp.Description(),
	})
}

func (h *WebhookHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	transaction := r.URL.Query().Get("transaction")
	if transaction == "" {
		response.Error(w, http.StatusBadRequest, "missing transaction")
		return
	}

	result, err := h.payments.TransactionStatus(r.Context(), queryInt64(r, "tenant"), transaction)
	if err != nil {
		h.logger.Error("status query failed", zap.String("transaction", transaction), zap.Error(err))
		response.Error(w, http.StatusBadGateway, "status query could not be sent")
		return
	}
	response.Raw(w, http.StatusOK, result)
}

func (h *WebhookHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	var envelope domain.ResultEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("result body undecodable", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}

	if _, err := h.reconciler.ApplyResult(r.Context(), &envelope.Result); err != nil {
		h.logger.Error("result apply failed",
			zap.String("originator_conversation_id", envelope.Result.OriginatorConversationID),
			zap.Error(err))
	}
	// The result leg is acknowledged regardless: the provider has nothing
	// useful to do with a failure and would only retry.
	response.Raw(w, http.StatusOK, domain.AckSuccess)
}

func (h *WebhookHandler) handleTimeout(w http.ResponseWriter, r *http.Request) {
	var envelope domain.STKCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("timeout body undecodable", zap.Error(err))
		response.Raw(w, http.StatusOK, domain.AckFailed)
		return
	}

	if _, err := h.reconciler.ApplyTimeout(r.Context(), &envelope.Body.StkCallback); err != nil {
		h.logger.Error("timeout apply failed",
			zap.String("merchant_request_id", envelope.Body.StkCallback.MerchantRequestID),
			zap.Error(err))
	}
	response.Raw(w, http.StatusOK, domain.AckSuccess)
}

// signatureValid compares in constant time to keep the comparison from
// leaking where the values diverge.
func signatureValid(got, want string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
