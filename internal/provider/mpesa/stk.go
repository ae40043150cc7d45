// internal/provider/mpesa/stk.go
package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
)

// STKPushRequest is the push-payment request wire format.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
	Remark            string `json:"Remark"`
}

// STKPushResponse is the provider's acknowledgment of a push-payment
// request. Application errors arrive in ErrorCode/ErrorMessage; transport
// failures are folded into the same shape (ErrorCode "1") so callers handle
// both identically.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID,omitempty"`
	CheckoutRequestID   string `json:"CheckoutRequestID,omitempty"`
	ResponseCode        string `json:"ResponseCode,omitempty"`
	ResponseDescription string `json:"ResponseDescription,omitempty"`
	CustomerMessage     string `json:"CustomerMessage,omitempty"`
	ErrorCode           string `json:"errorCode,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`

	// Requested carries the outbound request body for debug display.
	// Populated only when the caller runs in debug mode.
	Requested json.RawMessage `json:"requested,omitempty"`
}

// Accepted reports whether the provider accepted the request for
// processing and issued tracking ids.
func (r *STKPushResponse) Accepted() bool {
	return r.ErrorCode == "" && r.MerchantRequestID != ""
}

// NormalizePhone rewrites a subscriber number into the provider's
// international format: a leading plus is stripped and a leading zero is
// replaced with the country code. "0712345678" becomes "254712345678".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(strings.ReplaceAll(phone, "+", ""))
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}
	return phone
}

// stkPassword derives the request password: base64(shortcode+passkey+timestamp).
func stkPassword(headOffice, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(headOffice + passkey + timestamp))
}

// STKPush sends a push-payment prompt to the customer's phone. The
// asynchronous outcome arrives later on the reconcile webhook; the returned
// tracking ids are the caller's correlation handle and must be persisted on
// the order.
//
// Only token acquisition surfaces as an error. Transport failures calling
// the push endpoint come back inside the response with ErrorCode "1",
// matching provider-reported errors.
func (c *Client) STKPush(ctx context.Context, tenantID int64, cfg domain.TenantConfig, phone string, amount float64, orderID int64, description, remark string, debug bool) (*STKPushResponse, error) {
	token, err := c.tokens.Get(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	phone = NormalizePhone(phone)
	timestamp := time.Now().Format("20060102150405")

	reference := cfg.AccountReference
	if reference == "" {
		reference = fmt.Sprintf("%d", orderID)
	}

	request := STKPushRequest{
		BusinessShortCode: cfg.HeadOffice,
		Password:          stkPassword(cfg.HeadOffice, cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   cfg.TransactionType(),
		Amount:            int64(math.Round(amount)),
		PartyA:            phone,
		PartyB:            cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       cfg.ReconcileURL(orderID),
		AccountReference:  reference,
		TransactionDesc:   description,
		Remark:            remark,
	}

	var response STKPushResponse
	url := cfg.APIOrigin() + "/mpesa/stkpush/v1/processrequest"
	if err := c.postJSON(ctx, token, url, request, &response); err != nil {
		c.logger.Warn("stk push transport failure",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		response = STKPushResponse{ErrorCode: "1", ErrorMessage: err.Error()}
	}

	if debug {
		if body, err := json.Marshal(request); err == nil {
			response.Requested = body
		}
	}

	return &response, nil
}
