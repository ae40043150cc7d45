// internal/provider/mpesa/c2b.go
package mpesa

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
	"mpesa-gateway/pkg/security"
)

// RegisterURLsRequest tells the provider where to deliver C2B validation
// and confirmation callbacks for manual payments.
type RegisterURLsRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

type RegisterURLsResponse struct {
	OriginatorCoversationID string `json:"OriginatorCoversationID,omitempty"`
	ResponseCode            string `json:"ResponseCode,omitempty"`
	ResponseDescription     string `json:"ResponseDescription,omitempty"`
	ErrorCode               string `json:"errorCode,omitempty"`
	ErrorMessage            string `json:"errorMessage,omitempty"`
}

// Registered reports whether the provider accepted the URLs.
func (r *RegisterURLsResponse) Registered() bool {
	return r.ResponseDescription != ""
}

// Description returns a human-readable outcome for admin display.
func (r *RegisterURLsResponse) Description() string {
	if r.Registered() {
		return r.ResponseDescription
	}
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return "Could not register M-PESA URLs, try again later."
}

// RegisterURLs registers this engine's validation and confirmation
// endpoints with the provider. Does not touch order state.
func (c *Client) RegisterURLs(ctx context.Context, tenantID int64, cfg domain.TenantConfig) (*RegisterURLsResponse, error) {
	token, err := c.tokens.Get(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	request := RegisterURLsRequest{
		ShortCode:       cfg.HeadOffice,
		ResponseType:    "Cancelled",
		ConfirmationURL: cfg.ConfirmationURL(),
		ValidationURL:   cfg.ValidationURL(),
	}

	var response RegisterURLsResponse
	url := cfg.APIOrigin() + "/mpesa/c2b/v1/registerurl"
	if err := c.postJSON(ctx, token, url, request, &response); err != nil {
		c.logger.Warn("c2b url registration transport failure", zap.Error(err))
		response = RegisterURLsResponse{ErrorCode: "1", ErrorMessage: err.Error()}
	}
	return &response, nil
}

// ReversalRequest is the transaction reversal wire format. The misspelled
// RecieverIdentifierType field is the provider's own, not ours.
type ReversalRequest struct {
	CommandID              string `json:"CommandID"`
	Initiator              string `json:"Initiator"`
	SecurityCredential     string `json:"SecurityCredential"`
	TransactionID          string `json:"TransactionID"`
	Amount                 int64  `json:"Amount"`
	ReceiverParty          string `json:"ReceiverParty"`
	RecieverIdentifierType int    `json:"RecieverIdentifierType"`
	ResultURL              string `json:"ResultURL"`
	QueueTimeOutURL        string `json:"QueueTimeOutURL"`
	Remarks                string `json:"Remarks"`
	Occasion               string `json:"Occasion"`
}

type ReversalResponse struct {
	OriginatorConversationID string `json:"OriginatorConversationID,omitempty"`
	ConversationID           string `json:"ConversationID,omitempty"`
	ResponseCode             string `json:"ResponseCode,omitempty"`
	ResponseDescription      string `json:"ResponseDescription,omitempty"`
	ErrorCode                string `json:"errorCode,omitempty"`
	ErrorMessage             string `json:"errorMessage,omitempty"`
}

// Accepted reports whether the provider queued the reversal. The final
// outcome arrives later on the result webhook.
func (r *ReversalResponse) Accepted() bool {
	return r.OriginatorConversationID != ""
}

// Reverse submits a transaction reversal. The initiator password is
// encrypted against the environment certificate; when certificate material
// is unavailable or encryption fails the request is not sent at all.
func (c *Client) Reverse(ctx context.Context, tenantID int64, cfg domain.TenantConfig, transaction string, amount float64, receiver string, receiverType int, remarks, occasion string) (*ReversalResponse, error) {
	credential, err := security.SecurityCredentialFromFile(cfg.CertPath, cfg.InitiatorPassword)
	if err != nil {
		return nil, fmt.Errorf("security credential: %w", err)
	}

	token, err := c.tokens.Get(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	request := ReversalRequest{
		CommandID:              "TransactionReversal",
		Initiator:              cfg.Initiator,
		SecurityCredential:     credential,
		TransactionID:          transaction,
		Amount:                 int64(math.Round(amount)),
		ReceiverParty:          NormalizePhone(receiver),
		RecieverIdentifierType: receiverType,
		ResultURL:              cfg.ResultURL(),
		QueueTimeOutURL:        cfg.TimeoutURL(),
		Remarks:                remarks,
		Occasion:               occasion,
	}

	var response ReversalResponse
	url := cfg.APIOrigin() + "/mpesa/reversal/v1/request"
	if err := c.postJSON(ctx, token, url, request, &response); err != nil {
		c.logger.Warn("reversal transport failure",
			zap.String("transaction_id", transaction),
			zap.Error(err))
		response = ReversalResponse{ErrorCode: "1", ErrorMessage: err.Error()}
	}
	return &response, nil
}

// TransactionStatusRequest queries the state of a past transaction.
type TransactionStatusRequest struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	TransactionID      string `json:"TransactionID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     int    `json:"IdentifierType"`
	ResultURL          string `json:"ResultURL"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	Remarks            string `json:"Remarks"`
	Occasion           string `json:"Occasion"`
}

// TransactionStatus submits a status query. The provider answers
// asynchronously on the result webhook; the returned map is the immediate
// acknowledgment passed through to the caller.
func (c *Client) TransactionStatus(ctx context.Context, tenantID int64, cfg domain.TenantConfig, transaction string) (map[string]any, error) {
	credential, err := security.SecurityCredentialFromFile(cfg.CertPath, cfg.InitiatorPassword)
	if err != nil {
		return nil, fmt.Errorf("security credential: %w", err)
	}

	token, err := c.tokens.Get(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	request := TransactionStatusRequest{
		Initiator:          cfg.Initiator,
		SecurityCredential: credential,
		CommandID:          "TransactionStatusQuery",
		TransactionID:      transaction,
		PartyA:             cfg.ShortCode,
		IdentifierType:     int(cfg.IdentifierType),
		ResultURL:          cfg.ResultURL(),
		QueueTimeOutURL:    cfg.TimeoutURL(),
		Remarks:            "Transaction Status Query",
		Occasion:           "Transaction Status Query",
	}

	response := make(map[string]any)
	url := cfg.APIOrigin() + "/mpesa/transactionstatus/v1/query"
	if err := c.postJSON(ctx, token, url, request, &response); err != nil {
		c.logger.Warn("transaction status transport failure",
			zap.String("transaction_id", transaction),
			zap.Error(err))
		response = map[string]any{"errorCode": "1", "errorMessage": err.Error()}
	}
	return response, nil
}
