// internal/domain/tenant.go
package domain

import (
	"context"
	"net/url"
	"strconv"
)

type Environment string

const (
	EnvSandbox Environment = "sandbox"
	EnvLive    Environment = "live"
)

// IdentifierType selects how the business shortcode is addressed on the
// Daraja side. Values are the provider's own identifier codes.
type IdentifierType int

const (
	IdentifierTill    IdentifierType = 2
	IdentifierPaybill IdentifierType = 4
)

// DefaultTenantID selects the merchant's own credentials when no
// marketplace vendor is involved.
const DefaultTenantID int64 = 0

// TenantConfig is the resolved credential bundle for one merchant or
// marketplace vendor. It is immutable once resolved for a request; every
// component receives it as an explicit value rather than reading ambient
// process state.
type TenantConfig struct {
	Env       Environment
	AppKey    string
	AppSecret string

	// HeadOffice is the store number used for STK password derivation and
	// C2B URL registration; ShortCode is the customer-facing till/paybill.
	// In sandbox both are usually the same code.
	HeadOffice     string
	ShortCode      string
	IdentifierType IdentifierType
	Passkey        string

	// Initiator credentials for the reversal API. InitiatorPassword is
	// encrypted against the environment certificate before it goes on the
	// wire and must never be logged.
	Initiator         string
	InitiatorPassword string
	CertPath          string

	// AccountReference overrides the account number shown on the STK
	// prompt. Empty means the order id is used.
	AccountReference string

	// Signature guards the reconcile callback URL.
	Signature string

	// CompletionStatus is the status orders take on a fully confirmed
	// payment. Zero value means StatusCompleted.
	CompletionStatus OrderStatus

	// CallbackBaseURL is the public origin the provider delivers webhooks
	// to, e.g. https://shop.example.com.
	CallbackBaseURL string

	// APIBase overrides the environment-derived provider origin. Used for
	// sandboxed test servers; leave empty in production.
	APIBase string
}

// APIOrigin returns the provider origin for this tenant's environment.
func (t TenantConfig) APIOrigin() string {
	if t.APIBase != "" {
		return t.APIBase
	}
	if t.Env == EnvLive {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// TransactionType maps the identifier type to the STK transaction type.
func (t TenantConfig) TransactionType() string {
	if t.IdentifierType == IdentifierTill {
		return "BuyGoodsOnline"
	}
	return "CustomerPayBillOnline"
}

// Completion returns the configured post-payment status.
func (t TenantConfig) Completion() OrderStatus {
	if t.CompletionStatus == "" {
		return StatusCompleted
	}
	return t.CompletionStatus
}

// Webhook URL builders. The provider delivers every callback to the same
// endpoint; the action parameter selects the handler.

func (t TenantConfig) ValidationURL() string {
	return t.CallbackBaseURL + "/wc-api/lipwa?action=validate&sign=" + url.QueryEscape(t.Signature)
}

func (t TenantConfig) ConfirmationURL() string {
	return t.CallbackBaseURL + "/wc-api/lipwa?action=confirm&sign=" + url.QueryEscape(t.Signature)
}

func (t TenantConfig) ReconcileURL(orderID int64) string {
	u := t.CallbackBaseURL + "/wc-api/lipwa?action=reconcile&sign=" + url.QueryEscape(t.Signature)
	if orderID > 0 {
		u += "&order=" + strconv.FormatInt(orderID, 10)
	}
	return u
}

func (t TenantConfig) ResultURL() string {
	return t.CallbackBaseURL + "/wc-api/lipwa?action=result"
}

func (t TenantConfig) TimeoutURL() string {
	return t.CallbackBaseURL + "/wc-api/lipwa?action=timeout"
}

// TenantResolver produces the credential bundle for a tenant id.
// Id 0 resolves to the merchant's default configuration.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID int64) (TenantConfig, error)
}
