// internal/domain/callback.go
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Action is the declared purpose of an inbound webhook, carried in the
// `action` query parameter of the single callback endpoint.
type Action string

const (
	ActionRequest   Action = "request"
	ActionValidate  Action = "validate"
	ActionConfirm   Action = "confirm"
	ActionReconcile Action = "reconcile"
	ActionRegister  Action = "register"
	ActionStatus    Action = "status"
	ActionResult    Action = "result"
	ActionTimeout   Action = "timeout"
	// ActionUnknown is the explicit fallthrough for malformed or legacy
	// callers; it is answered with a plain validation ack.
	ActionUnknown Action = "unknown"
)

// ParseAction decodes the action query parameter into the closed variant set.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSuffix(s, "/")))
	switch a {
	case ActionRequest, ActionValidate, ActionConfirm, ActionReconcile,
		ActionRegister, ActionStatus, ActionResult, ActionTimeout:
		return a
	default:
		return ActionUnknown
	}
}

// MetadataItem is one Name/Value pair inside STK callback metadata.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// STKCallback is the asynchronous result of a push-payment prompt,
// delivered to the reconcile (and timeout) actions.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// STKCallbackEnvelope is the wire shape wrapping STKCallback.
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// HasMetadata reports whether the provider attached transaction metadata.
// Only successful transactions carry it.
func (c *STKCallback) HasMetadata() bool {
	return len(c.CallbackMetadata.Item) > 0
}

// Metadata flattens CallbackMetadata.Item into a Name -> Value projection.
func (c *STKCallback) Metadata() map[string]any {
	parsed := make(map[string]any, len(c.CallbackMetadata.Item))
	for _, item := range c.CallbackMetadata.Item {
		parsed[item.Name] = item.Value
	}
	return parsed
}

// MetadataString returns a metadata value rendered as a string. Numeric
// values (the provider sends phone numbers as JSON numbers) are formatted
// without an exponent.
func (c *STKCallback) MetadataString(name string) string {
	return anyToString(c.Metadata()[name])
}

// ConfirmationPayload is the C2B confirmation (and validation) body for a
// manual till/paybill payment.
type ConfirmationPayload struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	InvoiceNumber     string `json:"InvoiceNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

// Amount parses TransAmount, which the provider delivers as a string.
func (p *ConfirmationPayload) Amount() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(p.TransAmount), 64)
	return v
}

// OrderID parses BillRefNumber as the merchant order id.
func (p *ConfirmationPayload) OrderID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(p.BillRefNumber), 10, 64)
	return id
}

// ResultParameter is one Key/Value pair inside a Result callback.
type ResultParameter struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

// ResultCallback is the asynchronous outcome of a reversal or transaction
// status query.
type ResultCallback struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
	ResultParameters         struct {
		ResultParameter []ResultParameter `json:"ResultParameter"`
	} `json:"ResultParameters"`
	ReferenceData struct {
		ReferenceItem json.RawMessage `json:"ReferenceItem"`
	} `json:"ReferenceData"`
}

// ResultEnvelope is the wire shape wrapping ResultCallback.
type ResultEnvelope struct {
	Result ResultCallback `json:"Result"`
}

// Parameters projects ResultParameter entries by their declared Key. Each
// named parameter keeps its own value; positional indexing is not reliable
// because the provider does not guarantee parameter order.
func (r *ResultCallback) Parameters() map[string]any {
	parsed := make(map[string]any, len(r.ResultParameters.ResultParameter))
	for _, p := range r.ResultParameters.ResultParameter {
		parsed[p.Key] = p.Value
	}
	return parsed
}

// ParameterString returns a result parameter rendered as a string.
func (r *ResultCallback) ParameterString(key string) string {
	return anyToString(r.Parameters()[key])
}

func anyToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// Ack is the minimal acknowledgment body C2B callbacks expect.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	AckSuccess = Ack{ResultCode: 0, ResultDesc: "Success"}
	AckFailed  = Ack{ResultCode: 1, ResultDesc: "Failed"}
)

// ReconcileAck is the acknowledgment body for the reconcile action.
type ReconcileAck struct {
	ResultCode int    `json:"resultCode"`
	ResultDesc string `json:"resultDesc"`
}

var (
	ReconcileOK     = ReconcileAck{ResultCode: 0, ResultDesc: "Reconciliation successful"}
	ReconcileFailed = ReconcileAck{ResultCode: 1, ResultDesc: "Reconciliation failed"}
)
