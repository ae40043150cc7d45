package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{"reconcile", ActionReconcile},
		{"validate", ActionValidate},
		{"confirm", ActionConfirm},
		{"request", ActionRequest},
		{"register", ActionRegister},
		{"status", ActionStatus},
		{"result", ActionResult},
		{"timeout", ActionTimeout},
		{"Reconcile", ActionReconcile},
		{"reconcile/", ActionReconcile},
		{"", ActionUnknown},
		{"b2c", ActionUnknown},
		{"reconcile/extra", ActionUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAction(tt.in), "input %q", tt.in)
	}
}

func TestSTKCallback_Metadata(t *testing.T) {
	raw := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 1500.00},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20191219102115},
						{"Name": "PhoneNumber", "Value": 254708374149}
					]
				}
			}
		}
	}`

	var envelope STKCallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))

	cb := envelope.Body.StkCallback
	assert.Equal(t, 0, cb.ResultCode)
	assert.True(t, cb.HasMetadata())
	assert.Equal(t, "NLJ7RT61SV", cb.MetadataString("MpesaReceiptNumber"))
	// Numeric values render without an exponent.
	assert.Equal(t, "254708374149", cb.MetadataString("PhoneNumber"))
	assert.Equal(t, "", cb.MetadataString("NoSuchItem"))
}

func TestSTKCallback_FailureHasNoMetadata(t *testing.T) {
	raw := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user."
			}
		}
	}`

	var envelope STKCallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.False(t, envelope.Body.StkCallback.HasMetadata())
}

func TestConfirmationPayload(t *testing.T) {
	payload := ConfirmationPayload{
		TransAmount:   "1500.00",
		BillRefNumber: "42",
	}
	assert.Equal(t, 1500.0, payload.Amount())
	assert.Equal(t, int64(42), payload.OrderID())

	payload = ConfirmationPayload{TransAmount: "junk", BillRefNumber: "account-name"}
	assert.Equal(t, 0.0, payload.Amount())
	assert.Equal(t, int64(0), payload.OrderID())
}

func TestResultCallback_ParametersByKey(t *testing.T) {
	raw := `{
		"Result": {
			"ResultType": 0,
			"ResultCode": 0,
			"ResultDesc": "The service request has been accepted successfully.",
			"OriginatorConversationID": "10819-695089-1",
			"ConversationID": "AG_20170727_00004492b1b6d0078fbe",
			"TransactionID": "LGR019G3J2",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "DebitAccountBalance", "Value": "Utility Account|KES|51661.00|51661.00|0.00|0.00"},
					{"Key": "Amount", "Value": 100},
					{"Key": "ReceiptNo", "Value": "LGR919G2AV"}
				]
			}
		}
	}`

	var envelope ResultEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))

	result := envelope.Result
	assert.Equal(t, "10819-695089-1", result.OriginatorConversationID)
	// Projection is keyed, never positional.
	assert.Equal(t, "LGR919G2AV", result.ParameterString("ReceiptNo"))
	assert.Equal(t, "100", result.ParameterString("Amount"))
	assert.Equal(t, "", result.ParameterString("Missing"))
}

func TestTenantConfig_URLs(t *testing.T) {
	cfg := TenantConfig{
		CallbackBaseURL: "https://shop.example.com",
		Signature:       "s3cret+sig",
	}

	assert.Equal(t, "https://shop.example.com/wc-api/lipwa?action=validate&sign=s3cret%2Bsig", cfg.ValidationURL())
	assert.Equal(t, "https://shop.example.com/wc-api/lipwa?action=confirm&sign=s3cret%2Bsig", cfg.ConfirmationURL())
	assert.Equal(t, "https://shop.example.com/wc-api/lipwa?action=reconcile&sign=s3cret%2Bsig&order=42", cfg.ReconcileURL(42))
	assert.Equal(t, "https://shop.example.com/wc-api/lipwa?action=result", cfg.ResultURL())
	assert.Equal(t, "https://shop.example.com/wc-api/lipwa?action=timeout", cfg.TimeoutURL())
}

func TestTenantConfig_Defaults(t *testing.T) {
	cfg := TenantConfig{}
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.APIOrigin())
	assert.Equal(t, StatusCompleted, cfg.Completion())
	assert.Equal(t, "CustomerPayBillOnline", cfg.TransactionType())

	cfg.Env = EnvLive
	cfg.IdentifierType = IdentifierTill
	cfg.CompletionStatus = StatusProcessing
	assert.Equal(t, "https://api.safaricom.co.ke", cfg.APIOrigin())
	assert.Equal(t, StatusProcessing, cfg.Completion())
	assert.Equal(t, "BuyGoodsOnline", cfg.TransactionType())
}

func TestOrderStatus_Reconcilable(t *testing.T) {
	assert.False(t, StatusCompleted.Reconcilable())
	for _, s := range []OrderStatus{StatusPending, StatusProcessing, StatusOnHold, StatusRefunded, StatusFailed} {
		assert.True(t, s.Reconcilable(), "status %s", s)
	}
}
