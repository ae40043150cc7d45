package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
	"mpesa-gateway/internal/provider/mpesa"
	"mpesa-gateway/internal/repository"
)

// providerStub serves the token endpoint plus the given API paths.
func providerStub(t *testing.T, paths map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-abc","expires_in":"3599"}`))
	})
	for path, handle := range paths {
		mux.HandleFunc(path, handle)
	}
	return httptest.NewServer(mux)
}

func paymentsFixture(t *testing.T, srvURL string, store *repository.MemoryOrderStore) *Payments {
	t.Helper()
	cfg := domain.TenantConfig{
		Env:             domain.EnvSandbox,
		AppKey:          "key",
		AppSecret:       "secret",
		HeadOffice:      "174379",
		ShortCode:       "174379",
		IdentifierType:  domain.IdentifierPaybill,
		Passkey:         "passkey",
		Initiator:       "apiop",
		CallbackBaseURL: "https://shop.example.com",
		APIBase:         srvURL,
	}
	client := mpesa.NewClient(mpesa.NewTokenCache(mpesa.NewMemoryTokenStore(), zap.NewNop()), zap.NewNop())
	return NewPayments(client, store, repository.StaticTenantResolver{Config: cfg}, nil, "Store", false, zap.NewNop())
}

func TestPayments_Initiate(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/stkpush/v1/processrequest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"MerchantRequestID":"MR-1","CheckoutRequestID":"CR-1","ResponseCode":"0"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusPending, Total: 1500, PaymentMethod: domain.PaymentMethodMpesa})
	p := paymentsFixture(t, srv.URL, store)

	resp, err := p.Initiate(context.Background(), 0, 42, "0712345678")
	require.NoError(t, err)
	assert.True(t, resp.Accepted())

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, "MR-1", order.TrackingID)
	assert.Equal(t, "254712345678", order.BillingPhone)

	note, _ := store.LatestNote(context.Background(), 42)
	assert.Contains(t, note, "Awaiting M-Pesa confirmation")
	assert.Contains(t, note, "MR-1")
}

func TestPayments_Initiate_FallsBackToBillingPhone(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/stkpush/v1/processrequest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"MerchantRequestID":"MR-2","CheckoutRequestID":"CR-2"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusPending, Total: 1500, BillingPhone: "0722000000"})
	p := paymentsFixture(t, srv.URL, store)

	_, err := p.Initiate(context.Background(), 0, 42, "")
	require.NoError(t, err)

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, "254722000000", order.BillingPhone)
}

func TestPayments_Initiate_RejectedRecordsNothing(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/stkpush/v1/processrequest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusPending, Total: 1500})
	p := paymentsFixture(t, srv.URL, store)

	resp, err := p.Initiate(context.Background(), 0, 42, "0712345678")
	require.NoError(t, err)
	assert.False(t, resp.Accepted())
	assert.Equal(t, "400.002.02", resp.ErrorCode)

	order, _ := store.FindByID(context.Background(), 42)
	assert.Empty(t, order.TrackingID)
	assert.Empty(t, store.Notes(42))
}

func TestPayments_Initiate_OrderNotFound(t *testing.T) {
	p := paymentsFixture(t, "http://unused.invalid", repository.NewMemoryOrderStore())

	_, err := p.Initiate(context.Background(), 0, 404, "0712345678")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestPayments_Resend(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/stkpush/v1/processrequest": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"MerchantRequestID":"MR-9","CheckoutRequestID":"CR-9"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusPending, Total: 1500, BillingPhone: "254712345678", TrackingID: "MR-stale"})
	p := paymentsFixture(t, srv.URL, store)

	resp, err := p.Resend(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, resp.Accepted())

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, "MR-9", order.TrackingID)

	note, _ := store.LatestNote(context.Background(), 42)
	assert.Contains(t, note, "STK push resent")
}

func writeCert(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	certPath := filepath.Join(t.TempDir(), "cert.cer")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return certPath
}

func reversalFixture(t *testing.T, srvURL string, store *repository.MemoryOrderStore) *Payments {
	t.Helper()
	cfg := domain.TenantConfig{
		Env:               domain.EnvSandbox,
		AppKey:            "key",
		AppSecret:         "secret",
		HeadOffice:        "174379",
		ShortCode:         "174379",
		Initiator:         "apiop",
		InitiatorPassword: "Safaricom999!*!",
		CertPath:          writeCert(t),
		CallbackBaseURL:   "https://shop.example.com",
		APIBase:           srvURL,
	}
	client := mpesa.NewClient(mpesa.NewTokenCache(mpesa.NewMemoryTokenStore(), zap.NewNop()), zap.NewNop())
	return NewPayments(client, store, repository.StaticTenantResolver{Config: cfg}, nil, "Store", false, zap.NewNop())
}

func TestPayments_ReverseOrder_Accepted(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/reversal/v1/request": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"OriginatorConversationID":"71840-27539181-07","ResponseCode":"0"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{
		ID: 42, Status: domain.StatusCompleted, Total: 1500,
		BillingPhone: "254712345678", TransactionID: "NLJ7RT61SV",
		PaymentMethod: domain.PaymentMethodMpesa,
	})
	p := reversalFixture(t, srv.URL, store)

	require.NoError(t, p.ReverseOrder(context.Background(), 42))

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, domain.StatusRefunded, order.Status)
	// The originator id replaces the tracking id so the result webhook can
	// correlate.
	assert.Equal(t, "71840-27539181-07", order.TrackingID)

	note, _ := store.LatestNote(context.Background(), 42)
	assert.Contains(t, note, "reversal submitted")
}

func TestPayments_ReverseOrder_Rejected(t *testing.T) {
	srv := providerStub(t, map[string]http.HandlerFunc{
		"/mpesa/reversal/v1/request": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"requestId":"1","errorCode":"401.002.01","errorMessage":"Error Occurred - Invalid Access Token"}`))
		},
	})
	defer srv.Close()

	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{
		ID: 42, Status: domain.StatusCompleted, Total: 1500,
		BillingPhone: "254712345678", TransactionID: "NLJ7RT61SV",
		PaymentMethod: domain.PaymentMethodMpesa,
	})
	p := reversalFixture(t, srv.URL, store)

	require.NoError(t, p.ReverseOrder(context.Background(), 42))

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, domain.StatusFailed, order.Status)

	note, _ := store.LatestNote(context.Background(), 42)
	assert.Contains(t, note, "Invalid Access Token")
}

func TestPayments_ReverseOrder_SkipsOtherMethods(t *testing.T) {
	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusCompleted, Total: 1500, PaymentMethod: "card"})
	p := paymentsFixture(t, "http://unused.invalid", store)

	require.NoError(t, p.ReverseOrder(context.Background(), 42))

	order, _ := store.FindByID(context.Background(), 42)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	assert.Empty(t, store.Notes(42))
}

func TestPayments_Receipt(t *testing.T) {
	store := repository.NewMemoryOrderStore()
	store.Put(&domain.Order{ID: 42, Status: domain.StatusCompleted, TransactionID: "NLJ7RT61SV"})
	require.NoError(t, store.AddNote(context.Background(), 42, "Full M-Pesa payment received."))
	p := paymentsFixture(t, "http://unused.invalid", store)

	receipt, note, err := p.Receipt(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "NLJ7RT61SV", receipt)
	assert.Equal(t, "Full M-Pesa payment received.", note)

	_, _, err = p.Receipt(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
