package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCreatePaymentIntentRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RCH-1", req["external_id"])
		assert.Equal(t, 100.5, req["amount"])

		_ = json.NewEncoder(w).Encode(invoiceResponse{ID: "inv_1", Status: "PENDING", InvoiceURL: "https://pay.example/inv_1"})
	}))
	defer srv.Close()

	c := NewXenditClient(XenditConfig{SecretKey: "sk_test", BaseURL: srv.URL}, zaptest.NewLogger(t))
	redirect, err := c.CreatePaymentIntent(context.Background(), PaymentIntent{
		OrderID: "RCH-1",
		Amount:  decimal.RequireFromString("100.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/inv_1", redirect)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreatePaymentIntentDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error_code":"API_VALIDATION_ERROR"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewXenditClient(XenditConfig{BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.CreatePaymentIntent(context.Background(), PaymentIntent{OrderID: "RCH-1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RCH-9", r.URL.Query().Get("external_id"))
		_ = json.NewEncoder(w).Encode([]invoiceResponse{{ID: "inv_9", Status: "SETTLED"}})
	}))
	defer srv.Close()

	c := NewXenditClient(XenditConfig{BaseURL: srv.URL}, zaptest.NewLogger(t))
	status, err := c.QueryStatus(context.Background(), "RCH-9")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"inv_1","external_id":"RCH-1","status":"PAID","paid_amount":100}`)
	c := NewXenditClient(XenditConfig{CallbackToken: "tok", SigningKey: "key"}, zaptest.NewLogger(t))

	header := http.Header{}
	header.Set("x-callback-token", "tok")
	header.Set("x-callback-signature", Sign([]byte("key"), body))
	n, err := ParseNotification(body, header)
	require.NoError(t, err)
	assert.True(t, c.VerifySignature(n))

	tampered := n
	tampered.Raw = []byte(`{"id":"inv_1","external_id":"RCH-1","status":"PAID","paid_amount":1000}`)
	assert.False(t, c.VerifySignature(tampered))

	wrongToken := n
	wrongToken.CallbackToken = "other"
	assert.False(t, c.VerifySignature(wrongToken))
}

func TestParseNotification(t *testing.T) {
	body := []byte(`{"id":"inv_1","external_id":"RCH-1","status":"PAID","amount":100,"paid_amount":"100.00","is_high":false}`)
	n, err := ParseNotification(body, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, "RCH-1", n.OrderID)
	assert.Equal(t, "inv_1", n.ExternalID)
	assert.Equal(t, "100.00", n.Amount)
	assert.Equal(t, StatusSucceeded, n.Status)
	assert.Equal(t, "false", n.Fields["is_high"])

	_, err = ParseNotification([]byte(`{"id":"inv_1"}`), http.Header{})
	assert.Error(t, err)
}

func TestExpirePaymentIntent(t *testing.T) {
	var expired int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("external_id") == "RCH-PENDING":
			_ = json.NewEncoder(w).Encode([]invoiceResponse{{ID: "inv_p", Status: "PENDING"}})
		case r.Method == http.MethodGet && r.URL.Query().Get("external_id") == "RCH-PAID":
			_ = json.NewEncoder(w).Encode([]invoiceResponse{{ID: "inv_q", Status: "PAID"}})
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode([]invoiceResponse{})
		case r.Method == http.MethodPost && r.URL.Path == "/invoices/inv_p/expire!":
			atomic.AddInt32(&expired, 1)
			_ = json.NewEncoder(w).Encode(invoiceResponse{ID: "inv_p", Status: "EXPIRED"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewXenditClient(XenditConfig{BaseURL: srv.URL}, zaptest.NewLogger(t))
	ctx := context.Background()

	status, err := c.ExpirePaymentIntent(ctx, "RCH-PENDING")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))

	status, err = c.ExpirePaymentIntent(ctx, "RCH-PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status, "a paid invoice is never expired")

	status, err = c.ExpirePaymentIntent(ctx, "RCH-NONE")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))
}

func TestInvoiceDurationFollowsConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(1800), req["invoice_duration"])
		_ = json.NewEncoder(w).Encode(invoiceResponse{ID: "inv_1", Status: "PENDING", InvoiceURL: "https://pay.example/inv_1"})
	}))
	defer srv.Close()

	c := NewXenditClient(XenditConfig{BaseURL: srv.URL, InvoiceDuration: 30 * time.Minute}, zaptest.NewLogger(t))
	_, err := c.CreatePaymentIntent(context.Background(), PaymentIntent{OrderID: "RCH-1", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
}
