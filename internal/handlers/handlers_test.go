package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/gateway"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/services"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/store"
)

const (
	testSecret        = "test-secret"
	testCallbackToken = "cb-token"
)

type noSessions struct{}

func (noSessions) GetSession(context.Context, string, string) (*models.ChargingSession, error) {
	return nil, store.ErrNotFound
}

func (noSessions) MarkSessionPaid(context.Context, string) error { return store.ErrNotFound }

type testServer struct {
	router http.Handler
	ledger *services.WalletLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	xendit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          "inv_1",
			"external_id": req["external_id"].(string),
			"status":      "PENDING",
			"invoice_url": "https://checkout.example/inv_1",
		})
	}))
	t.Cleanup(xendit.Close)

	st := store.NewMemoryStore()
	ledger := services.NewWalletLedger(st, logger)
	gw := gateway.NewXenditClient(gateway.XenditConfig{BaseURL: xendit.URL, CallbackToken: testCallbackToken}, logger)
	payments := services.NewPaymentService(st, ledger, gw, noSessions{}, nil, services.PaymentConfig{
		RechargeMin: decimal.NewFromInt(1),
		RechargeMax: decimal.NewFromInt(5000),
		ChargingMax: decimal.NewFromInt(1000),
	}, logger)

	router := NewRouter(
		NewPaymentHandler(payments, logger),
		NewWalletHandler(ledger, logger),
		NewAuthenticator(testSecret),
		logger)
	return &testServer{router: router, ledger: ledger}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (s *testServer) do(t *testing.T, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) webhook(t *testing.T, token string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(raw))
	req.Header.Set("x-callback-token", token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestRechargeThroughWebhook(t *testing.T) {
	s := newTestServer(t)
	auth := bearer(t, "u1")

	rec := s.do(t, http.MethodPost, "/api/orders", auth, map[string]any{
		"amount":         "100.00",
		"kind":           "recharge",
		"payment_method": "gateway",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created services.CreateOrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "https://checkout.example/inv_1", created.RedirectURL)
	assert.Equal(t, models.OrderPending, created.Order.Status)

	payload := map[string]any{
		"id":          "inv_1",
		"external_id": created.Order.ID,
		"status":      "PAID",
		"paid_amount": 100,
	}
	rec = s.webhook(t, "wrong-token", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for i := 0; i < 2; i++ {
		rec = s.webhook(t, testCallbackToken, payload)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/wallet", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet struct {
		Balance          decimal.Decimal `json:"balance"`
		AvailableBalance decimal.Decimal `json:"available_balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, "100", wallet.Balance.String())
	assert.Equal(t, "100", wallet.AvailableBalance.String())

	rec = s.do(t, http.MethodGet, "/api/orders/"+created.Order.ID, auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderPaid, order.Status)

	rec = s.do(t, http.MethodPost, "/api/orders/"+created.Order.ID+"/cancel", auth, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhookRejectsAmountMismatch(t *testing.T) {
	s := newTestServer(t)
	auth := bearer(t, "u1")

	rec := s.do(t, http.MethodPost, "/api/orders", auth, map[string]any{
		"amount":         "100.00",
		"kind":           "recharge",
		"payment_method": "gateway",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created services.CreateOrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.webhook(t, testCallbackToken, map[string]any{
		"id":          "inv_1",
		"external_id": created.Order.ID,
		"status":      "PAID",
		"paid_amount": 50,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.webhook(t, testCallbackToken, map[string]any{
		"external_id": "RCH-DOES-NOT-EXIST",
		"status":      "PAID",
		"paid_amount": 50,
	})
	assert.Equal(t, http.StatusOK, rec.Code, "unknown orders are acknowledged")

	balance, err := s.ledger.GetAvailableBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestOrderEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders", "Bearer not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders", bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateOrderErrorMapping(t *testing.T) {
	s := newTestServer(t)
	auth := bearer(t, "u1")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"non-positive amount", map[string]any{"amount": "0", "kind": "recharge", "payment_method": "gateway"}, http.StatusBadRequest},
		{"recharge from balance", map[string]any{"amount": "10", "kind": "recharge", "payment_method": "balance"}, http.StatusBadRequest},
		{"unknown session", map[string]any{"amount": "10", "kind": "charging", "payment_method": "balance", "session_id": "S1"}, http.StatusBadRequest},
		{"insufficient balance", map[string]any{"amount": "10", "kind": "charging", "payment_method": "balance"}, http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/orders", auth, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(t, http.MethodGet, "/api/orders/CHG-MISSING", auth, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
