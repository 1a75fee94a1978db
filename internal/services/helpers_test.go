package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/events"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/gateway"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/store"
)

type fakeGateway struct {
	mu        sync.Mutex
	intents   []gateway.PaymentIntent
	failNext  error
	statuses  map[string]gateway.Status
	expireErr error
	expired   []string
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, intent gateway.PaymentIntent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failNext; err != nil {
		g.failNext = nil
		return "", err
	}
	g.intents = append(g.intents, intent)
	return "https://pay.example/" + intent.OrderID, nil
}

func (g *fakeGateway) VerifySignature(n gateway.Notification) bool {
	return n.Signature == "valid"
}

func (g *fakeGateway) QueryStatus(_ context.Context, orderID string) (gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.statuses[orderID]; ok {
		return st, nil
	}
	return gateway.StatusPending, nil
}

func (g *fakeGateway) ExpirePaymentIntent(_ context.Context, orderID string) (gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return gateway.StatusPending, g.expireErr
	}
	switch st := g.statuses[orderID]; st {
	case gateway.StatusSucceeded, gateway.StatusFailed, gateway.StatusExpired:
		return st, nil
	}
	if g.statuses == nil {
		g.statuses = map[string]gateway.Status{}
	}
	g.statuses[orderID] = gateway.StatusExpired
	g.expired = append(g.expired, orderID)
	return gateway.StatusExpired, nil
}

func (g *fakeGateway) expiredOrders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.expired...)
}

func (g *fakeGateway) setStatus(orderID string, st gateway.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statuses == nil {
		g.statuses = map[string]gateway.Status{}
	}
	g.statuses[orderID] = st
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.ChargingSession
}

func (f *fakeSessions) GetSession(_ context.Context, sessionID, userID string) (*models.ChargingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, store.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) MarkSessionPaid(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if s.PaymentStatus == models.SessionPaid {
		return models.ErrAlreadyPaid
	}
	s.PaymentStatus = models.SessionPaid
	return nil
}

func (f *fakeSessions) add(s models.ChargingSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = map[string]*models.ChargingSession{}
	}
	f.sessions[s.ID] = &s
}

func (f *fakeSessions) paymentStatus(id string) models.SessionPaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].PaymentStatus
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(typ events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	store     *store.MemoryStore
	ledger    *WalletLedger
	payments  *PaymentService
	gateway   *fakeGateway
	sessions  *fakeSessions
	publisher *recordingPublisher
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		store:     store.NewMemoryStore(),
		gateway:   &fakeGateway{},
		sessions:  &fakeSessions{},
		publisher: &recordingPublisher{},
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.ledger = NewWalletLedger(h.store, logger)
	cfg := PaymentConfig{
		RechargeMin: decimal.NewFromInt(1),
		RechargeMax: decimal.NewFromInt(5000),
		ChargingMax: decimal.NewFromInt(1000),
		NotifyURL:   "https://api.example/api/payment/webhook",
		ReturnURL:   "https://app.example/payment/result",
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.payments = NewPaymentService(h.store, h.ledger, h.gateway, h.sessions, h.publisher, cfg, logger, opts...)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, err := h.ledger.Credit(context.Background(), userID, dec(amount), models.TransactionRecharge, "", "seed")
	require.NoError(t, err)
}

func (h *harness) wallet(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	w, err := h.ledger.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

// requireInvariants checks the ledger identity and the frozen bounds.
func (h *harness) requireInvariants(t *testing.T, userID string) {
	t.Helper()
	w := h.wallet(t, userID)
	sum, err := w.LedgerBalance()
	require.NoError(t, err)
	require.True(t, sum.Equal(w.Balance), "balance %s != ledger sum %s", w.Balance, sum)
	require.NoError(t, w.Validate())
}

func successNotification(orderID, amount string) gateway.Notification {
	return gateway.Notification{
		OrderID:    orderID,
		ExternalID: "inv_" + orderID,
		Amount:     amount,
		Status:     gateway.StatusSucceeded,
		Fields:     map[string]string{"status": "PAID"},
		Signature:  "valid",
	}
}

var errGatewayDown = errors.New("gateway down")
