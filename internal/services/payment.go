package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/events"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/gateway"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/metrics"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/store"
)

// SessionProvider is the charging-session service as far as payments are
// concerned. MarkSessionPaid is called inside the payment's atomic unit.
type SessionProvider interface {
	GetSession(ctx context.Context, sessionID, userID string) (*models.ChargingSession, error)
	MarkSessionPaid(ctx context.Context, sessionID string) error
}

// NotificationLocker serialises workers handling notifications for the same
// order. Correctness does not depend on it. Acquire returns a token that
// Release must present, so only the holder can release.
type NotificationLocker interface {
	Acquire(ctx context.Context, orderID string) (token string, ok bool, err error)
	Release(ctx context.Context, orderID, token string) error
}

type PaymentConfig struct {
	RechargeMin decimal.Decimal
	RechargeMax decimal.Decimal
	ChargingMax decimal.Decimal
	NotifyURL   string
	ReturnURL   string
}

type PaymentService struct {
	store     store.Store
	ledger    *WalletLedger
	gateway   gateway.Client
	sessions  SessionProvider
	publisher events.Publisher
	locker    NotificationLocker
	cfg       PaymentConfig
	logger    *zap.Logger
	now       func() time.Time

	lockWait       time.Duration
	publishTimeout time.Duration
}

const (
	defaultLockWait       = 2 * time.Second
	defaultPublishTimeout = 3 * time.Second
	lockPollInterval      = 50 * time.Millisecond
)

type Option func(*PaymentService)

func WithNotificationLocker(l NotificationLocker) Option {
	return func(s *PaymentService) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) {
		s.now = now
		s.ledger.now = now
	}
}

func NewPaymentService(st store.Store, ledger *WalletLedger, gw gateway.Client, sessions SessionProvider, publisher events.Publisher, cfg PaymentConfig, logger *zap.Logger, opts ...Option) *PaymentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &PaymentService{
		store:     st,
		ledger:    ledger,
		gateway:   gw,
		sessions:  sessions,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,

		lockWait:       defaultLockWait,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOrderRequest struct {
	UserID        string
	Amount        decimal.Decimal
	Kind          models.OrderKind
	PaymentMethod models.PaymentMethod
	SessionID     string
	Description   string
}

type CreateOrderResult struct {
	Order *models.Order `json:"order"`
	// RemainingBalance is set for balance payments.
	RemainingBalance *decimal.Decimal `json:"remaining_balance,omitempty"`
	// RedirectURL is set for gateway payments.
	RedirectURL string `json:"redirect_url,omitempty"`
}

// CreateOrder validates the request and either pays it from the wallet in
// one atomic unit or opens a gateway payment and leaves the order pending.
func (s *PaymentService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Description = strings.TrimSpace(req.Description)

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if req.Kind == models.OrderCharging && req.SessionID != "" {
		if err := s.checkSession(ctx, req.SessionID, req.UserID, req.Amount); err != nil {
			return nil, err
		}
	}

	order := s.newOrder(req)
	metrics.OrdersCreated.WithLabelValues(string(order.Kind), string(order.PaymentMethod)).Inc()

	if order.PaymentMethod == models.PaymentBalance {
		return s.payFromBalance(ctx, order)
	}
	return s.payThroughGateway(ctx, order)
}

func (s *PaymentService) validateRequest(req CreateOrderRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidRequest)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown order kind %q", models.ErrInvalidRequest, req.Kind)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", models.ErrInvalidRequest, req.PaymentMethod)
	}
	if req.Kind == models.OrderRecharge && req.PaymentMethod == models.PaymentBalance {
		return fmt.Errorf("%w: recharge must be paid through the gateway", models.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidAmount)
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", models.ErrInvalidAmount)
	}

	switch req.Kind {
	case models.OrderRecharge:
		if req.Amount.LessThan(s.cfg.RechargeMin) || req.Amount.GreaterThan(s.cfg.RechargeMax) {
			return fmt.Errorf("%w: recharge amount must be between %s and %s", models.ErrInvalidAmount, s.cfg.RechargeMin, s.cfg.RechargeMax)
		}
	case models.OrderCharging:
		if req.Amount.GreaterThan(s.cfg.ChargingMax) {
			return fmt.Errorf("%w: charging amount exceeds %s", models.ErrInvalidAmount, s.cfg.ChargingMax)
		}
	}
	return nil
}

func (s *PaymentService) checkSession(ctx context.Context, sessionID, userID string, amount decimal.Decimal) error {
	session, err := s.sessions.GetSession(ctx, sessionID, userID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: session %s does not exist", models.ErrInvalidSession, sessionID)
	}
	if err != nil {
		return fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	if session.Status != models.SessionCompleted {
		return fmt.Errorf("%w: session %s is %s, not completed", models.ErrInvalidSession, sessionID, session.Status)
	}
	if session.PaymentStatus == models.SessionPaid {
		return fmt.Errorf("%w: session %s", models.ErrAlreadyPaid, sessionID)
	}
	if !amount.Equal(session.Cost) {
		return fmt.Errorf("%w: session %s costs %s, order is for %s", models.ErrInvalidAmount, sessionID, session.Cost, amount)
	}
	return nil
}

func (s *PaymentService) newOrder(req CreateOrderRequest) *models.Order {
	prefix := "CHG-"
	if req.Kind == models.OrderRecharge {
		prefix = "RCH-"
	}
	description := req.Description
	if description == "" {
		description = defaultDescription(req.Kind, req.SessionID)
	}
	now := s.now()
	return &models.Order{
		ID:            prefix + ulid.Make().String(),
		UserID:        req.UserID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Status:        models.OrderPending,
		PaymentMethod: req.PaymentMethod,
		Description:   description,
		SessionID:     req.SessionID,
		Metadata:      map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func defaultDescription(kind models.OrderKind, sessionID string) string {
	if kind == models.OrderRecharge {
		return "Wallet recharge"
	}
	if sessionID != "" {
		return "Charging session " + sessionID
	}
	return "Charging payment"
}

func (s *PaymentService) payFromBalance(ctx context.Context, order *models.Order) (*CreateOrderResult, error) {
	var wallet *models.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o := *order
		if o.SessionID != "" {
			if err := s.checkSession(ctx, o.SessionID, o.UserID, o.Amount); err != nil {
				return err
			}
		}
		w, err := s.applyPaymentEffect(ctx, tx, &o)
		if err != nil {
			return err
		}
		if err := markPaid(&o, s.now()); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		*order = o
		wallet = w
		return nil
	})
	if err != nil {
		s.logger.Info("balance payment rejected",
			zap.String("user_id", order.UserID),
			zap.String("amount", order.Amount.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("order paid from balance",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("transaction_id", order.TransactionID))
	s.publish(ctx, events.OrderPaid, order)

	remaining := wallet.AvailableBalance()
	return &CreateOrderResult{Order: order, RemainingBalance: &remaining}, nil
}

func (s *PaymentService) payThroughGateway(ctx context.Context, order *models.Order) (*CreateOrderResult, error) {
	if err := s.store.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	redirectURL, err := s.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntent{
		OrderID:     order.ID,
		Amount:      order.Amount,
		Description: order.Description,
		NotifyURL:   s.cfg.NotifyURL,
		ReturnURL:   s.cfg.ReturnURL,
	})
	if err != nil {
		s.logger.Error("gateway payment intent failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		if _, cancelErr := s.cancel(ctx, order.ID, "gateway unavailable"); cancelErr != nil {
			s.logger.Error("failed to cancel order after gateway error",
				zap.String("order_id", order.ID),
				zap.Error(cancelErr))
		}
		return nil, fmt.Errorf("create gateway payment: %w", err)
	}

	updated := *order
	updated.CheckoutURL = redirectURL
	updated.UpdatedAt = s.now()
	switch err := s.store.UpdateOrder(ctx, &updated, models.OrderPending); {
	case err == nil:
		*order = updated
	case errors.Is(err, store.ErrConflict):
		// A notification settled the order before we stored the URL.
		if fresh, ferr := s.store.Order(ctx, order.ID); ferr == nil {
			*order = *fresh
		}
	default:
		s.logger.Warn("failed to store checkout url",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	s.logger.Info("gateway order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("kind", string(order.Kind)))
	return &CreateOrderResult{Order: order, RedirectURL: redirectURL}, nil
}

// applyPaymentEffect is the single place a paid order touches the ledger or
// the charging session. It must run inside the unit that marks the order paid.
func (s *PaymentService) applyPaymentEffect(ctx context.Context, tx store.Tx, order *models.Order) (*models.Wallet, error) {
	var (
		txn *models.Transaction
		w   *models.Wallet
		err error
	)

	switch order.Kind {
	case models.OrderRecharge:
		if order.PaymentMethod != models.PaymentGateway {
			return nil, fmt.Errorf("%w: recharge order %s paid by %s", models.ErrInvalidRequest, order.ID, order.PaymentMethod)
		}
		txn, w, err = s.ledger.credit(ctx, tx, order.UserID, order.Amount, models.TransactionRecharge, order.ID, order.Description)
	case models.OrderCharging:
		if order.PaymentMethod == models.PaymentBalance {
			txn, w, err = s.ledger.debit(ctx, tx, order.UserID, order.Amount, models.TransactionConsume, order.Description, order.ID)
			if err != nil {
				return nil, err
			}
		}
		if order.SessionID != "" {
			if err := s.sessions.MarkSessionPaid(ctx, order.SessionID); err != nil {
				if !errors.Is(err, models.ErrAlreadyPaid) || order.PaymentMethod == models.PaymentBalance {
					return nil, err
				}
				// The gateway already took the money; keep the order paid
				// and flag it for a manual refund.
				s.logger.Error("gateway paid a session that was already paid",
					zap.String("order_id", order.ID),
					zap.String("session_id", order.SessionID))
				order.Metadata["session_conflict"] = "already_paid"
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown order kind %q", models.ErrInvalidRequest, order.Kind)
	}
	if err != nil {
		return nil, err
	}
	if txn != nil {
		order.TransactionID = txn.ID
	}
	return w, nil
}

func markPaid(order *models.Order, now time.Time) error {
	if _, err := models.TransitionOrder(order.Status, models.OrderPaid); err != nil {
		return err
	}
	order.Status = models.OrderPaid
	order.PaidAt = &now
	order.UpdatedAt = now
	return nil
}

// settleOrder moves a pending order to paid and applies its effect, all in
// one unit. The order is re-read inside the unit, so a concurrent or repeated
// settlement finds it paid and does nothing; settled reports which case won.
func (s *PaymentService) settleOrder(ctx context.Context, orderID, externalID string, fields map[string]string) (order *models.Order, settled bool, err error) {
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		changed, err := models.TransitionOrder(o.Status, models.OrderPaid)
		if err != nil {
			return err
		}
		if !changed {
			order, settled = o, false
			return nil
		}

		if o.Metadata == nil {
			o.Metadata = map[string]string{}
		}
		if _, err := s.applyPaymentEffect(ctx, tx, o); err != nil {
			return err
		}
		if externalID != "" {
			o.ExternalID = externalID
		}
		for k, v := range fields {
			o.Metadata["gateway_"+k] = v
		}
		if err := markPaid(o, s.now()); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o, models.OrderPending); err != nil {
			return err
		}
		order, settled = o, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if settled {
		s.publish(ctx, events.OrderPaid, order)
	}
	return order, settled, nil
}

// HandleGatewayNotification reconciles one gateway notification. The result
// is the only thing the gateway sees: true stops its retries, false asks it
// to deliver again.
func (s *PaymentService) HandleGatewayNotification(ctx context.Context, n gateway.Notification) bool {
	log := s.logger.With(
		zap.String("order_id", n.OrderID),
		zap.String("external_id", n.ExternalID),
		zap.String("gateway_status", string(n.Status)))

	if !s.gateway.VerifySignature(n) {
		log.Warn("rejecting notification", zap.Error(models.ErrSignatureInvalid))
		metrics.WebhookNotifications.WithLabelValues("signature_invalid").Inc()
		return false
	}

	order, err := s.store.Order(ctx, n.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("notification for unknown order, acknowledging")
		metrics.WebhookNotifications.WithLabelValues("unknown_order").Inc()
		return true
	}
	if err != nil {
		log.Error("failed to load order for notification", zap.Error(err))
		metrics.WebhookNotifications.WithLabelValues("error").Inc()
		return false
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(n.Amount))
	if err != nil || !amount.Equal(order.Amount) {
		log.Warn("rejecting notification",
			zap.Error(models.ErrAmountMismatch),
			zap.String("notified_amount", n.Amount),
			zap.String("order_amount", order.Amount.String()))
		metrics.WebhookNotifications.WithLabelValues("amount_mismatch").Inc()
		return false
	}

	if n.Status != gateway.StatusSucceeded {
		log.Info("acknowledging non-success notification", zap.String("order_status", string(order.Status)))
		metrics.WebhookNotifications.WithLabelValues("ignored").Inc()
		return true
	}
	if order.Status == models.OrderPaid {
		log.Info("duplicate notification for paid order")
		metrics.WebhookNotifications.WithLabelValues("duplicate").Inc()
		return true
	}

	if s.locker != nil {
		token, ok, err := s.locker.Acquire(ctx, order.ID)
		switch {
		case err != nil:
			log.Warn("notification lock unavailable, continuing without it", zap.Error(err))
		case !ok:
			// Another worker is settling this order. Give it a moment to
			// commit; settleOrder re-reads and accepts the duplicate either way.
			log.Info("notification for this order is being handled elsewhere, waiting")
			s.awaitSettlement(ctx, order.ID)
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), order.ID, token); err != nil {
					log.Warn("failed to release notification lock", zap.Error(err))
				}
			}()
		}
	}

	_, settled, err := s.settleOrder(ctx, order.ID, n.ExternalID, n.Fields)
	switch {
	case errors.Is(err, models.ErrInvalidState):
		// Paid at the gateway after we gave up on it. Retrying cannot help.
		log.Error("payment succeeded for an order that is no longer pending", zap.Error(err))
		metrics.WebhookNotifications.WithLabelValues("invalid_state").Inc()
		return true
	case err != nil:
		log.Error("failed to settle order", zap.Error(err))
		metrics.WebhookNotifications.WithLabelValues("error").Inc()
		return false
	case !settled:
		log.Info("order settled concurrently, nothing to do")
		metrics.WebhookNotifications.WithLabelValues("duplicate").Inc()
		return true
	}

	log.Info("order paid through gateway", zap.String("kind", string(order.Kind)))
	metrics.WebhookNotifications.WithLabelValues("settled").Inc()
	return true
}

// awaitSettlement polls the order until it leaves pending or lockWait runs
// out.
func (s *PaymentService) awaitSettlement(ctx context.Context, orderID string) {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-ticker.C:
			order, err := s.store.Order(ctx, orderID)
			if err == nil && order.Status != models.OrderPending {
				return
			}
		}
	}
}

// CancelOrder cancels a pending order owned by userID. Cancelling a
// cancelled order is a no-op; a paid one is ErrInvalidState. A gateway
// order's intent is expired first, and if the gateway reports it paid the
// order is settled instead.
func (s *PaymentService) CancelOrder(ctx context.Context, orderID, userID, reason string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		return order, nil
	}
	if order.Status == models.OrderPending && order.PaymentMethod == models.PaymentGateway {
		status, err := s.expireIntent(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if status == gateway.StatusSucceeded {
			if _, _, err := s.settleOrder(ctx, orderID, "", map[string]string{"source": "status_query"}); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: order %s was paid before it could be cancelled", models.ErrInvalidState, orderID)
		}
	}
	return s.cancel(ctx, orderID, reason)
}

const maxCancelAttempts = 3

func (s *PaymentService) cancel(ctx context.Context, orderID, reason string) (*models.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.store.Order(ctx, orderID)
		if err != nil {
			return nil, notFound(err, orderID)
		}
		changed, err := models.TransitionOrder(order.Status, models.OrderCancelled)
		if err != nil {
			return nil, err
		}
		if !changed {
			return order, nil
		}

		order.Status = models.OrderCancelled
		order.CancelReason = reason
		order.UpdatedAt = s.now()
		err = s.store.UpdateOrder(ctx, order, models.OrderPending)
		if errors.Is(err, store.ErrConflict) && attempt < maxCancelAttempts {
			// Someone else moved it; re-evaluate against the new status.
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("order cancelled",
			zap.String("order_id", order.ID),
			zap.String("reason", reason))
		s.publish(ctx, events.OrderCancelled, order)
		return order, nil
	}
}

// expireIntent makes sure the gateway will not accept a payment for the
// order any more. An intent the gateway does not know counts as expired.
func (s *PaymentService) expireIntent(ctx context.Context, orderID string) (gateway.Status, error) {
	status, err := s.gateway.ExpirePaymentIntent(ctx, orderID)
	if err != nil {
		return status, fmt.Errorf("expire gateway payment: %w", err)
	}
	switch status {
	case gateway.StatusUnknown:
		return gateway.StatusExpired, nil
	case gateway.StatusPending:
		return status, fmt.Errorf("gateway still accepts payment for order %s", orderID)
	}
	return status, nil
}

// SyncOrder asks the gateway about a pending gateway order and applies the
// answer, recovering payments whose notification never arrived.
func (s *PaymentService) SyncOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, order, "")
}

func (s *PaymentService) sync(ctx context.Context, order *models.Order, cancelReason string) (*models.Order, error) {
	if order.Status != models.OrderPending || order.PaymentMethod != models.PaymentGateway {
		return order, nil
	}

	status, err := s.gateway.QueryStatus(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("query gateway status: %w", err)
	}

	if cancelReason != "" && (status == gateway.StatusPending || status == gateway.StatusUnknown) {
		if status, err = s.expireIntent(ctx, order.ID); err != nil {
			return nil, err
		}
	}

	switch status {
	case gateway.StatusSucceeded:
		settledOrder, _, err := s.settleOrder(ctx, order.ID, "", map[string]string{"source": "status_query"})
		return settledOrder, err
	case gateway.StatusExpired, gateway.StatusFailed:
		reason := "gateway reported " + string(status)
		if cancelReason != "" {
			reason = cancelReason
		}
		return s.cancel(ctx, order.ID, reason)
	}
	return order, nil
}

// ExpirePendingOrders closes gateway orders that stayed pending for longer
// than olderThan. Each is checked with the gateway first so a late payment
// is settled rather than cancelled, and a still-payable intent is expired at
// the gateway before the order is cancelled. Orders the gateway will not
// expire stay pending for the next sweep. It returns how many it closed.
func (s *PaymentService) ExpirePendingOrders(ctx context.Context, olderThan time.Duration, limit int64) (int, error) {
	orders, err := s.store.ListPendingOrdersBefore(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range orders {
		order, err := s.sync(ctx, &orders[i], "expired")
		if err != nil {
			s.logger.Warn("failed to expire pending order",
				zap.String("order_id", orders[i].ID),
				zap.Error(err))
			continue
		}
		if order.Status != models.OrderPending {
			closed++
		}
	}
	return closed, nil
}

func (s *PaymentService) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	return s.ownedOrder(ctx, orderID, userID)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (s *PaymentService) ListOrders(ctx context.Context, userID string, limit int64) ([]models.Order, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.store.ListOrdersByUser(ctx, userID, limit)
}

func (s *PaymentService) ownedOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return order, nil
}

func notFound(err error, orderID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return err
}

func (s *PaymentService) publish(ctx context.Context, typ events.Type, order *models.Order) {
	event := events.Event{
		Type:          typ,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Kind:          string(order.Kind),
		PaymentMethod: string(order.PaymentMethod),
		Amount:        order.Amount,
		SessionID:     order.SessionID,
		OccurredAt:    s.now(),
	}
	// Runs after commit, so it must not hold the caller for long.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.EventPublishErrors.Inc()
		s.logger.Warn("failed to publish event",
			zap.String("type", string(typ)),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}
