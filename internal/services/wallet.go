package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/metrics"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/store"
)

// WalletLedger is the only code that changes a wallet. Each exported method
// is one atomic unit scoped to one wallet; the unexported variants run inside
// a unit owned by the caller.
type WalletLedger struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewWalletLedger(st store.Store, logger *zap.Logger) *WalletLedger {
	return &WalletLedger{store: st, logger: logger, now: time.Now}
}

// Credit adds a completed recharge or refund. It is not idempotent on its
// own; callers guard it with the order status.
func (l *WalletLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, kind models.TransactionKind, orderID, description string) (*models.Transaction, error) {
	var txn *models.Transaction
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		txn, _, err = l.credit(ctx, tx, userID, amount, kind, orderID, description)
		return err
	})
	l.record("credit", err)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Consume debits a completed consume transaction and returns its id.
func (l *WalletLedger) Consume(ctx context.Context, userID string, amount decimal.Decimal, description, orderID string) (string, error) {
	return l.debitUnit(ctx, "consume", userID, amount, models.TransactionConsume, description, orderID)
}

// Withdraw debits a completed withdraw transaction and returns its id.
func (l *WalletLedger) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, description string) (string, error) {
	return l.debitUnit(ctx, "withdraw", userID, amount, models.TransactionWithdraw, description, "")
}

// Freeze holds amount without debiting it. The hold is recorded as a pending
// consume entry, which leaves the balance untouched. Holds are an audit
// record of the freeze request and stay pending for good; FrozenAmount is the
// authoritative figure.
func (l *WalletLedger) Freeze(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: freeze amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}

	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallet(ctx, userID)
		if err != nil {
			return err
		}
		if w.AvailableBalance().LessThan(amount) {
			return fmt.Errorf("%w: available %s, freeze %s", models.ErrInsufficientBalance, w.AvailableBalance(), amount)
		}

		hold := l.newTransaction(models.TransactionConsume, amount, models.TransactionPending, "", "freeze: "+reason)
		w.FrozenAmount = w.FrozenAmount.Add(amount)
		if err := w.Apply(hold); err != nil {
			return err
		}
		if err := w.Validate(); err != nil {
			return err
		}
		return tx.SaveWallet(ctx, w, hold)
	})
	l.record("freeze", err)
	return err
}

// Unfreeze releases a hold. Releasing more than is frozen clamps to zero;
// that is reported but never fails. It only lowers FrozenAmount and appends
// nothing, so earlier pending holds are left as they were.
func (l *WalletLedger) Unfreeze(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		l.logger.Warn("ignoring non-positive unfreeze",
			zap.String("user_id", userID),
			zap.String("amount", amount.String()))
		return nil
	}

	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallet(ctx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(w.FrozenAmount) {
			metrics.UnfreezeClamped.Inc()
			l.logger.Warn("unfreeze exceeds frozen amount, clamping to zero",
				zap.String("user_id", userID),
				zap.String("frozen", w.FrozenAmount.String()),
				zap.String("requested", amount.String()),
				zap.String("reason", reason))
			w.FrozenAmount = decimal.Zero
		} else {
			w.FrozenAmount = w.FrozenAmount.Sub(amount)
		}
		return tx.SaveWallet(ctx, w)
	})
	l.record("unfreeze", err)
	return err
}

func (l *WalletLedger) GetAvailableBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := l.store.Wallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.AvailableBalance(), nil
}

func (l *WalletLedger) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return l.store.Wallet(ctx, userID)
}

func (l *WalletLedger) debitUnit(ctx context.Context, op, userID string, amount decimal.Decimal, kind models.TransactionKind, description, orderID string) (string, error) {
	var txn *models.Transaction
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		txn, _, err = l.debit(ctx, tx, userID, amount, kind, description, orderID)
		return err
	})
	l.record(op, err)
	if err != nil {
		return "", err
	}
	return txn.ID, nil
}

func (l *WalletLedger) credit(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, kind models.TransactionKind, orderID, description string) (*models.Transaction, *models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: credit amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}
	if sign, err := kind.Delta(); err != nil {
		return nil, nil, err
	} else if sign < 0 {
		return nil, nil, fmt.Errorf("%w: %s is not a credit kind", models.ErrInvalidRequest, kind)
	}
	return l.apply(ctx, tx, userID, l.newTransaction(kind, amount, models.TransactionCompleted, orderID, description))
}

func (l *WalletLedger) debit(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, kind models.TransactionKind, description, orderID string) (*models.Transaction, *models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: debit amount must be positive, got %s", models.ErrInvalidAmount, amount)
	}
	if sign, err := kind.Delta(); err != nil {
		return nil, nil, err
	} else if sign > 0 {
		return nil, nil, fmt.Errorf("%w: %s is not a debit kind", models.ErrInvalidRequest, kind)
	}
	return l.apply(ctx, tx, userID, l.newTransaction(kind, amount, models.TransactionCompleted, orderID, description))
}

func (l *WalletLedger) apply(ctx context.Context, tx store.Tx, userID string, txn models.Transaction) (*models.Transaction, *models.Wallet, error) {
	w, err := tx.Wallet(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := w.Apply(txn); err != nil {
		return nil, nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}
	if err := tx.SaveWallet(ctx, w, txn); err != nil {
		return nil, nil, err
	}
	return &txn, w, nil
}

func (l *WalletLedger) newTransaction(kind models.TransactionKind, amount decimal.Decimal, status models.TransactionStatus, orderID, description string) models.Transaction {
	now := l.now()
	txn := models.Transaction{
		ID:          uuid.NewString(),
		Kind:        kind,
		Amount:      amount,
		Status:      status,
		OrderID:     orderID,
		Description: description,
		CreatedAt:   now,
	}
	if status == models.TransactionCompleted {
		txn.CompletedAt = &now
	}
	return txn
}

func (l *WalletLedger) record(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.LedgerOperations.WithLabelValues(op, result).Inc()
}
