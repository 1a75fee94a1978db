package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance document. The document id is the user id,
// so there is exactly one wallet per user.
type Wallet struct {
	UserID        string          `bson:"_id" json:"user_id"`
	Balance       decimal.Decimal `bson:"balance" json:"balance"`
	FrozenAmount  decimal.Decimal `bson:"frozen_amount" json:"frozen_amount"`
	TotalRecharge decimal.Decimal `bson:"total_recharge" json:"total_recharge"`
	TotalConsume  decimal.Decimal `bson:"total_consume" json:"total_consume"`
	Transactions  []Transaction   `bson:"transactions" json:"transactions"`
	Version       int64           `bson:"version" json:"-"`
	CreatedAt     time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at" json:"updated_at"`
}

func NewWallet(userID string, now time.Time) *Wallet {
	return &Wallet{
		UserID:        userID,
		Balance:       decimal.Zero,
		FrozenAmount:  decimal.Zero,
		TotalRecharge: decimal.Zero,
		TotalConsume:  decimal.Zero,
		Transactions:  []Transaction{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AvailableBalance is the spendable part of the balance.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	return w.Balance.Sub(w.FrozenAmount)
}

// Apply folds a completed transaction into the balance fields and appends it.
// Pending entries are appended without touching the balance.
func (w *Wallet) Apply(txn Transaction) error {
	if !txn.Amount.IsPositive() {
		return fmt.Errorf("%w: transaction amount must be positive, got %s", ErrInvalidAmount, txn.Amount)
	}
	sign, err := txn.Kind.Delta()
	if err != nil {
		return err
	}
	if txn.Status == TransactionCompleted {
		next := w.Balance.Add(txn.Amount.Mul(decimal.NewFromInt(int64(sign))))
		if next.LessThan(w.FrozenAmount) || next.IsNegative() {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, w.AvailableBalance(), txn.Amount)
		}
		w.Balance = next
		switch txn.Kind {
		case TransactionRecharge:
			w.TotalRecharge = w.TotalRecharge.Add(txn.Amount)
		case TransactionConsume:
			w.TotalConsume = w.TotalConsume.Add(txn.Amount)
		}
	}
	w.Transactions = append(w.Transactions, txn)
	w.UpdatedAt = txn.CreatedAt
	return nil
}

// LedgerBalance recomputes the balance from completed transactions only.
func (w *Wallet) LedgerBalance() (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, txn := range w.Transactions {
		if txn.Status != TransactionCompleted {
			continue
		}
		sign, err := txn.Kind.Delta()
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(txn.Amount.Mul(decimal.NewFromInt(int64(sign))))
	}
	return sum, nil
}

// Validate checks 0 <= frozen <= balance.
func (w *Wallet) Validate() error {
	if w.Balance.IsNegative() {
		return fmt.Errorf("wallet %s: negative balance %s", w.UserID, w.Balance)
	}
	if w.FrozenAmount.IsNegative() || w.FrozenAmount.GreaterThan(w.Balance) {
		return fmt.Errorf("wallet %s: frozen amount %s outside [0, %s]", w.UserID, w.FrozenAmount, w.Balance)
	}
	return nil
}
