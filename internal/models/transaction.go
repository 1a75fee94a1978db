package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionRecharge TransactionKind = "recharge"
	TransactionConsume  TransactionKind = "consume"
	TransactionRefund   TransactionKind = "refund"
	TransactionWithdraw TransactionKind = "withdraw"
)

// Delta returns the sign a completed transaction of this kind applies to the
// balance. Unknown kinds are an error, never a silent zero.
func (k TransactionKind) Delta() (int, error) {
	switch k {
	case TransactionRecharge, TransactionRefund:
		return 1, nil
	case TransactionConsume, TransactionWithdraw:
		return -1, nil
	default:
		return 0, fmt.Errorf("unknown transaction kind %q", string(k))
	}
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction is an immutable ledger entry embedded in its Wallet document.
type Transaction struct {
	ID          string            `bson:"id" json:"id"`
	Kind        TransactionKind   `bson:"kind" json:"kind"`
	Amount      decimal.Decimal   `bson:"amount" json:"amount"`
	Status      TransactionStatus `bson:"status" json:"status"`
	OrderID     string            `bson:"order_id,omitempty" json:"order_id,omitempty"`
	Description string            `bson:"description" json:"description"`
	CreatedAt   time.Time         `bson:"created_at" json:"created_at"`
	CompletedAt *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
