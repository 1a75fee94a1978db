package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderKind string

const (
	OrderCharging OrderKind = "charging"
	OrderRecharge OrderKind = "recharge"
)

func (k OrderKind) Valid() bool {
	return k == OrderCharging || k == OrderRecharge
}

type PaymentMethod string

const (
	PaymentBalance PaymentMethod = "balance"
	PaymentGateway PaymentMethod = "gateway"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentBalance || m == PaymentGateway
}

// Order is one payment attempt. The document id is the order id.
type Order struct {
	ID            string            `bson:"_id" json:"order_id"`
	UserID        string            `bson:"user_id" json:"user_id"`
	Kind          OrderKind         `bson:"kind" json:"kind"`
	Amount        decimal.Decimal   `bson:"amount" json:"amount"`
	Status        OrderStatus       `bson:"status" json:"status"`
	PaymentMethod PaymentMethod     `bson:"payment_method" json:"payment_method"`
	Description   string            `bson:"description" json:"description"`
	SessionID     string            `bson:"session_id,omitempty" json:"session_id,omitempty"`
	TransactionID string            `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	ExternalID    string            `bson:"external_id,omitempty" json:"external_id,omitempty"`
	CheckoutURL   string            `bson:"checkout_url,omitempty" json:"checkout_url,omitempty"`
	Metadata      map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CancelReason  string            `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
	PaidAt        *time.Time        `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}
