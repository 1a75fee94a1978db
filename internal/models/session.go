package models

import "github.com/shopspring/decimal"

type SessionStatus string

const (
	SessionCharging  SessionStatus = "Charging"
	SessionCompleted SessionStatus = "Completed"
	SessionCancelled SessionStatus = "Cancelled"
)

type SessionPaymentStatus string

const (
	SessionUnpaid SessionPaymentStatus = "unpaid"
	SessionPaid   SessionPaymentStatus = "paid"
)

// ChargingSession is the view of a charging session this service needs to
// decide whether it can be paid.
type ChargingSession struct {
	ID            string               `bson:"session_id" json:"session_id"`
	UserID        string               `bson:"user_id" json:"user_id"`
	PileID        string               `bson:"pile_id" json:"pile_id"`
	Status        SessionStatus        `bson:"status" json:"status"`
	PaymentStatus SessionPaymentStatus `bson:"payment_status" json:"payment_status"`
	Cost          decimal.Decimal      `bson:"cost" json:"cost"`
}
