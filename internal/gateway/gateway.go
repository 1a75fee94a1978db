// Package gateway talks to the external payment gateway. The rest of the
// service only sees the Client interface.
package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps the gateway's invoice status vocabulary onto Status.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending
	case "PAID", "SETTLED", "SUCCEEDED":
		return StatusSucceeded
	case "FAILED":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusUnknown
	}
}

type PaymentIntent struct {
	OrderID     string
	Amount      decimal.Decimal
	Description string
	NotifyURL   string
	ReturnURL   string
}

// Notification is one asynchronous payment result pushed by the gateway.
// OrderID is the merchant reference we sent when creating the intent.
type Notification struct {
	OrderID       string
	ExternalID    string
	Amount        string
	Status        Status
	Fields        map[string]string
	Raw           []byte
	Signature     string
	CallbackToken string
}

type Client interface {
	CreatePaymentIntent(ctx context.Context, intent PaymentIntent) (redirectURL string, err error)
	VerifySignature(n Notification) bool
	QueryStatus(ctx context.Context, orderID string) (Status, error)
	// ExpirePaymentIntent stops a pending intent from being paid and returns
	// its final status. A payment that already went through is reported as
	// StatusSucceeded, not expired.
	ExpirePaymentIntent(ctx context.Context, orderID string) (Status, error)
}
