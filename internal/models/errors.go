package models

import "errors"

// Error taxonomy shared by the ledger, the orchestrator and the HTTP layer.
// Callers wrap these with context and match them with errors.Is.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidSession      = errors.New("invalid charging session")
	ErrAlreadyPaid         = errors.New("already paid")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidState        = errors.New("invalid order state")
	ErrSignatureInvalid    = errors.New("gateway signature invalid")
	ErrAmountMismatch      = errors.New("gateway amount mismatch")
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
)
