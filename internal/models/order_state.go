package models

import "fmt"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderPaid, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

func (s OrderStatus) valid() bool {
	return s == OrderPending || s.Terminal()
}

// TransitionOrder decides whether an order may move from current to target.
// It returns changed=false with a nil error when the order is already in
// target, which makes repeated requests no-ops. Only pending can move, and
// only to a terminal state; everything else is ErrInvalidState.
func TransitionOrder(current, target OrderStatus) (changed bool, err error) {
	if !current.valid() || !target.valid() {
		return false, fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidState, current, target)
	}
	if current == target {
		return false, nil
	}
	if current == OrderPending && target.Terminal() {
		return true, nil
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidState, current, target)
}
