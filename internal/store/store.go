// Package store persists wallets and orders and provides the atomic unit of
// work every wallet mutation runs in.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict reports that a document changed between read and write.
	// WithinTx retries the whole unit when it sees it.
	ErrConflict = errors.New("store: write conflict")
)

// Orders is the order access shared by standalone calls and atomic units.
type Orders interface {
	Order(ctx context.Context, orderID string) (*models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	// UpdateOrder replaces the order only if its stored status is still from.
	UpdateOrder(ctx context.Context, order *models.Order, from models.OrderStatus) error
}

// Tx is the store as seen from inside one atomic unit of work.
type Tx interface {
	Orders
	// Wallet returns the user's wallet, or a new empty one if none is stored
	// yet. Its Transactions are not loaded.
	Wallet(ctx context.Context, userID string) (*models.Wallet, error)
	// SaveWallet writes the balance fields of w and appends the given
	// transactions. It fails with ErrConflict if w is stale.
	SaveWallet(ctx context.Context, w *models.Wallet, appended ...models.Transaction) error
}

type Store interface {
	Orders
	// WithinTx runs fn in one all-or-nothing unit. Any error from fn aborts
	// the unit; ErrConflict causes a bounded retry.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Wallet is a standalone read including the transaction history.
	Wallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int64) ([]models.Order, error)
	ListPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Order, error)
}

const maxTxAttempts = 3

func retryConflicts(ctx context.Context, run func() error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if err = run(); !errors.Is(err, ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
