package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
)

// MemoryStore is a single-writer Store: every atomic unit holds one lock and
// stages its writes, which are published only when fn returns nil. It backs
// the tests and local runs without a replica set.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*models.Wallet
	orders  map[string]*models.Order
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*models.Wallet),
		orders:  make(map[string]*models.Order),
		now:     time.Now,
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return retryConflicts(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx := &memoryTx{
			s:       s,
			wallets: make(map[string]*models.Wallet),
			orders:  make(map[string]*models.Order),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		for id, w := range tx.wallets {
			s.wallets[id] = w
		}
		for id, o := range tx.orders {
			s.orders[id] = o
		}
		return nil
	})
}

func (s *MemoryStore) Wallet(_ context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[userID]; ok {
		return cloneWallet(w), nil
	}
	return models.NewWallet(userID, s.now()), nil
}

func (s *MemoryStore) Order(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) InsertOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return ErrConflict
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, order *models.Order, from models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[order.ID]
	if !ok || cur.Status != from {
		return ErrConflict
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string, limit int64) ([]models.Order, error) {
	return s.listOrders(limit, func(o *models.Order) bool { return o.UserID == userID }, func(a, b *models.Order) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}), nil
}

func (s *MemoryStore) ListPendingOrdersBefore(_ context.Context, cutoff time.Time, limit int64) ([]models.Order, error) {
	return s.listOrders(limit, func(o *models.Order) bool {
		return o.Status == models.OrderPending && o.PaymentMethod == models.PaymentGateway && o.CreatedAt.Before(cutoff)
	}, func(a, b *models.Order) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	}), nil
}

func (s *MemoryStore) listOrders(limit int64, keep func(*models.Order) bool, less func(a, b *models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	if limit > 0 && int64(len(matched)) > limit {
		matched = matched[:limit]
	}

	orders := make([]models.Order, 0, len(matched))
	for _, o := range matched {
		orders = append(orders, *cloneOrder(o))
	}
	return orders
}

type memoryTx struct {
	s       *MemoryStore
	wallets map[string]*models.Wallet
	orders  map[string]*models.Order
}

func (tx *memoryTx) current(userID string) (*models.Wallet, bool) {
	if w, ok := tx.wallets[userID]; ok {
		return w, true
	}
	w, ok := tx.s.wallets[userID]
	return w, ok
}

func (tx *memoryTx) Wallet(_ context.Context, userID string) (*models.Wallet, error) {
	w, ok := tx.current(userID)
	if !ok {
		return models.NewWallet(userID, tx.s.now()), nil
	}
	view := cloneWallet(w)
	view.Transactions = []models.Transaction{}
	return view, nil
}

func (tx *memoryTx) SaveWallet(_ context.Context, w *models.Wallet, appended ...models.Transaction) error {
	cur, ok := tx.current(w.UserID)
	var next *models.Wallet
	switch {
	case !ok && w.Version == 0:
		next = models.NewWallet(w.UserID, w.CreatedAt)
	case ok && cur.Version == w.Version:
		next = cloneWallet(cur)
	default:
		return ErrConflict
	}

	next.Balance = w.Balance
	next.FrozenAmount = w.FrozenAmount
	next.TotalRecharge = w.TotalRecharge
	next.TotalConsume = w.TotalConsume
	next.Transactions = append(next.Transactions, appended...)
	next.Version = w.Version + 1
	next.UpdatedAt = tx.s.now()

	tx.wallets[w.UserID] = next
	w.Version = next.Version
	w.UpdatedAt = next.UpdatedAt
	return nil
}

func (tx *memoryTx) Order(_ context.Context, orderID string) (*models.Order, error) {
	if o, ok := tx.orders[orderID]; ok {
		return cloneOrder(o), nil
	}
	if o, ok := tx.s.orders[orderID]; ok {
		return cloneOrder(o), nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, err := tx.Order(ctx, order.ID); err == nil {
		return ErrConflict
	}
	tx.orders[order.ID] = cloneOrder(order)
	return nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	cur, err := tx.Order(ctx, order.ID)
	if err != nil || cur.Status != from {
		return ErrConflict
	}
	tx.orders[order.ID] = cloneOrder(order)
	return nil
}

func cloneWallet(w *models.Wallet) *models.Wallet {
	c := *w
	c.Transactions = append([]models.Transaction(nil), w.Transactions...)
	if c.Transactions == nil {
		c.Transactions = []models.Transaction{}
	}
	return &c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}
