package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/db"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
)

// MongoStore keeps one document per wallet and one per order. Atomic units
// are MongoDB multi-document transactions with snapshot reads, so two units
// touching the same wallet cannot both commit.
type MongoStore struct {
	client  *mongo.Client
	wallets *mongo.Collection
	orders  *mongo.Collection
	now     func() time.Time
}

func NewMongoStore(client *mongo.Client, database *mongo.Database) *MongoStore {
	return &MongoStore{
		client:  client,
		wallets: database.Collection(db.WalletsCollection),
		orders:  database.Collection(db.OrdersCollection),
		now:     time.Now,
	}
}

func (s *MongoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return retryConflicts(ctx, func() error {
		sess, err := s.client.StartSession()
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, fn(sc, s)
		}, txnOpts)
		return err
	})
}

var walletNoHistory = options.FindOne().SetProjection(bson.M{"transactions": 0})

// Wallet satisfies both Tx (history not loaded) and Store (history loaded);
// the session context tells the two apart.
func (s *MongoStore) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	opts := options.FindOne()
	if mongo.SessionFromContext(ctx) != nil {
		opts = walletNoHistory
	}

	var w models.Wallet
	err := s.wallets.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewWallet(userID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch wallet %s: %w", userID, err)
	}
	if w.Transactions == nil {
		w.Transactions = []models.Transaction{}
	}
	return &w, nil
}

func (s *MongoStore) SaveWallet(ctx context.Context, w *models.Wallet, appended ...models.Transaction) error {
	if appended == nil {
		appended = []models.Transaction{}
	}
	now := s.now()

	if w.Version == 0 {
		doc := *w
		doc.Transactions = appended
		doc.Version = 1
		doc.UpdatedAt = now
		if _, err := s.wallets.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert wallet %s: %w", w.UserID, err)
		}
		w.Version = 1
		w.UpdatedAt = now
		return nil
	}

	update := bson.M{
		"$set": bson.M{
			"balance":        w.Balance,
			"frozen_amount":  w.FrozenAmount,
			"total_recharge": w.TotalRecharge,
			"total_consume":  w.TotalConsume,
			"updated_at":     now,
		},
		"$inc": bson.M{"version": 1},
	}
	if len(appended) > 0 {
		update["$push"] = bson.M{"transactions": bson.M{"$each": appended}}
	}

	res, err := s.wallets.UpdateOne(ctx, bson.M{"_id": w.UserID, "version": w.Version}, update)
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", w.UserID, err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (s *MongoStore) Order(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	if err := s.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return &o, nil
}

func (s *MongoStore) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *MongoStore) UpdateOrder(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	res, err := s.orders.ReplaceOne(ctx, bson.M{"_id": order.ID, "status": from}, order)
	if err != nil {
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (s *MongoStore) ListOrdersByUser(ctx context.Context, userID string, limit int64) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	return s.findOrders(ctx, bson.M{"user_id": userID}, opts)
}

func (s *MongoStore) ListPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Order, error) {
	filter := bson.M{
		"status":         models.OrderPending,
		"payment_method": models.PaymentGateway,
		"created_at":     bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(limit)
	return s.findOrders(ctx, filter, opts)
}

func (s *MongoStore) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cur.Close(ctx)

	orders := []models.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}
