package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/db"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
)

// MongoSessions reads the charging sessions written by the charging service.
// Calls made with a transaction's context join that transaction.
type MongoSessions struct {
	collection *mongo.Collection
}

func NewMongoSessions(database *mongo.Database) *MongoSessions {
	return &MongoSessions{collection: database.Collection(db.SessionsCollection)}
}

func (s *MongoSessions) GetSession(ctx context.Context, sessionID, userID string) (*models.ChargingSession, error) {
	var session models.ChargingSession
	err := s.collection.FindOne(ctx, bson.M{"session_id": sessionID, "user_id": userID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	if session.PaymentStatus == "" {
		session.PaymentStatus = models.SessionUnpaid
	}
	return &session, nil
}

// MarkSessionPaid flips the session to paid exactly once.
func (s *MongoSessions) MarkSessionPaid(ctx context.Context, sessionID string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "payment_status": bson.M{"$ne": models.SessionPaid}},
		bson.M{"$set": bson.M{"payment_status": models.SessionPaid}},
	)
	if err != nil {
		return fmt.Errorf("mark session %s paid: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		n, err := s.collection.CountDocuments(ctx, bson.M{"session_id": sessionID})
		if err != nil {
			return fmt.Errorf("count session %s: %w", sessionID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return models.ErrAlreadyPaid
	}
	return nil
}
