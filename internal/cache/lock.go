package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NotificationLock is a short-lived lock shared by every worker, taken while
// one of them reconciles a gateway notification for an order.
type NotificationLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewNotificationLock(client redis.UniversalClient, ttl time.Duration) *NotificationLock {
	return &NotificationLock{client: client, ttl: ttl}
}

func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func key(orderID string) string {
	return "payment:notify:" + orderID
}

// releaseScript deletes the lock only if it still holds the caller's token,
// so a worker whose lock expired cannot drop one another worker now holds.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *NotificationLock) Acquire(ctx context.Context, orderID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key(orderID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire notification lock %s: %w", orderID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *NotificationLock) Release(ctx context.Context, orderID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key(orderID)}, token).Err(); err != nil {
		return fmt.Errorf("release notification lock %s: %w", orderID, err)
	}
	return nil
}
