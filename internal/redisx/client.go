package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// CachedStatus is the JSON body stored under KeyOrderStatus.
type CachedStatus struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store groups the order-side Redis usages. Redis is a shortcut only;
// Postgres stays the source of truth for every value kept here.
type Store struct {
	RDB redis.Cmdable
}

func (s *Store) OrderStatus(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	raw, err := s.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var cs CachedStatus
	if err := json.Unmarshal(raw, &cs); err != nil {
		return CachedStatus{}, false, err
	}
	return cs, true, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID, status string, at time.Time) error {
	b, err := json.Marshal(CachedStatus{Status: status, UpdatedAt: at.UTC()})
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// PaymentOrder returns the order already created for a gateway payment id.
func (s *Store) PaymentOrder(ctx context.Context, paymentID string) (string, bool, error) {
	id, err := s.RDB.Get(ctx, fmt.Sprintf(KeyIdemPayment, paymentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func (s *Store) RememberPayment(ctx context.Context, paymentID, orderID string) error {
	return s.RDB.Set(ctx, fmt.Sprintf(KeyIdemPayment, paymentID), orderID, TTLIdempotency).Err()
}

func (s *Store) RememberIntent(ctx context.Context, gatewayOrderID string, amountMinor int64) error {
	return s.RDB.Set(ctx, fmt.Sprintf(KeyIntentAmount, gatewayOrderID), amountMinor, TTLIntent).Err()
}

// IntentAmount returns the amount in minor units remembered for a gateway order.
func (s *Store) IntentAmount(ctx context.Context, gatewayOrderID string) (int64, bool, error) {
	n, err := s.RDB.Get(ctx, fmt.Sprintf(KeyIntentAmount, gatewayOrderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// FirstDelivery marks id as seen for service and reports whether this call did it.
func (s *Store) FirstDelivery(ctx context.Context, service, id string) (bool, error) {
	return s.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

// ForgetDelivery undoes FirstDelivery so a failed message can be retried.
func (s *Store) ForgetDelivery(ctx context.Context, service, id string) error {
	return s.RDB.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}
