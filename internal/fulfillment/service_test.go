package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

type fakeCache struct {
	status  map[string]redisx.CachedStatus
	seen    map[string]bool
	failSet error
	forgets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{status: map[string]redisx.CachedStatus{}, seen: map[string]bool{}}
}

func (c *fakeCache) OrderStatus(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error) {
	cs, ok := c.status[orderID]
	return cs, ok, nil
}

func (c *fakeCache) SetOrderStatus(ctx context.Context, orderID, status string, at time.Time) error {
	if c.failSet != nil {
		return c.failSet
	}
	c.status[orderID] = redisx.CachedStatus{Status: status, UpdatedAt: at}
	return nil
}

func (c *fakeCache) FirstDelivery(ctx context.Context, service, id string) (bool, error) {
	k := service + ":" + id
	if c.seen[k] {
		return false, nil
	}
	c.seen[k] = true
	return true, nil
}

func (c *fakeCache) ForgetDelivery(ctx context.Context, service, id string) error {
	c.forgets++
	delete(c.seen, service+":"+id)
	return nil
}

type countingObserver map[string]int

func (o countingObserver) ObserveEvent(eventType, result string) { o[eventType+"/"+result]++ }

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func message(t *testing.T, eventType string, at time.Time, payload any) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(context.Background(), eventType, "order-api", "o1", at, payload)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: "order.created", Key: []byte("o1"), Value: b}
}

func newService() (*Service, *fakeCache, countingObserver) {
	c := newFakeCache()
	obs := countingObserver{}
	return &Service{Cache: c, Metrics: obs, ServiceName: "fulfillment"}, c, obs
}

func TestHandleMessage_StatusLifecycle(t *testing.T) {
	svc, cache, obs := newService()
	ctx := context.Background()

	created := orders.OrderCreatedPayload{
		OrderID: "o1", UserID: "u1", Total: decimal.RequireFromString("900"),
		Status: orders.StatusPending, PaymentMethod: orders.PaymentCOD, PaymentStatus: orders.PaymentPending,
	}
	require.NoError(t, svc.HandleMessage(ctx, message(t, orders.EventOrderCreated, t0, created)))
	assert.Equal(t, "PENDING", cache.status["o1"].Status)

	changed := orders.OrderStatusChangedPayload{OrderID: "o1", From: orders.StatusPending, To: orders.StatusProcessing}
	require.NoError(t, svc.HandleMessage(ctx, message(t, orders.EventOrderStatusChanged, t0.Add(time.Minute), changed)))
	assert.Equal(t, "PROCESSING", cache.status["o1"].Status)

	// event lama yang datang terlambat tidak menimpa status baru
	late := orders.OrderStatusChangedPayload{OrderID: "o1", From: orders.StatusPending, To: orders.StatusPending}
	require.NoError(t, svc.HandleMessage(ctx, message(t, orders.EventOrderStatusChanged, t0.Add(-time.Minute), late)))
	assert.Equal(t, "PROCESSING", cache.status["o1"].Status)

	assert.Equal(t, 1, obs[orders.EventOrderCreated+"/ok"])
	assert.Equal(t, 2, obs[orders.EventOrderStatusChanged+"/ok"])
}

func TestHandleMessage_Cancelled(t *testing.T) {
	svc, cache, _ := newService()
	p := orders.OrderCancelledPayload{OrderID: "o1", UserID: "u1", Items: []orders.ItemQty{{ProductID: "p1", Qty: 1}}}
	require.NoError(t, svc.HandleMessage(context.Background(), message(t, orders.EventOrderCancelled, t0, p)))
	assert.Equal(t, "CANCELLED", cache.status["o1"].Status)
}

func TestHandleMessage_Duplicate(t *testing.T) {
	svc, cache, obs := newService()
	m := message(t, orders.EventOrderStatusChanged, t0, orders.OrderStatusChangedPayload{OrderID: "o1", To: orders.StatusShipped})

	require.NoError(t, svc.HandleMessage(context.Background(), m))
	delete(cache.status, "o1")
	require.NoError(t, svc.HandleMessage(context.Background(), m))

	_, ok := cache.status["o1"]
	assert.False(t, ok, "redelivered event must not be applied twice")
	assert.Equal(t, 1, obs[orders.EventOrderStatusChanged+"/duplicate"])
}

func TestHandleMessage_FailureAllowsRetry(t *testing.T) {
	svc, cache, obs := newService()
	cache.failSet = errors.New("redis down")
	m := message(t, orders.EventOrderStatusChanged, t0, orders.OrderStatusChangedPayload{OrderID: "o1", To: orders.StatusShipped})

	assert.Error(t, svc.HandleMessage(context.Background(), m))
	assert.Equal(t, 1, cache.forgets)
	assert.Equal(t, 1, obs[orders.EventOrderStatusChanged+"/error"])

	cache.failSet = nil
	require.NoError(t, svc.HandleMessage(context.Background(), m))
	assert.Equal(t, "SHIPPED", cache.status["o1"].Status)
}

func TestHandleMessage_IgnoredAndBroken(t *testing.T) {
	svc, cache, obs := newService()
	ctx := context.Background()

	require.NoError(t, svc.HandleMessage(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.Equal(t, 1, obs["unknown/error"])

	require.NoError(t, svc.HandleMessage(ctx, message(t, "SomethingElse", t0, map[string]string{})))
	assert.Equal(t, 1, obs["SomethingElse/ignored"])

	fe := orders.FulfillmentExceptionPayload{
		OrderID: "o1", GatewayPaymentID: "pay_1",
		Details: []orders.StockIssue{{ProductID: "p1", Requested: 5, Available: 2}},
	}
	require.NoError(t, svc.HandleMessage(ctx, message(t, orders.EventFulfillmentException, t0, fe)))
	assert.Equal(t, 1, obs[orders.EventFulfillmentException+"/ok"])

	mm := orders.FulfillmentExceptionPayload{
		OrderID: "o2", GatewayPaymentID: "pay_2",
		AmountMismatch: &orders.AmountMismatch{Charged: decimal.RequireFromString("900"), Total: decimal.RequireFromString("950")},
	}
	require.NoError(t, svc.HandleMessage(ctx, message(t, orders.EventFulfillmentException, t0, mm)))
	assert.Equal(t, 2, obs[orders.EventFulfillmentException+"/ok"])
	assert.Empty(t, cache.status)
}
