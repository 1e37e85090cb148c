package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderCancelled       = "OrderCancelled"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventFulfillmentException = "OrderFulfillmentException"
	EventVersion              = 1

	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// EventSink receives encoded envelopes. Publishing is fire-and-forget.
type EventSink interface {
	Publish(topic string, key, value []byte, headers map[string]string)
}

// ---- Payload tipe per event ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemPrice struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID              string          `json:"order_id"`
	UserID               string          `json:"user_id"`
	Items                []ItemPrice     `json:"items"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	CouponID             string          `json:"coupon_id,omitempty"`
	CouponDiscount       decimal.Decimal `json:"coupon_discount"`
	Total                decimal.Decimal `json:"total"`
	Status               Status          `json:"status"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	PaymentStatus        PaymentStatus   `json:"payment_status"`
	FulfillmentException bool            `json:"fulfillment_exception"`
}

type OrderCancelledPayload struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	Items   []ItemQty `json:"items"` // dikembalikan ke stok
}

// OrderStatusChangedPayload also carries back-office payment updates;
// From equals To when only the payment status moved.
type OrderStatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

type FulfillmentExceptionPayload struct {
	OrderID          string          `json:"order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Details          []StockIssue    `json:"details"`
	AmountMismatch   *AmountMismatch `json:"amount_mismatch,omitempty"`
}

// AmountMismatch: jumlah yang ditarik gateway vs total order yang tercatat.
type AmountMismatch struct {
	Charged decimal.Decimal `json:"charged"`
	Total   decimal.Decimal `json:"total"`
}

type traceKey struct{}

// WithTraceID attaches a request id that ends up in event envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

func NewEnvelope(ctx context.Context, eventType, producer, orderID string, now time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		TraceID:       traceID(ctx),
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

func itemPrices(items []OrderItem) []ItemPrice {
	out := make([]ItemPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

func itemQtys(items []OrderItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
