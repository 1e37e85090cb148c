package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Service struct {
	Store    Store
	Events   EventSink // boleh nil
	Producer string    // nama service di envelope
	Now      func() time.Time
}

func NewService(store Store, events EventSink, producer string) *Service {
	return &Service{Store: store, Events: events, Producer: producer, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Quote is the single pricing path behind guest preview, signed-in preview and prepare.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	return BuildQuote(ctx, s.Store, s.now(), req)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.Store.ListProducts(ctx)
}

// GetOrder returns the order if it belongs to userID.
func (s *Service) GetOrder(ctx context.Context, id, userID string) (Order, error) {
	if userID == "" {
		return Order{}, ErrUnauthenticated
	}
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// OrderStatus returns the current status without an ownership check.
func (s *Service) OrderStatus(ctx context.Context, id string) (Status, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// Cancel moves a PENDING order owned by userID to CANCELLED and restocks it.
func (s *Service) Cancel(ctx context.Context, id, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	o, err := s.cancel(ctx, id, func(o Order) error {
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("order_id", id).Str("user_id", userID).Msg("order cancelled")
	s.publishCancelled(ctx, o)
	return nil
}

func (s *Service) cancel(ctx context.Context, id string, check func(Order) error) (Order, error) {
	var o Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := check(o); err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: only pending orders can be cancelled", ErrInvalidTransition)
		}
		if err := restock(ctx, tx, o.Items); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return Order{}, err
	}
	o.Status = StatusCancelled
	return o, nil
}

// restock adds item quantities back. Products deleted since the order are skipped.
func restock(ctx context.Context, tx Tx, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	merged, err := Coalesce(lines)
	if err != nil {
		return err
	}
	ids := make([]string, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}
	ps, err := tx.Products(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	stock := make(map[string]int, len(ps))
	for _, p := range ps {
		stock[p.ID] = p.Stock
	}
	for _, l := range merged {
		cur, ok := stock[l.ProductID]
		if !ok {
			continue
		}
		if err := tx.SetStock(ctx, l.ProductID, cur+l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus is the back-office transition. Either to or pay may be empty,
// not both. pay only accepts PAID, for COD orders settled on delivery.
// CANCELLED goes through the restocking path.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, pay PaymentStatus) (Order, error) {
	switch {
	case to == "" && pay == "":
		return Order{}, fmt.Errorf("%w: nothing to update", ErrInvalidTransition)
	case to != "" && !to.Valid():
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	case pay != "" && pay != PaymentPaid:
		return Order{}, fmt.Errorf("%w: payment status can only become %s", ErrInvalidTransition, PaymentPaid)
	}
	if to == StatusCancelled {
		if pay != "" {
			return Order{}, fmt.Errorf("%w: cancelled orders cannot be marked paid", ErrInvalidTransition)
		}
		o, err := s.cancel(ctx, id, func(Order) error { return nil })
		if err != nil {
			return Order{}, err
		}
		s.publishCancelled(ctx, o)
		return o, nil
	}

	var (
		o    Order
		from Status
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if to != "" {
			if !CanTransition(from, to) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
			}
			if err := tx.UpdateOrderStatus(ctx, id, to); err != nil {
				return err
			}
			o.Status = to
		}
		if pay != "" {
			if !CanMarkPaid(o) {
				return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, pay)
			}
			if err := tx.UpdatePaymentStatus(ctx, id, pay); err != nil {
				return err
			}
			o.PaymentStatus = pay
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	log.Info().Str("order_id", id).Str("from", string(from)).Str("to", string(o.Status)).
		Str("payment_status", string(o.PaymentStatus)).Msg("order status updated")
	p := OrderStatusChangedPayload{OrderID: id, From: from, To: o.Status}
	if pay != "" {
		p.PaymentStatus = pay
	}
	s.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, id, p)
	return o, nil
}

func (s *Service) FulfillmentExceptions(ctx context.Context, openOnly bool) ([]FulfillmentException, error) {
	return s.Store.ListFulfillmentExceptions(ctx, openOnly)
}

func (s *Service) publishCancelled(ctx context.Context, o Order) {
	s.publish(ctx, TopicOrderCancelled, EventOrderCancelled, o.ID,
		OrderCancelledPayload{OrderID: o.ID, UserID: o.UserID, Items: itemQtys(o.Items)})
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	env, err := NewEnvelope(ctx, eventType, s.Producer, orderID, s.now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("encode event payload")
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("encode envelope")
		return
	}
	s.Events.Publish(topic, PartitionKey(orderID), b, map[string]string{
		HeaderEventType:    eventType,
		HeaderEventVersion: strconv.Itoa(EventVersion),
	})
}
