// Package fulfillment consumes order events for the warehouse side: it keeps
// the cached order status fresh and surfaces paid orders that stock could not cover.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

// Cache is implemented by redisx.Store.
type Cache interface {
	OrderStatus(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	SetOrderStatus(ctx context.Context, orderID, status string, at time.Time) error
	FirstDelivery(ctx context.Context, service, id string) (bool, error)
	ForgetDelivery(ctx context.Context, service, id string) error
}

type Observer interface {
	ObserveEvent(eventType, result string)
}

type Service struct {
	Cache       Cache
	Metrics     Observer // boleh nil
	ServiceName string
}

// Result labels.
const (
	resultOK        = "ok"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultError     = "error"
)

// HandleMessage dipasang sebagai handler consumer. A nil return commits the offset.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// pesan rusak tidak akan pernah sukses; log lalu commit
		log.Error().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("drop undecodable message")
		s.observe("unknown", resultError)
		return nil
	}
	if env.EventVersion != orders.EventVersion {
		log.Warn().Str("event_type", env.EventType).Int("event_version", env.EventVersion).Msg("unsupported event version")
		s.observe(env.EventType, resultIgnored)
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	first, err := s.Cache.FirstDelivery(ctx, s.ServiceName, env.EventID)
	if err != nil {
		s.observe(env.EventType, resultError)
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		s.observe(env.EventType, resultDuplicate)
		return nil
	}

	result, err := s.handle(ctx, env)
	if err != nil {
		// biar redelivery diproses ulang
		if ferr := s.Cache.ForgetDelivery(ctx, s.ServiceName, env.EventID); ferr != nil {
			log.Warn().Err(ferr).Str("event_id", env.EventID).Msg("forget delivery")
		}
		s.observe(env.EventType, resultError)
		return err
	}
	s.observe(env.EventType, result)
	return nil
}

func (s *Service) handle(ctx context.Context, env orders.Envelope) (string, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		ev := log.Info()
		if p.PaymentStatus == orders.PaymentPaid {
			ev = ev.Bool("ready_to_ship", !p.FulfillmentException)
		}
		ev.Str("order_id", p.OrderID).Str("payment_method", string(p.PaymentMethod)).
			Str("total", p.Total.StringFixed(2)).Msg("order received")
		return resultOK, s.refreshStatus(ctx, p.OrderID, p.Status, env.OccurredAt)

	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return "", err
		}
		log.Info().Str("order_id", p.OrderID).Int("lines", len(p.Items)).Msg("order cancelled, pick list voided")
		return resultOK, s.refreshStatus(ctx, p.OrderID, orders.StatusCancelled, env.OccurredAt)

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return resultOK, s.refreshStatus(ctx, p.OrderID, p.To, env.OccurredAt)

	case orders.EventFulfillmentException:
		p, err := kafkax.UnwrapPayload[orders.FulfillmentExceptionPayload](env.Payload)
		if err != nil {
			return "", err
		}
		for _, d := range p.Details {
			log.Warn().
				Str("order_id", p.OrderID).
				Str("gateway_payment_id", p.GatewayPaymentID).
				Str("product_id", d.ProductID).
				Int("requested", d.Requested).
				Int("available", d.Available).
				Msg("paid order needs manual fulfillment")
		}
		if m := p.AmountMismatch; m != nil {
			log.Warn().
				Str("order_id", p.OrderID).
				Str("gateway_payment_id", p.GatewayPaymentID).
				Str("charged", m.Charged.StringFixed(2)).
				Str("total", m.Total.StringFixed(2)).
				Msg("charged amount differs from order total")
		}
		return resultOK, nil

	default:
		return resultIgnored, nil
	}
}

// refreshStatus writes the cache unless it already holds a newer status.
// Events for one order can arrive out of order across topics.
func (s *Service) refreshStatus(ctx context.Context, orderID string, st orders.Status, at time.Time) error {
	cur, ok, err := s.Cache.OrderStatus(ctx, orderID)
	if err != nil {
		return fmt.Errorf("read status %s: %w", orderID, err)
	}
	if ok && cur.UpdatedAt.After(at) {
		log.Debug().Str("order_id", orderID).Str("cached", cur.Status).Str("event", string(st)).Msg("stale status event skipped")
		return nil
	}
	if err := s.Cache.SetOrderStatus(ctx, orderID, string(st), at); err != nil {
		return fmt.Errorf("write status %s: %w", orderID, err)
	}
	return nil
}

func (s *Service) observe(eventType, result string) {
	if s.Metrics != nil {
		s.Metrics.ObserveEvent(eventType, result)
	}
}
