package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const DefaultCurrency = "INR"

type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error)
}

// Orders is the part of orders.Service the payment flow needs.
type Orders interface {
	Quote(ctx context.Context, req orders.QuoteRequest) (orders.Quote, error)
	Commit(ctx context.Context, req orders.CommitRequest) (orders.CommitResult, error)
}

// Idempotency is a fast path in front of the unique payment id in Postgres.
type Idempotency interface {
	PaymentOrder(ctx context.Context, paymentID string) (string, bool, error)
	RememberPayment(ctx context.Context, paymentID, orderID string) error
}

// Intents remembers the amount each gateway order was opened for, so Confirm
// can compare it with the committed total.
type Intents interface {
	RememberIntent(ctx context.Context, gatewayOrderID string, amountMinor int64) error
	IntentAmount(ctx context.Context, gatewayOrderID string) (int64, bool, error)
}

type Service struct {
	Orders   Orders
	Gateway  Gateway
	Secret   string
	Currency string
	Idem     Idempotency // boleh nil
	Intents  Intents     // boleh nil, tanpa ini jumlah tidak dicek
	Now      func() time.Time
}

type PrepareRequest struct {
	UserID     string
	Lines      []orders.CartLine
	CouponCode string
	Currency   string
}

type Prepared struct {
	Quote       orders.Quote
	Intent      Intent
	AmountMinor int64
}

// Prepare quotes the cart and opens a gateway order for the total.
func (s *Service) Prepare(ctx context.Context, req PrepareRequest) (Prepared, error) {
	if req.UserID == "" {
		return Prepared{}, orders.ErrUnauthenticated
	}
	q, err := s.Orders.Quote(ctx, orders.QuoteRequest{Lines: req.Lines, CouponCode: req.CouponCode, UserID: req.UserID})
	if err != nil {
		return Prepared{}, err
	}
	if !q.StockOK() {
		return Prepared{}, &orders.StockConflictError{Issues: q.StockIssues}
	}
	if !q.Total.IsPositive() {
		return Prepared{}, orders.ErrInsufficientAmount
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency()
	}
	amount := MinorUnits(q.Total)
	in, err := s.Gateway.CreateIntent(ctx, amount, currency, fmt.Sprintf("rcpt_%d", s.now().UnixMilli()))
	if err != nil {
		return Prepared{}, err
	}
	log.Info().Str("user_id", req.UserID).Str("gateway_order_id", in.ID).Int64("amount", amount).Msg("payment intent created")
	if s.Intents != nil {
		if err := s.Intents.RememberIntent(ctx, in.ID, amount); err != nil {
			log.Warn().Err(err).Str("gateway_order_id", in.ID).Msg("remember intent amount")
		}
	}
	return Prepared{Quote: q, Intent: in, AmountMinor: amount}, nil
}

type ConfirmRequest struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Lines            []orders.CartLine
	Shipping         orders.Shipping
	CouponCode       string
	SaveAddress      bool
}

type Confirmed struct {
	OrderID              string
	Existing             bool
	FulfillmentException bool
}

// Confirm verifies the gateway signature and commits the paid order.
// A bad signature writes nothing.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (Confirmed, error) {
	if req.UserID == "" {
		return Confirmed{}, orders.ErrUnauthenticated
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return Confirmed{}, fmt.Errorf("%w: missing payment fields", orders.ErrInvalidSignature)
	}
	if !Verify(s.Secret, req.GatewayOrderID, req.GatewayPaymentID, strings.ToLower(req.Signature)) {
		log.Warn().Str("user_id", req.UserID).Str("gateway_order_id", req.GatewayOrderID).Msg("payment signature mismatch")
		return Confirmed{}, orders.ErrInvalidSignature
	}

	if s.Idem != nil {
		id, ok, err := s.Idem.PaymentOrder(ctx, req.GatewayPaymentID)
		if err != nil {
			log.Warn().Err(err).Msg("payment idempotency lookup")
		} else if ok {
			return Confirmed{OrderID: id, Existing: true}, nil
		}
	}

	res, err := s.Orders.Commit(ctx, orders.CommitRequest{
		UserID:      req.UserID,
		Lines:       req.Lines,
		CouponCode:  req.CouponCode,
		Shipping:    req.Shipping,
		SaveAddress: req.SaveAddress,
		Payment: orders.PaymentInfo{
			Method:           orders.PaymentRazorpay,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Charged:          s.charged(ctx, req.GatewayOrderID),
		},
	})
	if err != nil {
		return Confirmed{}, err
	}
	if s.Idem != nil {
		if err := s.Idem.RememberPayment(ctx, req.GatewayPaymentID, res.Order.ID); err != nil {
			log.Warn().Err(err).Str("order_id", res.Order.ID).Msg("remember payment")
		}
	}
	return Confirmed{OrderID: res.Order.ID, Existing: res.Existing, FulfillmentException: res.Order.FulfillmentException}, nil
}

// charged returns the amount remembered for the gateway order, or nil if unknown.
func (s *Service) charged(ctx context.Context, gatewayOrderID string) *decimal.Decimal {
	if s.Intents == nil {
		return nil
	}
	amount, ok, err := s.Intents.IntentAmount(ctx, gatewayOrderID)
	if err != nil || !ok {
		log.Warn().Err(err).Str("gateway_order_id", gatewayOrderID).Msg("intent amount unknown, amount check skipped")
		return nil
	}
	d := FromMinorUnits(amount)
	return &d
}

// MinorUnits converts an amount to paise, rounding half-up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return DefaultCurrency
	}
	return s.Currency
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
