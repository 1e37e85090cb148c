package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentInfo selects the commit mode. Method RAZORPAY means money has
// already been captured and stock shortages must not block the order.
type PaymentInfo struct {
	Method           PaymentMethod
	GatewayOrderID   string
	GatewayPaymentID string
	// Charged is the amount the gateway order was opened for. Nil skips the check.
	Charged *decimal.Decimal
}

func (p PaymentInfo) Prepaid() bool { return p.Method == PaymentRazorpay }

type CommitRequest struct {
	UserID      string
	Lines       []CartLine
	CouponCode  string
	Shipping    Shipping
	SaveAddress bool
	Payment     PaymentInfo
}

type CommitResult struct {
	Order Order
	// Existing is true when a repeated payment confirmation matched an earlier order.
	Existing bool
	// Shortages is non-empty only for prepaid orders flagged for manual fulfillment.
	Shortages []StockIssue
	// AmountMismatch is set when the committed total differs from PaymentInfo.Charged.
	AmountMismatch bool
}

// Commit re-prices the cart under row locks, reserves stock, applies the coupon
// and records the order in one transaction.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if req.UserID == "" {
		return CommitResult{}, ErrUnauthenticated
	}
	if req.Payment.Method == "" {
		req.Payment.Method = PaymentCOD
	}
	prepaid := req.Payment.Prepaid()
	if prepaid {
		if req.Payment.GatewayPaymentID == "" {
			return CommitResult{}, fmt.Errorf("%w: missing payment id", ErrInvalidSignature)
		}
		if res, ok, err := s.existingPayment(ctx, req.Payment.GatewayPaymentID); err != nil || ok {
			return res, err
		}
	}

	now := s.now()
	var (
		ord       Order
		shortages []StockIssue
		mismatch  bool
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cat, lines, err := Resolve(ctx, tx, req.Lines)
		if err != nil {
			return err
		}
		shortages = cat.Shortages(lines)
		if len(shortages) > 0 && !prepaid {
			return &StockConflictError{Issues: shortages}
		}

		for _, l := range lines {
			left := cat.Stock[l.ProductID] - l.Quantity
			if left < 0 {
				// prepaid: stok habis, sisanya jadi fulfillment exception
				left = 0
			}
			if err := tx.SetStock(ctx, l.ProductID, left); err != nil {
				return err
			}
		}

		subtotal := cat.Subtotal(lines)
		var applied Discount
		if strings.TrimSpace(req.CouponCode) != "" {
			applied, err = EvaluateCoupon(ctx, tx, now, req.CouponCode, subtotal, req.UserID)
			if err != nil {
				return err
			}
		}

		ord = newOrder(req, lines, cat, subtotal, applied, len(shortages) > 0, now)
		// keranjang/harga berubah sejak prepare: uang yang ditarik != total order
		mismatch = prepaid && req.Payment.Charged != nil && !ord.Total.Equal(*req.Payment.Charged)
		if mismatch {
			ord.FulfillmentException = true
		}
		if err := tx.InsertOrder(ctx, &ord); err != nil {
			return err
		}
		if ord.CouponID != nil {
			if err := tx.InsertRedemption(ctx, CouponRedemption{
				CouponID: *ord.CouponID, UserID: req.UserID, OrderID: ord.ID,
			}); err != nil {
				return err
			}
		}
		for _, sh := range shortages {
			if err := tx.InsertFulfillmentException(ctx, FulfillmentException{
				ID:        uuid.NewString(),
				OrderID:   ord.ID,
				Reason:    ReasonStockShortage,
				ProductID: sh.ProductID,
				Requested: sh.Requested,
				Available: sh.Available,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		if mismatch {
			total := ord.Total
			if err := tx.InsertFulfillmentException(ctx, FulfillmentException{
				ID:           uuid.NewString(),
				OrderID:      ord.ID,
				Reason:       ReasonAmountMismatch,
				ChargedTotal: req.Payment.Charged,
				OrderTotal:   &total,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if prepaid && errors.Is(err, ErrDuplicatePayment) {
			// konfirmasi paralel untuk payment yang sama sudah menang duluan
			res, ok, lookupErr := s.existingPayment(ctx, req.Payment.GatewayPaymentID)
			if lookupErr != nil {
				return CommitResult{}, lookupErr
			}
			if ok {
				return res, nil
			}
		}
		s.logCommitFailure(req, err)
		return CommitResult{}, err
	}

	logCommitted(ord)
	s.publish(ctx, TopicOrderCreated, EventOrderCreated, ord.ID, createdPayload(ord))
	if len(shortages) > 0 || mismatch {
		p := FulfillmentExceptionPayload{
			OrderID: ord.ID, GatewayPaymentID: req.Payment.GatewayPaymentID, Details: shortages,
		}
		ev := log.Warn().Str("order_id", ord.ID).Str("payment_id", req.Payment.GatewayPaymentID).
			Int("lines", len(shortages))
		if mismatch {
			p.AmountMismatch = &AmountMismatch{Charged: *req.Payment.Charged, Total: ord.Total}
			ev = ev.Str("charged", req.Payment.Charged.StringFixed(2)).Str("total", ord.Total.StringFixed(2))
		}
		ev.Msg("paid order flagged for manual fulfillment")
		s.publish(ctx, TopicFulfillmentException, EventFulfillmentException, ord.ID, p)
	}

	if req.SaveAddress {
		if err := s.Store.SaveDefaultAddress(ctx, req.UserID, req.Shipping.normalized()); err != nil {
			log.Error().Err(err).Str("order_id", ord.ID).Str("user_id", req.UserID).Msg("address save failed")
		}
	}
	return CommitResult{Order: ord, Shortages: shortages, AmountMismatch: mismatch}, nil
}

func (s *Service) existingPayment(ctx context.Context, paymentID string) (CommitResult, bool, error) {
	id, err := s.Store.OrderIDByPayment(ctx, paymentID)
	if errors.Is(err, ErrOrderNotFound) {
		return CommitResult{}, false, nil
	}
	if err != nil {
		return CommitResult{}, false, fmt.Errorf("lookup payment: %w", err)
	}
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return CommitResult{}, false, err
	}
	return CommitResult{Order: o, Existing: true}, true, nil
}

func newOrder(req CommitRequest, lines []CartLine, cat Catalog, subtotal decimal.Decimal, d Discount, exception bool, now time.Time) Order {
	o := Order{
		ID:                   uuid.NewString(),
		UserID:               req.UserID,
		Items:                make([]OrderItem, 0, len(lines)),
		Subtotal:             subtotal,
		Total:                subtotal,
		Status:               StatusPending,
		PaymentMethod:        req.Payment.Method,
		PaymentStatus:        PaymentPending,
		Shipping:             req.Shipping.normalized(),
		FulfillmentException: exception,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for _, l := range lines {
		o.Items = append(o.Items, OrderItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: cat.Prices[l.ProductID]})
	}
	// redemption hanya dicatat kalau diskon benar-benar terpakai
	if d.Amount.IsPositive() {
		id, amt := d.CouponID, d.Amount
		o.CouponID = &id
		o.CouponDiscount = &amt
		o.Total = subtotal.Sub(amt)
	}
	if req.Payment.Prepaid() {
		o.Status = StatusProcessing
		o.PaymentStatus = PaymentPaid
		gid, pid := req.Payment.GatewayOrderID, req.Payment.GatewayPaymentID
		o.GatewayOrderID = &gid
		o.GatewayPaymentID = &pid
	}
	return o
}

func createdPayload(o Order) OrderCreatedPayload {
	p := OrderCreatedPayload{
		OrderID:              o.ID,
		UserID:               o.UserID,
		Items:                itemPrices(o.Items),
		Subtotal:             o.Subtotal,
		CouponDiscount:       decimal.Zero,
		Total:                o.Total,
		Status:               o.Status,
		PaymentMethod:        o.PaymentMethod,
		PaymentStatus:        o.PaymentStatus,
		FulfillmentException: o.FulfillmentException,
	}
	if o.CouponID != nil {
		p.CouponID = *o.CouponID
		p.CouponDiscount = *o.CouponDiscount
	}
	return p
}

func logCommitted(o Order) {
	ev := log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).
		Str("payment_method", string(o.PaymentMethod)).Str("total", o.Total.StringFixed(2))
	if o.CouponID != nil {
		ev = ev.Str("coupon_id", *o.CouponID)
	}
	ev.Msg("order committed")
}

func (s *Service) logCommitFailure(req CommitRequest, err error) {
	ev := log.Warn()
	if Code(err) == CodeInternal {
		ev = log.Error()
	}
	ev = ev.Err(err).Str("user_id", req.UserID).Str("code", Code(err)).Str("payment_method", string(req.Payment.Method))
	if req.Payment.Prepaid() {
		// uang sudah ditarik tapi order gagal: perlu refund manual
		ev = ev.Str("gateway_order_id", req.Payment.GatewayOrderID).Str("payment_id", req.Payment.GatewayPaymentID)
	}
	ev.Msg("order commit failed")
}
