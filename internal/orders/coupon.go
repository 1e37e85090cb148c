package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CouponSource is the read side the evaluator needs. Inside a commit the
// implementation is transactional and locks the coupon row.
type CouponSource interface {
	// CouponByCode returns ErrInvalidCoupon when no coupon has that code.
	CouponByCode(ctx context.Context, code string) (Coupon, error)
	CountRedemptions(ctx context.Context, couponID string) (int, error)
	CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error)
}

// Discount is a successful evaluation. Amount may be zero.
type Discount struct {
	CouponID string
	Amount   decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EvaluateCoupon runs eligibility, usage and discount steps in order.
// now is explicit so that the same inputs always give the same result.
func EvaluateCoupon(ctx context.Context, src CouponSource, now time.Time, code string, subtotal decimal.Decimal, userID string) (Discount, error) {
	c, err := src.CouponByCode(ctx, NormalizeCode(code))
	if err != nil {
		return Discount{}, err
	}
	if err := checkEligible(c, now, subtotal); err != nil {
		return Discount{}, err
	}
	if err := checkUsage(ctx, src, c, userID); err != nil {
		return Discount{}, err
	}
	return Discount{CouponID: c.ID, Amount: c.discountFor(subtotal)}, nil
}

func checkEligible(c Coupon, now time.Time, subtotal decimal.Decimal) error {
	if !c.Active {
		return fmt.Errorf("%w: inactive", ErrInvalidCoupon)
	}
	if c.StartsAt != nil && c.StartsAt.After(now) {
		return fmt.Errorf("%w: not started", ErrInvalidCoupon)
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return fmt.Errorf("%w: expired", ErrInvalidCoupon)
	}
	if c.MinOrderSubtotal != nil && subtotal.LessThan(*c.MinOrderSubtotal) {
		return fmt.Errorf("%w: minimum order %s", ErrInvalidCoupon, c.MinOrderSubtotal.StringFixed(2))
	}
	return nil
}

func checkUsage(ctx context.Context, src CouponSource, c Coupon, userID string) error {
	if c.UsageLimit != nil {
		n, err := src.CountRedemptions(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("count redemptions: %w", err)
		}
		if n >= *c.UsageLimit {
			return ErrUsageLimitReached
		}
	}
	if c.PerUserLimit != nil {
		n, err := src.CountUserRedemptions(ctx, c.ID, userID)
		if err != nil {
			return fmt.Errorf("count user redemptions: %w", err)
		}
		if n >= *c.PerUserLimit {
			return ErrUserLimitReached
		}
	}
	return nil
}

// discountFor computes min(raw, cap, subtotal), raw rounded half-up to 2 places.
func (c Coupon) discountFor(subtotal decimal.Decimal) decimal.Decimal {
	var raw decimal.Decimal
	switch c.Type {
	case DiscountPercent:
		raw = subtotal.Mul(c.Value).Div(hundred)
	default:
		raw = c.Value
	}
	d := raw.Round(2)
	if c.MaxDiscountCap != nil {
		d = decimal.Min(d, *c.MaxDiscountCap)
	}
	d = decimal.Min(d, subtotal)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// IsCouponError reports whether err came out of coupon evaluation.
func IsCouponError(err error) bool {
	return errors.Is(err, ErrInvalidCoupon) ||
		errors.Is(err, ErrUsageLimitReached) ||
		errors.Is(err, ErrUserLimitReached)
}
