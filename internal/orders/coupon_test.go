package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/orders/ordertest"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intp(n int) *int { return &n }

func timep(t time.Time) *time.Time { return &t }

func TestEvaluateCoupon(t *testing.T) {
	tests := []struct {
		name         string
		coupon       orders.Coupon
		code         string
		subtotal     string
		redemptions  []orders.CouponRedemption
		wantErrIs    error
		wantDiscount string
	}{
		{
			name:         "percent",
			coupon:       orders.Coupon{Code: "SAVE10", Type: orders.DiscountPercent, Value: dec("10"), Active: true},
			code:         "SAVE10",
			subtotal:     "1000",
			wantDiscount: "100",
		},
		{
			name:         "code_is_normalized",
			coupon:       orders.Coupon{Code: "SAVE10", Type: orders.DiscountPercent, Value: dec("10"), Active: true},
			code:         "  save10 ",
			subtotal:     "1000",
			wantDiscount: "100",
		},
		{
			name:         "fixed_clamped_by_cap",
			coupon:       orders.Coupon{Code: "FLAT200", Type: orders.DiscountFixed, Value: dec("200"), Active: true, MaxDiscountCap: decp("150")},
			code:         "FLAT200",
			subtotal:     "1000",
			wantDiscount: "150",
		},
		{
			name:         "fixed_clamped_by_subtotal",
			coupon:       orders.Coupon{Code: "FLAT200", Type: orders.DiscountFixed, Value: dec("200"), Active: true},
			code:         "FLAT200",
			subtotal:     "120.50",
			wantDiscount: "120.50",
		},
		{
			name:         "percent_rounds_half_up",
			coupon:       orders.Coupon{Code: "P15", Type: orders.DiscountPercent, Value: dec("15"), Active: true},
			code:         "P15",
			subtotal:     "33.30",
			wantDiscount: "5.00", // 4.995
		},
		{
			name:         "zero_cap_is_success",
			coupon:       orders.Coupon{Code: "ZERO", Type: orders.DiscountPercent, Value: dec("10"), Active: true, MaxDiscountCap: decp("0")},
			code:         "ZERO",
			subtotal:     "1000",
			wantDiscount: "0",
		},
		{
			name:      "unknown_code",
			coupon:    orders.Coupon{Code: "SAVE10", Type: orders.DiscountPercent, Value: dec("10"), Active: true},
			code:      "NOPE",
			subtotal:  "1000",
			wantErrIs: orders.ErrInvalidCoupon,
		},
		{
			name:      "inactive",
			coupon:    orders.Coupon{Code: "OFF", Type: orders.DiscountFixed, Value: dec("10"), Active: false},
			code:      "OFF",
			subtotal:  "1000",
			wantErrIs: orders.ErrInvalidCoupon,
		},
		{
			name:      "not_started",
			coupon:    orders.Coupon{Code: "SOON", Type: orders.DiscountFixed, Value: dec("10"), Active: true, StartsAt: timep(now.Add(time.Hour))},
			code:      "SOON",
			subtotal:  "1000",
			wantErrIs: orders.ErrInvalidCoupon,
		},
		{
			name:      "expired",
			coupon:    orders.Coupon{Code: "OLD", Type: orders.DiscountFixed, Value: dec("10"), Active: true, ExpiresAt: timep(now.Add(-time.Second))},
			code:      "OLD",
			subtotal:  "1000",
			wantErrIs: orders.ErrInvalidCoupon,
		},
		{
			name:         "bounds_are_inclusive",
			coupon:       orders.Coupon{Code: "EDGE", Type: orders.DiscountFixed, Value: dec("10"), Active: true, StartsAt: timep(now), ExpiresAt: timep(now)},
			code:         "EDGE",
			subtotal:     "1000",
			wantDiscount: "10",
		},
		{
			name:      "below_minimum",
			coupon:    orders.Coupon{Code: "BIG", Type: orders.DiscountFixed, Value: dec("10"), Active: true, MinOrderSubtotal: decp("1000.01")},
			code:      "BIG",
			subtotal:  "1000",
			wantErrIs: orders.ErrInvalidCoupon,
		},
		{
			name:         "minimum_met_exactly",
			coupon:       orders.Coupon{Code: "BIG", Type: orders.DiscountFixed, Value: dec("10"), Active: true, MinOrderSubtotal: decp("1000")},
			code:         "BIG",
			subtotal:     "1000",
			wantDiscount: "10",
		},
		{
			name:        "usage_limit_reached",
			coupon:      orders.Coupon{ID: "c1", Code: "ONCE", Type: orders.DiscountFixed, Value: dec("10"), Active: true, UsageLimit: intp(1)},
			code:        "ONCE",
			subtotal:    "1000",
			redemptions: []orders.CouponRedemption{{CouponID: "c1", UserID: "someone-else"}},
			wantErrIs:   orders.ErrUsageLimitReached,
		},
		{
			name:        "user_limit_reached",
			coupon:      orders.Coupon{ID: "c1", Code: "MINE", Type: orders.DiscountFixed, Value: dec("10"), Active: true, UsageLimit: intp(5), PerUserLimit: intp(1)},
			code:        "MINE",
			subtotal:    "1000",
			redemptions: []orders.CouponRedemption{{CouponID: "c1", UserID: "u1"}},
			wantErrIs:   orders.ErrUserLimitReached,
		},
		{
			name:         "other_users_do_not_count_per_user",
			coupon:       orders.Coupon{ID: "c1", Code: "MINE", Type: orders.DiscountFixed, Value: dec("10"), Active: true, PerUserLimit: intp(1)},
			code:         "MINE",
			subtotal:     "1000",
			redemptions:  []orders.CouponRedemption{{CouponID: "c1", UserID: "u2"}},
			wantDiscount: "10",
		},
		{
			name:        "global_limit_checked_before_user_limit",
			coupon:      orders.Coupon{ID: "c1", Code: "BOTH", Type: orders.DiscountFixed, Value: dec("10"), Active: true, UsageLimit: intp(1), PerUserLimit: intp(1)},
			code:        "BOTH",
			subtotal:    "1000",
			redemptions: []orders.CouponRedemption{{CouponID: "c1", UserID: "u1"}},
			wantErrIs:   orders.ErrUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := ordertest.NewMemStore()
			store.AddCoupon(tt.coupon)
			for _, r := range tt.redemptions {
				store.AddRedemption(r)
			}

			d, err := orders.EvaluateCoupon(context.Background(), store, now, tt.code, dec(tt.subtotal), "u1")
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.True(t, orders.IsCouponError(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, dec(tt.wantDiscount).Equal(d.Amount), "discount = %s", d.Amount)
			assert.NotEmpty(t, d.CouponID)
		})
	}
}

func TestEvaluateCoupon_DeterministicAndBounded(t *testing.T) {
	store := ordertest.NewMemStore()
	store.AddCoupon(orders.Coupon{Code: "P33", Type: orders.DiscountPercent, Value: dec("33.33"), Active: true, MaxDiscountCap: decp("250")})
	store.AddCoupon(orders.Coupon{Code: "F999", Type: orders.DiscountFixed, Value: dec("999"), Active: true})

	subtotals := []string{"0", "0.01", "1", "99.99", "500", "750.05", "1000", "123456.78"}
	for _, code := range []string{"P33", "F999"} {
		for _, s := range subtotals {
			sub := dec(s)
			first, err := orders.EvaluateCoupon(context.Background(), store, now, code, sub, "u1")
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				again, err := orders.EvaluateCoupon(context.Background(), store, now, code, sub, "u1")
				require.NoError(t, err)
				assert.True(t, first.Amount.Equal(again.Amount))
			}
			assert.False(t, first.Amount.IsNegative(), "%s on %s", code, s)
			assert.True(t, first.Amount.LessThanOrEqual(sub), "%s on %s", code, s)
			if code == "P33" {
				assert.True(t, first.Amount.LessThanOrEqual(dec("250")))
			}
		}
	}
}
