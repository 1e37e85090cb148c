package orders

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reader is the read-only view shared by quotes and commits.
type Reader interface {
	ProductReader
	CouponSource
}

type QuoteRequest struct {
	Lines      []CartLine
	CouponCode string
	UserID     string
}

type QuoteLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Quote is advisory: it reserves nothing.
type Quote struct {
	Lines         []QuoteLine
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	CouponID      string
	CouponIgnored bool
	StockIssues   []StockIssue
}

func (q Quote) StockOK() bool { return len(q.StockIssues) == 0 }

// BuildQuote prices the cart and, for a signed-in user, applies the coupon.
// A guest coupon is ignored. A failing coupon fails the whole quote.
func BuildQuote(ctx context.Context, r Reader, now time.Time, req QuoteRequest) (Quote, error) {
	cat, lines, err := Resolve(ctx, r, req.Lines)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Lines:       make([]QuoteLine, 0, len(lines)),
		Subtotal:    cat.Subtotal(lines),
		Discount:    decimal.Zero,
		StockIssues: cat.Shortages(lines),
	}
	for _, l := range lines {
		price := cat.Prices[l.ProductID]
		q.Lines = append(q.Lines, QuoteLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			LineTotal: price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		if req.UserID == "" {
			q.CouponIgnored = true
		} else {
			d, err := EvaluateCoupon(ctx, r, now, code, q.Subtotal, req.UserID)
			if err != nil {
				return Quote{}, err
			}
			q.Discount = d.Amount
			q.CouponID = d.CouponID
		}
	}
	q.Total = q.Subtotal.Sub(q.Discount)
	return q, nil
}
