package httpx

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type quoteReq struct {
	Items      []orders.CartLine `json:"items" validate:"required,min=1,dive"`
	CouponCode string            `json:"coupon_code"`
}

type quoteLineResp struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
	LineTotal json.Number `json:"line_total"`
}

type quoteResp struct {
	Items         []quoteLineResp     `json:"items"`
	Subtotal      json.Number         `json:"subtotal"`
	Discount      json.Number         `json:"discount"`
	Total         json.Number         `json:"total"`
	CouponApplied bool                `json:"coupon_applied"`
	CouponIgnored bool                `json:"coupon_ignored,omitempty"`
	StockOK       bool                `json:"stock_ok"`
	StockIssues   []orders.StockIssue `json:"stock_issues,omitempty"`
}

func toQuoteResp(q orders.Quote) quoteResp {
	out := quoteResp{
		Items:         make([]quoteLineResp, 0, len(q.Lines)),
		Subtotal:      money(q.Subtotal),
		Discount:      money(q.Discount),
		Total:         money(q.Total),
		CouponApplied: q.CouponID != "",
		CouponIgnored: q.CouponIgnored,
		StockOK:       q.StockOK(),
		StockIssues:   q.StockIssues,
	}
	for _, l := range q.Lines {
		out.Items = append(out.Items, quoteLineResp{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			LineTotal: money(l.LineTotal),
		})
	}
	return out
}

type codReq struct {
	Items       []orders.CartLine `json:"items" validate:"required,min=1,dive"`
	CouponCode  string            `json:"coupon_code"`
	Shipping    orders.Shipping   `json:"shipping" validate:"required"`
	SaveAddress bool              `json:"save_address"`
}

type prepareReq struct {
	Items      []orders.CartLine `json:"items" validate:"required,min=1,dive"`
	CouponCode string            `json:"coupon_code"`
	Currency   string            `json:"currency" validate:"omitempty,len=3"`
}

type prepareResp struct {
	KeyID          string      `json:"key_id,omitempty"`
	GatewayOrderID string      `json:"gateway_order_id"`
	Amount         int64       `json:"amount"`
	Currency       string      `json:"currency"`
	Quote          quoteResp   `json:"quote"`
	Total          json.Number `json:"total"`
}

// confirmReq uses the field names the Razorpay checkout handler returns.
type confirmReq struct {
	GatewayOrderID   string            `json:"razorpay_order_id"`
	GatewayPaymentID string            `json:"razorpay_payment_id"`
	Signature        string            `json:"razorpay_signature"`
	Items            []orders.CartLine `json:"items" validate:"required,min=1,dive"`
	CouponCode       string            `json:"coupon_code"`
	Shipping         orders.Shipping   `json:"shipping" validate:"required"`
	SaveAddress      bool              `json:"save_address"`
}

type confirmResp struct {
	OrderID              string `json:"order_id"`
	Existing             bool   `json:"existing"`
	FulfillmentException bool   `json:"fulfillment_exception"`
}

type orderItemResp struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
}

type orderResp struct {
	ID                   string               `json:"id"`
	UserID               string               `json:"user_id"`
	Status               orders.Status        `json:"status"`
	PaymentMethod        orders.PaymentMethod `json:"payment_method"`
	PaymentStatus        orders.PaymentStatus `json:"payment_status"`
	Items                []orderItemResp      `json:"items"`
	Subtotal             json.Number          `json:"subtotal"`
	CouponID             *string              `json:"coupon_id,omitempty"`
	CouponDiscount       *json.Number         `json:"coupon_discount,omitempty"`
	Total                json.Number          `json:"total"`
	Shipping             orders.Shipping      `json:"shipping"`
	FulfillmentException bool                 `json:"fulfillment_exception"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func toOrderResp(o orders.Order) orderResp {
	out := orderResp{
		ID:                   o.ID,
		UserID:               o.UserID,
		Status:               o.Status,
		PaymentMethod:        o.PaymentMethod,
		PaymentStatus:        o.PaymentStatus,
		Items:                make([]orderItemResp, 0, len(o.Items)),
		Subtotal:             money(o.Subtotal),
		CouponID:             o.CouponID,
		CouponDiscount:       moneyPtr(o.CouponDiscount),
		Total:                money(o.Total),
		Shipping:             o.Shipping,
		FulfillmentException: o.FulfillmentException,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemResp{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: money(it.UnitPrice)})
	}
	return out
}

type productResp struct {
	ID        string      `json:"id"`
	SKU       string      `json:"sku"`
	Name      string      `json:"name"`
	UnitPrice json.Number `json:"unit_price"`
	Stock     int         `json:"stock"`
	InStock   bool        `json:"in_stock"`
}

type statusResp struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type paginationResp struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type orderListResp struct {
	Items      []orderResp    `json:"items"`
	Pagination paginationResp `json:"pagination"`
}

func toOrderListResp(p orders.OrderPage) orderListResp {
	out := orderListResp{
		Items:      make([]orderResp, 0, len(p.Orders)),
		Pagination: paginationResp{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages()},
	}
	for _, o := range p.Orders {
		out.Items = append(out.Items, toOrderResp(o))
	}
	return out
}

// updateStatusReq needs at least one of the two fields.
type updateStatusReq struct {
	Status        orders.Status        `json:"status" validate:"required_without=PaymentStatus"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

type fulfillmentExceptionResp struct {
	ID           string       `json:"id"`
	OrderID      string       `json:"order_id"`
	Reason       string       `json:"reason"`
	ProductID    string       `json:"product_id,omitempty"`
	Requested    int          `json:"requested"`
	Available    int          `json:"available"`
	ChargedTotal *json.Number `json:"charged_total,omitempty"`
	OrderTotal   *json.Number `json:"order_total,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
}
