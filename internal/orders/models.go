package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	InStock   bool            `json:"in_stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartLine is a requested (product, quantity) pair. Never persisted.
type CartLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=10000"`
}

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

type Coupon struct {
	ID               string
	Code             string
	Type             DiscountType
	Value            decimal.Decimal
	Active           bool
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	MinOrderSubtotal *decimal.Decimal
	MaxDiscountCap   *decimal.Decimal
	UsageLimit       *int
	PerUserLimit     *int
}

type CouponRedemption struct {
	CouponID string
	UserID   string
	OrderID  string
}

type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "COD"
	PaymentRazorpay PaymentMethod = "RAZORPAY"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type Shipping struct {
	Name       string  `json:"name" validate:"required"`
	Phone      string  `json:"phone" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country,omitempty"`
}

// DefaultCountry dipakai kalau shipping.country kosong.
const DefaultCountry = "IN"

func (s Shipping) normalized() Shipping {
	if s.Country == "" {
		s.Country = DefaultCountry
	}
	return s
}

type Order struct {
	ID                   string
	UserID               string
	Items                []OrderItem
	Subtotal             decimal.Decimal
	CouponID             *string
	CouponDiscount       *decimal.Decimal
	Total                decimal.Decimal
	Status               Status // lihat status.go
	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	GatewayOrderID       *string
	GatewayPaymentID     *string
	Shipping             Shipping
	FulfillmentException bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderItem snapshots the price at purchase time.
type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Address struct {
	ID        string
	UserID    string
	Shipping  Shipping
	IsDefault bool
}

// Fulfillment exception reasons.
const (
	ReasonStockShortage  = "STOCK_SHORTAGE"
	ReasonAmountMismatch = "AMOUNT_MISMATCH"
)

// FulfillmentException records a paid order that needs a human: a line stock
// could not cover, or a charge that differs from the committed total.
// ProductID, Requested and Available are set for STOCK_SHORTAGE only;
// ChargedTotal and OrderTotal for AMOUNT_MISMATCH only.
type FulfillmentException struct {
	ID           string
	OrderID      string
	Reason       string
	ProductID    string
	Requested    int
	Available    int
	ChargedTotal *decimal.Decimal
	OrderTotal   *decimal.Decimal
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}
