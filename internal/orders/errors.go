package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidItems       = errors.New("some items are invalid")
	ErrStockChanged       = errors.New("stock changed, please refresh your cart")
	ErrInvalidCoupon      = errors.New("invalid coupon")
	ErrUsageLimitReached  = errors.New("coupon usage limit reached")
	ErrUserLimitReached   = errors.New("you have already used this coupon")
	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrUnauthenticated    = errors.New("sign in required")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInsufficientAmount = errors.New("order total must be positive for online payment")
)

// Error codes returned to callers.
const (
	CodeInvalidItems      = "INVALID_ITEMS"
	CodeStockChanged      = "STOCK_CHANGED"
	CodeInvalidCoupon     = "INVALID_COUPON"
	CodeUsageLimitReached = "USAGE_LIMIT_REACHED"
	CodeUserLimitReached  = "USER_LIMIT_REACHED"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidItems, CodeInvalidItems},
	{ErrStockChanged, CodeStockChanged},
	{ErrInvalidCoupon, CodeInvalidCoupon},
	{ErrUsageLimitReached, CodeUsageLimitReached},
	{ErrUserLimitReached, CodeUserLimitReached},
	{ErrInvalidSignature, CodeInvalidSignature},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrOrderNotFound, CodeOrderNotFound},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrInsufficientAmount, CodeInvalidAmount},
}

// Code maps err to its taxonomy code; unknown errors are INTERNAL.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Retryable reports whether the client should re-quote and resubmit.
func Retryable(err error) bool {
	return errors.Is(err, ErrStockChanged)
}

// StockIssue describes a line whose requested quantity exceeds stock.
type StockIssue struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockConflictError is returned by a COD commit when any line is short.
type StockConflictError struct {
	Issues []StockIssue
}

func (e *StockConflictError) Error() string {
	ids := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		ids = append(ids, is.ProductID)
	}
	return fmt.Sprintf("%s: %s", ErrStockChanged, strings.Join(ids, ","))
}

func (e *StockConflictError) Unwrap() error { return ErrStockChanged }

// StockIssuesOf returns the issues carried by a stock conflict, if any.
func StockIssuesOf(err error) []StockIssue {
	var sc *StockConflictError
	if errors.As(err, &sc) {
		return sc.Issues
	}
	return nil
}
