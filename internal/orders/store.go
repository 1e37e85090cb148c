package orders

import (
	"context"
	"errors"
)

// ErrDuplicatePayment is returned by Tx.InsertOrder when the gateway payment
// id is already attached to another order.
var ErrDuplicatePayment = errors.New("payment already recorded")

// Store is the persistence boundary. Reader methods on Store never lock.
type Store interface {
	Reader
	ListProducts(ctx context.Context) ([]Product, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	// OrderIDByPayment returns ErrOrderNotFound if no order carries paymentID.
	OrderIDByPayment(ctx context.Context, paymentID string) (string, error)
	SaveDefaultAddress(ctx context.Context, userID string, s Shipping) error
	ListFulfillmentExceptions(ctx context.Context, openOnly bool) ([]FulfillmentException, error)
	// ListUserOrders returns one page of userID's orders and the user's total order count.
	ListUserOrders(ctx context.Context, userID string, newestFirst bool, offset, limit int) ([]Order, int, error)

	// InTx runs fn in one transaction. fn returning an error rolls back everything.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view. Products and CouponByCode lock the rows they
// return until the transaction ends; Products locks in product id order.
type Tx interface {
	Reader
	SetStock(ctx context.Context, productID string, stock int) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertRedemption(ctx context.Context, r CouponRedemption) error
	InsertFulfillmentException(ctx context.Context, fe FulfillmentException) error
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrderStatus(ctx context.Context, id string, s Status) error
	UpdatePaymentStatus(ctx context.Context, id string, p PaymentStatus) error
}
