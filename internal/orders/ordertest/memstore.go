// Package ordertest provides an in-memory orders.Store for tests.
package ordertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// MemStore serializes every transaction behind one mutex, which gives the
// same guarantees the row locks give on Postgres. A failing transaction
// restores the snapshot taken when it began.
type MemStore struct {
	mu          sync.Mutex
	products    map[string]orders.Product
	coupons     map[string]orders.Coupon // by code
	redemptions []orders.CouponRedemption
	orders      map[string]orders.Order
	addresses   []orders.Address
	exceptions  []orders.FulfillmentException

	// Test hooks. Nil means no failure.
	FailAddressSave      error
	FailInsertRedemption error
}

var _ orders.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[string]orders.Product{},
		coupons:  map[string]orders.Coupon{},
		orders:   map[string]orders.Order{},
	}
}

// AddProduct seeds a product; price is a decimal string such as "500.00".
func (s *MemStore) AddProduct(id, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = orders.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      id,
		UnitPrice: decimal.RequireFromString(price),
		Stock:     stock,
		InStock:   stock > 0,
	}
}

func (s *MemStore) AddCoupon(c orders.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = "coupon-" + c.Code
	}
	c.Code = orders.NormalizeCode(c.Code)
	s.coupons[c.Code] = c
}

// AddRedemption seeds a prior redemption without an order.
func (s *MemStore) AddRedemption(r orders.CouponRedemption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redemptions = append(s.redemptions, r)
}

func (s *MemStore) Product(id string) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *MemStore) Redemptions() []orders.CouponRedemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.CouponRedemption(nil), s.redemptions...)
}

func (s *MemStore) Orders() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) Addresses(userID string) []orders.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Address
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// ---- orders.Store ----

func (s *MemStore) Products(ctx context.Context, ids []string) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupProducts(ids), nil
}

func (s *MemStore) CouponByCode(ctx context.Context, code string) (orders.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupon(code)
}

func (s *MemStore) CountRedemptions(ctx context.Context, couponID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count(couponID, ""), nil
}

func (s *MemStore) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count(couponID, userID), nil
}

func (s *MemStore) ListProducts(ctx context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	return s.lookupProducts(ids), nil
}

func (s *MemStore) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order(id)
}

func (s *MemStore) OrderIDByPayment(ctx context.Context, paymentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.GatewayPaymentID != nil && *o.GatewayPaymentID == paymentID {
			return o.ID, nil
		}
	}
	return "", orders.ErrOrderNotFound
}

func (s *MemStore) SaveDefaultAddress(ctx context.Context, userID string, sh orders.Shipping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAddressSave != nil {
		return s.FailAddressSave
	}
	for i := range s.addresses {
		if s.addresses[i].UserID == userID {
			s.addresses[i].IsDefault = false
		}
	}
	s.addresses = append(s.addresses, orders.Address{ID: uuid.NewString(), UserID: userID, Shipping: sh, IsDefault: true})
	return nil
}

func (s *MemStore) ListFulfillmentExceptions(ctx context.Context, openOnly bool) ([]orders.FulfillmentException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.FulfillmentException
	for _, fe := range s.exceptions {
		if openOnly && fe.ResolvedAt != nil {
			continue
		}
		out = append(out, fe)
	}
	return out, nil
}

func (s *MemStore) ListUserOrders(ctx context.Context, userID string, newestFirst bool, offset, limit int) ([]orders.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		a, b := mine[i], mine[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt) != newestFirst
		}
		return (a.ID < b.ID) != newestFirst
	})
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	out := make([]orders.Order, 0, end-offset)
	for _, o := range mine[offset:end] {
		o.Items = append([]orders.OrderItem(nil), o.Items...)
		out = append(out, o)
	}
	return out, total, nil
}

func (s *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ---- internals, caller holds mu ----

func (s *MemStore) lookupProducts(ids []string) []orders.Product {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make([]orders.Product, 0, len(sorted))
	for _, id := range sorted {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *MemStore) coupon(code string) (orders.Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return orders.Coupon{}, fmt.Errorf("%w: unknown code", orders.ErrInvalidCoupon)
	}
	return c, nil
}

func (s *MemStore) count(couponID, userID string) int {
	n := 0
	for _, r := range s.redemptions {
		if r.CouponID == couponID && (userID == "" || r.UserID == userID) {
			n++
		}
	}
	return n
}

func (s *MemStore) order(id string) (orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o, nil
}

type snapshot struct {
	products    map[string]orders.Product
	redemptions []orders.CouponRedemption
	orders      map[string]orders.Order
	exceptions  []orders.FulfillmentException
}

func (s *MemStore) snapshot() snapshot {
	sn := snapshot{
		products:    make(map[string]orders.Product, len(s.products)),
		redemptions: append([]orders.CouponRedemption(nil), s.redemptions...),
		orders:      make(map[string]orders.Order, len(s.orders)),
		exceptions:  append([]orders.FulfillmentException(nil), s.exceptions...),
	}
	for k, v := range s.products {
		sn.products[k] = v
	}
	for k, v := range s.orders {
		sn.orders[k] = v
	}
	return sn
}

func (s *MemStore) restore(sn snapshot) {
	s.products = sn.products
	s.redemptions = sn.redemptions
	s.orders = sn.orders
	s.exceptions = sn.exceptions
}

// memTx runs with MemStore.mu already held.
type memTx struct{ s *MemStore }

func (t *memTx) Products(ctx context.Context, ids []string) ([]orders.Product, error) {
	return t.s.lookupProducts(ids), nil
}

func (t *memTx) CouponByCode(ctx context.Context, code string) (orders.Coupon, error) {
	return t.s.coupon(code)
}

func (t *memTx) CountRedemptions(ctx context.Context, couponID string) (int, error) {
	return t.s.count(couponID, ""), nil
}

func (t *memTx) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return t.s.count(couponID, userID), nil
}

func (t *memTx) SetStock(ctx context.Context, productID string, stock int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return fmt.Errorf("%w: unknown product %s", orders.ErrInvalidItems, productID)
	}
	if stock < 0 {
		return fmt.Errorf("negative stock for %s", productID)
	}
	p.Stock = stock
	p.InStock = stock > 0
	p.UpdatedAt = time.Now()
	t.s.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	if o.GatewayPaymentID != nil {
		for _, x := range t.s.orders {
			if x.GatewayPaymentID != nil && *x.GatewayPaymentID == *o.GatewayPaymentID {
				return orders.ErrDuplicatePayment
			}
		}
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("negative total on %s", o.ID)
	}
	cp := *o
	cp.Items = append([]orders.OrderItem(nil), o.Items...)
	t.s.orders[o.ID] = cp
	return nil
}

func (t *memTx) InsertRedemption(ctx context.Context, r orders.CouponRedemption) error {
	if t.s.FailInsertRedemption != nil {
		return t.s.FailInsertRedemption
	}
	for _, x := range t.s.redemptions {
		if x.OrderID != "" && x.OrderID == r.OrderID {
			return fmt.Errorf("order %s already has a redemption", r.OrderID)
		}
	}
	t.s.redemptions = append(t.s.redemptions, r)
	return nil
}

func (t *memTx) InsertFulfillmentException(ctx context.Context, fe orders.FulfillmentException) error {
	t.s.exceptions = append(t.s.exceptions, fe)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.s.order(id)
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, id string, p orders.PaymentStatus) error {
	o, ok := t.s.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	o.PaymentStatus = p
	o.UpdatedAt = time.Now()
	t.s.orders[id] = o
	return nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id string, st orders.Status) error {
	o, ok := t.s.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	o.Status = st
	o.UpdatedAt = time.Now()
	t.s.orders[id] = o
	return nil
}
