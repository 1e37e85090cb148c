package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Products(ctx context.Context, ids []string) ([]Product, error) {
	return queryProducts(ctx, r.DB, ids, false)
}

func (r *Repo) CouponByCode(ctx context.Context, code string) (Coupon, error) {
	return queryCoupon(ctx, r.DB, code, false)
}

func (r *Repo) CountRedemptions(ctx context.Context, couponID string) (int, error) {
	return countRedemptions(ctx, r.DB, couponID)
}

func (r *Repo) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countUserRedemptions(ctx, r.DB, couponID, userID)
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price, stock, in_stock, created_at, updated_at
                                FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	return queryOrder(ctx, r.DB, id, false)
}

func (r *Repo) OrderIDByPayment(ctx context.Context, paymentID string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE gateway_payment_id=$1`, paymentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	return id, err
}

// SaveDefaultAddress runs in its own transaction, after the order is committed.
func (r *Repo) SaveDefaultAddress(ctx context.Context, userID string, s Shipping) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE addresses SET is_default=false WHERE user_id=$1 AND is_default`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO addresses(id, user_id, name, phone, line1, line2, city, state, postal_code, country, is_default)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,true)`,
		uuid.NewString(), userID, s.Name, s.Phone, s.Line1, s.Line2, s.City, s.State, s.PostalCode, s.Country,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListFulfillmentExceptions(ctx context.Context, openOnly bool) ([]FulfillmentException, error) {
	q := `SELECT id, order_id, product_id, requested, available, reason, charged_total, order_total,
	             created_at, resolved_at
	      FROM fulfillment_exceptions`
	if openOnly {
		q += ` WHERE resolved_at IS NULL`
	}
	rows, err := r.DB.Query(ctx, q+` ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FulfillmentException
	for rows.Next() {
		var (
			fe              FulfillmentException
			productID       *string
			charged, amount decimal.NullDecimal
		)
		if err := rows.Scan(&fe.ID, &fe.OrderID, &productID, &fe.Requested, &fe.Available, &fe.Reason,
			&charged, &amount, &fe.CreatedAt, &fe.ResolvedAt); err != nil {
			return nil, err
		}
		if productID != nil {
			fe.ProductID = *productID
		}
		fe.ChargedTotal, fe.OrderTotal = decimalPtr(charged), decimalPtr(amount)
		out = append(out, fe)
	}
	return out, rows.Err()
}

func (r *Repo) ListUserOrders(ctx context.Context, userID string, newestFirst bool, offset, limit int) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return nil, total, nil
	}
	dir := "ASC"
	if newestFirst {
		dir = "DESC"
	}
	// pakai idx_orders_user (user_id, created_at DESC)
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1
	                               ORDER BY created_at `+dir+`, id `+dir+` LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	items, err := loadItems(ctx, r.DB, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, total, nil
}

// pgTx implements Tx on top of one pgx transaction.
type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Products(ctx context.Context, ids []string) ([]Product, error) {
	return queryProducts(ctx, t.tx, ids, true)
}

func (t *pgTx) CouponByCode(ctx context.Context, code string) (Coupon, error) {
	return queryCoupon(ctx, t.tx, code, true)
}

func (t *pgTx) CountRedemptions(ctx context.Context, couponID string) (int, error) {
	return countRedemptions(ctx, t.tx, couponID)
}

func (t *pgTx) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countUserRedemptions(ctx, t.tx, couponID, userID)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	sh := o.Shipping
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, subtotal, coupon_id, coupon_discount, total, status,
			payment_method, payment_status, gateway_order_id, gateway_payment_id,
			shipping_name, shipping_phone, shipping_line1, shipping_line2, shipping_city,
			shipping_state, shipping_postal_code, shipping_country, fulfillment_exception,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)`,
		o.ID, o.UserID, o.Subtotal, o.CouponID, nullDecimal(o.CouponDiscount), o.Total, string(o.Status),
		string(o.PaymentMethod), string(o.PaymentStatus), o.GatewayOrderID, o.GatewayPaymentID,
		sh.Name, sh.Phone, sh.Line1, sh.Line2, sh.City,
		sh.State, sh.PostalCode, sh.Country, o.FulfillmentException,
		o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && strings.Contains(pgErr.ConstraintName, "gateway_payment_id") {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert order: %w", err)
	}

	// insert items
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) InsertRedemption(ctx context.Context, rd CouponRedemption) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO coupon_redemptions(coupon_id, user_id, order_id) VALUES ($1,$2,$3)`,
		rd.CouponID, rd.UserID, rd.OrderID)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (t *pgTx) InsertFulfillmentException(ctx context.Context, fe FulfillmentException) error {
	var productID *string
	if fe.ProductID != "" {
		productID = &fe.ProductID
	}
	reason := fe.Reason
	if reason == "" {
		reason = ReasonStockShortage
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO fulfillment_exceptions(id, order_id, product_id, requested, available, reason,
			charged_total, order_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		fe.ID, fe.OrderID, productID, fe.Requested, fe.Available, reason,
		nullDecimal(fe.ChargedTotal), nullDecimal(fe.OrderTotal), fe.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fulfillment exception: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (Order, error) {
	return queryOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, s Status) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(s))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, id string, p PaymentStatus) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`, id, string(p))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func queryCoupon(ctx context.Context, q querier, code string, lock bool) (Coupon, error) {
	sql := `SELECT id, code, type, value, active, starts_at, expires_at,
	               min_order_subtotal, max_discount_cap, usage_limit, per_user_limit
	        FROM coupons WHERE code=$1`
	if lock {
		// lock baris kupon -> hitung redemption serial per kupon
		sql += ` FOR UPDATE`
	}
	var (
		c        Coupon
		typ      string
		minOrder decimal.NullDecimal
		maxCap   decimal.NullDecimal
	)
	err := q.QueryRow(ctx, sql, code).Scan(&c.ID, &c.Code, &typ, &c.Value, &c.Active, &c.StartsAt, &c.ExpiresAt,
		&minOrder, &maxCap, &c.UsageLimit, &c.PerUserLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, fmt.Errorf("%w: unknown code", ErrInvalidCoupon)
	}
	if err != nil {
		return Coupon{}, err
	}
	c.Type = DiscountType(typ)
	c.MinOrderSubtotal = decimalPtr(minOrder)
	c.MaxDiscountCap = decimalPtr(maxCap)
	return c, nil
}

func countRedemptions(ctx context.Context, q querier, couponID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id=$1`, couponID).Scan(&n)
	return n, err
}

func countUserRedemptions(ctx context.Context, q querier, couponID, userID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id=$1 AND user_id=$2`, couponID, userID).Scan(&n)
	return n, err
}

const orderColumns = `id, user_id, subtotal, coupon_id, coupon_discount, total, status,
	payment_method, payment_status, gateway_order_id, gateway_payment_id,
	shipping_name, shipping_phone, shipping_line1, shipping_line2, shipping_city,
	shipping_state, shipping_postal_code, shipping_country, fulfillment_exception,
	created_at, updated_at`

func queryOrder(ctx context.Context, q querier, id string, lock bool) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrOrderNotFound
	}
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	items, err := loadItems(ctx, q, []string{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

// scanOrder reads one row selected with orderColumns, without items.
func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                    Order
		status, method, pays string
		discount             decimal.NullDecimal
	)
	sh := &o.Shipping
	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &o.CouponID, &discount, &o.Total, &status,
		&method, &pays, &o.GatewayOrderID, &o.GatewayPaymentID,
		&sh.Name, &sh.Phone, &sh.Line1, &sh.Line2, &sh.City,
		&sh.State, &sh.PostalCode, &sh.Country, &o.FulfillmentException,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentMethod, o.PaymentStatus = Status(status), PaymentMethod(method), PaymentStatus(pays)
	o.CouponDiscount = decimalPtr(discount)
	return o, nil
}

// loadItems returns the items of every order in ids, keyed by order id.
func loadItems(ctx context.Context, q querier, ids []string) (map[string][]OrderItem, error) {
	out := make(map[string][]OrderItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT order_id, product_id, quantity, unit_price FROM order_items
	                           WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			it      OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
