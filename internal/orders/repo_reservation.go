package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// queryProducts loads products by id. With lock, rows are taken FOR UPDATE in
// id order so concurrent commits over overlapping carts queue instead of deadlocking.
func queryProducts(ctx context.Context, q querier, ids []string, lock bool) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	args := make([]any, 0, len(sorted))
	var params strings.Builder
	for i, id := range sorted {
		if i > 0 {
			params.WriteString(",")
		}
		fmt.Fprintf(&params, "$%d", i+1)
		args = append(args, id)
	}
	sql := `SELECT id, sku, name, price, stock, in_stock, created_at, updated_at
	        FROM products WHERE id IN (` + params.String() + `) ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0, len(sorted))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(rows pgx.Rows) (Product, error) {
	var p Product
	err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitPrice, &p.Stock, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// SetStock writes the new stock of a row already locked by Products.
func (t *pgTx) SetStock(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("negative stock for %s", productID)
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock=$2, in_stock=$2 > 0, updated_at=now() WHERE id=$1`,
		productID, stock)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: unknown product %s", ErrInvalidItems, productID)
	}
	return nil
}
