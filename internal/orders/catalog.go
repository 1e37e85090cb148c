package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ProductReader loads products by id. Ids not found are simply absent from the result.
type ProductReader interface {
	Products(ctx context.Context, ids []string) ([]Product, error)
}

// Catalog is the authoritative price and stock view for one set of lines.
type Catalog struct {
	Prices map[string]decimal.Decimal
	Stock  map[string]int
}

// MaxQuantity bounds one line and the coalesced total per product.
const MaxQuantity = 10000

// Coalesce sums quantities per product and sorts the result by product id.
func Coalesce(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidItems)
	}
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product id", ErrInvalidItems)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid quantity for %s", ErrInvalidItems, l.ProductID)
		}
		// cek sebelum dijumlah supaya tidak overflow
		if l.Quantity > MaxQuantity-qty[l.ProductID] {
			return nil, fmt.Errorf("%w: quantity for %s exceeds %d", ErrInvalidItems, l.ProductID, MaxQuantity)
		}
		qty[l.ProductID] += l.Quantity
	}
	out := make([]CartLine, 0, len(qty))
	for id, q := range qty {
		out = append(out, CartLine{ProductID: id, Quantity: q})
	}
	// urutan id stabil -> lock row selalu dengan urutan sama (hindari deadlock)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// Resolve coalesces lines and loads prices and stock for every product.
// Fails with ErrInvalidItems if any product is missing.
func Resolve(ctx context.Context, r ProductReader, lines []CartLine) (Catalog, []CartLine, error) {
	merged, err := Coalesce(lines)
	if err != nil {
		return Catalog{}, nil, err
	}
	ids := make([]string, len(merged))
	for i, l := range merged {
		ids[i] = l.ProductID
	}
	ps, err := r.Products(ctx, ids)
	if err != nil {
		return Catalog{}, nil, fmt.Errorf("load products: %w", err)
	}
	cat := Catalog{
		Prices: make(map[string]decimal.Decimal, len(ps)),
		Stock:  make(map[string]int, len(ps)),
	}
	for _, p := range ps {
		cat.Prices[p.ID] = p.UnitPrice
		cat.Stock[p.ID] = p.Stock
	}
	for _, id := range ids {
		if _, ok := cat.Prices[id]; !ok {
			return Catalog{}, nil, fmt.Errorf("%w: unknown product %s", ErrInvalidItems, id)
		}
	}
	return cat, merged, nil
}

// Subtotal sums quantity times unit price over lines.
func (c Catalog) Subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(c.Prices[l.ProductID].Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Shortages lists every line whose quantity exceeds current stock.
func (c Catalog) Shortages(lines []CartLine) []StockIssue {
	var out []StockIssue
	for _, l := range lines {
		if avail := c.Stock[l.ProductID]; l.Quantity > avail {
			out = append(out, StockIssue{ProductID: l.ProductID, Requested: l.Quantity, Available: avail})
		}
	}
	return out
}
