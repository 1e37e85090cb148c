package orders

import "context"

type OrderSort string

const (
	SortNewest OrderSort = "newest"
	SortOldest OrderSort = "oldest"
)

// Page bounds for ListOrders.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	maxPage          = 100000 // offset tetap jauh dari overflow
)

type OrderPage struct {
	Orders []Order
	Page   int
	Limit  int
	Total  int
}

func (p OrderPage) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// ListOrders returns userID's orders, newest first unless sort is SortOldest.
// Out-of-range page and limit are clamped, not rejected.
func (s *Service) ListOrders(ctx context.Context, userID string, page, limit int, sort OrderSort) (OrderPage, error) {
	if userID == "" {
		return OrderPage{}, ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	switch {
	case limit < 1:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	list, total, err := s.Store.ListUserOrders(ctx, userID, sort != SortOldest, (page-1)*limit, limit)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Orders: list, Page: page, Limit: limit, Total: total}, nil
}
