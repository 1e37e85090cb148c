package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

type OrderService interface {
	Quote(ctx context.Context, req orders.QuoteRequest) (orders.Quote, error)
	Commit(ctx context.Context, req orders.CommitRequest) (orders.CommitResult, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	GetOrder(ctx context.Context, id, userID string) (orders.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int, sort orders.OrderSort) (orders.OrderPage, error)
	OrderStatus(ctx context.Context, id string) (orders.Status, error)
	Cancel(ctx context.Context, id, userID string) error
}

type PaymentService interface {
	Prepare(ctx context.Context, req payment.PrepareRequest) (payment.Prepared, error)
	Confirm(ctx context.Context, req payment.ConfirmRequest) (payment.Confirmed, error)
}

// StatusCache is implemented by redisx.Store.
type StatusCache interface {
	OrderStatus(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	SetOrderStatus(ctx context.Context, orderID, status string, at time.Time) error
}

type OrdersHandler struct {
	Orders   OrderService
	Payments PaymentService
	Cache    StatusCache            // boleh nil
	Metrics  *metrics.ServerMetrics // boleh nil
	KeyID    string                 // public Razorpay key for the checkout widget
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/cart/preview", h.previewGuest)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/preview", h.preview)
		r.Post("/prepare", h.prepare)
		r.Post("/cod", h.createCOD)
		r.Post("/confirm", h.confirm)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
		r.Post("/{id}/cancel", h.cancelOrder)
	})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Orders.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, productResp{ID: p.ID, SKU: p.SKU, Name: p.Name, UnitPrice: money(p.UnitPrice), Stock: p.Stock, InStock: p.InStock})
	}
	writeJSON(w, http.StatusOK, out)
}

// previewGuest prices a cart for an anonymous visitor. Coupons need an account.
func (h *OrdersHandler) previewGuest(w http.ResponseWriter, r *http.Request) {
	h.quote(w, r, "")
}

func (h *OrdersHandler) preview(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, orders.ErrUnauthenticated)
		return
	}
	h.quote(w, r, uid)
}

func (h *OrdersHandler) quote(w http.ResponseWriter, r *http.Request, uid string) {
	var req quoteReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q, err := h.Orders.Quote(ctx, orders.QuoteRequest{Lines: req.Items, CouponCode: req.CouponCode, UserID: uid})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResp(q))
}

func (h *OrdersHandler) prepare(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, orders.ErrUnauthenticated)
		return
	}
	var req prepareReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Payments.Prepare(ctx, payment.PrepareRequest{UserID: uid, Lines: req.Items, CouponCode: req.CouponCode, Currency: req.Currency})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prepareResp{
		KeyID:          h.KeyID,
		GatewayOrderID: p.Intent.ID,
		Amount:         p.AmountMinor,
		Currency:       p.Intent.Currency,
		Quote:          toQuoteResp(p.Quote),
		Total:          money(p.Quote.Total),
	})
}

func (h *OrdersHandler) createCOD(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, orders.ErrUnauthenticated)
		return
	}
	var req codReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Orders.Commit(ctx, orders.CommitRequest{
		UserID:      uid,
		Lines:       req.Items,
		CouponCode:  req.CouponCode,
		Shipping:    req.Shipping,
		SaveAddress: req.SaveAddress,
		Payment:     orders.PaymentInfo{Method: orders.PaymentCOD},
	})
	h.observe(orders.PaymentCOD, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheStatus(ctx, res.Order.ID, res.Order.Status)
	writeJSON(w, http.StatusCreated, toOrderResp(res.Order))
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, orders.ErrUnauthenticated)
		return
	}
	var req confirmReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Payments.Confirm(ctx, payment.ConfirmRequest{
		UserID:           uid,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		Lines:            req.Items,
		Shipping:         req.Shipping,
		CouponCode:       req.CouponCode,
		SaveAddress:      req.SaveAddress,
	})
	h.observe(orders.PaymentRazorpay, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Existing {
		code = http.StatusOK
	} else {
		h.cacheStatus(ctx, res.OrderID, orders.StatusProcessing)
	}
	writeJSON(w, code, confirmResp{OrderID: res.OrderID, Existing: res.Existing, FulfillmentException: res.FulfillmentException})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// listOrders: ?page=1&limit=10&sort=newest|oldest. Bad numbers fall back to defaults.
func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, orders.ErrUnauthenticated)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	sort := orders.OrderSort(strings.ToLower(q.Get("sort")))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Orders.ListOrders(ctx, uid, page, limit, sort)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderListResp(p))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		if cs, ok, err := h.Cache.OrderStatus(ctx, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: cs.Status, UpdatedAt: cs.UpdatedAt})
			return
		} else if err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("status cache read")
		}
	}

	// 2) fallback DB
	st, err := h.Orders.OrderStatus(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	h.cacheStatus(ctx, orderID, st)
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: string(st), UpdatedAt: now})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Orders.Cancel(ctx, orderID, userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheStatus(ctx, orderID, orders.StatusCancelled)
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: string(orders.StatusCancelled), UpdatedAt: time.Now().UTC()})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	cacheStatus(ctx, h.Cache, orderID, st)
}

// cacheStatus is best effort: a failed write only costs a DB read later.
func cacheStatus(ctx context.Context, c StatusCache, orderID string, st orders.Status) {
	if c == nil {
		return
	}
	if err := c.SetOrderStatus(ctx, orderID, string(st), time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("status cache write")
	}
}

func (h *OrdersHandler) observe(method orders.PaymentMethod, err error) {
	if h.Metrics == nil {
		return
	}
	outcome := "OK"
	if err != nil {
		outcome = orders.Code(err)
	}
	h.Metrics.ObserveCheckout(string(method), outcome)
}
