package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type AdminService interface {
	UpdateStatus(ctx context.Context, id string, to orders.Status, pay orders.PaymentStatus) (orders.Order, error)
	FulfillmentExceptions(ctx context.Context, openOnly bool) ([]orders.FulfillmentException, error)
}

// AdminHandler serves back-office routes behind a static bearer token.
// An empty Token disables the routes.
type AdminHandler struct {
	Orders AdminService
	Cache  StatusCache
	Token  string
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Patch("/orders/{id}", h.updateStatus)
		r.Get("/fulfillment-exceptions", h.listExceptions)
	})
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "Bearer " + h.Token
		got := r.Header.Get("Authorization")
		if h.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "FORBIDDEN", Message: "admin token required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, req.PaymentStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cacheStatus(ctx, h.Cache, o.ID, o.Status)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// listExceptions returns open exceptions; ?all=true includes resolved ones.
func (h *AdminHandler) listExceptions(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	fes, err := h.Orders.FulfillmentExceptions(ctx, !all)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]fulfillmentExceptionResp, 0, len(fes))
	for _, fe := range fes {
		out = append(out, fulfillmentExceptionResp{
			ID:           fe.ID,
			OrderID:      fe.OrderID,
			Reason:       fe.Reason,
			ProductID:    fe.ProductID,
			Requested:    fe.Requested,
			Available:    fe.Available,
			ChargedTotal: moneyPtr(fe.ChargedTotal),
			OrderTotal:   moneyPtr(fe.OrderTotal),
			CreatedAt:    fe.CreatedAt,
			ResolvedAt:   fe.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
