package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// codeInvalidRequest covers malformed bodies that never reach the core.
const codeInvalidRequest = "INVALID_REQUEST"

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error       string              `json:"error"`
	Message     string              `json:"message"`
	StockIssues []orders.StockIssue `json:"stock_issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a core error to its status and code. Internal errors are
// logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := orders.Code(err)
	status := statusFor(code)
	body := errorBody{Error: code, Message: err.Error(), StockIssues: orders.StockIssuesOf(err)}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: code, Message: msg})
}

func statusFor(code string) int {
	switch code {
	case orders.CodeInvalidItems, orders.CodeInvalidCoupon, orders.CodeUsageLimitReached,
		orders.CodeUserLimitReached, orders.CodeInvalidSignature, orders.CodeInvalidAmount:
		return http.StatusBadRequest
	case orders.CodeUnauthenticated:
		return http.StatusUnauthorized
	case orders.CodeOrderNotFound:
		return http.StatusNotFound
	case orders.CodeStockChanged, orders.CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body and runs struct validation. It writes the 400
// itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, codeInvalidRequest, "invalid json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			for _, fe := range ves {
				if strings.Contains(fe.Namespace(), ".Items") {
					writeBadRequest(w, orders.CodeInvalidItems, orders.ErrInvalidItems.Error())
					return false
				}
			}
			writeBadRequest(w, codeInvalidRequest, "invalid field: "+ves[0].Field())
			return false
		}
		writeBadRequest(w, codeInvalidRequest, err.Error())
		return false
	}
	return true
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func moneyPtr(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	m := money(*d)
	return &m
}

// userID is set by the upstream auth gateway.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
