package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/orders/ordertest"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
)

const secret = "rzp_test_secret"

func TestSignAndVerify(t *testing.T) {
	// hex(HMAC-SHA256("rzp_test_secret", "order_1|pay_1"))
	sig := payment.Sign(secret, "order_1", "pay_1")
	assert.Len(t, sig, 64)

	assert.True(t, payment.Verify(secret, "order_1", "pay_1", sig))
	assert.False(t, payment.Verify(secret, "order_1", "pay_2", sig))
	assert.False(t, payment.Verify("other", "order_1", "pay_1", sig))
	assert.False(t, payment.Verify("", "order_1", "pay_1", payment.Sign("", "order_1", "pay_1")))
	assert.False(t, payment.Verify(secret, "order_1", "pay_1", ""))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(135045), payment.MinorUnits(decimal.RequireFromString("1350.45")))
	assert.Equal(t, int64(100), payment.MinorUnits(decimal.RequireFromString("0.995")))
	assert.Equal(t, int64(90000), payment.MinorUnits(decimal.RequireFromString("900")))
}

func TestRazorpay_CreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 90000, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":90000,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer srv.Close()

	rz := payment.NewRazorpay("key", "secret", srv.URL)
	in, err := rz.CreateIntent(context.Background(), 90000, "INR", "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", in.ID)
	assert.Equal(t, int64(90000), in.AmountMinor)
}

func TestRazorpay_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	_, err := payment.NewRazorpay("key", "secret", srv.URL).CreateIntent(context.Background(), 1, "INR", "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")

	_, err = payment.NewRazorpay("", "", srv.URL).CreateIntent(context.Background(), 100, "INR", "r")
	assert.ErrorIs(t, err, payment.ErrNotConfigured)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (payment.Intent, error) {
	args := m.Called(ctx, amountMinor, currency, receipt)
	return args.Get(0).(payment.Intent), args.Error(1)
}

type memIdem struct{ m map[string]string }

func (i *memIdem) PaymentOrder(ctx context.Context, paymentID string) (string, bool, error) {
	id, ok := i.m[paymentID]
	return id, ok, nil
}

func (i *memIdem) RememberPayment(ctx context.Context, paymentID, orderID string) error {
	i.m[paymentID] = orderID
	return nil
}

func newPaymentService(t *testing.T) (*payment.Service, *ordertest.MemStore, *mockGateway) {
	t.Helper()
	store := ordertest.NewMemStore()
	store.AddProduct("p1", "500", 2)
	store.AddCoupon(orders.Coupon{ID: "c1", Code: "SAVE10", Type: orders.DiscountPercent, Value: decimal.NewFromInt(10), Active: true})
	gw := &mockGateway{}
	svc := &payment.Service{
		Orders:  orders.NewService(store, nil, "order-api"),
		Gateway: gw,
		Secret:  secret,
		Idem:    &memIdem{m: map[string]string{}},
		Now:     func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
	return svc, store, gw
}

func TestPrepare(t *testing.T) {
	svc, store, gw := newPaymentService(t)
	gw.On("CreateIntent", mock.Anything, int64(90000), "INR", "rcpt_1700000000000").
		Return(payment.Intent{ID: "order_x", AmountMinor: 90000, Currency: "INR"}, nil).Once()

	p, err := svc.Prepare(context.Background(), payment.PrepareRequest{
		UserID: "u1", Lines: []orders.CartLine{{ProductID: "p1", Quantity: 2}}, CouponCode: "SAVE10",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_x", p.Intent.ID)
	assert.Equal(t, int64(90000), p.AmountMinor)
	assert.True(t, decimal.NewFromInt(100).Equal(p.Quote.Discount))
	gw.AssertExpectations(t)
	// prepare tidak mengurangi stok
	assert.Equal(t, 2, store.Product("p1").Stock)
}

func TestPrepare_Rejections(t *testing.T) {
	svc, _, gw := newPaymentService(t)
	ctx := context.Background()

	_, err := svc.Prepare(ctx, payment.PrepareRequest{Lines: []orders.CartLine{{ProductID: "p1", Quantity: 1}}})
	assert.ErrorIs(t, err, orders.ErrUnauthenticated)

	_, err = svc.Prepare(ctx, payment.PrepareRequest{UserID: "u1", Lines: []orders.CartLine{{ProductID: "p1", Quantity: 3}}})
	assert.ErrorIs(t, err, orders.ErrStockChanged)
	assert.Len(t, orders.StockIssuesOf(err), 1)

	_, err = svc.Prepare(ctx, payment.PrepareRequest{UserID: "u1", Lines: []orders.CartLine{{ProductID: "p1", Quantity: 1}}, CouponCode: "BOGUS"})
	assert.ErrorIs(t, err, orders.ErrInvalidCoupon)

	gw.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func confirmReq(paymentID, sig string) payment.ConfirmRequest {
	return payment.ConfirmRequest{
		UserID:           "u1",
		GatewayOrderID:   "order_x",
		GatewayPaymentID: paymentID,
		Signature:        sig,
		Lines:            []orders.CartLine{{ProductID: "p1", Quantity: 1}},
		Shipping:         orders.Shipping{Name: "Asha", Phone: "1", Line1: "l1", City: "c", State: "s", PostalCode: "p"},
		CouponCode:       "SAVE10",
	}
}

func TestConfirm(t *testing.T) {
	svc, store, _ := newPaymentService(t)
	ctx := context.Background()

	got, err := svc.Confirm(ctx, confirmReq("pay_1", payment.Sign(secret, "order_x", "pay_1")))
	require.NoError(t, err)
	assert.False(t, got.Existing)
	assert.False(t, got.FulfillmentException)

	all := store.Orders()
	require.Len(t, all, 1)
	o := all[0]
	assert.Equal(t, got.OrderID, o.ID)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.True(t, decimal.NewFromInt(450).Equal(o.Total))
	assert.Equal(t, 1, store.Product("p1").Stock)
	assert.Len(t, store.Redemptions(), 1)

	again, err := svc.Confirm(ctx, confirmReq("pay_1", payment.Sign(secret, "order_x", "pay_1")))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, got.OrderID, again.OrderID)
	assert.Equal(t, 1, store.Product("p1").Stock)
}

func TestConfirm_BadSignatureWritesNothing(t *testing.T) {
	svc, store, _ := newPaymentService(t)

	_, err := svc.Confirm(context.Background(), confirmReq("pay_1", payment.Sign("wrong", "order_x", "pay_1")))
	assert.ErrorIs(t, err, orders.ErrInvalidSignature)
	assert.Equal(t, orders.CodeInvalidSignature, orders.Code(err))

	_, err = svc.Confirm(context.Background(), confirmReq("pay_1", ""))
	assert.ErrorIs(t, err, orders.ErrInvalidSignature)

	assert.Empty(t, store.Orders())
	assert.Equal(t, 2, store.Product("p1").Stock)
}

func TestConfirm_PaidOrderSurvivesStockout(t *testing.T) {
	svc, store, _ := newPaymentService(t)
	req := confirmReq("pay_9", payment.Sign(secret, "order_x", "pay_9"))
	req.Lines = []orders.CartLine{{ProductID: "p1", Quantity: 5}}

	got, err := svc.Confirm(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got.FulfillmentException)
	assert.Equal(t, 0, store.Product("p1").Stock)
}

type memIntents map[string]int64

func (m memIntents) RememberIntent(ctx context.Context, gatewayOrderID string, amountMinor int64) error {
	m[gatewayOrderID] = amountMinor
	return nil
}

func (m memIntents) IntentAmount(ctx context.Context, gatewayOrderID string) (int64, bool, error) {
	n, ok := m[gatewayOrderID]
	return n, ok, nil
}

func TestConfirm_ChargedAmountCheck(t *testing.T) {
	tests := []struct {
		name          string
		prepareQty    int
		confirmQty    int
		wantException bool
	}{
		{"same_cart", 1, 1, false},
		{"cart_grew_after_prepare", 1, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, gw := newPaymentService(t)
			intents := memIntents{}
			svc.Intents = intents
			gw.On("CreateIntent", mock.Anything, mock.Anything, "INR", mock.Anything).
				Return(payment.Intent{ID: "order_x", Currency: "INR"}, nil).Once()
			ctx := context.Background()

			_, err := svc.Prepare(ctx, payment.PrepareRequest{
				UserID: "u1", Lines: []orders.CartLine{{ProductID: "p1", Quantity: tt.prepareQty}}, CouponCode: "SAVE10",
			})
			require.NoError(t, err)
			assert.Equal(t, int64(45000), intents["order_x"])

			req := confirmReq("pay_1", payment.Sign(secret, "order_x", "pay_1"))
			req.Lines = []orders.CartLine{{ProductID: "p1", Quantity: tt.confirmQty}}
			got, err := svc.Confirm(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantException, got.FulfillmentException)

			exc, err := store.ListFulfillmentExceptions(ctx, true)
			require.NoError(t, err)
			if !tt.wantException {
				assert.Empty(t, exc)
				return
			}
			require.Len(t, exc, 1)
			assert.Equal(t, orders.ReasonAmountMismatch, exc[0].Reason)
			require.NotNil(t, exc[0].ChargedTotal)
			require.NotNil(t, exc[0].OrderTotal)
			assert.True(t, decimal.NewFromInt(450).Equal(*exc[0].ChargedTotal))
			assert.True(t, decimal.NewFromInt(900).Equal(*exc[0].OrderTotal))
			// order tetap PAID, hanya ditandai
			assert.Equal(t, orders.PaymentPaid, store.Orders()[0].PaymentStatus)
		})
	}
}

func TestConfirm_UnknownIntentSkipsCheck(t *testing.T) {
	svc, store, _ := newPaymentService(t)
	svc.Intents = memIntents{}

	got, err := svc.Confirm(context.Background(), confirmReq("pay_1", payment.Sign(secret, "order_x", "pay_1")))
	require.NoError(t, err)
	assert.False(t, got.FulfillmentException)
	assert.False(t, store.Orders()[0].FulfillmentException)
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("900.50").Equal(payment.FromMinorUnits(90050)))
	assert.Equal(t, int64(90050), payment.MinorUnits(payment.FromMinorUnits(90050)))
}
