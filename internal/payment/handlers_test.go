package payment

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-memberpay/internal/order"
)

func newWebhookHandler(t *testing.T, orders *stubOrders, gw *stubGateway) WebhookHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return WebhookHandler{
		Rec:             newReconciler(orders, gw, &stubActivator{}),
		Replay:          client,
		ReplayTTL:       time.Minute,
		AccountURL:      "https://shop.example.com/account",
		ConfirmationURL: "https://shop.example.com/confirmation",
		LevelsURL:       "https://shop.example.com/levels",
		Logger:          zerolog.Nop(),
	}
}

func TestHandleUnknownType(t *testing.T) {
	h := newWebhookHandler(t, &stubOrders{orders: map[string]order.Order{}}, &stubGateway{})

	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=refund", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGatewayNotReady(t *testing.T) {
	h := newWebhookHandler(t, &stubOrders{orders: map[string]order.Order{}}, &stubGateway{})
	h.Ready = func() bool { return false }

	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback?type=ipn", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleIPNChannel(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	h := newWebhookHandler(t, orders, &stubGateway{resp: completedResponse()})

	body := []byte(`{"invoice_id":"inv-1","status":"COMPLETED","metadata":{"order_id":"ord-1"}}`)
	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback?type=ipn", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"message":"payment completed"}`, rr.Body.String())
	require.Equal(t, order.StatusSuccess, orders.orders["ord-1"].Status)

	// The same notification delivered again is a replay, not a reprocess.
	rr = httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback?type=ipn", bytes.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, 1, orders.successCalls)
}

func TestHandleSuccessChannel(t *testing.T) {
	t.Run("redirects to confirmation with level", func(t *testing.T) {
		orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
		h := newWebhookHandler(t, orders, &stubGateway{resp: completedResponse()})

		rr := httptest.NewRecorder()
		h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=success&invoice_id=inv-1&order_id=ord-1", nil))
		require.Equal(t, http.StatusSeeOther, rr.Code)
		require.Equal(t, "https://shop.example.com/confirmation?level=3", rr.Header().Get("Location"))
	})

	t.Run("rejection redirects to account page", func(t *testing.T) {
		orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
		resp := completedResponse()
		resp.Status = "PENDING"
		h := newWebhookHandler(t, orders, &stubGateway{resp: resp})

		rr := httptest.NewRecorder()
		h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=success&invoice_id=inv-1&order_id=ord-1", nil))
		require.Equal(t, http.StatusSeeOther, rr.Code)
		require.Equal(t, "https://shop.example.com/account", rr.Header().Get("Location"))
		require.Equal(t, order.StatusFailed, orders.orders["ord-1"].Status)
	})

	t.Run("missing parameters are request errors", func(t *testing.T) {
		h := newWebhookHandler(t, &stubOrders{orders: map[string]order.Order{}}, &stubGateway{})

		rr := httptest.NewRecorder()
		h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=success&order_id=ord-1", nil))
		require.Equal(t, http.StatusBadRequest, rr.Code)

		rr = httptest.NewRecorder()
		h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=success&invoice_id=inv-1", nil))
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleCancelChannel(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	h := newWebhookHandler(t, orders, &stubGateway{})

	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=cancel&order_id=ord-1", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "https://shop.example.com/levels", rr.Header().Get("Location"))
	require.Equal(t, order.StatusFailed, orders.orders["ord-1"].Status)

	// An unresolvable order still lands the payer on the levels page.
	rr = httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/callback?type=cancel&order_id=missing", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "https://shop.example.com/levels", rr.Header().Get("Location"))
}
