package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-memberpay/internal/common"
	"github.com/noah-isme/backend-memberpay/internal/membership"
	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

type stubOrders struct {
	orders map[string]order.Order

	successCalls int
	failedCalls  int
	lastNote     string
	lastTxID     string
}

func (s *stubOrders) GetByID(_ context.Context, id string) (order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrders) MarkSuccess(_ context.Context, id, transactionID, notes string) (bool, error) {
	s.successCalls++
	s.lastNote = notes
	s.lastTxID = transactionID
	o, ok := s.orders[id]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	o.Status = order.StatusSuccess
	s.orders[id] = o
	return true, nil
}

func (s *stubOrders) MarkFailed(_ context.Context, id, notes string) (bool, error) {
	s.failedCalls++
	s.lastNote = notes
	o, ok := s.orders[id]
	if !ok || o.Status.Terminal() {
		return false, nil
	}
	o.Status = order.StatusFailed
	s.orders[id] = o
	return true, nil
}

type stubGateway struct {
	resp uddoktapay.VerificationResponse
	err  error

	verifiedInvoices []string
}

func (g *stubGateway) CreatePayment(context.Context, uddoktapay.CheckoutRequest) (string, error) {
	return "", errors.New("not used")
}

func (g *stubGateway) VerifyPayment(_ context.Context, invoiceID string) (uddoktapay.VerificationResponse, error) {
	g.verifiedInvoices = append(g.verifiedInvoices, invoiceID)
	return g.resp, g.err
}

type stubActivator struct {
	activations []membership.Activation
	err         error
}

func (a *stubActivator) Activate(_ context.Context, act membership.Activation) error {
	a.activations = append(a.activations, act)
	return a.err
}

func pendingOrder() order.Order {
	return order.Order{
		ID:           "ord-1",
		Code:         "ABC123",
		Subtotal:     500,
		Status:       order.StatusPending,
		MembershipID: 3,
		UserID:       9,
	}
}

func completedResponse() uddoktapay.VerificationResponse {
	return uddoktapay.VerificationResponse{
		Status:        StatusCompleted,
		Amount:        500,
		TransactionID: "TXN-77",
		PaymentMethod: "bkash",
		SenderNumber:  "01700000000",
		InvoiceID:     "inv-1",
		Metadata:      uddoktapay.Metadata{OrderID: "ord-1", OrderCode: "ABC123"},
	}
}

func newReconciler(orders *stubOrders, gw *stubGateway, act *stubActivator) *Reconciler {
	return &Reconciler{
		Orders:      orders,
		Gateway:     gw,
		Verifier:    Verifier{Logger: zerolog.Nop()},
		Activator:   act,
		GatewayName: "UddoktaPay",
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) },
	}
}

func TestHandleIPNCompletesOrder(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	gw := &stubGateway{resp: completedResponse()}
	act := &stubActivator{}
	rec := newReconciler(orders, gw, act)

	body := []byte(`{"invoice_id":"inv-1","status":"COMPLETED","metadata":{"order_id":"ord-1","order_code":"ABC123"}}`)
	require.NoError(t, rec.HandleIPN(context.Background(), body))

	require.Equal(t, []string{"inv-1"}, gw.verifiedInvoices)
	require.Equal(t, order.StatusSuccess, orders.orders["ord-1"].Status)
	require.Equal(t, "TXN-77", orders.lastTxID)
	require.Len(t, act.activations, 1)
	require.Equal(t, membership.Activation{UserID: 9, MembershipID: 3, OrderID: "ord-1"}, act.activations[0])

	require.Equal(t, "Payment completed via UddoktaPay on 2025-03-14 09:30:00.\n"+
		"Transaction ID: TXN-77\n"+
		"Payment Method: bkash\n"+
		"Sender Number: 01700000000", orders.lastNote)
}

func TestHandleIPNPayloadChecksBeforeMutation(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	gw := &stubGateway{resp: completedResponse()}
	rec := newReconciler(orders, gw, &stubActivator{})

	cases := []struct {
		name string
		body []byte
	}{
		{"empty body", nil},
		{"invalid json", []byte(`{"invoice_id":`)},
		{"missing order id", []byte(`{"invoice_id":"inv-1","metadata":{}}`)},
		{"missing invoice id", []byte(`{"metadata":{"order_id":"ord-1"}}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rec.HandleIPN(context.Background(), tc.body)
			require.Error(t, err)
			require.Equal(t, common.CodeBadRequest, common.AsAppError(err).Code)
		})
	}

	require.Empty(t, gw.verifiedInvoices)
	require.Zero(t, orders.successCalls)
	require.Zero(t, orders.failedCalls)
}

func TestHandleIPNOrderNotFound(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{}}
	rec := newReconciler(orders, &stubGateway{}, &stubActivator{})

	body := []byte(`{"invoice_id":"inv-1","metadata":{"order_id":"missing"}}`)
	err := rec.HandleIPN(context.Background(), body)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, common.AsAppError(err).HTTPStatus)
}

func TestReconcileValidationFailureMarksFailed(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	resp := completedResponse()
	resp.Amount = 499.50
	gw := &stubGateway{resp: resp}
	act := &stubActivator{}
	rec := newReconciler(orders, gw, act)

	body := []byte(`{"invoice_id":"inv-1","metadata":{"order_id":"ord-1"}}`)
	err := rec.HandleIPN(context.Background(), body)
	require.ErrorIs(t, err, ErrRejected)

	require.Equal(t, order.StatusFailed, orders.orders["ord-1"].Status)
	require.Empty(t, act.activations)
	require.True(t, strings.Contains(orders.lastNote, "Reason: validation_failed"), "note: %q", orders.lastNote)
}

func TestReconcileAlreadyTerminalSkipsActivation(t *testing.T) {
	o := pendingOrder()
	o.Status = order.StatusSuccess
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": o}}
	act := &stubActivator{}
	rec := newReconciler(orders, &stubGateway{resp: completedResponse()}, act)

	body := []byte(`{"invoice_id":"inv-1","metadata":{"order_id":"ord-1"}}`)
	require.NoError(t, rec.HandleIPN(context.Background(), body))

	require.Equal(t, 1, orders.successCalls)
	require.Empty(t, act.activations, "a terminal order must never activate again")
}

func TestReconcileGatewayError(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	gw := &stubGateway{err: &uddoktapay.APIError{Message: "invoice not found"}}
	rec := newReconciler(orders, gw, &stubActivator{})

	body := []byte(`{"invoice_id":"inv-1","metadata":{"order_id":"ord-1"}}`)
	err := rec.HandleIPN(context.Background(), body)
	require.Error(t, err)
	require.Equal(t, common.CodeGatewayError, common.AsAppError(err).Code)
	require.Zero(t, orders.successCalls)
	require.Zero(t, orders.failedCalls)
}

func TestHandleSuccessReturnsMembership(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	rec := newReconciler(orders, &stubGateway{resp: completedResponse()}, &stubActivator{})

	level, err := rec.HandleSuccess(context.Background(), "inv-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), level)
	require.Equal(t, order.StatusSuccess, orders.orders["ord-1"].Status)
}

func TestHandleCancel(t *testing.T) {
	t.Run("marks pending order failed", func(t *testing.T) {
		orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
		rec := newReconciler(orders, &stubGateway{}, &stubActivator{})

		rec.HandleCancel(context.Background(), "ord-1")
		require.Equal(t, order.StatusFailed, orders.orders["ord-1"].Status)
		require.True(t, strings.Contains(orders.lastNote, "Reason: cancelled"), "note: %q", orders.lastNote)
	})

	t.Run("unknown order is swallowed", func(t *testing.T) {
		orders := &stubOrders{orders: map[string]order.Order{}}
		rec := newReconciler(orders, &stubGateway{}, &stubActivator{})

		rec.HandleCancel(context.Background(), "missing")
		require.Zero(t, orders.failedCalls)
	})

	t.Run("blank order id is a no-op", func(t *testing.T) {
		orders := &stubOrders{orders: map[string]order.Order{}}
		rec := newReconciler(orders, &stubGateway{}, &stubActivator{})

		rec.HandleCancel(context.Background(), "  ")
		require.Zero(t, orders.failedCalls)
	})
}

func TestActivationFailureDoesNotFailCompletion(t *testing.T) {
	orders := &stubOrders{orders: map[string]order.Order{"ord-1": pendingOrder()}}
	act := &stubActivator{err: errors.New("queue down")}
	rec := newReconciler(orders, &stubGateway{resp: completedResponse()}, act)

	body := []byte(`{"invoice_id":"inv-1","metadata":{"order_id":"ord-1"}}`)
	require.NoError(t, rec.HandleIPN(context.Background(), body))
	require.Equal(t, order.StatusSuccess, orders.orders["ord-1"].Status)
}
