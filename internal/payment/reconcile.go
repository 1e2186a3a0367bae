package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-memberpay/internal/common"
	"github.com/noah-isme/backend-memberpay/internal/lock"
	"github.com/noah-isme/backend-memberpay/internal/membership"
	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

// Failure reasons recorded in the order audit note.
const (
	ReasonValidationFailed = "validation_failed"
	ReasonCancelled        = "cancelled"
)

// ErrRejected signals that re-verification against the provider rejected the
// claimed payment. Synchronous channels translate it into a soft redirect
// rather than a raw error page.
var ErrRejected = common.NewAppError(common.CodeValidationFailed, "payment validation failed", http.StatusBadRequest, nil)

// OrderStore is the order persistence contract the reconciler depends on.
// MarkSuccess and MarkFailed are compare-and-set transitions: the bool reports
// whether this call applied the transition or the order was already terminal.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (order.Order, error)
	MarkSuccess(ctx context.Context, id, transactionID, notes string) (bool, error)
	MarkFailed(ctx context.Context, id, notes string) (bool, error)
}

// Locks serialises terminal transitions per order.
type Locks interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Reconciler drives the verification-and-reconciliation state machine. Each
// callback channel loads the order, re-verifies the claimed outcome against
// the provider's record, and applies the terminal transition exactly once.
type Reconciler struct {
	Orders      OrderStore
	Gateway     Gateway
	Verifier    Verifier
	Activator   membership.Activator
	Locks       Locks
	LockTTL     time.Duration
	GatewayName string
	Logger      zerolog.Logger

	// Now is overridable for deterministic audit notes in tests.
	Now func() time.Time
}

// HandleIPN processes an asynchronous provider push. All payload checks run
// before any order mutation.
func (r *Reconciler) HandleIPN(ctx context.Context, body []byte) error {
	if len(body) == 0 {
		return common.BadRequest("empty payload")
	}
	var payload uddoktapay.IPNPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return common.BadRequest("invalid JSON payload")
	}
	orderID := strings.TrimSpace(payload.Metadata.OrderID)
	if orderID == "" {
		return common.BadRequest("order id not found in payload")
	}
	if strings.TrimSpace(payload.InvoiceID) == "" {
		return common.BadRequest("invoice id not found in payload")
	}

	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, nil)
		}
		return err
	}

	return r.reconcile(ctx, o, payload.InvoiceID)
}

// HandleSuccess processes the synchronous redirect after the payer completed
// checkout on the provider's hosted page. Returns the membership level for
// the confirmation redirect.
func (r *Reconciler) HandleSuccess(ctx context.Context, invoiceID, orderID string) (int64, error) {
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return 0, common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, nil)
		}
		return 0, err
	}
	if err := r.reconcile(ctx, o, invoiceID); err != nil {
		return 0, err
	}
	return o.MembershipID, nil
}

// HandleCancel processes the synchronous redirect after the payer abandoned
// checkout. Best-effort: an unresolvable order is a normal flow, not an
// error, because cancellation can happen before intent creation.
func (r *Reconciler) HandleCancel(ctx context.Context, orderID string) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return
	}
	o, err := r.Orders.GetByID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			r.Logger.Error().Err(err).Str("order_id", orderID).Msg("load order for cancel")
		}
		return
	}
	if err := r.fail(ctx, o, ReasonCancelled); err != nil {
		r.Logger.Error().Err(err).Str("order_id", o.ID).Msg("mark order cancelled")
	}
}

// reconcile re-verifies the invoice against the provider and applies the
// matching terminal transition.
func (r *Reconciler) reconcile(ctx context.Context, o order.Order, invoiceID string) error {
	resp, err := r.Gateway.VerifyPayment(ctx, invoiceID)
	if err != nil {
		var apiErr *uddoktapay.APIError
		if errors.As(err, &apiErr) {
			return common.GatewayError("payment verification failed", err)
		}
		return err
	}

	if !r.Verifier.Validate(o, resp) {
		if err := r.fail(ctx, o, ReasonValidationFailed); err != nil {
			r.Logger.Error().Err(err).Str("order_id", o.ID).Msg("mark order failed")
		}
		return ErrRejected
	}

	return r.complete(ctx, o, resp)
}

// complete applies the success transition and triggers activation. The
// persistence write happens first: a crash between the two leaves the order
// correctly marked while activation is retried out-of-band. An order that is
// already terminal is left untouched and never activates twice.
func (r *Reconciler) complete(ctx context.Context, o order.Order, resp uddoktapay.VerificationResponse) error {
	do := func(ctx context.Context) error {
		note := r.completionNote(resp)
		applied, err := r.Orders.MarkSuccess(ctx, o.ID, resp.TransactionID, note)
		if err != nil {
			return err
		}
		if !applied {
			r.Logger.Info().Str("order_id", o.ID).Msg("order already terminal, completion skipped")
			return nil
		}
		if r.Activator != nil {
			activation := membership.Activation{
				UserID:       o.UserID,
				MembershipID: o.MembershipID,
				OrderID:      o.ID,
			}
			if err := r.Activator.Activate(ctx, activation); err != nil {
				// The order is durably success; the operator re-triggers
				// activation rather than the payment being re-processed.
				r.Logger.Error().Err(err).Str("order_id", o.ID).Msg("enqueue membership activation")
			}
		}
		r.Logger.Info().
			Str("order_id", o.ID).
			Str("transaction_id", resp.TransactionID).
			Msg("payment completed")
		return nil
	}
	return r.withOrderLock(ctx, o.ID, do)
}

func (r *Reconciler) fail(ctx context.Context, o order.Order, reason string) error {
	do := func(ctx context.Context) error {
		applied, err := r.Orders.MarkFailed(ctx, o.ID, r.failureNote(reason))
		if err != nil {
			return err
		}
		if !applied {
			r.Logger.Info().Str("order_id", o.ID).Str("reason", reason).Msg("order already terminal, failure skipped")
			return nil
		}
		r.Logger.Info().Str("order_id", o.ID).Str("reason", reason).Msg("payment failed")
		return nil
	}
	return r.withOrderLock(ctx, o.ID, do)
}

func (r *Reconciler) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	if r.Locks == nil {
		return fn(ctx)
	}
	return r.Locks.WithLock(ctx, lock.OrderKey(orderID), r.LockTTL, fn)
}

func (r *Reconciler) completionNote(resp uddoktapay.VerificationResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment completed via %s on %s.\n", r.gatewayName(), r.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Transaction ID: %s\n", resp.TransactionID)
	fmt.Fprintf(&b, "Payment Method: %s\n", resp.PaymentMethod)
	fmt.Fprintf(&b, "Sender Number: %s", resp.SenderNumber)
	return b.String()
}

func (r *Reconciler) failureNote(reason string) string {
	return fmt.Sprintf("Payment failed via %s on %s.\nReason: %s",
		r.gatewayName(), r.now().Format("2006-01-02 15:04:05"), reason)
}

func (r *Reconciler) gatewayName() string {
	if strings.TrimSpace(r.GatewayName) != "" {
		return r.GatewayName
	}
	return "UddoktaPay"
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
