package payment

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-memberpay/internal/obs"
	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

// StatusCompleted is the only provider status accepted as payment success.
// The match is a case-sensitive literal: partial and refunded states reject.
const StatusCompleted = "COMPLETED"

// AmountTolerance absorbs floating-point rounding when comparing the order
// total against the amount the provider reports as paid. Fixed business rule.
const AmountTolerance = 0.01

// Rejection reasons, in check order. The first failing check determines the
// logged reason.
const (
	RejectStatus    = "status"
	RejectAmount    = "amount"
	RejectOrderCode = "order_code"
)

// Verifier decides whether a provider verification response proves the order
// was paid. Pure aside from rejection logging.
type Verifier struct {
	Logger zerolog.Logger
}

// Validate runs the three checks in order: provider status, amount match
// within tolerance, and order-code correlation. All must pass; the first
// failure short-circuits.
func (v Verifier) Validate(o order.Order, resp uddoktapay.VerificationResponse) bool {
	if resp.Status != StatusCompleted {
		v.reject(o, RejectStatus, func(e *zerolog.Event) {
			e.Str("provider_status", resp.Status)
		})
		return false
	}

	expected := o.Total()
	paid := float64(resp.Amount)
	if math.Abs(expected-paid) > AmountTolerance {
		v.reject(o, RejectAmount, func(e *zerolog.Event) {
			e.Float64("order_amount", expected).Float64("paid_amount", paid)
		})
		return false
	}

	// Missing metadata decodes to an empty code and is a mismatch, not a crash.
	if resp.Metadata.OrderCode != o.Code {
		v.reject(o, RejectOrderCode, func(e *zerolog.Event) {
			e.Str("order_code", o.Code).Str("response_code", resp.Metadata.OrderCode)
		})
		return false
	}

	return true
}

func (v Verifier) reject(o order.Order, reason string, enrich func(*zerolog.Event)) {
	evt := v.Logger.Error().Str("order_id", o.ID).Str("reason", reason)
	if enrich != nil {
		enrich(evt)
	}
	evt.Msg("payment validation rejected")
	if obs.VerifyRejectedTotal != nil {
		obs.VerifyRejectedTotal.WithLabelValues(reason).Inc()
	}
}
