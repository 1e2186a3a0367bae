package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-memberpay/internal/common"
	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/payment"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

// OrderCreator persists new pending orders.
type OrderCreator interface {
	Create(ctx context.Context, o order.Order) (order.Order, error)
}

// Input captures what checkout needs to open a payment attempt.
type Input struct {
	FullName     string
	Email        string
	Subtotal     float64
	Tax          float64
	MembershipID int64
	UserID       int64
}

// Result carries the hosted payment page the payer is redirected to.
type Result struct {
	OrderID    string
	OrderCode  string
	PaymentURL string
}

// Service creates a local pending order and opens a payment intent with the
// provider.
type Service struct {
	Orders  OrderCreator
	Gateway payment.Gateway
	Prepare payment.Preparer
	Ready   func() bool
	Logger  zerolog.Logger
}

// Checkout runs the intent flow. Provider errors surface with the provider's
// message but leak nothing else.
func (s *Service) Checkout(ctx context.Context, in Input) (Result, error) {
	if s == nil || s.Orders == nil || s.Gateway == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	if s.Ready != nil && !s.Ready() {
		return Result{}, common.NewAppError(common.CodeGatewayNotConfigured, "gateway not configured", http.StatusServiceUnavailable, nil)
	}

	o, err := s.Orders.Create(ctx, order.Order{
		BillingName:  in.FullName,
		BillingEmail: in.Email,
		Subtotal:     in.Subtotal,
		Tax:          in.Tax,
		MembershipID: in.MembershipID,
		UserID:       in.UserID,
	})
	if err != nil {
		return Result{}, err
	}

	paymentURL, err := s.Gateway.CreatePayment(ctx, s.Prepare.BuildIntent(o))
	if err != nil {
		var apiErr *uddoktapay.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return Result{}, common.GatewayError("Gateway Error: "+apiErr.Message, err)
		}
		return Result{}, common.GatewayError("failed to get payment URL from gateway", err)
	}

	s.Logger.Info().Str("order_id", o.ID).Str("order_code", o.Code).Msg("payment intent created")
	return Result{OrderID: o.ID, OrderCode: o.Code, PaymentURL: paymentURL}, nil
}
