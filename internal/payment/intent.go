package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

// CallbackPath is the single inbound endpoint all three provider callback
// channels are dispatched through.
const CallbackPath = "/api/v1/payments/callback"

// Channel discriminator values carried in the callback URL.
const (
	ChannelIPN     = "ipn"
	ChannelSuccess = "success"
	ChannelCancel  = "cancel"
)

// Gateway is the provider API contract the preparer and reconciler depend on.
type Gateway interface {
	CreatePayment(ctx context.Context, req uddoktapay.CheckoutRequest) (string, error)
	VerifyPayment(ctx context.Context, invoiceID string) (uddoktapay.VerificationResponse, error)
}

// Preparer builds outbound payment intents. Pure: the same order snapshot
// always yields an identical payload.
type Preparer struct {
	CallbackBaseURL string
}

// BuildIntent constructs the intent payload for an order. The ipn callback
// omits order_id: that channel must resolve the order from the notification
// payload, not the URL.
func (p Preparer) BuildIntent(o order.Order) uddoktapay.CheckoutRequest {
	success := p.callbackURL(ChannelSuccess, o.ID)
	cancel := p.callbackURL(ChannelCancel, o.ID)
	ipn := p.callbackURL(ChannelIPN, "")

	return uddoktapay.CheckoutRequest{
		FullName: o.BillingName,
		Email:    o.BillingEmail,
		Amount:   fmt.Sprintf("%.2f", o.Total()),
		Metadata: uddoktapay.Metadata{
			OrderID:      o.ID,
			UserID:       o.UserID,
			MembershipID: o.MembershipID,
			OrderCode:    o.Code,
		},
		ReturnType:  "GET",
		RedirectURL: success,
		CancelURL:   cancel,
		WebhookURL:  ipn,
		SuccessURL:  success,
	}
}

func (p Preparer) callbackURL(channel, orderID string) string {
	values := url.Values{}
	values.Set("type", channel)
	if orderID != "" {
		values.Set("order_id", orderID)
	}
	base := strings.TrimRight(p.CallbackBaseURL, "/")
	return base + CallbackPath + "?" + values.Encode()
}
