package uddoktapay

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Amount tolerates the provider returning money values as either a JSON
// number or a quoted decimal string.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Metadata is echoed back verbatim by the provider and carries the local
// correlation identifiers.
type Metadata struct {
	OrderID      string `json:"order_id"`
	UserID       int64  `json:"user_id"`
	MembershipID int64  `json:"membership_id"`
	OrderCode    string `json:"order_code"`
}

// CheckoutRequest is the outbound payment intent payload.
type CheckoutRequest struct {
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	Amount      string   `json:"amount"`
	Metadata    Metadata `json:"metadata"`
	ReturnType  string   `json:"return_type"`
	RedirectURL string   `json:"redirect_url"`
	CancelURL   string   `json:"cancel_url"`
	WebhookURL  string   `json:"webhook_url"`
	SuccessURL  string   `json:"success_url"`
}

// CheckoutResponse carries the hosted payment page URL, or the provider's
// error message when intent creation is refused.
type CheckoutResponse struct {
	PaymentURL string `json:"payment_url"`
	Message    string `json:"message"`
}

// VerificationResponse is the provider's authoritative record for a payment
// attempt. Read-only input: the reconciler never trusts a callback that this
// record does not confirm.
type VerificationResponse struct {
	Status        string   `json:"status"`
	Amount        Amount   `json:"amount"`
	TransactionID string   `json:"transaction_id"`
	PaymentMethod string   `json:"payment_method"`
	SenderNumber  string   `json:"sender_number"`
	InvoiceID     string   `json:"invoice_id"`
	Metadata      Metadata `json:"metadata"`
}

// IPNPayload is the asynchronous notification body pushed by the provider.
type IPNPayload struct {
	InvoiceID string   `json:"invoice_id"`
	Status    string   `json:"status"`
	Metadata  Metadata `json:"metadata"`
}
