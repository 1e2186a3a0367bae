package payment

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

func TestValidate(t *testing.T) {
	base := order.Order{
		ID:       "ord-1",
		Code:     "ABC123",
		Subtotal: 450.00,
		Tax:      50.00,
	}
	v := Verifier{Logger: zerolog.Nop()}

	cases := []struct {
		name string
		resp uddoktapay.VerificationResponse
		want bool
	}{
		{
			name: "exact match accepted",
			resp: uddoktapay.VerificationResponse{
				Status:   "COMPLETED",
				Amount:   500.00,
				Metadata: uddoktapay.Metadata{OrderCode: "ABC123"},
			},
			want: true,
		},
		{
			name: "amount within tolerance accepted",
			resp: uddoktapay.VerificationResponse{
				Status:   "COMPLETED",
				Amount:   500.004,
				Metadata: uddoktapay.Metadata{OrderCode: "ABC123"},
			},
			want: true,
		},
		{
			name: "underpaid rejected",
			resp: uddoktapay.VerificationResponse{
				Status:   "COMPLETED",
				Amount:   499.50,
				Metadata: uddoktapay.Metadata{OrderCode: "ABC123"},
			},
			want: false,
		},
		{
			name: "pending status rejected",
			resp: uddoktapay.VerificationResponse{
				Status:   "PENDING",
				Amount:   500.00,
				Metadata: uddoktapay.Metadata{OrderCode: "ABC123"},
			},
			want: false,
		},
		{
			name: "lowercase status rejected",
			resp: uddoktapay.VerificationResponse{
				Status:   "completed",
				Amount:   500.00,
				Metadata: uddoktapay.Metadata{OrderCode: "ABC123"},
			},
			want: false,
		},
		{
			name: "wrong order code rejected",
			resp: uddoktapay.VerificationResponse{
				Status:   "COMPLETED",
				Amount:   500.00,
				Metadata: uddoktapay.Metadata{OrderCode: "XYZ999"},
			},
			want: false,
		},
		{
			name: "missing metadata rejected",
			resp: uddoktapay.VerificationResponse{
				Status: "COMPLETED",
				Amount: 500.00,
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.Validate(base, tc.resp); got != tc.want {
				t.Fatalf("Validate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateStatusCheckedBeforeAmount(t *testing.T) {
	// A response that would fail every check must be rejected on status first,
	// without the amount being interpreted.
	v := Verifier{Logger: zerolog.Nop()}
	o := order.Order{ID: "ord-1", Code: "ABC123", Subtotal: 100}
	resp := uddoktapay.VerificationResponse{Status: "ERROR", Amount: 0}
	if v.Validate(o, resp) {
		t.Fatal("expected rejection")
	}
}
