package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-memberpay/internal/common"
	"github.com/noah-isme/backend-memberpay/internal/obs"
)

// Handler exposes the checkout HTTP endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type checkoutReq struct {
	FullName     string  `json:"fullName" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
	Tax          float64 `json:"tax" validate:"gte=0"`
	MembershipID int64   `json:"membershipId" validate:"required,gt=0"`
	UserID       int64   `json:"userId" validate:"required,gt=0"`
}

type checkoutResp struct {
	OrderID    string `json:"orderId"`
	OrderCode  string `json:"orderCode"`
	PaymentURL string `json:"paymentUrl"`
}

// Checkout creates a pending order and returns the hosted payment URL.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout handler unavailable", nil)
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count("bad_request")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			h.count("bad_request")
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
			return
		}
	}

	result, err := h.Svc.Checkout(r.Context(), Input{
		FullName:     req.FullName,
		Email:        req.Email,
		Subtotal:     req.Subtotal,
		Tax:          req.Tax,
		MembershipID: req.MembershipID,
		UserID:       req.UserID,
	})
	if err != nil {
		h.count("error")
		common.RenderError(w, err)
		return
	}
	h.count("success")
	common.JSON(w, http.StatusOK, checkoutResp{
		OrderID:    result.OrderID,
		OrderCode:  result.OrderCode,
		PaymentURL: result.PaymentURL,
	})
}

func (h *Handler) count(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
