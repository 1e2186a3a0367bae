package order

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-memberpay/internal/common"
)

// Getter loads orders for the read-side endpoint.
type Getter interface {
	GetByID(ctx context.Context, id string) (Order, error)
}

// Handler exposes order status polling.
type Handler struct {
	Orders Getter
}

type orderResp struct {
	ID            string `json:"id"`
	Status        Status `json:"status"`
	MembershipID  int64  `json:"membershipId"`
	TransactionID string `json:"transactionId,omitempty"`
}

// Get returns the current state of an order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order handler unavailable", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "orderId is required", nil)
		return
	}
	o, err := h.Orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order lookup failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, orderResp{
		ID:            o.ID,
		Status:        o.Status,
		MembershipID:  o.MembershipID,
		TransactionID: o.TransactionID,
	})
}
