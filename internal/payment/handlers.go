package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-memberpay/internal/common"
	"github.com/noah-isme/backend-memberpay/internal/obs"
)

const maxIPNBody = 1 << 20

// WebhookHandler is the HTTP entry point for the three provider callback
// channels, dispatched by the `type` query parameter.
type WebhookHandler struct {
	Rec       *Reconciler
	Ready     func() bool
	Replay    *redis.Client
	ReplayTTL time.Duration

	AccountURL      string
	ConfirmationURL string
	LevelsURL       string

	Logger zerolog.Logger
}

// Handle dispatches a callback to its channel handler. An unrecognised or
// missing type is a request-level error, never silently ignored.
func (h WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Rec == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "webhook unavailable", nil)
		return
	}
	if h.Ready != nil && !h.Ready() {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeGatewayNotConfigured, "gateway not configured", nil)
		return
	}
	channel := strings.TrimSpace(r.URL.Query().Get("type"))
	switch channel {
	case ChannelIPN:
		h.handleIPN(w, r)
	case ChannelSuccess:
		h.handleSuccess(w, r)
	case ChannelCancel:
		h.handleCancel(w, r)
	default:
		h.count("unknown", "bad_request")
		http.Error(w, "unknown webhook type", http.StatusBadRequest)
	}
}

// handleIPN acknowledges the asynchronous channel with a structured JSON
// success/failure body.
func (h WebhookHandler) handleIPN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIPNBody))
	if err != nil {
		h.count(ChannelIPN, "bad_request")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unable to read payload", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 && len(body) > 0 {
		key := "ipn:" + common.Sha256Hex(string(body))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			h.count(ChannelIPN, "error")
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "replay store error", nil)
			return
		}
		if !ok {
			h.count(ChannelIPN, "replay")
			common.JSONError(w, http.StatusConflict, common.CodeBadRequest, "duplicate notification", nil)
			return
		}
	}

	if err := h.Rec.HandleIPN(r.Context(), body); err != nil {
		if errors.Is(err, ErrRejected) {
			h.count(ChannelIPN, "rejected")
		} else {
			h.count(ChannelIPN, "error")
		}
		h.Logger.Error().Err(err).Str("channel", ChannelIPN).Msg("webhook error")
		common.RenderError(w, err)
		return
	}
	h.count(ChannelIPN, "completed")
	common.JSON(w, http.StatusOK, map[string]string{"message": "payment completed"})
}

// handleSuccess reconciles the redirect channel. Validation rejections are a
// soft failure for the payer: a redirect to the account page, never a raw
// error body.
func (h WebhookHandler) handleSuccess(w http.ResponseWriter, r *http.Request) {
	invoiceID := strings.TrimSpace(r.URL.Query().Get("invoice_id"))
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if invoiceID == "" {
		h.count(ChannelSuccess, "bad_request")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid invoice id", nil)
		return
	}
	if orderID == "" {
		h.count(ChannelSuccess, "bad_request")
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid order id", nil)
		return
	}

	level, err := h.Rec.HandleSuccess(r.Context(), invoiceID, orderID)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			h.count(ChannelSuccess, "rejected")
			http.Redirect(w, r, h.AccountURL, http.StatusSeeOther)
			return
		}
		h.count(ChannelSuccess, "error")
		h.Logger.Error().Err(err).Str("channel", ChannelSuccess).Str("order_id", orderID).Msg("webhook error")
		common.RenderError(w, err)
		return
	}
	h.count(ChannelSuccess, "completed")
	http.Redirect(w, r, fmt.Sprintf("%s?level=%d", h.ConfirmationURL, level), http.StatusSeeOther)
}

// handleCancel marks the order failed when it resolves and always redirects
// to the levels catalog.
func (h WebhookHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.Rec.HandleCancel(r.Context(), r.URL.Query().Get("order_id"))
	h.count(ChannelCancel, "cancelled")
	http.Redirect(w, r, h.LevelsURL, http.StatusSeeOther)
}

func (h WebhookHandler) count(channel, result string) {
	if obs.CallbackTotal != nil {
		obs.CallbackTotal.WithLabelValues(channel, result).Inc()
	}
}
