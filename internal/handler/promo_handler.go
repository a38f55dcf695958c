package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sgl-admin/internal/model"
	"sgl-admin/internal/service"

	"github.com/rs/zerolog"
)

// DefaultHeartbeat is the interval of keep-alive comments on promo code streams.
const DefaultHeartbeat = 15 * time.Second

// PromoHandler handles promo code HTTP requests.
type PromoHandler struct {
	service   service.LedgerService
	logger    zerolog.Logger
	heartbeat time.Duration
}

// NewPromoHandler creates a new promo code handler.
func NewPromoHandler(service service.LedgerService, logger zerolog.Logger) *PromoHandler {
	return &PromoHandler{
		service:   service,
		logger:    logger.With().Str("handler", "promo").Logger(),
		heartbeat: DefaultHeartbeat,
	}
}

// List handles GET /api/promo-codes requests.
func (h *PromoHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPromoCodes(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /api/promo-codes/{code} requests.
func (h *PromoHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetPromoCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Create handles POST /api/promo-codes requests.
func (h *PromoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePromoCodeRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	promo, err := h.service.CreatePromoCode(r.Context(), &req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, promo)
}

// Redeem handles POST /api/promo-codes/{code}/redeem requests.
func (h *PromoHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req model.RedeemRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.service.RedeemPromoCode(r.Context(), r.PathValue("code"), req.UserID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /api/promo-codes/{code} requests.
func (h *PromoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePromoCode(r.Context(), r.PathValue("code")); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/promo-codes/stream requests as a Server-Sent Events
// feed carrying the full promo listing after every change.
func (h *PromoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	// Only the most recent listing matters; older pending ones are replaced.
	updates := make(chan []model.PromoView, 1)
	push := func(views []model.PromoView) {
		for {
			select {
			case updates <- views:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	unsubscribe, err := h.service.SubscribePromoCodes(ctx, push)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	defer unsubscribe()

	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("response does not support streaming")
		return
	}

	h.logger.Debug().Msg("promo code stream opened")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Msg("promo code stream closed")
			return

		case views := <-updates:
			payload, err := json.Marshal(views)
			if err != nil {
				h.logger.Error().Err(err).Msg("failed to encode promo code listing")
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
