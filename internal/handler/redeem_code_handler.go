package handler

import (
	"net/http"

	"sgl-admin/internal/model"
	"sgl-admin/internal/service"

	"github.com/rs/zerolog"
)

// RedeemCodeHandler handles bulk redeem code HTTP requests.
type RedeemCodeHandler struct {
	service service.LedgerService
	logger  zerolog.Logger
}

// NewRedeemCodeHandler creates a new redeem code handler.
func NewRedeemCodeHandler(service service.LedgerService, logger zerolog.Logger) *RedeemCodeHandler {
	return &RedeemCodeHandler{
		service: service,
		logger:  logger.With().Str("handler", "redeem_code").Logger(),
	}
}

// Add handles POST /api/redeem-codes requests.
func (h *RedeemCodeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.AddCodesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	if err := h.service.AddCodes(r.Context(), req.CardID, req.Codes); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/redeem-codes/import requests.
func (h *RedeemCodeHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req model.ImportCodesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	imported, err := h.service.ImportCodes(r.Context(), req.CardID, req.Source)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, model.ImportCodesResponse{
		CardID:   req.CardID,
		Imported: imported,
	})
}
