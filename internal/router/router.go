package router

import (
	"net/http"

	"sgl-admin/internal/handler"
	"sgl-admin/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	promoHandler *handler.PromoHandler,
	redeemCodeHandler *handler.RedeemCodeHandler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	// Bulk redeem codes
	mux.HandleFunc("POST /api/redeem-codes", redeemCodeHandler.Add)
	mux.HandleFunc("POST /api/redeem-codes/import", redeemCodeHandler.Import)

	// Promo codes
	mux.HandleFunc("GET /api/promo-codes", promoHandler.List)
	mux.HandleFunc("POST /api/promo-codes", promoHandler.Create)
	mux.HandleFunc("GET /api/promo-codes/stream", promoHandler.Stream)
	mux.HandleFunc("GET /api/promo-codes/{code}", promoHandler.Get)
	mux.HandleFunc("DELETE /api/promo-codes/{code}", promoHandler.Delete)
	mux.HandleFunc("POST /api/promo-codes/{code}/redeem", promoHandler.Redeem)

	// Apply middleware in order: Recovery -> CorrelationID -> Logging -> CORS -> APIKeyAuth
	var handler http.Handler = mux
	handler = middleware.APIKeyAuth(apiKey, logger)(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.CorrelationID(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}
