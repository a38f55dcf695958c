package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sgl-admin/internal/docstore"
	"sgl-admin/internal/middleware"
	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedCode    string
		expectedMessage string
	}{
		{
			name:            "Validation",
			err:             model.ErrInvalidPromoName,
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    model.ErrCodeInvalidPromoName,
			expectedMessage: "Invalid promo code name",
		},
		{
			name:            "Auth",
			err:             model.ErrUnauthenticated,
			expectedStatus:  http.StatusUnauthorized,
			expectedCode:    model.ErrCodeUnauthorised,
			expectedMessage: "Authentication required",
		},
		{
			name:            "Not found",
			err:             model.ErrPromoCodeNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedCode:    model.ErrCodePromoCodeNotFound,
			expectedMessage: "Promo code not found",
		},
		{
			name:            "Conflict",
			err:             model.ErrPromoCodeExists.WithMessage("Promo code Promo0001 already exists"),
			expectedStatus:  http.StatusConflict,
			expectedCode:    model.ErrCodePromoCodeExists,
			expectedMessage: "Promo code Promo0001 already exists",
		},
		{
			name:            "State",
			err:             model.ErrNoRemainingUses,
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedCode:    model.ErrCodeNoRemainingUses,
			expectedMessage: "Promo code has no remaining uses",
		},
		{
			name:            "Transient",
			err:             model.ErrStoreUnavailable.Wrap(docstore.ErrTooManyRetries),
			expectedStatus:  http.StatusServiceUnavailable,
			expectedCode:    model.ErrCodeStoreUnavailable,
			expectedMessage: "Document store unavailable",
		},
		{
			name:            "Wrapped domain error",
			err:             fmt.Errorf("redeem: %w", model.ErrAlreadyRedeemed),
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedCode:    model.ErrCodeAlreadyRedeemed,
			expectedMessage: "Promo code already redeemed by this user",
		},
		{
			name:            "Unclassified error is not leaked",
			err:             errors.New("pq: connection refused"),
			expectedStatus:  http.StatusInternalServerError,
			expectedCode:    model.ErrCodeInternalError,
			expectedMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, r, tt.err, zerolog.Nop())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/promo-codes", nil)
			req.Header.Set(middleware.CorrelationIDHeader, "corr-42")
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body model.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedCode, body.Error)
			assert.Equal(t, tt.expectedMessage, body.Message)
			assert.Equal(t, "corr-42", body.CorrelationID)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindUnknown))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.ErrorKind(99)))
}
