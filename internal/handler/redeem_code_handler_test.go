package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRedeemCodeHandler_Add(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name           string
		body           string
		expectedCodes  []string
		mockError      error
		expectedStatus int
		expectService  bool
	}{
		{
			name:           "Success",
			body:           `{"cardId":"CARD1","codes":["A","B"]}`,
			expectedCodes:  []string{"A", "B"},
			expectedStatus: http.StatusNoContent,
			expectService:  true,
		},
		{
			name:           "Empty list",
			body:           `{"cardId":"CARD1","codes":[]}`,
			expectedCodes:  []string{},
			mockError:      model.ErrEmptyCodeList,
			expectedStatus: http.StatusBadRequest,
			expectService:  true,
		},
		{
			name:           "Unauthenticated",
			body:           `{"cardId":"CARD1","codes":["A"]}`,
			expectedCodes:  []string{"A"},
			mockError:      model.ErrUnauthenticated,
			expectedStatus: http.StatusUnauthorized,
			expectService:  true,
		},
		{
			name:           "Card id used by promo",
			body:           `{"cardId":"Summer","codes":["A"]}`,
			expectedCodes:  []string{"A"},
			mockError:      model.ErrCardIDConflict,
			expectedStatus: http.StatusConflict,
			expectService:  true,
		},
		{
			name:           "Invalid JSON",
			body:           `not json`,
			expectedStatus: http.StatusBadRequest,
			expectService:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockLedgerService)
			handler := NewRedeemCodeHandler(mockService, logger)

			if tt.expectService {
				var req model.AddCodesRequest
				require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
				mockService.On("AddCodes", mock.Anything, req.CardID, tt.expectedCodes).Return(tt.mockError)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/redeem-codes", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.Add(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "AddCodes", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRedeemCodeHandler_Import(t *testing.T) {
	tests := []struct {
		name           string
		mockImported   int
		mockError      error
		expectedStatus int
	}{
		{name: "Success", mockImported: 120, expectedStatus: http.StatusOK},
		{name: "Missing source", mockError: model.ErrMissingSource, expectedStatus: http.StatusBadRequest},
		{name: "Source unavailable", mockError: model.ErrCodeSourceFailed.Wrap(errors.New("no such key")), expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockLedgerService)
			handler := NewRedeemCodeHandler(mockService, zerolog.Nop())
			mockService.On("ImportCodes", mock.Anything, "CARD1", "s3://codes/card1.txt").Return(tt.mockImported, tt.mockError)

			req := httptest.NewRequest(http.MethodPost, "/api/redeem-codes/import",
				strings.NewReader(`{"cardId":"CARD1","source":"s3://codes/card1.txt"}`))
			w := httptest.NewRecorder()

			handler.Import(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.mockError == nil {
				var resp model.ImportCodesResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, model.ImportCodesResponse{CardID: "CARD1", Imported: 120}, resp)
			}
			mockService.AssertExpectations(t)
		})
	}
}
