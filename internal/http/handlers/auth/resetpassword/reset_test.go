package resetpassword

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gateway/internal/services/auth"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) ResetPassword(ctx context.Context, token, password string) error {
	return m.Called(ctx, token, password).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestResetPasswordHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(m *AuthServiceMock)
		wantStatus int
		wantCode   string
	}{
		{
			name: "password reset",
			body: `{"token":"tok","password":"new-password"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("ResetPassword", mock.Anything, "tok", "new-password").Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "expired or used token",
			body: `{"token":"stale","password":"new-password"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("ResetPassword", mock.Anything, "stale", "new-password").Return(auth.ErrInvalidResetToken).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "short password",
			body:       `{"token":"tok","password":"short"}`,
			setupMock:  func(_ *AuthServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "missing token",
			body:       `{"password":"new-password"}`,
			setupMock:  func(_ *AuthServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
		{
			name:       "invalid json body",
			body:       "{",
			setupMock:  func(_ *AuthServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ARGUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(AuthServiceMock)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/auth/reset-password", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				var body struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Error.Code)
			}
			svc.AssertExpectations(t)
		})
	}
}
