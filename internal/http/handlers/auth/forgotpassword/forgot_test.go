package forgotpassword

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gateway/internal/mailer"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/services/auth"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return m.Called(ctx, userID, tokenHash, expiresAt).Error(0)
}

func (m *UserRepoMock) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	args := m.Called(ctx, tokenHash, passwordHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestForgotPasswordHandler(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com"}

	tests := []struct {
		name       string
		body       string
		setupMocks func(repo *UserRepoMock, mail *SenderMock)
		wantStatus int
	}{
		{
			name: "registered email",
			body: `{"email":"user@example.com"}`,
			setupMocks: func(repo *UserRepoMock, mail *SenderMock) {
				repo.On("GetUserByEmail", mock.Anything, "user@example.com").Return(user, nil).Once()
				repo.On("SetResetToken", mock.Anything, "u1", mock.Anything, mock.Anything).Return(nil).Once()
				mail.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "unknown email",
			body: `{"email":"ghost@example.com"}`,
			setupMocks: func(repo *UserRepoMock, _ *SenderMock) {
				repo.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, storage.ErrNotFound).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "mail delivery failure",
			body: `{"email":"user@example.com"}`,
			setupMocks: func(repo *UserRepoMock, mail *SenderMock) {
				repo.On("GetUserByEmail", mock.Anything, "user@example.com").Return(user, nil).Once()
				repo.On("SetResetToken", mock.Anything, "u1", mock.Anything, mock.Anything).Return(nil).Once()
				mail.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid email",
			body:       `{"email":"nope"}`,
			setupMocks: func(_ *UserRepoMock, _ *SenderMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json body",
			body:       "not a json",
			setupMocks: func(_ *UserRepoMock, _ *SenderMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "storage failure",
			body: `{"email":"user@example.com"}`,
			setupMocks: func(repo *UserRepoMock, _ *SenderMock) {
				repo.On("GetUserByEmail", mock.Anything, "user@example.com").Return(nil, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	var okBodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mail := new(UserRepoMock), new(SenderMock)
			tt.setupMocks(repo, mail)
			svc := auth.NewService(repo, jwt.NewJWTMaker("secret", time.Hour), mail, newNoopLogger(), config.Auth{
				ResetTokenTTL: time.Hour,
				ResetURL:      "https://app.example.com/reset-password",
			})

			req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				var body struct {
					Status string            `json:"status"`
					Data   map[string]string `json:"data"`
				}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, "OK", body.Status)
				okBodies = append(okBodies, rr.Body.String())
			}
			repo.AssertExpectations(t)
			mail.AssertExpectations(t)
		})
	}

	// Ответ не должен выдавать, зарегистрирован ли email.
	require.Len(t, okBodies, 3)
	assert.Equal(t, okBodies[0], okBodies[1])
	assert.Equal(t, okBodies[0], okBodies[2])
}
