package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
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
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
)

const testSecret = "whsec_test"

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) HandleEvent(ctx context.Context, evt *paymentprovider.Event) (string, error) {
	args := m.Called(ctx, evt)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

var paidSession = []byte(`{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_1",
		"object": "checkout.session",
		"payment_status": "paid",
		"metadata": {"checkout_id": "chk_1", "user_id": "64b7f0c2a1b2c3d4e5f60718"}
	}}
}`)

func newHandler(t *testing.T, d Dispatcher) *Handler {
	t.Helper()
	client, err := paymentprovider.NewClient(config.Stripe{SecretKey: "sk_test_x", WebhookSecret: testSecret}, newNoopLogger())
	require.NoError(t, err)
	return New(newNoopLogger(), client, d)
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		signature  string
		setupMock  func(m *MockDispatcher)
		wantStatus int
	}{
		{
			name:      "valid event applied",
			payload:   paidSession,
			signature: sign(paidSession),
			setupMock: func(m *MockDispatcher) {
				m.On("HandleEvent", mock.Anything, mock.MatchedBy(func(e *paymentprovider.Event) bool {
					return e.ID == "evt_1" && e.Session != nil && e.Session.Metadata["checkout_id"] == "chk_1"
				})).Return("applied", nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid signature",
			payload:    paidSession,
			signature:  "t=1,v1=deadbeef",
			setupMock:  func(_ *MockDispatcher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing signature",
			payload:    paidSession,
			setupMock:  func(_ *MockDispatcher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "payload changed after signing",
			payload:    bytes.Replace(paidSession, []byte("chk_1"), []byte("chk_2"), 1),
			signature:  sign(paidSession),
			setupMock:  func(_ *MockDispatcher) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:      "storage failure is retried by provider",
			payload:   paidSession,
			signature: sign(paidSession),
			setupMock: func(m *MockDispatcher) {
				m.On("HandleEvent", mock.Anything, mock.Anything).Return("", errors.New("mongo timeout")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:      "unresolved user still acknowledged",
			payload:   paidSession,
			signature: sign(paidSession),
			setupMock: func(m *MockDispatcher) {
				m.On("HandleEvent", mock.Anything, mock.Anything).Return("unresolved", nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(MockDispatcher)
			tt.setupMock(d)
			h := newHandler(t, d)

			req := httptest.NewRequest(http.MethodPost, "/payment/webhook", bytes.NewReader(tt.payload))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			d.AssertExpectations(t)
			if tt.wantStatus == http.StatusBadRequest {
				d.AssertNotCalled(t, "HandleEvent", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestWebhookHandler_PayloadTooLarge(t *testing.T) {
	d := new(MockDispatcher)
	h := newHandler(t, d)

	big := bytes.Repeat([]byte("a"), MaxPayloadBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", bytes.NewReader(big))
	req.Header.Set(SignatureHeader, sign(big))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	d.AssertNotCalled(t, "HandleEvent", mock.Anything, mock.Anything)
}
