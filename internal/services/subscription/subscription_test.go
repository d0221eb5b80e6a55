package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(mode string) (*Service, *memRepo, *MockSessionGetter, *recordingPublisher, *clock) {
	repo := newMemRepo()
	provider := new(MockSessionGetter)
	pub := &recordingPublisher{}
	clk := &clock{now: t0}

	svc := NewService(repo, provider, pub, metrics.NewNoop(), newNoopLogger(), config.Subscription{
		PeriodYears:      1,
		ExpiryReconcile:  mode,
		ReconcileTimeout: time.Second,
	})
	svc.SetClock(clk.Now)
	return svc, repo, provider, pub, clk
}

func TestRecordPayment_SetsActiveForOneYear(t *testing.T) {
	svc, repo, _, pub, _ := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})

	out, err := svc.RecordPayment(context.Background(), "u1", "chk_1", time.Time{}, SourceWebhook)
	require.NoError(t, err)

	assert.True(t, out.Applied)
	assert.True(t, out.Entitlement.Active)

	rec := repo.get("u1")
	assert.True(t, rec.PaymentStatus)
	assert.Equal(t, models.SubscriptionActive, rec.Status)
	assert.Equal(t, t0, *rec.PaymentDate)
	assert.Equal(t, t0.AddDate(1, 0, 0), *rec.ExpiryDate)
	assert.Equal(t, "chk_1", rec.LastPaymentRef)
	assert.Equal(t, []string{RoutingKeyActivated}, pub.types())
}

func TestRecordPayment_SameRefTwiceKeepsExpiry(t *testing.T) {
	svc, repo, _, pub, clk := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "u1", "chk_1", time.Time{}, SourceWebhook)
	require.NoError(t, err)
	first := *repo.get("u1").ExpiryDate

	clk.Set(t0.Add(72 * time.Hour))
	out, err := svc.RecordPayment(ctx, "u1", "chk_1", time.Time{}, SourceVerify)
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, first, *repo.get("u1").ExpiryDate)
	assert.Len(t, pub.types(), 1, "duplicate must not publish")
}

func TestRecordPayment_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	svc, repo, _, _, _ := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source := SourceWebhook
			if i%2 == 0 {
				source = SourceVerify
			}
			out, err := svc.RecordPayment(context.Background(), "u1", "chk_1", time.Time{}, source)
			assert.NoError(t, err)
			if out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, t0.AddDate(1, 0, 0), *repo.get("u1").ExpiryDate)
}

func TestRecordPayment_NewPaymentRenewsExpired(t *testing.T) {
	svc, repo, _, _, clk := newTestService(config.ExpiryReconcileSync)
	old := t0.AddDate(-2, 0, 0)
	oldExpiry := t0.AddDate(-1, 0, 0)
	repo.add("u1", models.SubscriptionRecord{
		PaymentStatus: true, Status: models.SubscriptionExpired,
		PaymentDate: &old, ExpiryDate: &oldExpiry, AppliedPaymentRefs: []string{"chk_old"},
	})
	clk.Set(t0)

	out, err := svc.RecordPayment(context.Background(), "u1", "chk_new", time.Time{}, SourceWebhook)
	require.NoError(t, err)
	assert.True(t, out.Entitlement.Active)
	assert.Equal(t, models.SubscriptionActive, repo.get("u1").Status)
}

func TestRecordPayment_Errors(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		ref      string
		setup    func(r *memRepo)
		wantErr  error
		wantKind apperr.Kind
	}{
		{name: "missing ref", userID: "u1", ref: "", wantKind: apperr.KindInvalidArgument},
		{name: "bad id", userID: "bad-id", ref: "chk", wantErr: ErrInvalidUserID, wantKind: apperr.KindInvalidArgument},
		{name: "unknown user", userID: "ghost", ref: "chk", wantErr: ErrUserNotFound, wantKind: apperr.KindNotFound},
		{
			name: "storage failure", userID: "u1", ref: "chk",
			setup:    func(r *memRepo) { r.failApply = errors.New("connection reset") },
			wantKind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _, _ := newTestService(config.ExpiryReconcileSync)
			repo.add("u1", models.SubscriptionRecord{})
			if tt.setup != nil {
				tt.setup(repo)
			}

			_, err := svc.RecordPayment(context.Background(), tt.userID, tt.ref, time.Time{}, SourceWebhook)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestStatus_ExpiresAfterOneYear(t *testing.T) {
	svc, repo, _, pub, clk := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "u1", "chk_1", t0, SourceWebhook)
	require.NoError(t, err)

	ent, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ent.Active)

	clk.Set(t0.AddDate(1, 0, 0).Add(time.Second))
	ent, err = svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ent.Active)
	assert.Equal(t, models.SubscriptionExpired, ent.Status)
	assert.Equal(t, models.SubscriptionExpired, repo.get("u1").Status)
	assert.Equal(t, []string{RoutingKeyActivated, RoutingKeyExpired}, pub.types())
}

func TestStatus_ReconcileModes(t *testing.T) {
	expiry := t0.Add(-time.Hour)
	stale := models.SubscriptionRecord{PaymentStatus: true, Status: models.SubscriptionActive, ExpiryDate: &expiry}

	t.Run("off leaves stored status", func(t *testing.T) {
		svc, repo, _, _, _ := newTestService(config.ExpiryReconcileOff)
		repo.add("u1", stale)

		ent, err := svc.Status(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, ent.Active)
		assert.Equal(t, models.SubscriptionActive, repo.get("u1").Status)
	})

	t.Run("async persists in background", func(t *testing.T) {
		svc, repo, _, _, _ := newTestService(config.ExpiryReconcileAsync)
		repo.add("u1", stale)

		ctx, cancel := context.WithCancel(context.Background())
		ent, err := svc.Status(ctx, "u1")
		cancel()
		require.NoError(t, err)
		assert.False(t, ent.Active)

		select {
		case id := <-repo.expired:
			assert.Equal(t, "u1", id)
		case <-time.After(2 * time.Second):
			t.Fatal("expiry was not persisted")
		}
		svc.Wait()
		assert.Equal(t, models.SubscriptionExpired, repo.get("u1").Status)
	})
}

func TestStatus_ConcurrentRenewalNotClobbered(t *testing.T) {
	svc, repo, _, _, clk := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "u1", "chk_1", t0, SourceWebhook)
	require.NoError(t, err)

	late := t0.AddDate(1, 0, 0).Add(time.Hour)
	clk.Set(late)
	_, err = svc.RecordPayment(ctx, "u1", "chk_2", late, SourceWebhook)
	require.NoError(t, err)

	changed, err := repo.ExpireSubscription(ctx, "u1", late)
	require.NoError(t, err)
	assert.False(t, changed)

	ent, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ent.Active)
}

func TestVerifySession(t *testing.T) {
	paidSession := &paymentprovider.Session{
		ID: "cs_1", PaymentStatus: paymentprovider.PaymentStatusPaid,
		Metadata: map[string]string{models.MetaUserID: "u1", models.MetaCheckoutID: "chk_1"},
	}
	unpaidSession := &paymentprovider.Session{
		ID: "cs_2", PaymentStatus: "unpaid",
		Metadata: map[string]string{models.MetaUserID: "u1", models.MetaCheckoutID: "chk_2"},
	}

	tests := []struct {
		name       string
		userID     string
		sessionID  string
		setupMocks func(p *MockSessionGetter)
		wantActive bool
		wantKind   apperr.Kind
	}{
		{
			name: "paid session activates", userID: "u1", sessionID: "cs_1",
			setupMocks: func(p *MockSessionGetter) { p.On("GetSession", mock.Anything, "cs_1").Return(paidSession, nil).Once() },
			wantActive: true,
		},
		{
			name: "unpaid session leaves state", userID: "u1", sessionID: "cs_2",
			setupMocks: func(p *MockSessionGetter) { p.On("GetSession", mock.Anything, "cs_2").Return(unpaidSession, nil).Once() },
		},
		{
			name: "session of another user", userID: "u2", sessionID: "cs_1",
			setupMocks: func(p *MockSessionGetter) { p.On("GetSession", mock.Anything, "cs_1").Return(paidSession, nil).Once() },
			wantKind:   apperr.KindNotFound,
		},
		{
			name: "provider down", userID: "u1", sessionID: "cs_1",
			setupMocks: func(p *MockSessionGetter) {
				p.On("GetSession", mock.Anything, "cs_1").Return(nil, apperr.Upstream("payment provider unavailable", errors.New("eof"))).Once()
			},
			wantKind: apperr.KindUpstreamUnavailable,
		},
		{
			name: "unknown session", userID: "u1", sessionID: "cs_x",
			setupMocks: func(p *MockSessionGetter) {
				p.On("GetSession", mock.Anything, "cs_x").Return(nil, apperr.NotFound("payment session not found")).Once()
			},
			wantKind: apperr.KindNotFound,
		},
		{
			name: "empty session id", userID: "u1", sessionID: "",
			setupMocks: func(_ *MockSessionGetter) {},
			wantKind:   apperr.KindInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, provider, _, _ := newTestService(config.ExpiryReconcileSync)
			repo.add("u1", models.SubscriptionRecord{})
			repo.add("u2", models.SubscriptionRecord{})
			tt.setupMocks(provider)

			ent, err := svc.VerifySession(context.Background(), tt.userID, tt.sessionID)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantActive, ent.Active)
			}
			provider.AssertExpectations(t)
		})
	}
}

func TestVerifySession_AfterWebhookIsNoop(t *testing.T) {
	svc, repo, provider, pub, clk := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})
	md := map[string]string{models.MetaUserID: "u1", models.MetaCheckoutID: "chk_1"}

	_, err := svc.HandleEvent(context.Background(), &paymentprovider.Event{
		ID: "evt_1", Type: paymentprovider.EventCheckoutSessionCompleted,
		Session: &paymentprovider.Session{ID: "cs_1", PaymentStatus: "paid", Metadata: md},
	})
	require.NoError(t, err)
	expiry := *repo.get("u1").ExpiryDate

	clk.Set(t0.Add(time.Hour))
	provider.On("GetSession", mock.Anything, "cs_1").
		Return(&paymentprovider.Session{ID: "cs_1", PaymentStatus: "paid", Metadata: md}, nil).Twice()

	for range 2 {
		ent, err := svc.VerifySession(context.Background(), "u1", "cs_1")
		require.NoError(t, err)
		assert.True(t, ent.Active)
	}
	assert.Equal(t, expiry, *repo.get("u1").ExpiryDate)
	assert.Len(t, pub.types(), 1)
}

func TestHandleEvent(t *testing.T) {
	md := map[string]string{models.MetaUserID: "u1", models.MetaCheckoutID: "chk_1"}

	tests := []struct {
		name       string
		evt        *paymentprovider.Event
		setup      func(r *memRepo)
		wantResult string
		wantErr    bool
	}{
		{
			name: "session completed and paid",
			evt: &paymentprovider.Event{Type: paymentprovider.EventCheckoutSessionCompleted,
				Session: &paymentprovider.Session{ID: "cs_1", PaymentStatus: "paid", Metadata: md}},
			wantResult: ResultApplied,
		},
		{
			name: "session completed but unpaid",
			evt: &paymentprovider.Event{Type: paymentprovider.EventCheckoutSessionCompleted,
				Session: &paymentprovider.Session{ID: "cs_1", PaymentStatus: "unpaid", Metadata: md}},
			wantResult: ResultUnpaid,
		},
		{
			name: "payment intent succeeded",
			evt: &paymentprovider.Event{Type: paymentprovider.EventPaymentIntentSucceeded,
				PaymentIntent: &paymentprovider.PaymentIntent{ID: "pi_1", Metadata: md}},
			wantResult: ResultApplied,
		},
		{
			name: "unknown user is acknowledged",
			evt: &paymentprovider.Event{Type: paymentprovider.EventPaymentIntentSucceeded,
				PaymentIntent: &paymentprovider.PaymentIntent{ID: "pi_1", Metadata: map[string]string{models.MetaUserID: "ghost"}}},
			wantResult: ResultUnresolved,
		},
		{
			name: "malformed user id is acknowledged",
			evt: &paymentprovider.Event{Type: paymentprovider.EventPaymentIntentSucceeded,
				PaymentIntent: &paymentprovider.PaymentIntent{ID: "pi_1", Metadata: map[string]string{models.MetaUserID: "bad-id"}}},
			wantResult: ResultUnresolved,
		},
		{
			name: "no user reference",
			evt: &paymentprovider.Event{Type: paymentprovider.EventPaymentIntentSucceeded,
				PaymentIntent: &paymentprovider.PaymentIntent{ID: "pi_1"}},
			wantResult: ResultUnresolved,
		},
		{
			name:       "other event type",
			evt:        &paymentprovider.Event{Type: "customer.created"},
			wantResult: ResultIgnored,
		},
		{
			name: "storage failure is returned",
			evt: &paymentprovider.Event{Type: paymentprovider.EventCheckoutSessionCompleted,
				Session: &paymentprovider.Session{ID: "cs_1", PaymentStatus: "paid", Metadata: md}},
			setup:   func(r *memRepo) { r.failApply = errors.New("timeout") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _, _ := newTestService(config.ExpiryReconcileSync)
			repo.add("u1", models.SubscriptionRecord{})
			if tt.setup != nil {
				tt.setup(repo)
			}

			got, err := svc.HandleEvent(context.Background(), tt.evt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, got)
		})
	}
}

func TestHandleEvent_BothEventTypesShareKey(t *testing.T) {
	svc, repo, _, _, _ := newTestService(config.ExpiryReconcileSync)
	repo.add("u1", models.SubscriptionRecord{})
	md := map[string]string{models.MetaUserID: "u1", models.MetaCheckoutID: "chk_1"}
	ctx := context.Background()

	got, err := svc.HandleEvent(ctx, &paymentprovider.Event{Type: paymentprovider.EventPaymentIntentSucceeded,
		PaymentIntent: &paymentprovider.PaymentIntent{ID: "pi_1", Metadata: md}})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, got)

	got, err = svc.HandleEvent(ctx, &paymentprovider.Event{Type: paymentprovider.EventCheckoutSessionCompleted,
		Session: &paymentprovider.Session{ID: "cs_1", PaymentStatus: "paid", Metadata: md}})
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		svc.metrics.WebhookEvents.WithLabelValues(paymentprovider.EventCheckoutSessionCompleted, ResultDuplicate)))
}

func TestPaymentRef(t *testing.T) {
	assert.Equal(t, "chk_1", PaymentRef(map[string]string{models.MetaCheckoutID: "chk_1"}, "cs_1"))
	assert.Equal(t, "cs_1", PaymentRef(nil, "cs_1"))
}
