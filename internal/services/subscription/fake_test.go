package subscription

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// memRepo хранилище в памяти с теми же условными обновлениями, что и MongoDB.
type memRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	failApply error
	expired   chan string
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*models.User{}, expired: make(chan string, 8)}
}

func (r *memRepo) add(id string, rec models.SubscriptionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Status == "" {
		rec.Status = models.SubscriptionNone
	}
	r.users[id] = &models.User{ID: id, Email: id + "@example.com", Subscription: rec}
}

func (r *memRepo) get(id string) models.SubscriptionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.users[id].Subscription
	rec.AppliedPaymentRefs = slices.Clone(rec.AppliedPaymentRefs)
	return rec
}

func (r *memRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "bad-id" {
		return nil, storage.ErrInvalidID
	}
	u, ok := r.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) ApplyPayment(_ context.Context, userID, ref string, paidAt, expiresAt time.Time) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return nil, false, r.failApply
	}
	if userID == "bad-id" {
		return nil, false, storage.ErrInvalidID
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if slices.Contains(u.Subscription.AppliedPaymentRefs, ref) {
		cp := *u
		return &cp, false, nil
	}

	rec := &u.Subscription
	rec.PaymentStatus = true
	rec.Status = models.SubscriptionActive
	rec.LastPaymentRef = ref
	rec.AppliedPaymentRefs = append(rec.AppliedPaymentRefs, ref)
	if rec.PaymentDate == nil || paidAt.After(*rec.PaymentDate) {
		rec.PaymentDate = &paidAt
	}
	if rec.ExpiryDate == nil || expiresAt.After(*rec.ExpiryDate) {
		rec.ExpiryDate = &expiresAt
	}
	cp := *u
	return &cp, true, nil
}

func (r *memRepo) ExpireSubscription(_ context.Context, userID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	rec := &u.Subscription
	if rec.Status != models.SubscriptionActive || rec.ExpiryDate == nil || !rec.ExpiryDate.Before(now) {
		return false, nil
	}
	rec.Status = models.SubscriptionExpired
	r.expired <- userID
	return true, nil
}

type MockSessionGetter struct {
	mock.Mock
}

func (m *MockSessionGetter) GetSession(ctx context.Context, id string) (*paymentprovider.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message.(Event))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
