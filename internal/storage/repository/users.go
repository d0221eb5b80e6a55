package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

type userDoc struct {
	ID                  bson.ObjectID `bson:"_id"`
	Email               string        `bson:"email"`
	Name                string        `bson:"name"`
	PasswordHash        string        `bson:"password_hash"`
	Role                string        `bson:"role"`
	CreatedAt           time.Time     `bson:"created_at"`
	UpdatedAt           time.Time     `bson:"updated_at"`
	ResetTokenHash      string        `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time    `bson:"reset_token_expires_at,omitempty"`

	PaymentStatus          bool       `bson:"payment_status"`
	PaymentDate            *time.Time `bson:"payment_date,omitempty"`
	SubscriptionStatus     string     `bson:"subscription_status"`
	SubscriptionExpiryDate *time.Time `bson:"subscription_expiry_date,omitempty"`
	StripeCustomerID       string     `bson:"stripe_customer_id"`
	AppliedPayments        []string   `bson:"applied_payments,omitempty"`
	LastPaymentRef         string     `bson:"last_payment_ref,omitempty"`
}

func (d userDoc) toModel() *models.User {
	status := models.SubscriptionStatus(d.SubscriptionStatus)
	if !status.Valid() {
		status = models.SubscriptionNone
	}
	return &models.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		Subscription: models.SubscriptionRecord{
			PaymentStatus:      d.PaymentStatus,
			PaymentDate:        utcPtr(d.PaymentDate),
			Status:             status,
			ExpiryDate:         utcPtr(d.SubscriptionExpiryDate),
			StripeCustomerID:   d.StripeCustomerID,
			LastPaymentRef:     d.LastPaymentRef,
			AppliedPaymentRefs: d.AppliedPayments,
		},
	}
}

// CreateUser сохраняет нового пользователя и возвращает его ID.
// Email приводится к нижнему регистру, статус подписки выставляется в none.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"

	now := s.timestamp()
	doc := userDoc{
		ID:                 bson.NewObjectID(),
		Email:              strings.ToLower(strings.TrimSpace(user.Email)),
		Name:               user.Name,
		PasswordHash:       user.PasswordHash,
		Role:               user.Role,
		CreatedAt:          now,
		UpdatedAt:          now,
		SubscriptionStatus: string(models.SubscriptionNone),
	}
	if doc.Role == "" {
		doc.Role = models.RoleUser
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return "", mapErr(op, err)
	}
	return doc.ID.Hex(), nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"

	var doc userDoc
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// GetUserByID возвращает пользователя по ID.
func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUserByID"

	oid, err := parseID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// SetResetToken сохраняет хэш токена сброса пароля и срок его действия.
func (s *Storage) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	const op = "storage.SetResetToken"

	oid, err := parseID(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt.UTC(),
		"updated_at":             s.timestamp(),
	}})
	if err != nil {
		return mapErr(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ConsumeResetToken атомарно находит пользователя по действующему токену,
// меняет пароль и удаляет токен. Повторное использование токена даёт ErrNotFound.
func (s *Storage) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	const op = "storage.ConsumeResetToken"

	filter := bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set":   bson.M{"password_hash": passwordHash, "updated_at": s.timestamp()},
		"$unset": bson.M{"reset_token_hash": "", "reset_token_expires_at": ""},
	}

	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// SetStripeCustomerID привязывает клиента провайдера, только если он ещё не задан.
// Возвращает false, если привязка уже существовала.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userID, customerID string) (bool, error) {
	const op = "storage.SetStripeCustomerID"

	oid, err := parseID(userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	filter := bson.M{"_id": oid, "stripe_customer_id": bson.M{"$in": bson.A{"", nil}}}
	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"stripe_customer_id": customerID,
		"updated_at":         s.timestamp(),
	}})
	if err != nil {
		return false, mapErr(op, err)
	}
	return res.MatchedCount > 0, nil
}

// ApplyPayment атомарно применяет успешный платёж, если ключ ref ещё не применялся.
// Даты платежа и окончания подписки только растут, поэтому запоздавшее событие
// о более раннем платеже не сокращает период. Возвращает applied=false и текущую
// запись, если платёж уже был применён.
func (s *Storage) ApplyPayment(ctx context.Context, userID, ref string, paidAt, expiresAt time.Time) (*models.User, bool, error) {
	const op = "storage.ApplyPayment"

	oid, err := parseID(userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	filter := bson.M{"_id": oid, "applied_payments": bson.M{"$ne": ref}}
	update := bson.M{
		"$set": bson.M{
			"payment_status":      true,
			"subscription_status": string(models.SubscriptionActive),
			"last_payment_ref":    ref,
			"updated_at":          s.timestamp(),
		},
		"$max": bson.M{
			"payment_date":             paidAt.UTC(),
			"subscription_expiry_date": expiresAt.UTC(),
		},
		"$addToSet": bson.M{"applied_payments": ref},
	}

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.toModel(), true, nil
	}

	mapped := mapErr(op, err)
	if !isNotFound(mapped) {
		return nil, false, mapped
	}

	// Либо пользователя нет, либо платёж уже применён.
	current, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return current, false, nil
}

// ExpireSubscription переводит подписку в expired, только если она всё ещё active
// и срок её действия истёк к моменту now.
func (s *Storage) ExpireSubscription(ctx context.Context, userID string, now time.Time) (bool, error) {
	const op = "storage.ExpireSubscription"

	oid, err := parseID(userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	filter := bson.M{
		"_id":                      oid,
		"subscription_status":      string(models.SubscriptionActive),
		"subscription_expiry_date": bson.M{"$lt": now.UTC()},
	}
	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"subscription_status": string(models.SubscriptionExpired),
		"updated_at":          s.timestamp(),
	}})
	if err != nil {
		return false, mapErr(op, err)
	}
	return res.ModifiedCount > 0, nil
}
