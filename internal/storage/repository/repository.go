// Package repository реализует хранилище пользователей и скидочных кодов
// на основе MongoDB.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// Имена коллекций.
const (
	UsersCollection = "users"
	CodesCollection = "discount_codes"
)

// ErrFailedToConnect возвращается, если все попытки подключения исчерпаны.
var ErrFailedToConnect = errors.New("failed to connect to mongodb")

// Storage инкапсулирует подключение к MongoDB и коллекции сервиса.
type Storage struct {
	Client *mongo.Client
	DB     *mongo.Database

	users *mongo.Collection
	codes *mongo.Collection
	now   func() time.Time
}

// New подключается к MongoDB с повторными попытками и проверяет соединение.
func New(ctx context.Context, cfg config.Mongo) (*Storage, error) {
	const op = "storage.New"

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := range attempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URI).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return NewWithClient(client, cfg.Database), nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("%s: %w", op, errors.Join(ErrFailedToConnect, lastErr))
}

// NewWithClient создаёт хранилище поверх готового клиента.
func NewWithClient(client *mongo.Client, database string) *Storage {
	db := client.Database(database)
	return &Storage{
		Client: client,
		DB:     db,
		users:  db.Collection(UsersCollection),
		codes:  db.Collection(CodesCollection),
		now:    time.Now,
	}
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.Ping"
	if err := s.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с базой.
func (s *Storage) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, storage.ErrInvalidID
	}
	return oid, nil
}

func mapErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
