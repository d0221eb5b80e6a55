package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// caseInsensitive сравнение строк без учёта регистра.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

type codeDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	Code        string        `bson:"code"`
	Discount    float64       `bson:"discount"`
	Description string        `bson:"description"`
	IsActive    bool          `bson:"is_active"`
	UsedBy      string        `bson:"used_by,omitempty"`
	UsedAt      *time.Time    `bson:"used_at,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

func (d codeDoc) toModel() models.DiscountCode {
	return models.DiscountCode{
		ID:          d.ID.Hex(),
		Code:        d.Code,
		Discount:    d.Discount,
		Description: d.Description,
		IsActive:    d.IsActive,
		UsedBy:      d.UsedBy,
		UsedAt:      utcPtr(d.UsedAt),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// CreateCode сохраняет новый скидочный код.
func (s *Storage) CreateCode(ctx context.Context, code models.DiscountCode) (models.DiscountCode, error) {
	const op = "storage.CreateCode"

	now := s.timestamp()
	doc := codeDoc{
		ID:          bson.NewObjectID(),
		Code:        code.Code,
		Discount:    code.Discount,
		Description: code.Description,
		IsActive:    code.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.codes.InsertOne(ctx, doc); err != nil {
		return models.DiscountCode{}, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// GetCode возвращает код по ID.
func (s *Storage) GetCode(ctx context.Context, id string) (models.DiscountCode, error) {
	const op = "storage.GetCode"

	oid, err := parseID(id)
	if err != nil {
		return models.DiscountCode{}, fmt.Errorf("%s: %w", op, err)
	}

	var doc codeDoc
	if err := s.codes.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return models.DiscountCode{}, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// FindCode ищет код без учёта регистра. При нескольких совпадениях
// возвращается самый ранний.
func (s *Storage) FindCode(ctx context.Context, code string) (models.DiscountCode, error) {
	const op = "storage.FindCode"

	opts := options.FindOne().
		SetCollation(caseInsensitive).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	var doc codeDoc
	if err := s.codes.FindOne(ctx, bson.M{"code": code}, opts).Decode(&doc); err != nil {
		return models.DiscountCode{}, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// ListCodes возвращает все коды, новые первыми.
func (s *Storage) ListCodes(ctx context.Context) ([]models.DiscountCode, error) {
	const op = "storage.ListCodes"

	cur, err := s.codes.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer cur.Close(ctx)

	var docs []codeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := make([]models.DiscountCode, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toModel())
	}
	return res, nil
}

// UpdateCode применяет частичное обновление и возвращает итоговую запись.
func (s *Storage) UpdateCode(ctx context.Context, id string, patch models.CodePatch) (models.DiscountCode, error) {
	const op = "storage.UpdateCode"

	oid, err := parseID(id)
	if err != nil {
		return models.DiscountCode{}, fmt.Errorf("%s: %w", op, err)
	}

	set := bson.M{"updated_at": s.timestamp()}
	if patch.Code != nil {
		set["code"] = *patch.Code
	}
	if patch.Discount != nil {
		set["discount"] = *patch.Discount
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.IsActive != nil {
		set["is_active"] = *patch.IsActive
	}

	var doc codeDoc
	err = s.codes.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return models.DiscountCode{}, mapErr(op, err)
	}
	return doc.toModel(), nil
}

// DeleteCode удаляет код и возвращает удалённую запись.
func (s *Storage) DeleteCode(ctx context.Context, id string) (models.DiscountCode, error) {
	const op = "storage.DeleteCode"

	oid, err := parseID(id)
	if err != nil {
		return models.DiscountCode{}, fmt.Errorf("%s: %w", op, err)
	}

	var doc codeDoc
	if err := s.codes.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return models.DiscountCode{}, mapErr(op, err)
	}
	return doc.toModel(), nil
}
