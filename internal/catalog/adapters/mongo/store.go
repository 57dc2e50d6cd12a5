package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/catalog/domain"
	"github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	templatesCollection = "templates"
	bundlesCollection   = "bundles"
)

type templateDocument struct {
	ID            string               `bson:"_id"`
	Title         string               `bson:"title"`
	Description   string               `bson:"description"`
	Price         primitive.Decimal128 `bson:"price"`
	Category      string               `bson:"category"`
	Features      []string             `bson:"features,omitempty"`
	IsActive      bool                 `bson:"is_active"`
	PDFURL        string               `bson:"pdf_url"`
	ImageURL      string               `bson:"image_url"`
	DownloadCount int64                `bson:"download_count"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

type bundleDocument struct {
	ID            string               `bson:"_id"`
	Title         string               `bson:"title"`
	Description   string               `bson:"description"`
	TemplateIDs   []string             `bson:"template_ids"`
	Price         primitive.Decimal128 `bson:"bundle_price"`
	OriginalTotal primitive.Decimal128 `bson:"original_total"`
	IsActive      bool                 `bson:"is_active"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

// Store is the MongoDB-backed catalog.
type Store struct {
	templates *mongo.Collection
	bundles   *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		templates: db.Collection(templatesCollection),
		bundles:   db.Collection(bundlesCollection),
	}
}

// CreateIndexes ensures the indexes used by storefront listings exist.
func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.templates.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "is_active", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create template indexes: %w", err)
	}

	_, err = s.bundles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create bundle indexes: %w", err)
	}

	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var doc templateDocument
	if err := s.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	template := doc.toDomain()
	return &template, nil
}

func (s *Store) GetTemplates(ctx context.Context, ids []string) ([]domain.Template, error) {
	if len(ids) == 0 {
		return []domain.Template{}, nil
	}

	cursor, err := s.templates.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []templateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	byID := make(map[string]domain.Template, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc.toDomain()
	}

	result := make([]domain.Template, 0, len(docs))
	for _, id := range ids {
		if template, ok := byID[id]; ok {
			result = append(result, template)
		}
	}
	return result, nil
}

func (s *Store) GetBundle(ctx context.Context, id string) (*domain.Bundle, error) {
	var doc bundleDocument
	if err := s.bundles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("find bundle: %w", err)
	}
	bundle := doc.toDomain()
	return &bundle, nil
}

// SaveTemplate upserts a template. The download counter and creation time are
// owned by the store and never overwritten.
func (s *Store) SaveTemplate(ctx context.Context, template domain.Template) error {
	price, err := toDecimal128(template.Price)
	if err != nil {
		return fmt.Errorf("encode template price: %w", err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"title":       template.Title,
			"description": template.Description,
			"price":       price,
			"category":    template.Category,
			"features":    template.Features,
			"is_active":   template.IsActive,
			"pdf_url":     template.PDFURL,
			"image_url":   template.ImageURL,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"download_count": int64(0),
			"created_at":     now,
		},
	}

	_, err = s.templates.UpdateOne(ctx, bson.M{"_id": template.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (s *Store) SaveBundle(ctx context.Context, bundle domain.Bundle) error {
	price, err := toDecimal128(bundle.Price)
	if err != nil {
		return fmt.Errorf("encode bundle price: %w", err)
	}
	original, err := toDecimal128(bundle.OriginalTotal)
	if err != nil {
		return fmt.Errorf("encode bundle original total: %w", err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"title":          bundle.Title,
			"description":    bundle.Description,
			"template_ids":   bundle.MemberIDs(),
			"bundle_price":   price,
			"original_total": original,
			"is_active":      bundle.IsActive,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	_, err = s.bundles.UpdateOne(ctx, bson.M{"_id": bundle.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert bundle: %w", err)
	}
	return nil
}

func (s *Store) IncrementDownloadCount(ctx context.Context, templateID string) error {
	update := bson.M{
		"$inc": bson.M{"download_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := s.templates.UpdateOne(ctx, bson.M{"_id": templateID}, update)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	if result.MatchedCount == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (d templateDocument) toDomain() domain.Template {
	return domain.Template{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Price:         fromDecimal128(d.Price),
		Category:      d.Category,
		Features:      d.Features,
		IsActive:      d.IsActive,
		PDFURL:        d.PDFURL,
		ImageURL:      d.ImageURL,
		DownloadCount: d.DownloadCount,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d bundleDocument) toDomain() domain.Bundle {
	return domain.Bundle{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		TemplateIDs:   d.TemplateIDs,
		Price:         fromDecimal128(d.Price),
		OriginalTotal: fromDecimal128(d.OriginalTotal),
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func toDecimal128(value decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(value.String())
}

// fromDecimal128 maps NaN, infinities and unparsable values to zero, which the
// checkout flow rejects as an invalid amount.
func fromDecimal128(value primitive.Decimal128) decimal.Decimal {
	if value.IsNaN() || value.IsInf() != 0 {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Zero
	}
	return parsed
}
