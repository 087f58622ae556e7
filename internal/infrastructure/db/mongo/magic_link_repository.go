package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const magicLinksCollection = "magic_links"

type MagicLinkRepository struct {
	coll *mongo.Collection
}

func NewMagicLinkRepository(db *mongo.Database) *MagicLinkRepository {
	return &MagicLinkRepository{coll: db.Collection(magicLinksCollection)}
}

type mongoMagicLink struct {
	TokenHash string            `bson:"_id"`
	Email     string            `bson:"email"`
	ExpiresAt time.Time         `bson:"expires_at"`
	Used      bool              `bson:"used"`
	UsedAt    *time.Time        `bson:"used_at,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
}

func (r *MagicLinkRepository) Create(ctx context.Context, link *domain.MagicLink) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoMagicLink{
		TokenHash: link.TokenHash,
		Email:     link.Email,
		ExpiresAt: link.ExpiresAt.UTC(),
		Used:      link.Used,
		CreatedAt: link.CreatedAt.UTC(),
		Metadata:  link.Metadata,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert magic link: %w", err)
	}
	return nil
}

// Consume flips used=false to used=true in a single FindOneAndUpdate, so two
// concurrent redemptions of the same token cannot both match.
func (r *MagicLinkRepository) Consume(ctx context.Context, tokenHash, email string, now time.Time) (*domain.MagicLink, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        tokenHash,
		"email":      email,
		"used":       false,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{"$set": bson.M{"used": true, "used_at": now.UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoMagicLink
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInvalidLink
		}
		return nil, fmt.Errorf("consume magic link: %w", err)
	}

	return &domain.MagicLink{
		TokenHash: doc.TokenHash,
		Email:     doc.Email,
		ExpiresAt: doc.ExpiresAt,
		Used:      doc.Used,
		UsedAt:    doc.UsedAt,
		CreatedAt: doc.CreatedAt,
		Metadata:  doc.Metadata,
	}, nil
}

// InvalidateOutstanding burns every live link of email.
func (r *MagicLinkRepository) InvalidateOutstanding(ctx context.Context, email string, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"email":      email,
		"used":       false,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"used": true, "used_at": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("invalidate magic links: %w", err)
	}
	return res.ModifiedCount, nil
}
