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

const refreshTokensCollection = "refresh_tokens"

type RefreshTokenRepository struct {
	coll *mongo.Collection
}

func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{coll: db.Collection(refreshTokensCollection)}
}

type mongoRefreshToken struct {
	Hash       string     `bson:"_id"`
	FamilyID   string     `bson:"family_id"`
	UserID     int64      `bson:"user_id"`
	IssuedAt   time.Time  `bson:"issued_at"`
	ExpiresAt  time.Time  `bson:"expires_at"`
	RotatedAt  *time.Time `bson:"rotated_at"`
	RevokedAt  *time.Time `bson:"revoked_at"`
	ReplacedBy string     `bson:"replaced_by,omitempty"`
}

func (d mongoRefreshToken) toDomain() *domain.RefreshToken {
	return &domain.RefreshToken{
		Hash:       d.Hash,
		FamilyID:   d.FamilyID,
		UserID:     d.UserID,
		IssuedAt:   d.IssuedAt,
		ExpiresAt:  d.ExpiresAt,
		RotatedAt:  d.RotatedAt,
		RevokedAt:  d.RevokedAt,
		ReplacedBy: d.ReplacedBy,
	}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoRefreshToken{
		Hash:      token.Hash,
		FamilyID:  token.FamilyID,
		UserID:    token.UserID,
		IssuedAt:  token.IssuedAt.UTC(),
		ExpiresAt: token.ExpiresAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// MarkRotated is the serialisation point of rotation: only one caller can move
// rotated_at from null to a timestamp.
func (r *RefreshTokenRepository) MarkRotated(ctx context.Context, hash, replacedBy string, now time.Time) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        hash,
		"rotated_at": nil,
		"revoked_at": nil,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{"$set": bson.M{"rotated_at": now.UTC(), "replaced_by": replacedBy}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoRefreshToken
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRefreshFailed
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *RefreshTokenRepository) RestoreRotated(ctx context.Context, hash, replacedBy string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": hash, "replaced_by": replacedBy, "revoked_at": nil}
	update := bson.M{"$set": bson.M{"rotated_at": nil, "replaced_by": ""}}
	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("restore refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoRefreshToken
	if err := r.coll.FindOne(ctx, bson.M{"_id": hash}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRefreshFailed
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	return r.revoke(ctx, bson.M{"family_id": familyID, "revoked_at": nil}, now)
}

func (r *RefreshTokenRepository) RevokeUser(ctx context.Context, userID int64, now time.Time) error {
	return r.revoke(ctx, bson.M{"user_id": userID, "revoked_at": nil}, now)
}

func (r *RefreshTokenRepository) revoke(ctx context.Context, filter bson.M, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"revoked_at": now.UTC()}}); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
