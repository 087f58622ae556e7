package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const auditCollection = "session_audit"

// AuditRepository stores the session audit trail.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type mongoAuditEntry struct {
	ID       string    `bson:"_id"`
	Kind     string    `bson:"kind"`
	UserID   int64     `bson:"user_id"`
	FamilyID string    `bson:"family_id,omitempty"`
	Role     string    `bson:"role,omitempty"`
	At       time.Time `bson:"at"`
}

// Insert persists one entry to the audit collection.
func (r *AuditRepository) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoAuditEntry{
		ID:       entry.ID,
		Kind:     string(entry.Kind),
		UserID:   entry.UserID,
		FamilyID: entry.FamilyID,
		Role:     string(entry.Role),
		At:       entry.At.UTC(),
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return err
}

// ListByUser returns the newest limit entries of userID.
func (r *AuditRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoAuditEntry
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(docs))
	for _, d := range docs {
		role, _ := domain.ParseRole(d.Role)
		entries = append(entries, domain.AuditEntry{
			ID:       d.ID,
			Kind:     domain.SessionEventKind(d.Kind),
			UserID:   d.UserID,
			FamilyID: d.FamilyID,
			Role:     role,
			At:       d.At,
		})
	}
	return entries, nil
}
