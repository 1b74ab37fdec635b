package mongodb

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"assist_server/core/domain"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionAudit = "retrieval_audit"

// AuditAdapter implements out.AuditLog using MongoDB.
type AuditAdapter struct {
	collection *mongo.Collection
}

var _ out.AuditLog = (*AuditAdapter)(nil)

func NewAuditAdapter(db *mongo.Database) *AuditAdapter {
	return &AuditAdapter{collection: db.Collection(collectionAudit)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *AuditAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "action", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// auditDocument is the stored shape. IDs are strings so records stay
// readable from the shell; the payload is embedded as a sub-document.
type auditDocument struct {
	ID          string    `bson:"_id"`
	TenantID    string    `bson:"tenant_id"`
	UserID      string    `bson:"user_id,omitempty"`
	Action      string    `bson:"action"`
	RequestID   string    `bson:"request_id,omitempty"`
	Reason      string    `bson:"reason,omitempty"`
	SourceCount int       `bson:"source_count"`
	Payload     bson.M    `bson:"payload"`
	Model       string    `bson:"model,omitempty"`
	DraftHash   string    `bson:"draft_hash,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toAuditDocument(r *domain.AuditRecord) (*auditDocument, error) {
	doc := &auditDocument{
		ID:        r.ID.String(),
		TenantID:  r.TenantID.String(),
		Action:    string(r.Action),
		RequestID: r.RequestID,
		Model:     r.Model,
		DraftHash: r.DraftHash,
		CreatedAt: r.CreatedAt,
	}
	if r.UserID != nil {
		doc.UserID = r.UserID.String()
	}
	if r.Payload != nil {
		if !r.Payload.IsAuditSafe() {
			return nil, apperr.Internal("audit payload is not redacted")
		}
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		var m bson.M
		if err := bson.UnmarshalExtJSON(raw, false, &m); err != nil {
			return nil, err
		}
		doc.Payload = m
		doc.Reason = string(r.Payload.Reason)
		doc.SourceCount = len(r.Payload.Sources)
	}
	return doc, nil
}

func (a *AuditAdapter) Write(ctx context.Context, record *domain.AuditRecord) error {
	doc, err := toAuditDocument(record)
	if err != nil {
		return apperr.DatabaseError("encode audit record", err)
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return apperr.DatabaseError("insert audit record", err)
	}
	return nil
}

// ListByTenant returns the newest records for a tenant.
func (a *AuditAdapter) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int64) ([]bson.M, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := a.collection.Find(ctx, bson.M{"tenant_id": tenantID.String()}, opts)
	if err != nil {
		return nil, apperr.DatabaseError("find audit records", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.DatabaseError("decode audit records", err)
	}
	return docs, nil
}
