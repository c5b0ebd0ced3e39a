package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

const (
	// AuditArchiveCollectionName is the name of the audit archive collection in MongoDB
	AuditArchiveCollectionName = "audit_archive"
)

// auditDocument is the stored shape of an archived event. The subject is
// masked; the account number is kept whole for lookups.
type auditDocument struct {
	ID            string    `bson:"_id"`
	AccountNumber *string   `bson:"account_number,omitempty"`
	Subject       string    `bson:"subject"`
	Action        string    `bson:"action"`
	Success       bool      `bson:"success"`
	OccurredAt    time.Time `bson:"occurred_at"`
	ArchivedAt    time.Time `bson:"archived_at"`
}

func newAuditDocument(event *auditevent.Event) auditDocument {
	return auditDocument{
		ID:            event.ID.String(),
		AccountNumber: event.AccountNumber,
		Subject:       event.Subject,
		Action:        string(event.Action),
		Success:       event.Success,
		OccurredAt:    event.OccurredAt,
		ArchivedAt:    time.Now().UTC(),
	}
}

func (d auditDocument) event() (*auditevent.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid archived event id %q: %w", d.ID, err)
	}
	return &auditevent.Event{
		ID:            id,
		AccountNumber: d.AccountNumber,
		Subject:       d.Subject,
		Action:        auditevent.Action(d.Action),
		Success:       d.Success,
		OccurredAt:    d.OccurredAt,
	}, nil
}

var _ auditevent.Archive = (*AuditArchive)(nil)

// AuditArchive implements the auditevent.Archive interface for MongoDB
type AuditArchive struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditArchive creates a new MongoDB audit archive
func NewAuditArchive(logger *slog.Logger, db *mongo.Database) *AuditArchive {
	return &AuditArchive{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the lookup index used by ListByAccountNumber.
func (r *AuditArchive) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(AuditArchiveCollectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "account_number", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		r.logger.Error("Failed to create audit archive index", "error", err)
		return fmt.Errorf("failed to create audit archive index: %w", err)
	}
	return nil
}

// Save archives the event. The document is only written on first insert, so
// re-delivering an event after a partial relay failure is harmless.
func (r *AuditArchive) Save(ctx context.Context, event *auditevent.Event) error {
	collection := r.db.Collection(AuditArchiveCollectionName)

	filter := bson.M{"_id": event.ID.String()}
	update := bson.M{"$setOnInsert": newAuditDocument(event)}
	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// two relays racing on the same upsert
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		r.logger.Error("Failed to archive audit event",
			"event_id", event.ID.String(),
			"error", err)
		return fmt.Errorf("failed to archive audit event: %w", err)
	}

	return nil
}

// GetByID retrieves an archived event.
// Returns ErrEventNotFound if it was never archived.
func (r *AuditArchive) GetByID(ctx context.Context, id uuid.UUID) (*auditevent.Event, error) {
	collection := r.db.Collection(AuditArchiveCollectionName)

	var doc auditDocument
	err := collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auditevent.ErrEventNotFound{ID: id}
		}
		r.logger.Error("Failed to get archived audit event",
			"event_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get archived audit event: %w", err)
	}

	return doc.event()
}

// ListByAccountNumber retrieves paginated events for an account number,
// newest first.
func (r *AuditArchive) ListByAccountNumber(ctx context.Context, accountNumber string, limit, offset int) ([]*auditevent.Event, error) {
	collection := r.db.Collection(AuditArchiveCollectionName)

	filter := bson.M{"account_number": accountNumber}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list archived audit events", "error", err)
		return nil, fmt.Errorf("failed to list archived audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode archived audit events", "error", err)
		return nil, fmt.Errorf("failed to decode archived audit events: %w", err)
	}

	events := make([]*auditevent.Event, 0, len(docs))
	for _, doc := range docs {
		event, err := doc.event()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}
