package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// MongoStore persists conversations in a MongoDB collection, one document
// per session keyed by session_id. Listing uses a projection that excludes
// the state payload, so summaries never deserialize full records.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore connects to MongoDB and ensures the session_id index.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to connect to mongodb").WithCause(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "mongodb ping failed").WithCause(err)
	}

	collection := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to create session index").WithCause(err)
	}

	return &MongoStore{
		client:     client,
		collection: collection,
		logger:     logger.With(zap.String("component", "mongo_store")),
	}, nil
}

// Upsert replaces the session's document, inserting when absent.
func (s *MongoStore) Upsert(ctx context.Context, state *dialogue.State, meta ConversationMeta) error {
	record := NewPersistedConversation(state, meta)
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"session_id": state.SessionID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to write conversation").WithCause(err)
	}
	return nil
}

// GetBySessionID returns the full record for a session.
func (s *MongoStore) GetBySessionID(ctx context.Context, sessionID string) (*PersistedConversation, error) {
	var record PersistedConversation
	err := s.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to read conversation").WithCause(err)
	}
	return &record, nil
}

// List queries summaries server-side: filter, sort, skip, limit, and a
// projection dropping the state payload.
func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]ConversationSummary, error) {
	filter.Normalize()

	query := bson.M{}
	if filter.ConfigID != "" {
		query["config_id"] = filter.ConfigID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	order := -1
	if filter.SortOrder == "asc" {
		order = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: filter.SortBy, Value: order}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit)).
		SetProjection(bson.M{"state": 0})

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to list conversations").WithCause(err)
	}
	defer cursor.Close(ctx)

	summaries := []ConversationSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to decode conversation summaries").WithCause(err)
	}
	return summaries, nil
}

// Delete removes a session's document.
func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to delete conversation").WithCause(err)
	}
	if result.DeletedCount == 0 {
		return types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	return nil
}

// Count returns the number of stored conversations.
func (s *MongoStore) Count(ctx context.Context, configID string) (int64, error) {
	query := bson.M{}
	if configID != "" {
		query["config_id"] = configID
	}
	n, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return 0, types.NewError(types.ErrPersistenceFailure, "failed to count conversations").WithCause(err)
	}
	return n, nil
}

// Ping checks MongoDB connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return types.NewError(types.ErrPersistenceFailure, "mongodb ping failed").WithCause(err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ ConversationStore = (*MongoStore)(nil)
