package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// RedisStore persists conversations as JSON blobs in Redis. Each record
// lives under <prefix>conversation:<session_id>; a set at <prefix>sessions
// indexes live session ids for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to connect to redis").WithCause(err)
	}

	prefix := cfg.RedisKeyPrefix
	if prefix == "" {
		prefix = "roundtable:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

func (s *RedisStore) conversationKey(sessionID string) string {
	return fmt.Sprintf("%sconversation:%s", s.prefix, sessionID)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "sessions"
}

// Upsert writes the record and registers the session id in the index.
func (s *RedisStore) Upsert(ctx context.Context, state *dialogue.State, meta ConversationMeta) error {
	record := NewPersistedConversation(state, meta)
	data, err := json.Marshal(record)
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to encode conversation").WithCause(err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.conversationKey(state.SessionID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), state.SessionID)
		return nil
	})
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to write conversation").WithCause(err)
	}
	return nil
}

// GetBySessionID returns the record for a session.
func (s *RedisStore) GetBySessionID(ctx context.Context, sessionID string) (*PersistedConversation, error) {
	data, err := s.client.Get(ctx, s.conversationKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to read conversation").WithCause(err)
	}

	var record PersistedConversation
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to decode conversation").WithCause(err)
	}
	return &record, nil
}

// List loads all indexed records and filters in-process. Suitable for the
// moderate conversation counts this system targets; large archives belong in
// the Mongo or SQLite backends.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]ConversationSummary, error) {
	filter.Normalize()

	summaries, err := s.loadSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return filterSummaries(summaries, filter), nil
}

func (s *RedisStore) loadSummaries(ctx context.Context) ([]ConversationSummary, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to read session index").WithCause(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.conversationKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailure, "failed to read conversations").WithCause(err)
	}

	summaries := make([]ConversationSummary, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record; skip rather than fail the
			// whole listing.
			s.logger.Warn("dangling session index entry", zap.String("session_id", ids[i]))
			continue
		}
		var record PersistedConversation
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn("skipping undecodable conversation",
				zap.String("session_id", ids[i]), zap.Error(err))
			continue
		}
		summaries = append(summaries, record.ToSummary())
	}
	return summaries, nil
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	deleted, err := s.client.Del(ctx, s.conversationKey(sessionID)).Result()
	if err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to delete conversation").WithCause(err)
	}
	if deleted == 0 {
		return types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	if err := s.client.SRem(ctx, s.indexKey(), sessionID).Err(); err != nil {
		return types.NewError(types.ErrPersistenceFailure, "failed to update session index").WithCause(err)
	}
	return nil
}

// Count returns the number of stored conversations.
func (s *RedisStore) Count(ctx context.Context, configID string) (int64, error) {
	if configID == "" {
		n, err := s.client.SCard(ctx, s.indexKey()).Result()
		if err != nil {
			return 0, types.NewError(types.ErrPersistenceFailure, "failed to count conversations").WithCause(err)
		}
		return n, nil
	}

	summaries, err := s.loadSummaries(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, summary := range summaries {
		if summary.ConfigID == configID {
			n++
		}
	}
	return n, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return types.NewError(types.ErrPersistenceFailure, "redis ping failed").WithCause(err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ConversationStore = (*RedisStore)(nil)
