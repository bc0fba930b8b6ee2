package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// MemoryStore is an in-memory ConversationStore for tests and development.
// Records are deep-copied on write and read so callers never share state
// with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*PersistedConversation
	closed bool
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		data:   make(map[string]*PersistedConversation),
		logger: logger.With(zap.String("component", "memory_store")),
	}
}

func (s *MemoryStore) guardOpen() error {
	if s.closed {
		return types.NewError(types.ErrStoreClosed, "memory store is closed")
	}
	return nil
}

// Upsert writes the record for a session.
func (s *MemoryStore) Upsert(ctx context.Context, state *dialogue.State, meta ConversationMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardOpen(); err != nil {
		return err
	}

	record := NewPersistedConversation(state.Clone(), meta)
	s.data[state.SessionID] = record
	return nil
}

// GetBySessionID returns the record for a session.
func (s *MemoryStore) GetBySessionID(ctx context.Context, sessionID string) (*PersistedConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guardOpen(); err != nil {
		return nil, err
	}

	record, ok := s.data[sessionID]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}

	cp := *record
	cp.State = record.State.Clone()
	return &cp, nil
}

// List returns summaries matching the filter.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guardOpen(); err != nil {
		return nil, err
	}

	filter.Normalize()
	all := make([]ConversationSummary, 0, len(s.data))
	for _, record := range s.data {
		all = append(all, record.ToSummary())
	}
	return filterSummaries(all, filter), nil
}

// Delete removes a session's record.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardOpen(); err != nil {
		return err
	}

	if _, ok := s.data[sessionID]; !ok {
		return types.NewError(types.ErrNotFound, "conversation not found: "+sessionID)
	}
	delete(s.data, sessionID)
	return nil
}

// Count returns the number of stored conversations.
func (s *MemoryStore) Count(ctx context.Context, configID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guardOpen(); err != nil {
		return 0, err
	}

	if configID == "" {
		return int64(len(s.data)), nil
	}
	var n int64
	for _, record := range s.data {
		if record.ConfigID == configID {
			n++
		}
	}
	return n, nil
}

// Ping reports store availability.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guardOpen()
}

// Close marks the store closed. Subsequent operations fail with
// STORE_CLOSED.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

var _ ConversationStore = (*MemoryStore)(nil)
