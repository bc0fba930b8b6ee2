// Package store provides durable conversation persistence. A single
// interface, ConversationStore, with four backends: in-memory (tests and
// development), Redis, MongoDB, and SQLite.
//
// The store is shared across sessions. Same-session writers are serialized
// upstream by the orchestrator's per-session mutual exclusion, so every
// backend implements plain last-write-wins upsert semantics keyed by
// session id.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// ConversationMeta is config-derived metadata persisted alongside the state.
type ConversationMeta struct {
	ConfigID     string   `json:"config_id" bson:"config_id"`
	ConfigName   string   `json:"config_name" bson:"config_name"`
	Participants []string `json:"participants" bson:"participants"`
}

// ConversationStats are counters derived from the message log at write time.
type ConversationStats struct {
	TotalRounds   int `json:"total_rounds" bson:"total_rounds"`
	TotalMessages int `json:"total_messages" bson:"total_messages"`
	UserMessages  int `json:"user_messages" bson:"user_messages"`
	AgentMessages int `json:"agent_messages" bson:"agent_messages"`
}

// PersistedConversation is the full durable record for one session.
type PersistedConversation struct {
	SessionID    string            `json:"session_id" bson:"session_id"`
	ConfigID     string            `json:"config_id" bson:"config_id"`
	ConfigName   string            `json:"config_name" bson:"config_name"`
	Title        string            `json:"title" bson:"title"`
	Status       types.Status      `json:"status" bson:"status"`
	Topic        string            `json:"topic,omitempty" bson:"topic,omitempty"`
	Participants []string          `json:"participants" bson:"participants"`
	Stats        ConversationStats `json:"stats" bson:"stats"`
	State        *dialogue.State   `json:"state" bson:"state"`
	CreatedAt    time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" bson:"updated_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// ConversationSummary is a lightweight projection of a record, produced
// without deserializing the full state.
type ConversationSummary struct {
	SessionID    string            `json:"session_id" bson:"session_id"`
	ConfigID     string            `json:"config_id" bson:"config_id"`
	ConfigName   string            `json:"config_name" bson:"config_name"`
	Title        string            `json:"title" bson:"title"`
	Status       types.Status      `json:"status" bson:"status"`
	Participants []string          `json:"participants" bson:"participants"`
	Stats        ConversationStats `json:"stats" bson:"stats"`
	CreatedAt    time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" bson:"updated_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// maxTitleLen caps generated conversation titles.
const maxTitleLen = 80

// NewPersistedConversation builds the durable record for a state snapshot.
// Stats, title, and the ended_at stamp are derived here so every backend
// persists identical documents.
func NewPersistedConversation(state *dialogue.State, meta ConversationMeta) *PersistedConversation {
	p := &PersistedConversation{
		SessionID:    state.SessionID,
		ConfigID:     state.ConfigID,
		ConfigName:   meta.ConfigName,
		Status:       state.Status,
		Topic:        state.Topic,
		Participants: meta.Participants,
		State:        state,
		CreatedAt:    state.CreatedAt,
		UpdatedAt:    state.UpdatedAt,
	}
	if p.ConfigID == "" {
		p.ConfigID = meta.ConfigID
	}
	p.Title = generateTitle(state.Topic, meta.ConfigName)
	p.Stats = deriveStats(state)
	if state.Status.Terminal() {
		ended := state.UpdatedAt
		p.EndedAt = &ended
	}
	return p
}

func deriveStats(state *dialogue.State) ConversationStats {
	stats := ConversationStats{
		TotalRounds:   state.RoundCount,
		TotalMessages: len(state.Messages),
	}
	for _, m := range state.Messages {
		switch m.Role {
		case types.RoleUser:
			stats.UserMessages++
		case types.RoleAgent:
			stats.AgentMessages++
		}
	}
	return stats
}

func generateTitle(topic, configName string) string {
	title := strings.TrimSpace(topic)
	if title == "" {
		title = configName
	}
	if title == "" {
		title = "Untitled conversation"
	}
	// Truncate on runes so a multi-byte character is never split; the
	// backends require valid UTF-8.
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}

// ToSummary projects the record into its listing form.
func (p *PersistedConversation) ToSummary() ConversationSummary {
	return ConversationSummary{
		SessionID:    p.SessionID,
		ConfigID:     p.ConfigID,
		ConfigName:   p.ConfigName,
		Title:        p.Title,
		Status:       p.Status,
		Participants: p.Participants,
		Stats:        p.Stats,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		EndedAt:      p.EndedAt,
	}
}

// Sort fields accepted by ListFilter.
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
)

// ListFilter selects and orders conversation summaries.
type ListFilter struct {
	ConfigID  string
	Status    types.Status
	Limit     int
	Offset    int
	SortBy    string // created_at or updated_at
	SortOrder string // asc or desc
}

// Normalize applies listing defaults: limit 20, sorted by updated_at
// descending.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.SortBy != SortByCreatedAt {
		f.SortBy = SortByUpdatedAt
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
}

// ConversationStore is the durable persistence boundary. Implementations are
// safe for concurrent use across sessions.
type ConversationStore interface {
	// Upsert writes the full record for a session, inserting or replacing.
	Upsert(ctx context.Context, state *dialogue.State, meta ConversationMeta) error

	// GetBySessionID returns the full record, or a NOT_FOUND error.
	GetBySessionID(ctx context.Context, sessionID string) (*PersistedConversation, error)

	// List returns summaries matching the filter.
	List(ctx context.Context, filter ListFilter) ([]ConversationSummary, error)

	// Delete removes a session's record. Deleting an absent session is a
	// NOT_FOUND error.
	Delete(ctx context.Context, sessionID string) error

	// Count returns the number of stored conversations, optionally
	// restricted to one config.
	Count(ctx context.Context, configID string) (int64, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// filterSummaries applies a normalized filter to an in-process summary
// slice. Shared by the memory and Redis backends; Mongo and SQLite filter
// server-side.
func filterSummaries(all []ConversationSummary, filter ListFilter) []ConversationSummary {
	matched := make([]ConversationSummary, 0, len(all))
	for _, s := range all {
		if filter.ConfigID != "" && s.ConfigID != filter.ConfigID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		matched = append(matched, s)
	}

	asc := filter.SortOrder == "asc"
	sort.SliceStable(matched, func(i, j int) bool {
		var ti, tj time.Time
		if filter.SortBy == SortByCreatedAt {
			ti, tj = matched[i].CreatedAt, matched[j].CreatedAt
		} else {
			ti, tj = matched[i].UpdatedAt, matched[j].UpdatedAt
		}
		if asc {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if filter.Offset >= len(matched) {
		return []ConversationSummary{}
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}
