// Package types provides core types used across the roundtable framework.
// This package has ZERO dependencies on other roundtable packages to avoid
// circular imports. All other packages should import types from here.
package types

import "time"

// MessageRole identifies who produced a message in the shared log.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// Status is the finite lifecycle state of a conversation session.
type Status string

const (
	StatusWaitingForTopic Status = "waiting_for_topic"
	StatusInProgress      Status = "in_progress"
	StatusWaitingForUser  Status = "waiting_for_user"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Message is a single utterance in the shared conversation log.
// Messages are immutable once appended; slice order is the sole source of
// truth for conversation order. ID is unique but not ordering-bearing.
type Message struct {
	ID        string         `json:"id" bson:"id"`
	Role      MessageRole    `json:"role" bson:"role"`
	Content   string         `json:"content" bson:"content"`
	AgentID   string         `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	AgentName string         `json:"agent_name,omitempty" bson:"agent_name,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewUserMessage creates a user message with the given id and content.
func NewUserMessage(id, content string) Message {
	return Message{ID: id, Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewSystemMessage creates a system message with the given id and content.
func NewSystemMessage(id, content string) Message {
	return Message{ID: id, Role: RoleSystem, Content: content, Timestamp: time.Now().UTC()}
}

// NewAgentMessage creates an agent message attributed to the given persona.
func NewAgentMessage(id, agentID, agentName, content string) Message {
	return Message{
		ID:        id,
		Role:      RoleAgent,
		Content:   content,
		AgentID:   agentID,
		AgentName: agentName,
		Timestamp: time.Now().UTC(),
	}
}

// WithMetadata attaches metadata to the message.
func (m Message) WithMetadata(metadata map[string]any) Message {
	m.Metadata = metadata
	return m
}

// TurnInfo records whose turn it is to speak. It is mutated exactly once per
// turn transition; TurnNumber increases whenever CurrentAgentID is set.
type TurnInfo struct {
	CurrentAgentID string `json:"current_agent_id,omitempty" bson:"current_agent_id,omitempty"`
	NextAgentID    string `json:"next_agent_id,omitempty" bson:"next_agent_id,omitempty"`
	TurnNumber     int    `json:"turn_number" bson:"turn_number"`
	Reasoning      string `json:"reasoning,omitempty" bson:"reasoning,omitempty"`
}

// ContextRole is the role a turn carries inside one agent's private context.
// Agents see the shared log through their own projection: other agents'
// utterances arrive as user-labeled turns, their own as assistant turns.
type ContextRole string

const (
	ContextRoleSystem    ContextRole = "system"
	ContextRoleUser      ContextRole = "user"
	ContextRoleAssistant ContextRole = "assistant"
)

// ContextTurn is one entry in an agent's private transcript view.
type ContextTurn struct {
	Role    ContextRole `json:"role" bson:"role"`
	Content string      `json:"content" bson:"content"`
}
