// Package session implements the conversation orchestrator: session
// lifecycle operations, turn generation, persistence reconciliation, and the
// lifecycle event stream handed to transport layers.
package session

import (
	"github.com/roundtableai/roundtable/dialogue"
)

// EventType tags one lifecycle event.
type EventType string

const (
	// EventSpeakerInfo announces which agent is about to speak.
	EventSpeakerInfo EventType = "speaker_info"
	// EventAgentResponse carries a generated agent message.
	EventAgentResponse EventType = "agent_response"
	// EventUserInputRequested signals the conversation is waiting on the
	// human observer.
	EventUserInputRequested EventType = "user_input_requested"
	// EventTurnComplete closes a successfully generated turn.
	EventTurnComplete EventType = "turn_complete"
	// EventSystem carries an orchestrator announcement, such as the round
	// limit being reached.
	EventSystem EventType = "system"
	// EventError reports a failed turn.
	EventError EventType = "error"
)

// Event is one entry in the ordered lifecycle sequence produced by
// GenerateNextResponse. A transport layer maps these onto wire framing; the
// core guarantees only the sequence and the field contracts below.
//
// Within one invocation the order is fixed:
// speaker_info, agent_response, then user_input_requested or turn_complete —
// or a single system/error event on the short-circuit branches.
type Event struct {
	Type EventType `json:"type"`

	// speaker_info and agent_response
	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	AgentRole string `json:"agent_role,omitempty"`

	// agent_response
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`

	// user_input_requested
	Questions []string `json:"questions,omitempty"`

	// turn_complete
	NextSpeakerID string `json:"next_speaker_id,omitempty"`

	// system and error
	Message string `json:"message,omitempty"`

	// State is a consistent snapshot attached to state-bearing events
	// (user_input_requested, turn_complete, and terminal system events).
	State *dialogue.State `json:"dialogue_state,omitempty"`
}
