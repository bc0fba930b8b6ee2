// Package dialogue implements the session state machine for multi-way
// conversations: the shared message log, per-agent context projections,
// turn and round counters, and the status lifecycle.
package dialogue

import (
	"fmt"
	"time"

	"github.com/roundtableai/roundtable/types"
)

// State is the authoritative mutable state of one conversation session.
// It is owned exclusively by the session orchestrator for the session's
// lifetime and mutated only through its transition methods. All mutators are
// pure and synchronous; none of them removes or edits a prior message.
//
// Fields are exported for serialization only. Outside this package, treat
// them as read-only.
type State struct {
	SessionID string       `json:"session_id" bson:"session_id"`
	ConfigID  string       `json:"config_id" bson:"config_id"`
	Status    types.Status `json:"status" bson:"status"`
	Topic     string       `json:"topic,omitempty" bson:"topic,omitempty"`

	// Messages is the append-only shared log. Slice order is conversation
	// order.
	Messages []types.Message `json:"messages" bson:"messages"`

	TurnInfo types.TurnInfo `json:"turn_info" bson:"turn_info"`

	// ActiveAgents lists participating agent ids in declaration order.
	ActiveAgents []string `json:"active_agents" bson:"active_agents"`

	// AgentContexts maps each agent id to its private transcript view of the
	// shared log. Always derivable by replaying Messages through the fan-out
	// rules (see RebuildContexts).
	AgentContexts map[string][]types.ContextTurn `json:"agent_contexts" bson:"agent_contexts"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`

	RoundCount             int    `json:"round_count" bson:"round_count"`
	WaitingForUserFeedback bool   `json:"waiting_for_user_feedback" bson:"waiting_for_user_feedback"`
	UserFeedbackPrompt     string `json:"user_feedback_prompt,omitempty" bson:"user_feedback_prompt,omitempty"`

	KeyPoints     []string `json:"key_points,omitempty" bson:"key_points,omitempty"`
	DecisionsMade []string `json:"decisions_made,omitempty" bson:"decisions_made,omitempty"`
}

// NewState creates the state for a freshly started session.
func NewState(sessionID, configID string, activeAgents []string) *State {
	now := time.Now().UTC()
	s := &State{
		SessionID:     sessionID,
		ConfigID:      configID,
		Status:        types.StatusWaitingForTopic,
		ActiveAgents:  append([]string(nil), activeAgents...),
		AgentContexts: make(map[string][]types.ContextTurn, len(activeAgents)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, id := range activeAgents {
		s.AgentContexts[id] = nil
	}
	return s
}

func (s *State) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *State) guardMutable() error {
	if s.Status.Terminal() {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("session %s is %s", s.SessionID, s.Status))
	}
	return nil
}

// AddUserMessage appends a user message and fans its content into every
// active agent's context as a user turn. Clears a pending user wait.
func (s *State) AddUserMessage(messageID, content string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Messages = append(s.Messages, types.NewUserMessage(messageID, content))
	for _, agentID := range s.ActiveAgents {
		s.AgentContexts[agentID] = append(s.AgentContexts[agentID],
			types.ContextTurn{Role: types.ContextRoleUser, Content: content})
	}
	if s.WaitingForUserFeedback {
		s.clearUserWaitLocked()
	}
	s.touch()
	return nil
}

// AddAgentMessage appends an agent message. The speaking agent's own context
// gains an assistant turn; every other active agent sees a user-labeled turn
// attributed as "name: content". Agents never see their own utterances
// replayed back from other perspectives, which prevents context duplication.
func (s *State) AddAgentMessage(messageID, agentID, agentName, content string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Messages = append(s.Messages, types.NewAgentMessage(messageID, agentID, agentName, content))
	for _, otherID := range s.ActiveAgents {
		if otherID == agentID {
			s.AgentContexts[otherID] = append(s.AgentContexts[otherID],
				types.ContextTurn{Role: types.ContextRoleAssistant, Content: content})
			continue
		}
		s.AgentContexts[otherID] = append(s.AgentContexts[otherID],
			types.ContextTurn{Role: types.ContextRoleUser, Content: fmt.Sprintf("%s: %s", agentName, content)})
	}
	s.touch()
	return nil
}

// AddSystemMessage appends a system message and fans it into all contexts as
// a system turn.
func (s *State) AddSystemMessage(messageID, content string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Messages = append(s.Messages, types.NewSystemMessage(messageID, content))
	for _, agentID := range s.ActiveAgents {
		s.AgentContexts[agentID] = append(s.AgentContexts[agentID],
			types.ContextTurn{Role: types.ContextRoleSystem, Content: content})
	}
	s.touch()
	return nil
}

// SetTopic records the topic and transitions WAITING_FOR_TOPIC to
// IN_PROGRESS. Any other starting status is an invalid transition; the caller
// decides whether to tolerate.
func (s *State) SetTopic(topic string) error {
	if s.Status != types.StatusWaitingForTopic {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot set topic while session %s is %s", s.SessionID, s.Status))
	}
	s.Topic = topic
	s.Status = types.StatusInProgress
	s.touch()
	return nil
}

// UpdateTurn records a scheduling decision. TurnNumber increments iff a
// current speaker is set.
func (s *State) UpdateTurn(currentAgentID, nextAgentID, reasoning string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.TurnInfo.CurrentAgentID = currentAgentID
	s.TurnInfo.NextAgentID = nextAgentID
	s.TurnInfo.Reasoning = reasoning
	if currentAgentID != "" {
		s.TurnInfo.TurnNumber++
	}
	s.touch()
	return nil
}

// CompleteRound marks completion of one scheduling cycle.
func (s *State) CompleteRound() error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.RoundCount++
	s.touch()
	return nil
}

// SetWaitingForUser transitions to WAITING_FOR_USER with an optional prompt.
func (s *State) SetWaitingForUser(prompt string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Status = types.StatusWaitingForUser
	s.WaitingForUserFeedback = true
	s.UserFeedbackPrompt = prompt
	s.touch()
	return nil
}

// ClearUserWait returns to IN_PROGRESS and clears the pending prompt.
func (s *State) ClearUserWait() error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.clearUserWaitLocked()
	s.touch()
	return nil
}

func (s *State) clearUserWaitLocked() {
	s.WaitingForUserFeedback = false
	s.UserFeedbackPrompt = ""
	s.Status = types.StatusInProgress
}

// EndConversation transitions to COMPLETED and clears the turn pointers.
// The state is logically immutable afterwards.
func (s *State) EndConversation() error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Status = types.StatusCompleted
	s.TurnInfo.CurrentAgentID = ""
	s.TurnInfo.NextAgentID = ""
	s.touch()
	return nil
}

// Fail transitions to the terminal ERROR status. Reported, never
// auto-recovered.
func (s *State) Fail(reason string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.Status = types.StatusError
	s.TurnInfo.Reasoning = reason
	s.touch()
	return nil
}

// AgentContext returns the private transcript view for an agent.
func (s *State) AgentContext(agentID string) []types.ContextTurn {
	return s.AgentContexts[agentID]
}

// RecentMessages returns up to limit trailing messages from the shared log.
func (s *State) RecentMessages(limit int) []types.Message {
	if limit <= 0 || limit >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-limit:]
}

// LastAgentMessage returns the most recent agent message, optionally skipping
// messages by the given agent. Returns nil when none exists.
func (s *State) LastAgentMessage(excludeAgentID string) *types.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == types.RoleAgent && m.AgentID != excludeAgentID {
			return &m
		}
	}
	return nil
}

// RebuildContexts recomputes AgentContexts by replaying the shared log
// through the fan-out rules. This is the recovery property: the projection
// is always derivable from the log alone.
func (s *State) RebuildContexts() {
	rebuilt := make(map[string][]types.ContextTurn, len(s.ActiveAgents))
	for _, id := range s.ActiveAgents {
		rebuilt[id] = nil
	}
	for _, m := range s.Messages {
		switch m.Role {
		case types.RoleUser:
			for _, id := range s.ActiveAgents {
				rebuilt[id] = append(rebuilt[id], types.ContextTurn{Role: types.ContextRoleUser, Content: m.Content})
			}
		case types.RoleSystem:
			for _, id := range s.ActiveAgents {
				rebuilt[id] = append(rebuilt[id], types.ContextTurn{Role: types.ContextRoleSystem, Content: m.Content})
			}
		case types.RoleAgent:
			for _, id := range s.ActiveAgents {
				if id == m.AgentID {
					rebuilt[id] = append(rebuilt[id], types.ContextTurn{Role: types.ContextRoleAssistant, Content: m.Content})
					continue
				}
				rebuilt[id] = append(rebuilt[id], types.ContextTurn{Role: types.ContextRoleUser, Content: fmt.Sprintf("%s: %s", m.AgentName, m.Content)})
			}
		}
	}
	s.AgentContexts = rebuilt
}

// Clone returns a deep copy suitable for handing to concurrent readers.
func (s *State) Clone() *State {
	cp := *s
	cp.Messages = append([]types.Message(nil), s.Messages...)
	cp.ActiveAgents = append([]string(nil), s.ActiveAgents...)
	cp.KeyPoints = append([]string(nil), s.KeyPoints...)
	cp.DecisionsMade = append([]string(nil), s.DecisionsMade...)
	cp.AgentContexts = make(map[string][]types.ContextTurn, len(s.AgentContexts))
	for id, turns := range s.AgentContexts {
		cp.AgentContexts[id] = append([]types.ContextTurn(nil), turns...)
	}
	return &cp
}
