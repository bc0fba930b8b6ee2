// Package scheduler implements next-speaker selection for multi-way
// conversations. The scheduler is a pure decision function: it polls every
// candidate's self-assessment, ranks volunteers by role priority, and falls
// back to round-robin when nobody volunteers.
package scheduler

import (
	"strings"

	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
)

// Candidate is a participant the scheduler can select. Role-specific
// volunteering heuristics live behind ShouldSpeakNext; the scheduler never
// branches on role tags itself.
type Candidate interface {
	// ID returns the candidate's agent id.
	ID() string

	// RolePriority returns the fixed scheduling priority of the candidate's
	// role. Higher wins.
	RolePriority() int

	// ShouldSpeakNext reports whether the candidate volunteers to speak,
	// with a human-readable reasoning string.
	ShouldSpeakNext(state *dialogue.State, lastSpeakerID, flowContext string) (bool, string)
}

// Decision is the outcome of one selection.
type Decision struct {
	AgentID   string
	Reasoning string
}

// Scheduler selects the next speaker. Stateless apart from configuration;
// safe for concurrent use.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *zap.Logger
}

// New creates a scheduler with the given tuning knobs.
func New(cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FlowWindow <= 0 {
		cfg.FlowWindow = 3
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 5
	}
	return &Scheduler{cfg: cfg, logger: logger.With(zap.String("component", "scheduler"))}
}

// FlowContext concatenates the content of the trailing flow-window messages.
// This is the snippet candidates inspect for topical relevance.
func (s *Scheduler) FlowContext(state *dialogue.State) string {
	recent := state.RecentMessages(s.cfg.FlowWindow)
	parts := make([]string, 0, len(recent))
	for _, m := range recent {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

// SelectNext picks the next speaker among candidates.
//
// Volunteers are collected from every candidate other than lastSpeakerID and
// ranked by role priority, ties broken by polling order. Without volunteers,
// selection falls back to strict round-robin over the state's active agents
// relative to lastSpeakerID. The returned id is never lastSpeakerID unless it
// is the only active agent. Returns a zero Decision when no agents are
// active.
func (s *Scheduler) SelectNext(state *dialogue.State, lastSpeakerID string, candidates []Candidate) Decision {
	if len(state.ActiveAgents) == 0 {
		return Decision{}
	}

	flowContext := s.FlowContext(state)

	type volunteer struct {
		id        string
		priority  int
		reasoning string
	}
	var volunteers []volunteer
	for _, c := range candidates {
		if c.ID() == lastSpeakerID {
			continue
		}
		ok, reasoning := c.ShouldSpeakNext(state, lastSpeakerID, flowContext)
		if !ok {
			continue
		}
		volunteers = append(volunteers, volunteer{id: c.ID(), priority: c.RolePriority(), reasoning: reasoning})
	}

	if len(volunteers) > 0 {
		best := volunteers[0]
		for _, v := range volunteers[1:] {
			if v.priority > best.priority {
				best = v
			}
		}
		s.logger.Debug("speaker selected",
			zap.String("session_id", state.SessionID),
			zap.String("agent_id", best.id),
			zap.Int("volunteers", len(volunteers)),
			zap.String("reasoning", best.reasoning),
		)
		return Decision{AgentID: best.id, Reasoning: best.reasoning}
	}

	next := s.roundRobin(state.ActiveAgents, lastSpeakerID)
	s.logger.Debug("speaker selected by round-robin",
		zap.String("session_id", state.SessionID),
		zap.String("agent_id", next),
	)
	return Decision{AgentID: next, Reasoning: "round-robin fallback: no agent volunteered"}
}

// roundRobin returns the agent after lastSpeakerID in declaration order,
// wrapping around. An unknown lastSpeakerID starts at index 0.
func (s *Scheduler) roundRobin(activeAgents []string, lastSpeakerID string) string {
	if lastSpeakerID == "" {
		return activeAgents[0]
	}
	for i, id := range activeAgents {
		if id == lastSpeakerID {
			return activeAgents[(i+1)%len(activeAgents)]
		}
	}
	return activeAgents[0]
}
