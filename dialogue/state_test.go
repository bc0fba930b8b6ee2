package dialogue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roundtableai/roundtable/types"
)

func newTestState() *State {
	return NewState("sess-1", "cfg-1", []string{"alpha", "beta", "gamma"})
}

func TestNewState(t *testing.T) {
	s := newTestState()

	assert.Equal(t, types.StatusWaitingForTopic, s.Status)
	assert.Empty(t, s.Messages)
	assert.Len(t, s.AgentContexts, 3)
	assert.Equal(t, 0, s.RoundCount)
	assert.Equal(t, 0, s.TurnInfo.TurnNumber)
}

func TestAddUserMessage(t *testing.T) {
	s := newTestState()

	require.NoError(t, s.AddUserMessage("m1", "hello everyone"))

	require.Len(t, s.Messages, 1)
	assert.Equal(t, types.RoleUser, s.Messages[0].Role)
	for _, id := range s.ActiveAgents {
		turns := s.AgentContext(id)
		require.Len(t, turns, 1)
		assert.Equal(t, types.ContextRoleUser, turns[0].Role)
		assert.Equal(t, "hello everyone", turns[0].Content)
	}
}

func TestAddUserMessageClearsUserWait(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetTopic("topic"))
	require.NoError(t, s.SetWaitingForUser("what do you think?"))
	require.True(t, s.WaitingForUserFeedback)

	require.NoError(t, s.AddUserMessage("m1", "I think yes"))

	assert.False(t, s.WaitingForUserFeedback)
	assert.Empty(t, s.UserFeedbackPrompt)
	assert.Equal(t, types.StatusInProgress, s.Status)
}

func TestAddAgentMessageFanOut(t *testing.T) {
	s := newTestState()

	require.NoError(t, s.AddAgentMessage("m1", "alpha", "Alpha", "my take"))

	// The speaker sees its own words as an assistant turn.
	own := s.AgentContext("alpha")
	require.Len(t, own, 1)
	assert.Equal(t, types.ContextRoleAssistant, own[0].Role)
	assert.Equal(t, "my take", own[0].Content)

	// Everyone else sees a user-labeled, attributed turn.
	for _, id := range []string{"beta", "gamma"} {
		turns := s.AgentContext(id)
		require.Len(t, turns, 1)
		assert.Equal(t, types.ContextRoleUser, turns[0].Role)
		assert.Equal(t, "Alpha: my take", turns[0].Content)
	}
}

func TestAddSystemMessageFanOut(t *testing.T) {
	s := newTestState()

	require.NoError(t, s.AddSystemMessage("m1", "round limit reached"))

	for _, id := range s.ActiveAgents {
		turns := s.AgentContext(id)
		require.Len(t, turns, 1)
		assert.Equal(t, types.ContextRoleSystem, turns[0].Role)
	}
}

func TestSetTopic(t *testing.T) {
	t.Run("from waiting_for_topic", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.SetTopic("pricing strategy"))
		assert.Equal(t, types.StatusInProgress, s.Status)
		assert.Equal(t, "pricing strategy", s.Topic)
	})

	t.Run("from any other status", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.SetTopic("first"))
		err := s.SetTopic("second")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrInvalidTransition))
		assert.Equal(t, "first", s.Topic)
	})
}

func TestUpdateTurn(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetTopic("x"))

	// No current speaker: pointers move, the counter does not.
	require.NoError(t, s.UpdateTurn("", "beta", "opening"))
	assert.Equal(t, 0, s.TurnInfo.TurnNumber)
	assert.Equal(t, "beta", s.TurnInfo.NextAgentID)

	// Current speaker set: counter increments.
	require.NoError(t, s.UpdateTurn("beta", "gamma", "beta spoke"))
	assert.Equal(t, 1, s.TurnInfo.TurnNumber)
	require.NoError(t, s.UpdateTurn("gamma", "", "gamma spoke"))
	assert.Equal(t, 2, s.TurnInfo.TurnNumber)
}

func TestWaitingForUserRoundTrip(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetTopic("x"))

	require.NoError(t, s.SetWaitingForUser("your view?"))
	assert.Equal(t, types.StatusWaitingForUser, s.Status)
	assert.True(t, s.WaitingForUserFeedback)
	assert.Equal(t, "your view?", s.UserFeedbackPrompt)

	require.NoError(t, s.ClearUserWait())
	assert.Equal(t, types.StatusInProgress, s.Status)
	assert.False(t, s.WaitingForUserFeedback)
}

func TestTerminalStatusRejectsMutation(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetTopic("x"))
	require.NoError(t, s.AddUserMessage("m1", "hello"))
	require.NoError(t, s.EndConversation())

	require.Equal(t, types.StatusCompleted, s.Status)
	messages := len(s.Messages)
	rounds := s.RoundCount

	mutators := []struct {
		name string
		op   func() error
	}{
		{"AddUserMessage", func() error { return s.AddUserMessage("m2", "late") }},
		{"AddAgentMessage", func() error { return s.AddAgentMessage("m3", "alpha", "Alpha", "late") }},
		{"AddSystemMessage", func() error { return s.AddSystemMessage("m4", "late") }},
		{"UpdateTurn", func() error { return s.UpdateTurn("alpha", "beta", "late") }},
		{"CompleteRound", func() error { return s.CompleteRound() }},
		{"SetWaitingForUser", func() error { return s.SetWaitingForUser("late") }},
		{"EndConversation", func() error { return s.EndConversation() }},
		{"Fail", func() error { return s.Fail("late") }},
	}
	for _, tc := range mutators {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op()
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidTransition))
		})
	}

	assert.Len(t, s.Messages, messages)
	assert.Equal(t, rounds, s.RoundCount)
	assert.Equal(t, types.StatusCompleted, s.Status)
}

func TestEndConversationClearsTurnPointers(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetTopic("x"))
	require.NoError(t, s.UpdateTurn("alpha", "beta", "r"))

	require.NoError(t, s.EndConversation())

	assert.Empty(t, s.TurnInfo.CurrentAgentID)
	assert.Empty(t, s.TurnInfo.NextAgentID)
}

func TestLastAgentMessage(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.AddAgentMessage("m1", "alpha", "Alpha", "first"))
	require.NoError(t, s.AddUserMessage("m2", "user says"))
	require.NoError(t, s.AddAgentMessage("m3", "beta", "Beta", "second"))

	last := s.LastAgentMessage("")
	require.NotNil(t, last)
	assert.Equal(t, "beta", last.AgentID)

	excluded := s.LastAgentMessage("beta")
	require.NotNil(t, excluded)
	assert.Equal(t, "alpha", excluded.AgentID)
}

func TestRecentMessages(t *testing.T) {
	s := newTestState()
	for i := 0; i < 6; i++ {
		require.NoError(t, s.AddUserMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("msg %d", i)))
	}

	recent := s.RecentMessages(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 3", recent[0].Content)
	assert.Equal(t, "msg 5", recent[2].Content)

	assert.Len(t, s.RecentMessages(0), 6)
	assert.Len(t, s.RecentMessages(100), 6)
}

func TestCloneIsDeep(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.AddAgentMessage("m1", "alpha", "Alpha", "original"))

	cp := s.Clone()
	require.NoError(t, s.AddUserMessage("m2", "after clone"))

	assert.Len(t, cp.Messages, 1)
	assert.Len(t, cp.AgentContext("beta"), 1)
	assert.Len(t, s.Messages, 2)
}

// Replaying the message log through the fan-out rules must reproduce the
// incrementally maintained projections exactly.
func TestRebuildContextsReplayProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agentCount := rapid.IntRange(2, 5).Draw(t, "agents")
		ids := make([]string, agentCount)
		for i := range ids {
			ids[i] = fmt.Sprintf("agent-%d", i)
		}
		s := NewState("sess", "cfg", ids)

		steps := rapid.IntRange(0, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			content := rapid.StringN(1, 30, 60).Draw(t, "content")
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				_ = s.AddUserMessage(fmt.Sprintf("m%d", i), content)
			case 1:
				speaker := rapid.SampledFrom(ids).Draw(t, "speaker")
				_ = s.AddAgentMessage(fmt.Sprintf("m%d", i), speaker, "Agent "+speaker, content)
			case 2:
				_ = s.AddSystemMessage(fmt.Sprintf("m%d", i), content)
			}
		}

		incremental := s.Clone().AgentContexts
		s.RebuildContexts()
		if !assert.ObjectsAreEqual(incremental, s.AgentContexts) {
			t.Fatalf("rebuilt contexts diverge from incremental projections")
		}
	})
}

// Round and turn counters never decrease over any mutation sequence.
func TestCountersMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState("sess", "cfg", []string{"a", "b"})
		_ = s.SetTopic("t")

		prevRounds, prevTurns := s.RoundCount, s.TurnInfo.TurnNumber
		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_ = s.CompleteRound()
			case 1:
				_ = s.UpdateTurn("a", "b", "r")
			case 2:
				_ = s.UpdateTurn("", "a", "r")
			case 3:
				_ = s.AddAgentMessage(fmt.Sprintf("m%d", i), "a", "A", "x")
			}
			if s.RoundCount < prevRounds || s.TurnInfo.TurnNumber < prevTurns {
				t.Fatalf("counter decreased: rounds %d->%d turns %d->%d",
					prevRounds, s.RoundCount, prevTurns, s.TurnInfo.TurnNumber)
			}
			prevRounds, prevTurns = s.RoundCount, s.TurnInfo.TurnNumber
		}
	})
}
