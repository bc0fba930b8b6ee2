package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
)

// fakeCandidate is a scripted Candidate for selection tests.
type fakeCandidate struct {
	id        string
	priority  int
	volunteer bool
	reasoning string
}

func (f *fakeCandidate) ID() string        { return f.id }
func (f *fakeCandidate) RolePriority() int { return f.priority }
func (f *fakeCandidate) ShouldSpeakNext(_ *dialogue.State, _, _ string) (bool, string) {
	return f.volunteer, f.reasoning
}

func testState(agentIDs ...string) *dialogue.State {
	return dialogue.NewState("sess", "cfg", agentIDs)
}

func TestSelectNextEmptyAgents(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)
	decision := sched.SelectNext(testState(), "", nil)
	assert.Empty(t, decision.AgentID)
}

func TestSelectNextPrefersHighestPriorityVolunteer(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)
	state := testState("a", "b", "c")
	candidates := []Candidate{
		&fakeCandidate{id: "a", priority: config.RoleContributor.Priority(), volunteer: true},
		&fakeCandidate{id: "b", priority: config.RoleLead.Priority(), volunteer: true, reasoning: "steering"},
		&fakeCandidate{id: "c", priority: config.RoleSkeptic.Priority(), volunteer: true},
	}

	decision := sched.SelectNext(state, "", candidates)
	assert.Equal(t, "b", decision.AgentID)
	assert.Equal(t, "steering", decision.Reasoning)
}

func TestSelectNextTieBreaksByVolunteerOrder(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)
	state := testState("a", "b")
	candidates := []Candidate{
		&fakeCandidate{id: "a", priority: 1, volunteer: true, reasoning: "first"},
		&fakeCandidate{id: "b", priority: 1, volunteer: true, reasoning: "second"},
	}

	decision := sched.SelectNext(state, "", candidates)
	assert.Equal(t, "a", decision.AgentID)
}

func TestSelectNextSkipsLastSpeaker(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)
	state := testState("a", "b")
	candidates := []Candidate{
		// The last speaker volunteers with top priority but must be skipped.
		&fakeCandidate{id: "a", priority: 4, volunteer: true},
		&fakeCandidate{id: "b", priority: 1, volunteer: true},
	}

	decision := sched.SelectNext(state, "a", candidates)
	assert.Equal(t, "b", decision.AgentID)
}

func TestSelectNextRoundRobinFallback(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)
	state := testState("a", "b", "c")
	candidates := []Candidate{
		&fakeCandidate{id: "a"},
		&fakeCandidate{id: "b"},
		&fakeCandidate{id: "c"},
	}

	t.Run("advances past last speaker", func(t *testing.T) {
		decision := sched.SelectNext(state, "b", candidates)
		assert.Equal(t, "c", decision.AgentID)
	})

	t.Run("wraps around", func(t *testing.T) {
		decision := sched.SelectNext(state, "c", candidates)
		assert.Equal(t, "a", decision.AgentID)
	})

	t.Run("unknown last speaker starts at zero", func(t *testing.T) {
		decision := sched.SelectNext(state, "ghost", candidates)
		assert.Equal(t, "a", decision.AgentID)
	})

	t.Run("no last speaker starts at zero", func(t *testing.T) {
		decision := sched.SelectNext(state, "", candidates)
		assert.Equal(t, "a", decision.AgentID)
	})
}

func TestFlowContextWindow(t *testing.T) {
	sched := New(config.SchedulerConfig{FlowWindow: 3}, nil)
	state := testState("a", "b")
	for i := 0; i < 5; i++ {
		require.NoError(t, state.AddUserMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("msg%d", i)))
	}

	assert.Equal(t, "msg2 msg3 msg4", sched.FlowContext(state))
}

// The scheduler never returns the last speaker while more than one agent is
// active, regardless of who volunteers.
func TestNeverReturnsLastSpeakerProperty(t *testing.T) {
	sched := New(config.SchedulerConfig{}, nil)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 5).Draw(t, "agents")
		ids := make([]string, n)
		candidates := make([]Candidate, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("agent-%d", i)
			candidates[i] = &fakeCandidate{
				id:        ids[i],
				priority:  rapid.IntRange(1, 4).Draw(t, "priority"),
				volunteer: rapid.Bool().Draw(t, "volunteer"),
			}
		}
		state := testState(ids...)
		last := rapid.SampledFrom(ids).Draw(t, "last")

		decision := sched.SelectNext(state, last, candidates)
		if decision.AgentID == last {
			t.Fatalf("scheduler returned last speaker %q", last)
		}
		if decision.AgentID == "" {
			t.Fatalf("scheduler returned no speaker with %d active agents", n)
		}
	})
}
