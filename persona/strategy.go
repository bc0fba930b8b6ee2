package persona

import (
	"fmt"
	"strings"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

// speakFunc is one role's volunteering heuristic. Roles form a closed set of
// tagged variants; the strategy is bound once at agent construction so no
// call site ever branches on the role tag.
type speakFunc func(a *Agent, state *dialogue.State, lastSpeakerID, flowContext string) (bool, string)

func strategyFor(role config.AgentRole) speakFunc {
	switch role {
	case config.RoleLead:
		return leadSpeaks
	case config.RoleSkeptic:
		return skepticSpeaks
	case config.RoleContributor:
		return contributorSpeaks
	default:
		return moderatorSpeaks
	}
}

// leadSpeaks keeps the discussion moving: the lead opens an empty
// conversation and re-enters when it has been silent while others talk.
func leadSpeaks(a *Agent, state *dialogue.State, lastSpeakerID, flowContext string) (bool, string) {
	if len(state.Messages) == 0 {
		return true, "no messages yet; the lead opens the discussion"
	}
	if len(state.Messages) > 3 {
		spoke := false
		for _, m := range state.RecentMessages(3) {
			if m.Role == types.RoleAgent && m.AgentID == a.cfg.ID {
				spoke = true
				break
			}
		}
		if !spoke {
			return true, "lead has not spoken recently; steering the discussion"
		}
	}
	return participationFallback(a, state)
}

// skepticSpeaks waits until enough has been said: it volunteers once at
// least two other agents' messages have accumulated since its own last turn.
func skepticSpeaks(a *Agent, state *dialogue.State, lastSpeakerID, flowContext string) (bool, string) {
	others := 0
	for _, m := range state.RecentMessages(a.schedCfg.RecentWindow) {
		if m.Role != types.RoleAgent {
			continue
		}
		if m.AgentID == a.cfg.ID {
			others = 0
			continue
		}
		others++
	}
	if others >= 2 {
		return true, fmt.Sprintf("%d agent messages since the skeptic's last turn; time to evaluate", others)
	}
	return participationFallback(a, state)
}

// contributorSpeaks volunteers when the recent discussion touches its
// domain expertise.
func contributorSpeaks(a *Agent, state *dialogue.State, lastSpeakerID, flowContext string) (bool, string) {
	flow := strings.ToLower(flowContext)
	for _, token := range expertiseTokens(a.cfg.DomainExpertise) {
		if strings.Contains(flow, token) {
			return true, fmt.Sprintf("recent discussion mentions %q, within this agent's expertise", token)
		}
	}
	return participationFallback(a, state)
}

// moderatorSpeaks has no topical trigger of its own; it relies on the
// participation-balancing fallback alone.
func moderatorSpeaks(a *Agent, state *dialogue.State, lastSpeakerID, flowContext string) (bool, string) {
	return participationFallback(a, state)
}

// participationFallback volunteers when the agent's share of the recent
// window falls below the balancing threshold. With ParticipationShare unset,
// the threshold is len(recent)/len(active) using integer division.
func participationFallback(a *Agent, state *dialogue.State) (bool, string) {
	recent := state.RecentMessages(a.schedCfg.RecentWindow)
	if len(recent) == 0 || len(state.ActiveAgents) == 0 {
		return false, ""
	}

	own := 0
	for _, m := range recent {
		if m.Role == types.RoleAgent && m.AgentID == a.cfg.ID {
			own++
		}
	}

	if share := a.schedCfg.ParticipationShare; share > 0 {
		if float64(own)/float64(len(recent)) < share {
			return true, fmt.Sprintf("spoke %d of the last %d messages, below the %.2f participation share", own, len(recent), share)
		}
		return false, ""
	}

	if own < len(recent)/len(state.ActiveAgents) {
		return true, fmt.Sprintf("spoke %d of the last %d messages; rebalancing participation", own, len(recent))
	}
	return false, ""
}

// expertiseTokens splits a domain-expertise phrase into lowercase matchable
// tokens, trimming punctuation.
func expertiseTokens(expertise string) []string {
	fields := strings.FieldsFunc(strings.ToLower(expertise), func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '/'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".()")
		if f == "" || f == "and" || f == "of" || f == "the" {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
