// Package config defines conversation and application configuration for the
// roundtable framework: persona sets, role definitions, validation rules, the
// predefined configuration catalog, and the YAML/env application loader.
package config

import "fmt"

// AgentRole is the closed set of roles a persona can play in a conversation.
type AgentRole string

const (
	RoleLead        AgentRole = "lead"
	RoleContributor AgentRole = "contributor"
	RoleSkeptic     AgentRole = "skeptic"
	RoleModerator   AgentRole = "moderator"
)

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	switch r {
	case RoleLead, RoleContributor, RoleSkeptic, RoleModerator:
		return true
	}
	return false
}

// Priority returns the fixed scheduling priority for a role.
// Lead outranks moderator, which outranks skeptic, which outranks contributor.
func (r AgentRole) Priority() int {
	switch r {
	case RoleLead:
		return 4
	case RoleModerator:
		return 3
	case RoleSkeptic:
		return 2
	default:
		return 1
	}
}

// ConversationFormat describes the overall shape of a discussion.
type ConversationFormat string

const (
	FormatDebate        ConversationFormat = "debate"
	FormatCollaborative ConversationFormat = "collaborative"
	FormatBrainstorming ConversationFormat = "brainstorming"
	FormatReview        ConversationFormat = "review"
	FormatSocratic      ConversationFormat = "socratic"
)

// VisualTheme carries the UI hints attached to a persona. The core never
// interprets these; they ride along into persistence for clients.
type VisualTheme struct {
	PrimaryColor   string `json:"primary_color" yaml:"primary_color" bson:"primary_color"`
	SecondaryColor string `json:"secondary_color" yaml:"secondary_color" bson:"secondary_color"`
	AvatarStyle    string `json:"avatar_style" yaml:"avatar_style" bson:"avatar_style"`
}

// AgentConfig is the static description of one persona. Immutable once
// loaded; identity is ID, unique within a ConversationConfig.
type AgentConfig struct {
	ID                string      `json:"id" yaml:"id" bson:"id"`
	Name              string      `json:"name" yaml:"name" bson:"name"`
	Role              AgentRole   `json:"role" yaml:"role" bson:"role"`
	DomainExpertise   string      `json:"domain_expertise" yaml:"domain_expertise" bson:"domain_expertise"`
	PersonalityTraits []string    `json:"personality_traits,omitempty" yaml:"personality_traits,omitempty" bson:"personality_traits,omitempty"`
	Directive         string      `json:"directive" yaml:"directive" bson:"directive"`
	Model             string      `json:"model" yaml:"model" bson:"model"`
	Theme             VisualTheme `json:"theme" yaml:"theme" bson:"theme"`
}

// Conversation sizing limits. More than five personas degrades conversation
// flow; fewer than two is not a multi-way conversation.
const (
	MinAgents = 2
	MaxAgents = 5
)

// ConversationConfig describes a persona set and the rules of a discussion.
type ConversationConfig struct {
	ID                 string             `json:"id" yaml:"id" bson:"id"`
	Name               string             `json:"name" yaml:"name" bson:"name"`
	Description        string             `json:"description,omitempty" yaml:"description,omitempty" bson:"description,omitempty"`
	Format             ConversationFormat `json:"format" yaml:"format" bson:"format"`
	Agents             []AgentConfig      `json:"agents" yaml:"agents" bson:"agents"`
	MaxRounds          int                `json:"max_rounds" yaml:"max_rounds" bson:"max_rounds"`
	AllowHumanFeedback bool               `json:"allow_human_feedback" yaml:"allow_human_feedback" bson:"allow_human_feedback"`
}

// Validate checks every configuration rule and returns the complete list of
// violations, not just the first. An empty slice means the config is valid.
func (c *ConversationConfig) Validate() []string {
	var violations []string

	if len(c.Agents) < MinAgents {
		violations = append(violations, fmt.Sprintf("at least %d agents are required for a multi-way conversation", MinAgents))
	}
	if len(c.Agents) > MaxAgents {
		violations = append(violations, fmt.Sprintf("maximum of %d agents supported for optimal conversation flow", MaxAgents))
	}

	hasLead := false
	seen := make(map[string]bool, len(c.Agents))
	dupReported := false
	for _, a := range c.Agents {
		if a.Role == RoleLead {
			hasLead = true
		}
		if !a.Role.Valid() {
			violations = append(violations, fmt.Sprintf("agent %q has unknown role %q", a.ID, a.Role))
		}
		if seen[a.ID] && !dupReported {
			violations = append(violations, "agent IDs must be unique")
			dupReported = true
		}
		seen[a.ID] = true
	}
	if !hasLead {
		violations = append(violations, "at least one lead agent is required")
	}
	if c.MaxRounds <= 0 {
		violations = append(violations, "max_rounds must be positive")
	}

	return violations
}

// AgentByID returns the agent config with the given id, or nil.
func (c *ConversationConfig) AgentByID(agentID string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == agentID {
			return &c.Agents[i]
		}
	}
	return nil
}

// AgentByRole returns the first agent with the given role, or nil.
func (c *ConversationConfig) AgentByRole(role AgentRole) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Role == role {
			return &c.Agents[i]
		}
	}
	return nil
}

// AgentIDs returns the ids of all configured agents, in declaration order.
func (c *ConversationConfig) AgentIDs() []string {
	ids := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		ids[i] = a.ID
	}
	return ids
}
