package persona

import (
	"context"

	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/llm"
)

// Registry binds one validated ConversationConfig to live agents.
// Immutable after construction.
type Registry struct {
	cfg    *config.ConversationConfig
	agents []*Agent
	byID   map[string]*Agent
	logger *zap.Logger
}

// NewRegistry builds live agents for every persona in the config. The
// config is assumed validated; all agents share the provider and estimator.
func NewRegistry(cfg *config.ConversationConfig, provider llm.Provider,
	llmCfg config.LLMConfig, schedCfg config.SchedulerConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	estimator := llm.NewEstimator()

	r := &Registry{
		cfg:    cfg,
		agents: make([]*Agent, 0, len(cfg.Agents)),
		byID:   make(map[string]*Agent, len(cfg.Agents)),
		logger: logger.With(zap.String("component", "persona_registry"), zap.String("config_id", cfg.ID)),
	}
	for _, ac := range cfg.Agents {
		agent := NewAgent(ac, provider, estimator, llmCfg, schedCfg, logger)
		r.agents = append(r.agents, agent)
		r.byID[ac.ID] = agent
	}
	return r
}

// Config returns the bound conversation configuration.
func (r *Registry) Config() *config.ConversationConfig { return r.cfg }

// Agents returns all live agents in declaration order.
func (r *Registry) Agents() []*Agent { return r.agents }

// Agent returns the live agent with the given id, or nil.
func (r *Registry) Agent(agentID string) *Agent { return r.byID[agentID] }

// Lead returns the first lead agent. Config validation guarantees one
// exists.
func (r *Registry) Lead() *Agent {
	for _, a := range r.agents {
		if a.Role() == config.RoleLead {
			return a
		}
	}
	return nil
}

// AgentNames returns display names keyed by agent id.
func (r *Registry) AgentNames() map[string]string {
	names := make(map[string]string, len(r.agents))
	for _, a := range r.agents {
		names[a.ID()] = a.Name()
	}
	return names
}

// ConversationSummaries asks every agent for a recap of its contributions.
// Individual failures are logged and skipped; the map holds what succeeded.
func (r *Registry) ConversationSummaries(ctx context.Context, state *dialogue.State) map[string]string {
	summaries := make(map[string]string, len(r.agents))
	for _, a := range r.agents {
		s, err := a.Summarize(ctx, state)
		if err != nil {
			r.logger.Warn("agent summary failed",
				zap.String("agent_id", a.ID()), zap.Error(err))
			continue
		}
		summaries[a.ID()] = s
	}
	return summaries
}
