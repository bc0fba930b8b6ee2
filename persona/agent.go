// Package persona binds conversation configurations to live agents: system
// prompt assembly, response generation through the completion service, and
// the role-specific volunteering strategies the scheduler polls.
package persona

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/llm"
	"github.com/roundtableai/roundtable/types"
)

// Agent is one live conversation participant. Immutable after construction;
// safe for concurrent use as long as the underlying provider is.
type Agent struct {
	cfg       config.AgentConfig
	provider  llm.Provider
	estimator *llm.Estimator
	llmCfg    config.LLMConfig
	schedCfg  config.SchedulerConfig
	speak     speakFunc
	logger    *zap.Logger
}

// NewAgent creates a live agent from its static configuration.
func NewAgent(cfg config.AgentConfig, provider llm.Provider, estimator *llm.Estimator,
	llmCfg config.LLMConfig, schedCfg config.SchedulerConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if estimator == nil {
		estimator = llm.NewEstimator()
	}
	return &Agent{
		cfg:       cfg,
		provider:  provider,
		estimator: estimator,
		llmCfg:    llmCfg,
		schedCfg:  schedCfg,
		speak:     strategyFor(cfg.Role),
		logger:    logger.With(zap.String("component", "agent"), zap.String("agent_id", cfg.ID)),
	}
}

// ID returns the agent's id.
func (a *Agent) ID() string { return a.cfg.ID }

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.cfg.Name }

// Role returns the agent's configured role.
func (a *Agent) Role() config.AgentRole { return a.cfg.Role }

// Config returns the agent's static configuration.
func (a *Agent) Config() config.AgentConfig { return a.cfg }

// RolePriority returns the fixed scheduling priority of the agent's role.
func (a *Agent) RolePriority() int { return a.cfg.Role.Priority() }

// ShouldSpeakNext is the agent's self-assessment for the scheduler. An agent
// that just spoke never volunteers.
func (a *Agent) ShouldSpeakNext(state *dialogue.State, lastSpeakerID, flowContext string) (bool, string) {
	if a.cfg.ID == lastSpeakerID {
		return false, "just spoke"
	}
	return a.speak(a, state, lastSpeakerID, flowContext)
}

var roleGuidance = map[config.AgentRole]string{
	config.RoleLead:        "You lead this discussion. Set direction, synthesize what others say, and keep the conversation productive.",
	config.RoleContributor: "You contribute specialist insight. Ground your points in your domain expertise and build on what others have said.",
	config.RoleSkeptic:     "You challenge assumptions. Probe weak arguments, ask for evidence, and surface risks the group is overlooking.",
	config.RoleModerator:   "You moderate. Keep the discussion balanced, draw out quiet perspectives, and summarize areas of agreement.",
}

// systemPrompt assembles the persona's system directive for the current
// conversation.
func (a *Agent) systemPrompt(topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, participating in a multi-party discussion.\n", a.cfg.Name)
	fmt.Fprintf(&b, "Your role: %s. %s\n", a.cfg.Role, roleGuidance[a.cfg.Role])
	if a.cfg.DomainExpertise != "" {
		fmt.Fprintf(&b, "Your domain expertise: %s.\n", a.cfg.DomainExpertise)
	}
	if len(a.cfg.PersonalityTraits) > 0 {
		fmt.Fprintf(&b, "Your personality: %s.\n", strings.Join(a.cfg.PersonalityTraits, ", "))
	}
	if a.cfg.Directive != "" {
		b.WriteString(a.cfg.Directive)
		b.WriteString("\n")
	}
	if topic != "" {
		fmt.Fprintf(&b, "The discussion topic is: %s\n", topic)
	}
	b.WriteString("Stay in character. Respond conversationally in a few sentences; never narrate on behalf of other participants. " +
		"If you need input from the human observer, write a line starting with \"@Ask User:\" followed by your question.")
	return b.String()
}

// buildMessages converts the agent's private context into a provider request
// trimmed to the configured token budget.
func (a *Agent) buildMessages(state *dialogue.State) []llm.ChatMessage {
	ctxTurns := state.AgentContext(a.cfg.ID)
	messages := make([]llm.ChatMessage, 0, len(ctxTurns)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: a.systemPrompt(state.Topic)})
	for _, t := range ctxTurns {
		messages = append(messages, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	if last := state.LastAgentMessage(a.cfg.ID); last != nil {
		messages = append(messages, llm.ChatMessage{
			Role:    "system",
			Content: fmt.Sprintf("You are responding to the latest point from %s.", last.AgentName),
		})
	}
	return a.estimator.TrimToBudget(messages, a.llmCfg.ContextTokenBudget)
}

// GenerateResponse asks the completion service for this agent's next turn,
// seeded with the agent's private context.
func (a *Agent) GenerateResponse(ctx context.Context, state *dialogue.State) (string, error) {
	req := &llm.ChatRequest{
		TraceID:     state.SessionID,
		Model:       a.model(),
		Messages:    a.buildMessages(state),
		MaxTokens:   a.llmCfg.MaxTokens,
		Temperature: a.llmCfg.Temperature,
	}
	resp, err := a.provider.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", types.NewError(types.ErrCompletionFailure, "completion returned empty content")
	}
	return resp.Content, nil
}

// GenerateIntroduction asks the agent to open the discussion on a topic.
// Used for the lead agent when the topic is set.
func (a *Agent) GenerateIntroduction(ctx context.Context, topic string) (string, error) {
	req := &llm.ChatRequest{
		Model: a.model(),
		Messages: []llm.ChatMessage{
			{Role: "system", Content: a.systemPrompt(topic)},
			{Role: "user", Content: fmt.Sprintf("Please introduce the discussion topic %q to the group and invite initial perspectives.", topic)},
		},
		MaxTokens:   a.llmCfg.MaxTokens,
		Temperature: a.llmCfg.Temperature,
	}
	resp, err := a.provider.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", types.NewError(types.ErrCompletionFailure, "completion returned empty content")
	}
	return resp.Content, nil
}

// Summarize asks the agent for a short recap of its own contributions.
func (a *Agent) Summarize(ctx context.Context, state *dialogue.State) (string, error) {
	messages := a.buildMessages(state)
	messages = append(messages, llm.ChatMessage{
		Role:    "user",
		Content: "Summarize the key points you contributed to this discussion in two or three sentences.",
	})
	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.model(),
		Messages:    messages,
		MaxTokens:   a.llmCfg.MaxTokens,
		Temperature: a.llmCfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *Agent) model() string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return a.llmCfg.DefaultModel
}

var userQuestionPattern = regexp.MustCompile(`(?i)@ask user:[ \t]*([^\n]+)`)

// ExtractUserQuestions scans agent output for embedded human-input requests
// of the form "@Ask User: <question>" and returns the question list.
func ExtractUserQuestions(content string) []string {
	var questions []string
	for _, match := range userQuestionPattern.FindAllStringSubmatch(content, -1) {
		q := strings.TrimSpace(match[1])
		if q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}
