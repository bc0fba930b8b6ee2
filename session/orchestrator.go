package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/internal/metrics"
	"github.com/roundtableai/roundtable/llm"
	"github.com/roundtableai/roundtable/persona"
	"github.com/roundtableai/roundtable/scheduler"
	"github.com/roundtableai/roundtable/store"
	"github.com/roundtableai/roundtable/types"
)

// maxEventsPerTurn is the largest number of events one GenerateNextResponse
// invocation can emit. The event channel is buffered to this size so the
// producer never blocks on a consumer that abandoned the stream.
const maxEventsPerTurn = 4

// Orchestrator coordinates conversation sessions: lifecycle operations,
// turn generation, durable persistence, and event emission. All mutating
// operations on one session are serialized by that session's mutex; the
// orchestrator itself is safe for concurrent use across sessions.
type Orchestrator struct {
	catalog  *config.Catalog
	provider llm.Provider
	store    store.ConversationStore
	registry *Registry
	sched    *scheduler.Scheduler

	llmCfg   config.LLMConfig
	schedCfg config.SchedulerConfig

	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger

	// loadGroup deduplicates concurrent LoadConversation calls for the same
	// session id.
	loadGroup singleflight.Group
}

// NewOrchestrator creates a session orchestrator. The registry is injected
// so callers control session lifecycle scope; collector may be nil to
// disable metrics.
func NewOrchestrator(catalog *config.Catalog, provider llm.Provider, st store.ConversationStore,
	registry *Registry, llmCfg config.LLMConfig, schedCfg config.SchedulerConfig,
	collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Orchestrator{
		catalog:   catalog,
		provider:  provider,
		store:     st,
		registry:  registry,
		sched:     scheduler.New(schedCfg, logger),
		llmCfg:    llmCfg,
		schedCfg:  schedCfg,
		collector: collector,
		tracer:    otel.Tracer("roundtable/session"),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// StartConversation validates the named configuration, creates a session in
// WAITING_FOR_TOPIC, registers it, and persists the initial state. All
// configuration violations are reported together.
func (o *Orchestrator) StartConversation(ctx context.Context, configID, sessionID string) (string, *dialogue.State, error) {
	cfg, ok := o.catalog.Get(configID)
	if !ok {
		return "", nil, types.NewError(types.ErrConfigValidation,
			fmt.Sprintf("unknown conversation config %q", configID))
	}
	if violations := cfg.Validate(); len(violations) > 0 {
		return "", nil, types.NewError(types.ErrConfigValidation,
			fmt.Sprintf("config %q is invalid", configID)).WithViolations(violations)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	personas := persona.NewRegistry(&cfg, o.provider, o.llmCfg, o.schedCfg, o.logger)
	ls := &liveSession{
		state:    dialogue.NewState(sessionID, configID, cfg.AgentIDs()),
		personas: personas,
	}
	o.registry.insert(sessionID, ls)
	if o.collector != nil {
		o.collector.SessionOpened(configID)
	}

	o.persist(ctx, ls)
	o.logger.Info("conversation started",
		zap.String("session_id", sessionID),
		zap.String("config_id", configID),
		zap.Int("agents", len(cfg.Agents)),
	)
	return sessionID, ls.state.Clone(), nil
}

// SetTopic records the topic, asks the lead agent for an introduction, and
// schedules the first turn. A failing introduction degrades to a system
// message announcing the topic; the operation itself still succeeds.
func (o *Orchestrator) SetTopic(ctx context.Context, sessionID, topic string) (*dialogue.State, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := o.setTopicLocked(ctx, ls, topic); err != nil {
		return nil, err
	}
	o.persist(ctx, ls)
	return ls.state.Clone(), nil
}

func (o *Orchestrator) setTopicLocked(ctx context.Context, ls *liveSession, topic string) error {
	if err := ls.state.SetTopic(topic); err != nil {
		return err
	}

	lead := ls.personas.Lead()
	introSpeakerID := ""
	intro, err := lead.GenerateIntroduction(ctx, topic)
	if err != nil {
		o.logger.Warn("introduction generation failed; announcing topic instead",
			zap.String("session_id", ls.state.SessionID), zap.Error(err))
		if err := ls.state.AddSystemMessage(uuid.NewString(),
			"Let's begin our discussion about: "+topic); err != nil {
			return err
		}
	} else {
		if err := ls.state.AddAgentMessage(uuid.NewString(), lead.ID(), lead.Name(), intro); err != nil {
			return err
		}
		introSpeakerID = lead.ID()
	}

	decision := o.sched.SelectNext(ls.state, introSpeakerID, o.candidates(ls))
	return ls.state.UpdateTurn(introSpeakerID, decision.AgentID, decision.Reasoning)
}

// ProcessUserMessage appends a user message and clears any pending wait.
// While the session is still awaiting its topic, the text becomes the topic.
func (o *Orchestrator) ProcessUserMessage(ctx context.Context, sessionID, text string) (*dialogue.State, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	awaitingTopic := ls.state.Status == types.StatusWaitingForTopic
	if err := ls.state.AddUserMessage(uuid.NewString(), text); err != nil {
		return nil, err
	}
	if awaitingTopic {
		if err := o.setTopicLocked(ctx, ls, text); err != nil {
			return nil, err
		}
	}
	o.persist(ctx, ls)
	return ls.state.Clone(), nil
}

// GenerateNextResponse advances the session by at most one turn and returns
// the ordered lifecycle event stream for that turn. The stream is finite,
// single-pass, and not restartable; callers wanting several turns invoke the
// operation repeatedly.
//
// The channel is buffered to the maximum events per invocation, so a
// consumer that abandons the stream never blocks generation and never leaves
// the state half-mutated: every event is emitted only after its
// append-and-persist step completed.
func (o *Orchestrator) GenerateNextResponse(ctx context.Context, sessionID string) (<-chan Event, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}

	events := make(chan Event, maxEventsPerTurn)
	go func() {
		defer close(events)

		ls.mu.Lock()
		defer ls.mu.Unlock()

		ctx, span := o.tracer.Start(ctx, "session.generate_turn",
			trace.WithAttributes(
				attribute.String("session.id", sessionID),
				attribute.String("config.id", ls.state.ConfigID),
			))
		defer span.End()

		o.generateTurnLocked(ctx, ls, events)
	}()
	return events, nil
}

func (o *Orchestrator) generateTurnLocked(ctx context.Context, ls *liveSession, events chan<- Event) {
	state := ls.state

	if state.Status != types.StatusInProgress && state.Status != types.StatusWaitingForUser {
		o.emit(events, Event{
			Type:    EventError,
			Message: fmt.Sprintf("cannot generate a response while the conversation is %s", state.Status),
		})
		return
	}

	cfg := ls.personas.Config()
	if state.RoundCount >= cfg.MaxRounds {
		if err := state.EndConversation(); err != nil {
			o.emit(events, Event{Type: EventError, Message: err.Error()})
			return
		}
		o.persist(ctx, ls)
		o.emit(events, Event{
			Type:    EventSystem,
			Message: fmt.Sprintf("The conversation has reached its maximum of %d rounds and is now complete.", cfg.MaxRounds),
			State:   state.Clone(),
		})
		return
	}

	speakerID := o.resolveSpeaker(state, ls)
	if speakerID == "" {
		o.emit(events, Event{
			Type:    EventError,
			Message: "no agent could be scheduled to speak",
		})
		return
	}
	agent := ls.personas.Agent(speakerID)
	if agent == nil {
		o.emit(events, Event{
			Type:    EventError,
			Message: fmt.Sprintf("scheduled speaker %q is not a registered agent", speakerID),
		})
		return
	}

	o.emit(events, Event{
		Type:      EventSpeakerInfo,
		AgentID:   agent.ID(),
		AgentName: agent.Name(),
		AgentRole: string(agent.Role()),
	})

	start := time.Now()
	content, err := agent.GenerateResponse(ctx, state)
	if o.collector != nil {
		o.collector.CompletionObserved(o.provider.Name(), time.Since(start))
	}
	if err != nil {
		// No state was mutated for this turn; the session stays exactly
		// where it was and the caller may retry.
		o.logger.Error("turn generation failed",
			zap.String("session_id", state.SessionID),
			zap.String("agent_id", agent.ID()),
			zap.Error(err),
		)
		o.emit(events, Event{
			Type:    EventError,
			Message: fmt.Sprintf("%s could not respond: %v", agent.Name(), err),
		})
		return
	}

	messageID := uuid.NewString()
	if err := state.AddAgentMessage(messageID, agent.ID(), agent.Name(), content); err != nil {
		o.emit(events, Event{Type: EventError, Message: err.Error()})
		return
	}
	o.persist(ctx, ls)
	o.emit(events, Event{
		Type:      EventAgentResponse,
		AgentID:   agent.ID(),
		AgentName: agent.Name(),
		Content:   content,
		MessageID: messageID,
	})
	if o.collector != nil {
		o.collector.TurnGenerated(cfg.ID, string(agent.Role()))
	}

	if questions := persona.ExtractUserQuestions(content); len(questions) > 0 {
		if err := state.SetWaitingForUser(strings.Join(questions, "\n")); err != nil {
			o.emit(events, Event{Type: EventError, Message: err.Error()})
			return
		}
		if err := state.UpdateTurn(agent.ID(), "", "waiting for user input"); err != nil {
			o.emit(events, Event{Type: EventError, Message: err.Error()})
			return
		}
		o.persist(ctx, ls)
		o.emit(events, Event{
			Type:      EventUserInputRequested,
			Questions: questions,
			State:     state.Clone(),
		})
		return
	}

	decision := o.sched.SelectNext(state, agent.ID(), o.candidates(ls))
	if err := state.UpdateTurn(agent.ID(), decision.AgentID, decision.Reasoning); err != nil {
		o.emit(events, Event{Type: EventError, Message: err.Error()})
		return
	}
	if err := state.CompleteRound(); err != nil {
		o.emit(events, Event{Type: EventError, Message: err.Error()})
		return
	}
	o.persist(ctx, ls)
	o.emit(events, Event{
		Type:          EventTurnComplete,
		NextSpeakerID: decision.AgentID,
		State:         state.Clone(),
	})
}

// resolveSpeaker picks the current speaker: the recorded next speaker when
// one exists, otherwise a fresh scheduling decision relative to the last
// agent who spoke.
func (o *Orchestrator) resolveSpeaker(state *dialogue.State, ls *liveSession) string {
	if id := state.TurnInfo.NextAgentID; id != "" {
		return id
	}
	lastSpeakerID := ""
	if last := state.LastAgentMessage(""); last != nil {
		lastSpeakerID = last.AgentID
	}
	return o.sched.SelectNext(state, lastSpeakerID, o.candidates(ls)).AgentID
}

// EndConversation completes the session. The record stays in the store and
// the registry for read-only access until CleanupSession.
func (o *Orchestrator) EndConversation(ctx context.Context, sessionID string) (*dialogue.State, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.state.EndConversation(); err != nil {
		return nil, err
	}
	o.persist(ctx, ls)
	o.logger.Info("conversation ended", zap.String("session_id", sessionID))
	return ls.state.Clone(), nil
}

// GetConversationState returns a consistent snapshot of the session state.
func (o *Orchestrator) GetConversationState(ctx context.Context, sessionID string) (*dialogue.State, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.Clone(), nil
}

// GetConversationHistory returns up to limit trailing messages from the
// session's shared log. A non-positive limit returns everything.
func (o *Orchestrator) GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return append([]types.Message(nil), ls.state.RecentMessages(limit)...), nil
}

// ListConversations returns stored conversation summaries matching the
// filter, including sessions no longer live in memory.
func (o *Orchestrator) ListConversations(ctx context.Context, filter store.ListFilter) ([]store.ConversationSummary, error) {
	return o.store.List(ctx, filter)
}

// LoadConversation rehydrates a session from durable storage when it is not
// already live, re-binding its persona registry from the recorded config id
// and rebuilding the per-agent context projections from the message log.
// Concurrent loads of the same session are deduplicated.
func (o *Orchestrator) LoadConversation(ctx context.Context, sessionID string) (*dialogue.State, error) {
	if ls, ok := o.registry.get(sessionID); ok {
		ls.mu.RLock()
		defer ls.mu.RUnlock()
		return ls.state.Clone(), nil
	}

	v, err, _ := o.loadGroup.Do(sessionID, func() (any, error) {
		if ls, ok := o.registry.get(sessionID); ok {
			return ls, nil
		}

		record, err := o.store.GetBySessionID(ctx, sessionID)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
			}
			return nil, err
		}

		cfg, ok := o.catalog.Get(record.State.ConfigID)
		if !ok {
			return nil, types.NewError(types.ErrSessionNotFound,
				fmt.Sprintf("session %s references unknown config %q", sessionID, record.State.ConfigID))
		}

		state := record.State
		state.RebuildContexts()
		ls := &liveSession{
			state:    state,
			personas: persona.NewRegistry(&cfg, o.provider, o.llmCfg, o.schedCfg, o.logger),
		}
		o.registry.insert(sessionID, ls)
		if o.collector != nil {
			o.collector.SessionOpened(cfg.ID)
		}
		o.logger.Info("conversation loaded from store", zap.String("session_id", sessionID))
		return ls, nil
	})
	if err != nil {
		return nil, err
	}

	ls := v.(*liveSession)
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.Clone(), nil
}

// CleanupSession removes a session from the in-memory registry. The durable
// record is untouched; the session can be brought back with
// LoadConversation.
func (o *Orchestrator) CleanupSession(sessionID string) error {
	if !o.registry.remove(sessionID) {
		return types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	if o.collector != nil {
		o.collector.SessionClosed()
	}
	o.logger.Info("session cleaned up", zap.String("session_id", sessionID))
	return nil
}

// ActiveSessions lists the ids of sessions currently live in memory.
func (o *Orchestrator) ActiveSessions() []string {
	return o.registry.IDs()
}

// ConversationSummaries asks every agent in the session for a recap of its
// contributions.
func (o *Orchestrator) ConversationSummaries(ctx context.Context, sessionID string) (map[string]string, error) {
	ls, ok := o.registry.get(sessionID)
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.personas.ConversationSummaries(ctx, ls.state), nil
}

// persist writes the session to the durable store. Failures are logged and
// counted but never abort the in-memory transition: the live session remains
// the source of truth.
func (o *Orchestrator) persist(ctx context.Context, ls *liveSession) {
	cfg := ls.personas.Config()
	participants := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		participants = append(participants, a.Name)
	}
	meta := store.ConversationMeta{
		ConfigID:     cfg.ID,
		ConfigName:   cfg.Name,
		Participants: participants,
	}
	if err := o.store.Upsert(ctx, ls.state.Clone(), meta); err != nil {
		if o.collector != nil {
			o.collector.PersistenceFailed(fmt.Sprintf("%T", o.store))
		}
		o.logger.Error("failed to persist conversation",
			zap.String("session_id", ls.state.SessionID), zap.Error(err))
	}
}

func (o *Orchestrator) emit(events chan<- Event, ev Event) {
	if o.collector != nil {
		o.collector.EventEmitted(string(ev.Type))
	}
	events <- ev
}

// candidates adapts the session's live agents to the scheduler's candidate
// interface.
func (o *Orchestrator) candidates(ls *liveSession) []scheduler.Candidate {
	agents := ls.personas.Agents()
	out := make([]scheduler.Candidate, len(agents))
	for i, a := range agents {
		out[i] = a
	}
	return out
}
