package config

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds the conversation configurations available to the orchestrator.
// It is seeded with the predefined setups and can be extended from YAML files.
// Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	configs map[string]ConversationConfig
}

// NewCatalog creates a catalog seeded with the predefined configurations.
func NewCatalog() *Catalog {
	c := &Catalog{configs: make(map[string]ConversationConfig)}
	for _, cfg := range predefined() {
		c.configs[cfg.ID] = cfg
	}
	return c
}

// Get returns the configuration with the given id.
func (c *Catalog) Get(id string) (ConversationConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[id]
	return cfg, ok
}

// Register adds or replaces a configuration. The config must be valid.
func (c *Catalog) Register(cfg ConversationConfig) error {
	if violations := cfg.Validate(); len(violations) > 0 {
		return fmt.Errorf("invalid conversation config %q: %v", cfg.ID, violations)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.ID] = cfg
	return nil
}

// List returns all configurations sorted by id.
func (c *Catalog) List() []ConversationConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConversationConfig, 0, len(c.configs))
	for _, cfg := range c.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadFile registers every conversation config found in a YAML file. The file
// holds a `conversations:` list of ConversationConfig entries.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	var doc struct {
		Conversations []ConversationConfig `yaml:"conversations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	for _, cfg := range doc.Conversations {
		if err := c.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}

// predefined returns the built-in conversation setups.
func predefined() []ConversationConfig {
	return []ConversationConfig{
		{
			ID:                 "business_strategy",
			Name:               "Business Strategy Session",
			Description:        "Strategic planning discussion with business leaders",
			Format:             FormatCollaborative,
			MaxRounds:          50,
			AllowHumanFeedback: true,
			Agents: []AgentConfig{
				{
					ID:                "ceo",
					Name:              "CEO",
					Role:              RoleLead,
					DomainExpertise:   "Strategic leadership and vision",
					PersonalityTraits: []string{"decisive", "visionary", "pragmatic"},
					Directive:         "You are a CEO focused on strategic vision and company direction. You guide discussions toward actionable outcomes and consider market opportunities, competitive positioning, and long-term growth.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#1E40AF", SecondaryColor: "#3B82F6", AvatarStyle: "formal"},
				},
				{
					ID:                "cfo",
					Name:              "CFO",
					Role:              RoleContributor,
					DomainExpertise:   "Financial strategy and risk management",
					PersonalityTraits: []string{"analytical", "cautious", "detail-oriented"},
					Directive:         "You are a CFO who analyzes financial implications of strategic decisions. You focus on ROI, budget constraints, financial risks, and sustainable growth models.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#059669", SecondaryColor: "#10B981", AvatarStyle: "professional"},
				},
				{
					ID:                "cto",
					Name:              "CTO",
					Role:              RoleContributor,
					DomainExpertise:   "Technology strategy and innovation",
					PersonalityTraits: []string{"innovative", "technical", "forward-thinking"},
					Directive:         "You are a CTO who evaluates technology implications and feasibility. You consider technical architecture, scalability, security, and innovation opportunities.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#7C3AED", SecondaryColor: "#A855F7", AvatarStyle: "technical"},
				},
				{
					ID:                "marketing_director",
					Name:              "Marketing Director",
					Role:              RoleSkeptic,
					DomainExpertise:   "Market analysis and customer insights",
					PersonalityTraits: []string{"customer-focused", "creative", "data-driven"},
					Directive:         "You are a Marketing Director who challenges assumptions with market data and customer insights. You question strategies by addressing your colleagues directly and sharing specific concerns about customer needs and market trends. Present your challenges as insights for the team to consider, not as questions for the user.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#DC2626", SecondaryColor: "#EF4444", AvatarStyle: "creative"},
				},
			},
		},
		{
			ID:                 "research_team",
			Name:               "Scientific Research Discussion",
			Description:        "Collaborative research planning and analysis",
			Format:             FormatCollaborative,
			MaxRounds:          50,
			AllowHumanFeedback: true,
			Agents: []AgentConfig{
				{
					ID:                "lead_researcher",
					Name:              "Lead Researcher",
					Role:              RoleLead,
					DomainExpertise:   "Research methodology and project management",
					PersonalityTraits: []string{"methodical", "curious", "collaborative"},
					Directive:         "You are a Lead Researcher who guides scientific discussions with methodological rigor. You ensure research questions are well-defined and approaches are scientifically sound.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#0F766E", SecondaryColor: "#14B8A6", AvatarStyle: "academic"},
				},
				{
					ID:                "data_scientist",
					Name:              "Data Scientist",
					Role:              RoleContributor,
					DomainExpertise:   "Data analysis and statistical modeling",
					PersonalityTraits: []string{"analytical", "precise", "evidence-based"},
					Directive:         "You are a Data Scientist who provides statistical insights and analytical approaches. You focus on data quality, statistical significance, and appropriate modeling techniques.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#1E40AF", SecondaryColor: "#3B82F6", AvatarStyle: "technical"},
				},
				{
					ID:                "research_ethicist",
					Name:              "Research Ethicist",
					Role:              RoleSkeptic,
					DomainExpertise:   "Research ethics and compliance",
					PersonalityTraits: []string{"principled", "thoughtful", "protective"},
					Directive:         "You are a Research Ethicist who ensures ethical considerations are addressed. You question research approaches that may have ethical implications or compliance issues.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#DC2626", SecondaryColor: "#EF4444", AvatarStyle: "formal"},
				},
			},
		},
		{
			ID:                 "creative_team",
			Name:               "Creative Brainstorming",
			Description:        "Innovative ideation and creative problem-solving",
			Format:             FormatBrainstorming,
			MaxRounds:          50,
			AllowHumanFeedback: true,
			Agents: []AgentConfig{
				{
					ID:                "creative_director",
					Name:              "Creative Director",
					Role:              RoleLead,
					DomainExpertise:   "Creative vision and artistic direction",
					PersonalityTraits: []string{"imaginative", "inspirational", "bold"},
					Directive:         "You are a Creative Director who leads innovative thinking and artistic vision. You encourage bold ideas and help transform concepts into compelling creative solutions.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#DC2626", SecondaryColor: "#F59E0B", AvatarStyle: "artistic"},
				},
				{
					ID:                "writer",
					Name:              "Writer",
					Role:              RoleContributor,
					DomainExpertise:   "Storytelling and content creation",
					PersonalityTraits: []string{"expressive", "empathetic", "detailed"},
					Directive:         "You are a Writer who develops narrative elements and messaging. You focus on storytelling, audience engagement, and clear communication of ideas.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#7C3AED", SecondaryColor: "#A855F7", AvatarStyle: "literary"},
				},
				{
					ID:                "designer",
					Name:              "Designer",
					Role:              RoleContributor,
					DomainExpertise:   "Visual design and user experience",
					PersonalityTraits: []string{"visual", "user-focused", "iterative"},
					Directive:         "You are a Designer who considers visual and experiential aspects. You think about user interaction, aesthetic appeal, and practical implementation of creative concepts.",
					Model:             "llama-3.3-70b-versatile",
					Theme:             VisualTheme{PrimaryColor: "#059669", SecondaryColor: "#10B981", AvatarStyle: "design"},
				},
			},
		},
	}
}
