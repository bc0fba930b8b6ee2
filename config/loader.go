package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
// Priority when loading: defaults, then YAML file, then environment variables.
type Config struct {
	// Store durable conversation storage
	Store StoreConfig `yaml:"store" env:"STORE"`

	// LLM completion-service settings
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Scheduler next-speaker selection knobs
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Log logging configuration
	Log LogConfig `yaml:"log" env:"LOG"`

	// CatalogPath optional extra conversation configs to register
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`
}

// StoreType selects the durable store backend.
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreRedis  StoreType = "redis"
	StoreMongo  StoreType = "mongo"
	StoreSQLite StoreType = "sqlite"
)

// StoreConfig configures the durable conversation store.
type StoreConfig struct {
	Type StoreType `yaml:"type" env:"TYPE"`

	// Mongo settings (Type == "mongo")
	MongoURI        string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_COLLECTION"`

	// Redis settings (Type == "redis")
	RedisAddr      string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisKeyPrefix string `yaml:"redis_key_prefix" env:"REDIS_KEY_PREFIX"`

	// SQLite settings (Type == "sqlite")
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

// LLMConfig configures the completion-service collaborator.
type LLMConfig struct {
	// BaseURL of the OpenAI-compatible endpoint
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey bearer token
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// DefaultModel used when a persona does not pin one
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// MaxTokens per completion
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// Temperature sampling temperature
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE"`
	// Timeout per request
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RequestsPerSecond client-side rate limit (0 disables)
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// ContextTokenBudget trims an agent's private context before completion
	ContextTokenBudget int `yaml:"context_token_budget" env:"CONTEXT_TOKEN_BUDGET"`
}

// SchedulerConfig tunes next-speaker selection.
type SchedulerConfig struct {
	// RecentWindow messages examined by role heuristics
	RecentWindow int `yaml:"recent_window" env:"RECENT_WINDOW"`
	// FlowWindow messages concatenated into the flow context
	FlowWindow int `yaml:"flow_window" env:"FLOW_WINDOW"`
	// ParticipationShare overrides the 1/len(agents) balancing threshold
	// when positive. Zero keeps the legacy integer-division heuristic.
	ParticipationShare float64 `yaml:"participation_share" env:"PARTICIPATION_SHARE"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level one of debug/info/warn/error
	Level string `yaml:"level" env:"LEVEL"`
	// Format "json" or "console"
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths zap output paths
	OutputPaths []string `yaml:"output_paths" env:"-"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Type:            StoreMemory,
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "roundtable",
			MongoCollection: "conversations",
			RedisAddr:       "localhost:6379",
			RedisKeyPrefix:  "roundtable:",
			SQLitePath:      "./data/roundtable.db",
		},
		LLM: LLMConfig{
			BaseURL:            "https://api.groq.com/openai",
			DefaultModel:       "llama-3.3-70b-versatile",
			MaxTokens:          1000,
			Temperature:        0.7,
			Timeout:            60 * time.Second,
			ContextTokenBudget: 8000,
		},
		Scheduler: SchedulerConfig{
			RecentWindow: 5,
			FlowWindow:   3,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
	}
}

// Loader loads application configuration (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{envPrefix: "ROUNDTABLE"}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration fields accept duration syntax
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(strings.Split(value, ",")))
			return nil
		}
		return fmt.Errorf("unsupported slice type: %s", field.Type())
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}
