// Roundtable CLI entry point.
//
// Usage:
//
//	roundtable run                        # start an interactive conversation
//	roundtable run --config config.yaml  # with a config file
//	roundtable configs                    # list available conversation configs
//	roundtable list                       # list stored conversations
//	roundtable health                     # probe the completion service and store
//	roundtable version                    # show version information
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/internal/metrics"
	"github.com/roundtableai/roundtable/llm/groq"
	"github.com/roundtableai/roundtable/session"
	"github.com/roundtableai/roundtable/store"
	"github.com/roundtableai/roundtable/types"
)

// Version info, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runConversation(os.Args[2:])
	case "configs":
		runConfigs(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func loadConfig(configPath string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func buildCatalog(cfg *config.Config) *config.Catalog {
	catalog := config.NewCatalog()
	if cfg.CatalogPath != "" {
		if err := catalog.LoadFile(cfg.CatalogPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
			os.Exit(1)
		}
	}
	return catalog
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) store.ConversationStore {
	var (
		st  store.ConversationStore
		err error
	)
	switch cfg.Store.Type {
	case config.StoreMemory:
		st = store.NewMemoryStore(logger)
	case config.StoreRedis:
		st, err = store.NewRedisStore(ctx, cfg.Store, logger)
	case config.StoreMongo:
		st, err = store.NewMongoStore(ctx, cfg.Store, logger)
	case config.StoreSQLite:
		st, err = store.NewSQLiteStore(cfg.Store, logger)
	default:
		err = fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	return st
}

func runConversation(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	conversationID := fs.String("conversation", "business_strategy", "Conversation config id")
	sessionID := fs.String("session", "", "Resume an existing session id")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting roundtable",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := context.Background()
	catalog := buildCatalog(cfg)
	st := openStore(ctx, cfg, logger)
	defer st.Close()

	provider := groq.NewProvider(cfg.LLM, logger)
	collector := metrics.NewCollector("roundtable", logger)
	orch := session.NewOrchestrator(catalog, provider, st, session.NewRegistry(),
		cfg.LLM, cfg.Scheduler, collector, logger)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if err := runLoop(ctx, orch, *conversationID, *sessionID); err != nil {
		logger.Error("conversation loop failed", zap.Error(err))
		os.Exit(1)
	}
}

// runLoop drives one conversation interactively: the first line of input
// becomes the topic, then agents take turns until the round limit, pausing
// whenever an agent asks the user something.
func runLoop(ctx context.Context, orch *session.Orchestrator, conversationID, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)

	if sessionID != "" {
		if _, err := orch.LoadConversation(ctx, sessionID); err != nil {
			return err
		}
		fmt.Printf("Resumed session %s\n", sessionID)
	} else {
		id, _, err := orch.StartConversation(ctx, conversationID, "")
		if err != nil {
			return err
		}
		sessionID = id
		fmt.Printf("Started session %s (%s)\n", sessionID, conversationID)
		fmt.Print("Topic> ")
		if !scanner.Scan() {
			return nil
		}
		if _, err := orch.ProcessUserMessage(ctx, sessionID, strings.TrimSpace(scanner.Text())); err != nil {
			return err
		}
	}

	for {
		events, err := orch.GenerateNextResponse(ctx, sessionID)
		if err != nil {
			return err
		}

		done := false
		for ev := range events {
			switch ev.Type {
			case session.EventSpeakerInfo:
				fmt.Printf("\n[%s — %s]\n", ev.AgentName, ev.AgentRole)
			case session.EventAgentResponse:
				fmt.Println(ev.Content)
			case session.EventUserInputRequested:
				for _, q := range ev.Questions {
					fmt.Printf("? %s\n", q)
				}
				fmt.Print("You> ")
				if !scanner.Scan() {
					done = true
					break
				}
				if _, err := orch.ProcessUserMessage(ctx, sessionID, strings.TrimSpace(scanner.Text())); err != nil {
					return err
				}
			case session.EventSystem:
				fmt.Printf("\n* %s\n", ev.Message)
				if ev.State != nil && ev.State.Status.Terminal() {
					done = true
				}
			case session.EventError:
				fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
				done = true
			}
		}
		if done {
			return nil
		}
	}
}

func runConfigs(args []string) {
	fs := flag.NewFlagSet("configs", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	catalog := buildCatalog(cfg)
	for _, c := range catalog.List() {
		fmt.Printf("%-20s %-14s %d agents, %d rounds  %s\n",
			c.ID, c.Format, len(c.Agents), c.MaxRounds, c.Description)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 20, "Maximum conversations to list")
	status := fs.String("status", "", "Filter by status")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx := context.Background()
	st := openStore(ctx, cfg, logger)
	defer st.Close()

	summaries, err := st.List(ctx, store.ListFilter{
		Limit:  *limit,
		Status: types.Status(*status),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list conversations: %v\n", err)
		os.Exit(1)
	}
	for _, s := range summaries {
		fmt.Printf("%s  %-17s %3d msgs  %s  %s\n",
			s.SessionID, s.Status, s.Stats.TotalMessages,
			s.UpdatedAt.Format(time.RFC3339), s.Title)
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	provider := groq.NewProvider(cfg.LLM, logger)
	status, err := provider.HealthCheck(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Completion service unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("completion service: ok (%s)\n", status.Latency.Round(time.Millisecond))

	st := openStore(ctx, cfg, logger)
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Store unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("store (%s): ok\n", cfg.Store.Type)
}

func printVersion() {
	fmt.Printf("roundtable %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Roundtable - multi-party AI conversation orchestrator

Usage:
  roundtable <command> [options]

Commands:
  run       Start an interactive conversation
  configs   List available conversation configurations
  list      List stored conversations
  health    Probe the completion service and store
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>         Path to configuration file (YAML)
  --conversation <id>     Conversation config id (default business_strategy)
  --session <id>          Resume an existing session
  --metrics-addr <addr>   Serve Prometheus metrics on this address

Examples:
  roundtable run
  roundtable run --config /etc/roundtable/config.yaml --conversation research_team
  roundtable list --status completed
  roundtable health`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
