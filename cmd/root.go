package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/attrgraph/internal/config"
	"github.com/agentic-research/attrgraph/internal/generate"
	"github.com/agentic-research/attrgraph/internal/llm"
	"github.com/agentic-research/attrgraph/internal/logging"
	"github.com/agentic-research/attrgraph/internal/nodegraph"
	"github.com/agentic-research/attrgraph/internal/publish"
	"github.com/agentic-research/attrgraph/internal/resolve"
	"github.com/agentic-research/attrgraph/internal/schema"
	"github.com/agentic-research/attrgraph/internal/store"
)

// Version is set at build time.
var Version = "dev"

// logOutput receives the process logs.
var logOutput io.Writer = os.Stderr

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to HCL config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")
}

var rootCmd = &cobra.Command{
	Use:           "attrgraph",
	Short:         "Compile attribute graphs into schemas, publish versions and generate instances",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired service graph shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	resolver *resolve.Resolver
	publish  *publish.Manager
	invoker  *generate.Invoker
}

// loadConfig applies defaults, the config file, the environment and finally
// the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, cfg.Validate()
}

func newApp() (*app, error) {
	// 1. Configuration
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Logger
	logger, err := logging.New(logOutput, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	// 3. Store
	s, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// 4. Services
	compiler := &schema.Compiler{MaxDepth: cfg.MaxSchemaDepth, Collisions: cfg.Collisions()}
	resolver := resolve.New(s, &nodegraph.Walker{MaxDepth: cfg.MaxSchemaDepth}, compiler, resolve.RequiredFields)
	gen := llm.New(llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Timeout:   cfg.LLM.Timeout,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		resolver: resolver,
		publish: publish.NewManager(s, logger, publish.Options{
			HistoryLimit: cfg.VersionHistoryLimit,
			Serialize:    cfg.SerializePerGraph,
		}),
		invoker: generate.NewInvoker(s, resolver, gen, s, logger),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close() // ignore error
}

// withApp runs fn with a freshly wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
