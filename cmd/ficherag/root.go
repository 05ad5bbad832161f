package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/ficherag/internal/config"
	"github.com/dshills/ficherag/internal/logging"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "ficherag",
	Short: "Structure first-aid reference documents into fiches and search them",
	Long: `ficherag splits first-aid reference documents (PSE, PSC, SST) into fiches,
stores them with their embeddings, and answers questions with a hybrid
lexical and semantic search. It can run as an MCP server over stdio.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if env := os.Getenv("FICHERAG_CONFIG"); env != "" && !rootCmd.PersistentFlags().Changed("config") {
		path = env
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger and installs it as the default
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// withApp loads configuration, wires the components and runs fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}
