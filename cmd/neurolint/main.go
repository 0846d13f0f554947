package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"neurolint/internal/config"
	"neurolint/internal/layers"
	"neurolint/internal/logging"
	"neurolint/internal/pipeline"
	"neurolint/internal/selector"
	"neurolint/internal/store"
	"neurolint/internal/transform"
	"neurolint/internal/validation"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "neurolint",
		Short: "Layered, rollback-safe fixes for React and Next.js source",
		Long: `neurolint rewrites React/Next.js source files through up to seven fix layers:

  1 configuration   tsconfig and next.config modernization
  2 patterns        HTML entities, console statements
  3 components      list keys, <img> alt text
  4 hydration       typeof window guards around browser storage
  5 nextjs          'use client' directive placement
  6 testing         testing-library import migrations
  7 adaptive        rewrites taught in .neurolint/config.yaml

Each layer tries a syntax-tree rewrite first and falls back to text patterns.
Output that fails validation is rolled back layer by layer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zapConfig := zap.NewProductionConfig()
			if verbose {
				zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = zapConfig.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			logging.CloseAll()
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/"+config.DefaultPath+")")

	root.AddCommand(
		newFixCmd(),
		newRecommendCmd(),
		newLayersCmd(),
		newHistoryCmd(),
		newWatchCmd(),
		newInitCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, config.DefaultPath)
}

// env is everything a command needs to run the pipeline.
type env struct {
	workspace string
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	stats     *transform.Stats
	selector  *selector.Cached
}

// loadEnv loads config, initializes category logging, and assembles the
// pipeline.
func loadEnv() (*env, error) {
	ws := resolveWorkspace()
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(ws, cfg.Logging.Settings()); err != nil {
		logger.Warn("Category logging unavailable", zap.Error(err))
	}
	logging.BootDebug("config loaded from %s", resolveConfigPath(ws))

	catalog, err := layers.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build layer catalog: %w", err)
	}
	cacheSize := cfg.Selector.CacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}
	sel, err := selector.NewCached(selector.New(), cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build selector: %w", err)
	}

	stats := &transform.Stats{}
	p := pipeline.New(catalog, transform.NewCoordinator(stats), validation.New(), sel)
	logging.Boot("pipeline ready in %s: %d layer(s), %d adaptive rule(s)", ws, len(catalog.Layers()), len(cfg.Adaptive.Rules))
	logger.Debug("Pipeline ready",
		zap.String("workspace", ws),
		zap.Int("layers", len(catalog.Layers())),
		zap.Int("adaptive_rules", len(cfg.Adaptive.Rules)))

	return &env{workspace: ws, cfg: cfg, pipeline: p, stats: stats, selector: sel}, nil
}

// openStore opens run history when enabled. A nil store with a nil error
// means history is off.
func (e *env) openStore() (*store.RunStore, error) {
	if !e.cfg.Store.Enabled {
		return nil, nil
	}
	path := e.cfg.Store.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workspace, path)
	}
	return store.Open(path)
}
