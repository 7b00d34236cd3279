package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/omega/internal/config"
	"github.com/roach88/omega/internal/freq"
)

// loadConfig reads the --config file (or the defaults), lets apply copy
// explicitly set flags over it, and validates the result.
func loadConfig(opts *RootOptions, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// loadIndex reads the frequency tables file and builds the index for the
// configured space.
func loadIndex(cfg config.Config, logger *slog.Logger) (*freq.Index, error) {
	if cfg.Tables == "" {
		return nil, NewExitError(ExitCommandError, "no frequency tables: set --tables or tables in the config file")
	}

	logger.Info("loading frequency tables", "path", cfg.Tables)
	tables, err := freq.LoadFile(cfg.Tables)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load frequency tables", err)
	}
	idx, err := freq.Build(cfg.Space, tables)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build frequency index", err)
	}

	stats := idx.Stats()
	logger.Info("frequency index ready",
		"space", cfg.Space.String(),
		"pairs", stats.Pairs.Entries,
		"triples", stats.Triples.Entries,
		"quads", stats.Quads.Entries,
		"digest", idx.Digest(),
	)
	return idx, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so a run can stop and
// write its final checkpoint.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
