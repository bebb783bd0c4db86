package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tempohq/tempo-sync-go/internal/config"
	"github.com/tempohq/tempo-sync-go/internal/core"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDataDir    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tempo-sync",
		Short:   "Tempo offline-first sync client",
		Long:    "Sync client for Tempo: queues mutations while offline, drains them when connectivity returns, and keeps a realtime channel to the backend.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (state database, credential, logs)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// loadConfig resolves the effective configuration (defaults -> config file
// -> CLI flags) and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if flagDataDir != "" {
		cli.DataDir = &flagDataDir
	}

	cfg, err := config.Resolve(cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger from the resolved config and CLI flags.
// Config-file log level provides the baseline; --verbose and --quiet
// override it because CLI flags always win. When a log file is configured,
// output goes through lumberjack rotation instead of stderr.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr

	toFile := cfg.Logging.LogFile != ""
	if toFile {
		w = &lumberjack.Logger{
			Filename: cfg.LogPath(),
			MaxAge:   cfg.Logging.LogRetentionDays,
			Compress: true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	// "auto" picks text on a TTY; files and pipes get JSON so logs stay
	// machine-parseable.
	format := cfg.Logging.LogFormat
	if format == "auto" || format == "" {
		if !toFile && isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// openCore builds the assembled client from the resolved configuration.
// Callers must Close it.
func openCore(cmd *cobra.Command) (*core.Core, error) {
	c, err := core.New(cmd.Context(), resolvedCfg, buildLogger(resolvedCfg))
	if err != nil {
		return nil, fmt.Errorf("initializing client: %w", err)
	}

	return c, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
