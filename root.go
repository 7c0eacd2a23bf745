package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lansync/lansyncd/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags parsed once in PersistentPreRunE and
// threaded through CLIContext, rather than read as package globals from
// every subcommand.
type CLIFlags struct {
	ConfigPath string
	Verbose    bool
	Debug      bool
	Quiet      bool
}

var flags CLIFlags

// skipConfigAnnotation marks commands that handle config loading themselves
// or do not need it at all (init writes a config rather than reading one).
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles the resolved config, config path, and logger built
// once in PersistentPreRunE, so RunE handlers never repeat that work.
type CLIContext struct {
	Cfg    *config.Config
	CfgPath string
	Logger *slog.Logger
	Flags  CLIFlags
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if PersistentPreRunE has not run yet.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Every RunE handler relies on PersistentPreRunE having already
// populated it, so a nil result here is always a programmer error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE did not run before this command")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lansyncd",
		Short:   "Peer-to-peer LAN file sync daemon",
		Long:    "lansyncd watches a set of local directories, discovers peers on the LAN over mDNS, and keeps them converged without a central server.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command. Commands
		// annotated with skipConfigAnnotation handle config access themselves.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging (protocol frames, config resolution)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the config file path from the two-layer override
// chain (env, then CLI flag) and, unless the command opted out, loads and
// validates the file, storing the result in the command's context.
func loadConfig(cmd *cobra.Command) error {
	// Bootstrap logger derived from CLI flags only (config doesn't exist yet).
	logger := buildLogger(nil, flags)

	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, flags.ConfigPath, logger)

	cc := &CLIContext{CfgPath: cfgPath, Logger: logger, Flags: flags}

	if cmd.Annotations[skipConfigAnnotation] != "true" {
		cfg, err := config.Load(cfgPath, logger)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = cfg
		cc.Logger = buildLogger(cfg, flags)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose, --debug, and
// --quiet override it because CLI flags always win, and Cobra enforces
// they are mutually exclusive.
//
// Format defaults to text when stderr is a terminal and json otherwise, so
// a daemon running under a process supervisor emits structured log lines
// without the operator having to set logging.log_format explicitly.
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := ""

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		case "warn", "":
		default:
			fmt.Fprintf(os.Stderr, "warning: unknown log_level %q, using warn\n", cfg.Logging.LogLevel)
		}

		format = cfg.Logging.LogFormat
	}

	// CLI flags override config (highest priority).
	if flags.Verbose {
		level = slog.LevelInfo
	}

	if flags.Debug {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	if format == "" {
		format = "text"
		if !isatty.IsTerminal(os.Stderr.Fd()) {
			format = "json"
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
