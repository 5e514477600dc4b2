package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/simrelay/internal/config"
)

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// errFailed reports a Failure result that has already been printed.
var errFailed = errors.New("command failed")

type rootOptions struct {
	configPath string
	deviceSet  string
	logLevel   string
	verbose    bool
	logJSON    bool
}

// resolve loads the configuration with command-line overrides applied and
// builds the logger it describes. extra adds command specific overrides.
func (r *rootOptions) resolve(cmd *cobra.Command, extra func(*config.Overrides)) (*config.Settings, *slog.Logger, error) {
	ov := config.Overrides{
		ConfigPath: r.configPath,
		DeviceSet:  r.deviceSet,
		LogLevel:   r.logLevel,
	}
	if cmd.Flags().Changed("log-json") {
		ov.LogJSON = &r.logJSON
	}
	if extra != nil {
		extra(&ov)
	}
	settings, err := config.Resolve(ov)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), settings.LogLevel, r.verbose, settings.LogJSON)
	slog.SetDefault(logger)
	return settings, logger, nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func newLogger(w io.Writer, levelName string, verbose, asJSON bool) *slog.Logger {
	level, known := parseLevel(levelName)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if asJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	if !known && !verbose {
		// Keep it user-friendly: warn and continue with info.
		logger.Warn("unknown log level, defaulting to info", "log_level", levelName, "expected", "debug|info|warn|error")
	}
	return logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "simrelay",
		Short:         "Relay simulator commands from a terminal or TCP clients",
		SilenceErrors: true,
		SilenceUsage:  true,
		// Parse global flags ahead of the pass-through interpreter commands.
		TraverseChildren: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to simrelay config file (default $SIMRELAY_CONFIG or $HOME/.simrelay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.deviceSet, "device-set", "", "device set file (overrides config and $SIMRELAY_DEVICE_SET)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose debug logging (same as --log-level=debug)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")
	// Merges the persistent flags into Flags so Traverse knows which
	// globals take no value.
	rootCmd.InitDefaultHelpFlag()

	rootCmd.AddCommand(newInteractCmd(opts))
	for _, c := range newOneShotCmds(opts) {
		rootCmd.AddCommand(c)
	}
	rootCmd.SetHelpCommand(newHelpCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))
	rootCmd.AddCommand(newInitCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errFailed) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "simrelay %s", version)
			if commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " commit=%s", commit)
			}
			if buildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built=%s", buildTime)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
