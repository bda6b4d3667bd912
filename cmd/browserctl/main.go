// Command browserctl drives a long-lived local browser from the command
// line and records its network traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/logging"
	"github.com/shehryarbajwa/browserctl/internal/tools"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg      *config.Config
	logger   *zap.Logger
	registry = tools.Default()
)

var rootCmd = &cobra.Command{
	Use:   "browserctl <command> ['<json-params>']",
	Short: "Automate and instrument a local Chromium from the command line",
	Long: `browserctl keeps one browser running between invocations. Each
invocation runs a single command against the current tab and prints one JSON
document on stdout.

  browserctl start
  browserctl navigate '{"url":"example.com"}'
  browserctl snapshot
  browserctl click '{"ref":"a1b2:e3"}'

Run 'browserctl list' for every page command.`,
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}

		logFile := cfg.Logging.File
		if cmd == traceDaemonCmd {
			logFile = cfg.DaemonLogPath()
		}
		logger, err = logging.New(cfg.Logging.Level, verbose, logFile)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		params, err := paramsArg(args[1:])
		if err != nil {
			return err
		}
		return runTool(cmd.Context(), args[0], params)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $BROWSERCTL_CONFIG or <state dir>/config.yaml)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, listCmd, toolCmd, traceCmd, devtoolsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
}
