package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/session"
	"github.com/shehryarbajwa/browserctl/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the browser, or reuse the running one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := browser.NewSupervisor(cfg, logger)
		if err != nil {
			return err
		}
		conn, err := sup.Connect(cmd.Context())
		if err != nil {
			return err
		}
		if conn.Reused {
			return writeJSON(result{Result: "Browser already running."})
		}
		return writeJSON(result{Result: "Browser started."})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := browser.NewSupervisor(cfg, logger)
		if err != nil {
			return err
		}
		if err := sup.Close(cmd.Context()); err != nil {
			return err
		}
		return writeJSON(result{Result: "Browser stopped."})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the browser is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := browser.NewSupervisor(cfg, logger)
		if err != nil {
			return err
		}
		return writeJSON(sup.Status(cmd.Context()))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the page commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(map[string][]string{"tools": registry.Names()})
	},
}

var toolCmd = &cobra.Command{
	Use:   "tool <command> ['<json-params>']",
	Short: "Run a page command against the current tab",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := paramsArg(args[1:])
		if err != nil {
			return err
		}
		return runTool(cmd.Context(), args[0], params)
	},
}

// runTool connects to the browser, launching it if needed, and runs one page
// tool against the current tab. The tool name is resolved first so a typo
// never starts a browser.
func runTool(ctx context.Context, name string, params json.RawMessage) error {
	t, err := registry.Lookup(name)
	if err != nil {
		return err
	}

	sup, err := browser.NewSupervisor(cfg, logger)
	if err != nil {
		return err
	}
	conn, err := sup.Connect(ctx)
	if err != nil {
		return err
	}
	sess, err := session.New(ctx, conn.Browser, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	resp := &tools.Response{}
	env := &tools.Env{Session: sess, Config: cfg, Log: logger, Endpoint: conn.State.Endpoint}
	if err := t.Run(ctx, env, params, resp); err != nil {
		return err
	}
	return writeJSON(resp.Serialize(ctx, sess, logger))
}
