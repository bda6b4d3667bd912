package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shehryarbajwa/browserctl/internal/analyzer"
	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/daemon"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/tracestore"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

var renderReport bool

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Record and analyze the browser's network traffic",
}

var traceStartCmd = &cobra.Command{
	Use:   `start ['{"name":"...","filter":"..."}']`,
	Short: "Start recording in a background daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p struct {
			Name   string `json:"name"`
			Filter string `json:"filter"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		sup, err := browser.NewSupervisor(cfg, logger)
		if err != nil {
			return err
		}
		res, err := daemon.NewClient(cfg, logger, sup).Start(cmd.Context(), daemon.Options{Name: p.Name, Filter: p.Filter})
		if err != nil {
			return err
		}
		return writeJSON(res)
	},
}

var traceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop recording and save the session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := daemon.NewClient(cfg, logger, nil).Stop(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(res)
	},
}

var traceStatusCmd = &cobra.Command{
	Use:   `status ['{"watch":true}']`,
	Short: "Report the recording state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p struct {
			Watch bool `json:"watch"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		client := daemon.NewClient(cfg, logger, nil)
		if !p.Watch {
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(st)
		}

		// one compact line per change until interrupted
		enc := json.NewEncoder(stdout)
		return client.Watch(cmd.Context(), func(st models.TracerState) {
			if err := enc.Encode(st); err != nil {
				logger.Sugar().Warnf("write status: %v", err)
			}
		})
	},
}

var traceSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := store().List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return writeJSON(result{Result: "No recorded sessions."})
		}
		return writeJSON(map[string][]models.SessionSummary{"sessions": sessions})
	},
}

var traceDetailCmd = &cobra.Command{
	Use:   `detail '{"name":"...","index":0,"filter":"..."}'`,
	Short: "List a session's requests, or show one by index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p struct {
			Name   string `json:"name"`
			Index  *int   `json:"index"`
			Filter string `json:"filter"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		session, err := loadSession(p.Name)
		if err != nil {
			return err
		}
		if p.Index != nil {
			req, err := analyzer.RequestAt(session, *p.Index)
			if err != nil {
				return err
			}
			return writeJSON(req)
		}
		return writeJSON(analyzer.List(session, p.Filter))
	},
}

var traceReportCmd = &cobra.Command{
	Use:   `report '{"name":"...","format":"json|markdown|curl"}'`,
	Short: "Analyze a session into an API report",
	Long: `Analyze a session into an API report. With --render the markdown
report is printed formatted for the terminal instead of as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p struct {
			Name   string `json:"name"`
			Format string `json:"format"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		session, err := loadSession(p.Name)
		if err != nil {
			return err
		}
		report := analyzer.Analyze(session)

		if renderReport {
			out, err := analyzer.RenderMarkdown(analyzer.ToMarkdown(report), terminalWidth())
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(stdout, out)
			return err
		}
		switch p.Format {
		case "", "json":
			return writeJSON(report)
		case "markdown", "md":
			return writeJSON(result{Result: analyzer.ToMarkdown(report)})
		case "curl":
			return writeJSON(result{Result: analyzer.ToCurl(report)})
		}
		return errdefs.InvalidArgument("Unknown format %q. Use json, markdown or curl.", p.Format)
	},
}

var traceDeleteCmd = &cobra.Command{
	Use:   `delete '{"name":"..."}'`,
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p struct {
			Name string `json:"name"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		if p.Name == "" {
			return errdefs.InvalidArgument("Missing required parameter: name")
		}
		deleted, err := store().Delete(p.Name)
		if err != nil {
			return err
		}
		if !deleted {
			return errdefs.NotFound("Session %q not found.", p.Name)
		}
		return writeJSON(result{Result: fmt.Sprintf("Session %q deleted.", p.Name)})
	},
}

// traceDaemonCmd is the entrypoint of the detached recording process. Its
// only stdout output is the acknowledgment line.
var traceDaemonCmd = &cobra.Command{
	Use:    "daemon '<json>'",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts daemon.Options
		if err := json.Unmarshal([]byte(args[0]), &opts); err != nil {
			return errdefs.InvalidArgument("Invalid JSON params: %v", err)
		}
		return daemon.Run(cmd.Context(), cfg, logger, opts, os.Stdout)
	},
}

func init() {
	traceReportCmd.Flags().BoolVar(&renderReport, "render", false, "Print the markdown report formatted for the terminal")
	traceCmd.AddCommand(traceStartCmd, traceStopCmd, traceStatusCmd, traceSessionsCmd,
		traceDetailCmd, traceReportCmd, traceDeleteCmd, traceDaemonCmd)
}

func store() *tracestore.Store {
	return tracestore.NewStore(cfg.SessionsDir())
}

func loadSession(name string) (*models.TraceSession, error) {
	if name == "" {
		return nil, errdefs.InvalidArgument("Missing required parameter: name")
	}
	session, ok, err := store().Load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errdefs.NotFound("Session %q not found.", name)
	}
	return session, nil
}

func decodeArgs(args []string, v any) error {
	raw, err := paramsArg(args)
	if err != nil {
		return err
	}
	return decodeParams(raw, v)
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
