package tools

import (
	"context"
	"strings"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type tabsParams struct {
	Action string `json:"action"`
	Index  *int   `json:"index,omitempty"`
}

func tabTools() []Tool {
	return []Tool{
		tool("tabs", "List, open, close or select tabs", tabs),
	}
}

func tabs(ctx context.Context, env *Env, p tabsParams, resp *Response) error {
	s := env.Session
	switch p.Action {
	case "", "list":
		if _, err := s.EnsureTab(ctx); err != nil {
			return err
		}
	case "new":
		if _, err := s.NewTab(ctx); err != nil {
			return err
		}
	case "close":
		if _, err := s.CloseTab(ctx, p.Index); err != nil {
			return err
		}
	case "select":
		if p.Index == nil {
			return errdefs.InvalidArgument("Tab index is required")
		}
		if _, err := s.SelectTab(ctx, *p.Index); err != nil {
			return err
		}
	default:
		return errdefs.InvalidArgument("unknown tabs action %q", p.Action)
	}

	current := s.CurrentTab()
	var lines []string
	for i, t := range s.Tabs() {
		lines = append(lines, tabLine(i, t == current, t.Title(), t.URL()))
	}
	if len(lines) == 0 {
		resp.AddResult("No open tabs.")
		return nil
	}
	resp.AddResult(strings.Join(lines, "\n"))
	return nil
}
