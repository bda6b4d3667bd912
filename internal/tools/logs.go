package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/session"
)

type consoleParams struct {
	Level string `json:"level,omitempty"`
}

type networkParams struct {
	IncludeStatic bool `json:"includeStatic,omitempty"`
}

func logTools() []Tool {
	return []Tool{
		tool("consoleMessages", "List console messages of the current tab", consoleMessages),
		tool("consoleClear", "Clear collected console messages", consoleClear),
		tool("networkRequests", "List network requests of the current tab", networkRequests),
		tool("networkClear", "Clear collected network requests", networkClear),
	}
}

// renderConsole formats messages filtered by level against the full log.
func renderConsole(all, filtered []session.ConsoleMessage, level string) string {
	var errs, warns int
	for _, m := range all {
		switch m.Type {
		case "error":
			errs++
		case "warning":
			warns++
		}
	}
	lines := []string{fmt.Sprintf("Total messages: %d (Errors: %d, Warnings: %d)", len(all), errs, warns)}
	if len(filtered) != len(all) {
		lines = append(lines, fmt.Sprintf("Returning %d messages for level %q", len(filtered), level))
	}
	lines = append(lines, "")
	for _, m := range filtered {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}

func consoleMessages(_ context.Context, env *Env, p consoleParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	level := p.Level
	if level == "" {
		level = "info"
	}
	resp.AddResult(renderConsole(tab.ConsoleMessages("debug"), tab.ConsoleMessages(level), level))
	return nil
}

func consoleClear(_ context.Context, env *Env, _ noParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	tab.ClearConsole()
	resp.AddResult("Console cleared.")
	return nil
}

func isFetch(r session.ObservedRequest) bool {
	switch proto.NetworkResourceType(r.ResourceType) {
	case proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeXHR:
		return true
	}
	return false
}

func isSuccessful(r session.ObservedRequest) bool {
	return r.Failure == "" && r.Status > 0 && r.Status < 400
}

// renderRequests hides successful non-API requests unless includeStatic.
func renderRequests(reqs []session.ObservedRequest, includeStatic bool) string {
	var lines []string
	for _, r := range reqs {
		if !includeStatic && !isFetch(r) && isSuccessful(r) {
			continue
		}
		lines = append(lines, r.String())
	}
	if len(lines) == 0 {
		return "No network requests."
	}
	return strings.Join(lines, "\n")
}

func networkRequests(_ context.Context, env *Env, p networkParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddResult(renderRequests(tab.Requests(), p.IncludeStatic))
	return nil
}

func networkClear(_ context.Context, env *Env, _ noParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	tab.ClearRequests()
	resp.AddResult("Network requests cleared.")
	return nil
}
