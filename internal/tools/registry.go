// Package tools holds the page tools driven by `browserctl tool`. The table
// is built once at startup so an unknown command fails before any browser
// connection is made.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

// Env is what a tool runs against.
type Env struct {
	Session *session.Session
	Config  *config.Config
	Log     *zap.Logger
	// Endpoint is the DevTools endpoint of the browser Session runs on.
	Endpoint string
}

type Handler func(ctx context.Context, env *Env, params json.RawMessage, resp *Response) error

type Tool struct {
	Name        string
	Description string
	Run         Handler
}

type Registry struct {
	tools map[string]Tool
}

// NewRegistry indexes tools by name. It panics on a duplicate or unnamed
// tool since the table is fixed at build time.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" || t.Run == nil {
			panic(fmt.Sprintf("tools: incomplete tool %q", t.Name))
		}
		if _, dup := r.tools[t.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate tool %q", t.Name))
		}
		r.tools[t.Name] = t
	}
	return r
}

// Default returns the registry of every page tool.
func Default() *Registry {
	var all []Tool
	for _, group := range [][]Tool{
		navigationTools(),
		interactionTools(),
		keyboardTools(),
		mouseTools(),
		captureTools(),
		tabTools(),
		logTools(),
		modalTools(),
		cookieTools(),
		storageTools("localStorage"),
		storageTools("sessionStorage"),
		storageStateTools(),
		routeTools(),
		recordingTools(),
		scriptTools(),
		miscTools(),
	} {
		all = append(all, group...)
	}
	return NewRegistry(all...)
}

func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, errdefs.InvalidArgument("Unknown command: %s. Run 'browserctl list' to see available commands.", name)
	}
	return t, nil
}

// Names returns the tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// typed adapts a handler taking decoded params. Absent params decode to
// the zero value.
func typed[P any](fn func(ctx context.Context, env *Env, p P, resp *Response) error) Handler {
	return func(ctx context.Context, env *Env, raw json.RawMessage, resp *Response) error {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return errdefs.InvalidArgument("Invalid JSON params: %v", err)
			}
		}
		return fn(ctx, env, p, resp)
	}
}

func tool[P any](name, description string, fn func(ctx context.Context, env *Env, p P, resp *Response) error) Tool {
	return Tool{Name: name, Description: description, Run: typed(fn)}
}

type noParams struct{}

func currentTab(env *Env) (*session.Tab, error) {
	return env.Session.CurrentTabOrDie()
}
