package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

type routeParams struct {
	Pattern       string   `json:"pattern"`
	Status        int      `json:"status,omitempty"`
	Body          string   `json:"body,omitempty"`
	ContentType   string   `json:"contentType,omitempty"`
	Headers       []string `json:"headers,omitempty"`
	RemoveHeaders string   `json:"removeHeaders,omitempty"`
}

type unrouteParams struct {
	Pattern string `json:"pattern,omitempty"`
}

func routeTools() []Tool {
	return []Tool{
		tool("route", "Intercept requests matching a URL pattern", route),
		tool("routeList", "List active interception rules", routeList),
		tool("unroute", "Remove interception rules", unroute),
	}
}

// routeFromParams parses "Name: value" header additions and a comma
// separated list of headers to drop.
func routeFromParams(p routeParams) (session.Route, error) {
	if p.Pattern == "" {
		return session.Route{}, errdefs.InvalidArgument("pattern is required")
	}
	r := session.Route{
		Pattern:     p.Pattern,
		Status:      p.Status,
		Body:        p.Body,
		ContentType: p.ContentType,
	}
	for _, h := range p.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return session.Route{}, errdefs.InvalidArgument("header %q must look like 'Name: value'", h)
		}
		if r.Headers == nil {
			r.Headers = map[string]string{}
		}
		r.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	for _, h := range strings.Split(p.RemoveHeaders, ",") {
		if h = strings.TrimSpace(h); h != "" {
			r.RemoveHeaders = append(r.RemoveHeaders, h)
		}
	}
	return r, nil
}

func route(_ context.Context, env *Env, p routeParams, resp *Response) error {
	r, err := routeFromParams(p)
	if err != nil {
		return err
	}
	if _, err := env.Session.AddRoute(r); err != nil {
		return err
	}
	resp.AddResultf("Route added for pattern: %s", p.Pattern)
	return nil
}

func routeLine(i int, r session.Route) string {
	var details []string
	if r.Status != 0 {
		details = append(details, fmt.Sprintf("status=%d", r.Status))
	}
	if r.Body != "" {
		body := r.Body
		if len(body) > 50 {
			body = body[:50] + "..."
		}
		details = append(details, "body="+body)
	}
	if r.ContentType != "" {
		details = append(details, "contentType="+r.ContentType)
	}
	line := fmt.Sprintf("%d. %s", i+1, r.Pattern)
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

func routeList(_ context.Context, env *Env, _ noParams, resp *Response) error {
	routes := env.Session.Routes()
	if len(routes) == 0 {
		resp.AddResult("No active routes")
		return nil
	}
	lines := make([]string, 0, len(routes))
	for i, r := range routes {
		lines = append(lines, routeLine(i, r))
	}
	resp.AddResult(strings.Join(lines, "\n"))
	return nil
}

func unroute(_ context.Context, env *Env, p unrouteParams, resp *Response) error {
	n, err := env.Session.RemoveRoute(p.Pattern)
	if err != nil {
		return err
	}
	if p.Pattern == "" {
		resp.AddResultf("Removed all %d route(s)", n)
	} else {
		resp.AddResultf("Removed %d route(s) for pattern: %s", n, p.Pattern)
	}
	return nil
}
