package session

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

// Route is a network interception rule. A rule with a status or body
// fulfills matching requests itself; otherwise it rewrites headers and lets
// the request continue.
type Route struct {
	ID            string            `json:"id"`
	Pattern       string            `json:"pattern"`
	Status        int               `json:"status,omitempty"`
	Body          string            `json:"body,omitempty"`
	ContentType   string            `json:"contentType,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	RemoveHeaders []string          `json:"removeHeaders,omitempty"`
}

func (r *Route) fulfills() bool { return r.Status > 0 || r.Body != "" }

// rewriteHeaders applies the rule's header edits to a request's headers.
func (r *Route) rewriteHeaders(in map[string]string) []*proto.FetchHeaderEntry {
	drop := map[string]bool{}
	for _, h := range r.RemoveHeaders {
		drop[strings.ToLower(h)] = true
	}
	for k := range r.Headers {
		drop[strings.ToLower(k)] = true
	}
	out := make([]*proto.FetchHeaderEntry, 0, len(in)+len(r.Headers))
	for k, v := range in {
		if !drop[strings.ToLower(k)] {
			out = append(out, &proto.FetchHeaderEntry{Name: k, Value: v})
		}
	}
	for k, v := range r.Headers {
		out = append(out, &proto.FetchHeaderEntry{Name: k, Value: v})
	}
	return out
}

func (r *Route) handle(h *rod.Hijack) {
	if r.fulfills() {
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		h.Response.Payload().ResponseCode = status
		if r.ContentType != "" {
			h.Response.SetHeader("Content-Type", r.ContentType)
		}
		h.Response.SetBody(r.Body)
		return
	}
	headers := map[string]string{}
	for k, v := range h.Request.Headers() {
		headers[k] = v.Str()
	}
	h.ContinueRequest(&proto.FetchContinueRequest{Headers: r.rewriteHeaders(headers)})
}

// routeTable owns the hijack router shared by all rules of a session.
type routeTable struct {
	browser *rod.Browser
	log     *zap.Logger

	mu     sync.Mutex
	router *rod.HijackRouter
	rules  []*Route
}

func newRouteTable(browser *rod.Browser, logger *zap.Logger) *routeTable {
	return &routeTable{browser: browser, log: logger}
}

func (rt *routeTable) add(r Route) (*Route, error) {
	if r.Pattern == "" {
		return nil, errdefs.InvalidArgument("route pattern is required")
	}
	rule := r
	rule.ID = uuid.NewString()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.router == nil {
		rt.router = rt.browser.HijackRequests()
		go rt.router.Run()
	}
	// one handler per pattern; a newer rule for the same pattern wins
	if rt.indexLocked(rule.Pattern) >= 0 {
		if err := rt.router.Remove(rule.Pattern); err != nil {
			return nil, err
		}
		rt.rules = rt.without(rule.Pattern)
	}
	if err := rt.router.Add(rule.Pattern, "", rule.handle); err != nil {
		return nil, err
	}
	rt.rules = append(rt.rules, &rule)
	rt.log.Debug("route added", zap.String("pattern", rule.Pattern), zap.String("id", rule.ID))
	return &rule, nil
}

// remove drops the rule for pattern, or every rule when pattern is empty,
// and returns how many were removed.
func (rt *routeTable) remove(pattern string) (int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var targets []string
	for _, r := range rt.rules {
		if pattern == "" || r.Pattern == pattern {
			targets = append(targets, r.Pattern)
		}
	}
	for _, p := range targets {
		if err := rt.router.Remove(p); err != nil {
			return 0, err
		}
		rt.rules = rt.without(p)
	}
	return len(targets), nil
}

func (rt *routeTable) list() []Route {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]Route, 0, len(rt.rules))
	for _, r := range rt.rules {
		out = append(out, *r)
	}
	return out
}

func (rt *routeTable) close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.router != nil {
		if err := rt.router.Stop(); err != nil {
			rt.log.Debug("stop router", zap.Error(err))
		}
		rt.router = nil
	}
	rt.rules = nil
}

func (rt *routeTable) indexLocked(pattern string) int {
	for i, r := range rt.rules {
		if r.Pattern == pattern {
			return i
		}
	}
	return -1
}

func (rt *routeTable) without(pattern string) []*Route {
	kept := rt.rules[:0:0]
	for _, r := range rt.rules {
		if r.Pattern != pattern {
			kept = append(kept, r)
		}
	}
	return kept
}

// AddRoute installs an interception rule for the lifetime of this process.
func (s *Session) AddRoute(r Route) (*Route, error) { return s.routes.add(r) }

// RemoveRoute removes the rule for pattern; an empty pattern removes all.
func (s *Session) RemoveRoute(pattern string) (int, error) { return s.routes.remove(pattern) }

func (s *Session) Routes() []Route { return s.routes.list() }
