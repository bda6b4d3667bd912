// Package analyzer turns a recorded trace session into a report of the API
// endpoints it exercised.
package analyzer

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

var importantHeaders = map[string]bool{
	"authorization":    true,
	"content-type":     true,
	"accept":           true,
	"x-requested-with": true,
	"x-csrf-token":     true,
	"x-api-key":        true,
	"origin":           true,
	"referer":          true,
}

// Group is the set of calls sharing one endpoint key.
type Group struct {
	URL    string
	Method string
	Calls  []models.NetworkRequestRecord
}

func (g Group) Key() string { return g.Method + " " + g.URL }

// NormalizeURL keeps the origin and path of u and drops query and fragment.
// Strings that are not absolute URLs are returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "https" && strings.HasSuffix(host, ":443")) || (scheme == "http" && strings.HasSuffix(host, ":80")) {
		host = host[:strings.LastIndexByte(host, ':')]
	}
	return scheme + "://" + host + pathOf(u)
}

func pathOf(u *url.URL) string {
	if p := u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}

func isFetchOrXHR(r models.NetworkRequestRecord) bool {
	t := strings.ToLower(r.ResourceType)
	return t == "fetch" || t == "xhr"
}

// IsAPIRequest reports whether r looks like an API call rather than a
// document or static asset.
func IsAPIRequest(r models.NetworkRequestRecord) bool {
	return isFetchOrXHR(r) || strings.Contains(r.MimeType, "json")
}

// GroupEndpoints groups API requests by method and normalized URL, in order
// of first appearance.
func GroupEndpoints(requests []models.NetworkRequestRecord) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, r := range requests {
		if !IsAPIRequest(r) {
			continue
		}
		g := Group{URL: NormalizeURL(r.URL), Method: r.Method}
		i, ok := index[g.Key()]
		if !ok {
			i = len(groups)
			index[g.Key()] = i
			groups = append(groups, g)
		}
		groups[i].Calls = append(groups[i].Calls, r)
	}
	return groups
}

// AnalyzeEndpoint describes a group using its first call as the
// representative for headers and request body.
func AnalyzeEndpoint(g Group) models.Endpoint {
	ep := models.Endpoint{
		URL:            g.URL,
		Method:         g.Method,
		Pattern:        g.URL,
		RequestHeaders: map[string]string{},
		Cookies:        []string{},
		StatusCodes:    []int{},
		CallCount:      len(g.Calls),
	}
	if u, err := url.Parse(g.URL); err == nil && u.Host != "" {
		ep.Pattern = pathOf(u)
	}
	if len(g.Calls) == 0 {
		return ep
	}

	first := g.Calls[0]
	for k, v := range first.RequestHeaders {
		if importantHeaders[strings.ToLower(k)] {
			ep.RequestHeaders[k] = v
		}
	}
	ep.Cookies = ExtractCookies(first.RequestHeaders)

	if first.PostData != nil && *first.PostData != "" {
		if parsed, ok := parseJSON(*first.PostData); ok {
			ep.RequestBody = &models.RequestBodyInfo{Type: "json", Schema: InferSchema(parsed), Example: *first.PostData}
		} else {
			ep.RequestBody = &models.RequestBodyInfo{Type: "text", Example: *first.PostData}
		}
	}

	for _, c := range g.Calls {
		if c.ResponseBody == nil || *c.ResponseBody == "" {
			continue
		}
		if parsed, ok := parseJSON(*c.ResponseBody); ok {
			ep.ResponseFormat = &models.ResponseFormat{Type: "json", Schema: InferSchema(parsed)}
		} else {
			typ := c.MimeType
			if typ == "" {
				typ = "text"
			}
			ep.ResponseFormat = &models.ResponseFormat{Type: typ}
		}
		break
	}

	seen := make(map[int]bool)
	for _, c := range g.Calls {
		if c.Status == nil || *c.Status == 0 || seen[*c.Status] {
			continue
		}
		seen[*c.Status] = true
		ep.StatusCodes = append(ep.StatusCodes, *c.Status)
	}
	sort.Ints(ep.StatusCodes)
	return ep
}

// InferSchema maps a decoded JSON value to its structural shape: primitives
// become their type name, a non-empty array becomes a one-element array of
// its first element's shape, and objects are mapped key by key.
func InferSchema(v any) any {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		return []any{InferSchema(val[0])}
	case map[string]any:
		schema := make(map[string]any, len(val))
		for k, item := range val {
			schema[k] = InferSchema(item)
		}
		return schema
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	}
	return "unknown"
}

// parseJSON decodes s and reports whether it held a truthy JSON value.
// Scalars like 0, false and "" are treated as opaque text.
func parseJSON(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch val := v.(type) {
	case nil:
		return nil, false
	case bool:
		return v, val
	case float64:
		return v, val != 0
	case string:
		return v, val != ""
	}
	return v, true
}

func header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ExtractCookies returns the cookie names sent in the Cookie header.
func ExtractCookies(h map[string]string) []string {
	names := []string{}
	raw := header(h, "cookie")
	if raw == "" {
		return names
	}
	for _, part := range strings.Split(raw, ";") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// DetectAuthentication classifies the first credential-bearing request.
func DetectAuthentication(requests []models.NetworkRequestRecord) *models.AuthenticationScheme {
	for _, r := range requests {
		if auth := header(r.RequestHeaders, "authorization"); auth != "" {
			switch {
			case strings.HasPrefix(auth, "Bearer "):
				return &models.AuthenticationScheme{Type: models.AuthBearerToken, HeaderName: "Authorization"}
			case strings.HasPrefix(auth, "Basic "):
				return &models.AuthenticationScheme{Type: models.AuthBasic, HeaderName: "Authorization"}
			default:
				prefix, _, _ := strings.Cut(auth, " ")
				return &models.AuthenticationScheme{Type: models.AuthCustom, HeaderName: "Authorization", Pattern: prefix}
			}
		}
		if header(r.RequestHeaders, "x-api-key") != "" {
			return &models.AuthenticationScheme{Type: models.AuthAPIKey, HeaderName: "x-api-key"}
		}
	}
	return nil
}

// Analyze builds the full report for a session.
func Analyze(session *models.TraceSession) *models.Report {
	groups := GroupEndpoints(session.Requests)
	endpoints := make([]models.Endpoint, 0, len(groups))
	methods := []string{}
	seenMethod := make(map[string]bool)
	for _, g := range groups {
		ep := AnalyzeEndpoint(g)
		endpoints = append(endpoints, ep)
		if !seenMethod[ep.Method] {
			seenMethod[ep.Method] = true
			methods = append(methods, ep.Method)
		}
	}

	cookies := []string{}
	seenCookie := make(map[string]bool)
	apiRequests := 0
	for _, r := range session.Requests {
		for _, c := range ExtractCookies(r.RequestHeaders) {
			if !seenCookie[c] {
				seenCookie[c] = true
				cookies = append(cookies, c)
			}
		}
		if isFetchOrXHR(r) {
			apiRequests++
		}
	}

	return &models.Report{
		Session:        session.Session,
		Endpoints:      endpoints,
		Authentication: DetectAuthentication(session.Requests),
		Cookies:        cookies,
		Summary: models.Summary{
			TotalRequests:   len(session.Requests),
			APIRequests:     apiRequests,
			UniqueEndpoints: len(endpoints),
			Methods:         methods,
		},
	}
}
