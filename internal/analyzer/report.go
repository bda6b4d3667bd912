package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ToMarkdown renders a report as a markdown document.
func ToMarkdown(r *models.Report) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	name := r.Session.Name
	if name == "" {
		name = "Unnamed"
	}
	line("# API Trace Report: %s", name)
	line("")
	line("- **Start**: %s", formatTime(r.Session.StartTime))
	line("- **End**: %s", formatTime(r.Session.EndTime))
	line("- **Total Requests**: %d", r.Summary.TotalRequests)
	line("- **API Requests**: %d", r.Summary.APIRequests)
	line("- **Unique Endpoints**: %d", r.Summary.UniqueEndpoints)
	line("- **HTTP Methods**: %s", strings.Join(r.Summary.Methods, ", "))
	if r.Session.DroppedInFlight > 0 {
		line("- **Dropped In Flight**: %d", r.Session.DroppedInFlight)
	}
	line("")

	if r.Authentication != nil {
		line("## Authentication")
		line("")
		line("- **Type**: %s", r.Authentication.Type)
		line("- **Header**: %s", r.Authentication.HeaderName)
		if r.Authentication.Pattern != "" {
			line("- **Pattern**: %s", r.Authentication.Pattern)
		}
		line("")
	}

	if len(r.Cookies) > 0 {
		line("## Cookies")
		line("")
		for _, c := range r.Cookies {
			line("- `%s`", c)
		}
		line("")
	}

	line("## API Endpoints")
	line("")
	for _, ep := range r.Endpoints {
		line("### %s %s", ep.Method, ep.Pattern)
		line("")
		line("- **URL**: `%s`", ep.URL)
		line("- **Calls**: %d", ep.CallCount)
		line("- **Status Codes**: %s", joinInts(ep.StatusCodes))
		if len(ep.Cookies) > 0 {
			line("- **Cookies**: %s", strings.Join(ep.Cookies, ", "))
		}

		if len(ep.RequestHeaders) > 0 {
			line("")
			line("**Request Headers**:")
			jsonBlock(&b, ep.RequestHeaders)
		}
		if ep.RequestBody != nil {
			line("")
			line("**Request Body** (%s):", ep.RequestBody.Type)
			if ep.RequestBody.Schema != nil {
				jsonBlock(&b, ep.RequestBody.Schema)
			} else {
				line("```")
				line("%v", ep.RequestBody.Example)
				line("```")
			}
		}
		if ep.ResponseFormat != nil {
			line("")
			line("**Response Format** (%s):", ep.ResponseFormat.Type)
			if ep.ResponseFormat.Schema != nil {
				jsonBlock(&b, ep.ResponseFormat.Schema)
			}
		}

		line("")
		line("---")
		line("")
	}
	return b.String()
}

// ToCurl renders one curl command per endpoint, separated by blank lines.
func ToCurl(r *models.Report) string {
	commands := make([]string, 0, len(r.Endpoints))
	for _, ep := range r.Endpoints {
		parts := []string{"curl -X " + ep.Method}

		keys := make([]string, 0, len(ep.RequestHeaders))
		for k := range ep.RequestHeaders {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("  -H '%s: %s'", k, ep.RequestHeaders[k]))
		}

		if ep.RequestBody != nil {
			if example, ok := ep.RequestBody.Example.(string); ok && example != "" {
				parts = append(parts, fmt.Sprintf("  -d '%s'", example))
			}
		}
		parts = append(parts, fmt.Sprintf("  '%s'", ep.URL))
		commands = append(commands, strings.Join(parts, " \\\n"))
	}
	return strings.Join(commands, "\n\n")
}

// RenderMarkdown formats markdown for a terminal.
func RenderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(isoMillis)
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}

func jsonBlock(b *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(v))
	}
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```\n")
}
