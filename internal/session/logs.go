package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

const (
	maxConsoleEntries = 1000
	maxRequestEntries = 1000
)

// boundedLog keeps the most recent entries up to a fixed capacity.
type boundedLog[T any] struct {
	limit   int
	entries []T
}

func newBoundedLog[T any](limit int) *boundedLog[T] {
	return &boundedLog[T]{limit: limit}
}

func (l *boundedLog[T]) add(v T) {
	l.entries = append(l.entries, v)
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

func (l *boundedLog[T]) snapshot() []T {
	return append([]T(nil), l.entries...)
}

func (l *boundedLog[T]) clear() { l.entries = nil }

type ConsoleMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (m ConsoleMessage) String() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(m.Type), m.Text)
}

// consoleLevel ranks a console message type; lower is more severe.
func consoleLevel(typ string) int {
	switch typ {
	case "error", "assert":
		return 0
	case "warning", "warn":
		return 1
	case "debug":
		return 3
	}
	return 2
}

// levelThreshold maps a user-facing level name to its rank. Unknown names
// fall back to info.
func levelThreshold(level string) int {
	switch strings.ToLower(level) {
	case "error":
		return 0
	case "warning", "warn":
		return 1
	case "debug":
		return 3
	}
	return 2
}

// ObservedRequest is a request seen by a tab while the invoking process runs.
type ObservedRequest struct {
	ID           string `json:"-"`
	URL          string `json:"url"`
	Method       string `json:"method"`
	ResourceType string `json:"resourceType"`
	Status       int    `json:"status,omitempty"`
	Failure      string `json:"failure,omitempty"`
	Finished     bool   `json:"finished"`
}

func (r ObservedRequest) String() string {
	switch {
	case r.Failure != "":
		return fmt.Sprintf("[%s] %s => [FAILED] %s", r.Method, r.URL, r.Failure)
	case r.Status > 0:
		return fmt.Sprintf("[%s] %s => [%d]", r.Method, r.URL, r.Status)
	}
	return fmt.Sprintf("[%s] %s", r.Method, r.URL)
}

// IsStatic reports whether the request fetched a page asset rather than
// data.
func (r ObservedRequest) IsStatic() bool {
	switch proto.NetworkResourceType(r.ResourceType) {
	case proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeStylesheet, proto.NetworkResourceTypeScript,
		proto.NetworkResourceTypeMedia, proto.NetworkResourceTypeManifest:
		return true
	}
	return false
}

func formatConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case !a.Value.Nil() && a.Value.Str() != "":
			parts = append(parts, a.Value.Str())
		case !a.Value.Nil():
			parts = append(parts, a.Value.String())
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}
