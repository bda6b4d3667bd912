package analyzer

import (
	"strings"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// RequestSummary is one line of a session's request index.
type RequestSummary struct {
	Index        int    `json:"index"`
	Method       string `json:"method"`
	URL          string `json:"url"`
	Status       *int   `json:"status,omitempty"`
	ResourceType string `json:"resourceType"`
	MimeType     string `json:"mimeType,omitempty"`
}

type Listing struct {
	Session  models.TraceMeta `json:"session"`
	Requests []RequestSummary `json:"requests"`
	Total    int              `json:"total"`
	Filtered *int             `json:"filtered,omitempty"`
}

// List indexes the requests of a session. A non-empty filter keeps requests
// whose URL contains it; indexes always refer to the unfiltered list.
func List(session *models.TraceSession, filter string) Listing {
	out := Listing{Session: session.Session, Requests: []RequestSummary{}, Total: len(session.Requests)}
	for i, r := range session.Requests {
		if filter != "" && !strings.Contains(r.URL, filter) {
			continue
		}
		out.Requests = append(out.Requests, RequestSummary{
			Index:        i,
			Method:       r.Method,
			URL:          r.URL,
			Status:       r.Status,
			ResourceType: r.ResourceType,
			MimeType:     r.MimeType,
		})
	}
	if filter != "" {
		n := len(out.Requests)
		out.Filtered = &n
	}
	return out
}

// RequestAt returns the request at index.
func RequestAt(session *models.TraceSession, index int) (*models.NetworkRequestRecord, error) {
	if index < 0 || index >= len(session.Requests) {
		return nil, errdefs.NotFound("Request index %d not found.", index)
	}
	return &session.Requests[index], nil
}
