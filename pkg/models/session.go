package models

import "time"

// NetworkRequestRecord is one captured request/response pair as persisted in
// a trace session. It carries no engine correlation id.
type NetworkRequestRecord struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	ResourceType   string            `json:"resourceType"`
	RequestHeaders map[string]string `json:"requestHeaders"`
	PostData       *string           `json:"postData,omitempty"`
	Initiator      string            `json:"initiator"`
	Timestamp      float64           `json:"timestamp"`
	WallTime       float64           `json:"wallTime"`

	Status            *int              `json:"status,omitempty"`
	StatusText        string            `json:"statusText,omitempty"`
	ResponseHeaders   map[string]string `json:"responseHeaders,omitempty"`
	MimeType          string            `json:"mimeType,omitempty"`
	Protocol          string            `json:"protocol,omitempty"`
	ResponseTimestamp *float64          `json:"responseTimestamp,omitempty"`
	EncodedDataLength *float64          `json:"encodedDataLength,omitempty"`
	ResponseBody      *string           `json:"responseBody"`

	Error    string `json:"error,omitempty"`
	Canceled bool   `json:"canceled,omitempty"`
}

// TraceMeta describes a recording.
type TraceMeta struct {
	Name            string    `json:"name"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	TotalRequests   int       `json:"totalRequests"`
	DroppedInFlight int       `json:"droppedInFlight"`
}

// TraceSession is the persisted result of one recording.
type TraceSession struct {
	Session  TraceMeta              `json:"session"`
	Requests []NetworkRequestRecord `json:"requests"`
}

// SessionSummary is a trace store listing entry.
type SessionSummary struct {
	Name          string    `json:"name"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	TotalRequests int       `json:"totalRequests"`
}

// TracerState is the status file shared by the recording daemon and the
// CLI processes that query it.
type TracerState struct {
	Recording        bool       `json:"recording"`
	SessionName      string     `json:"sessionName,omitempty"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	CapturedRequests int        `json:"capturedRequests"`
	PendingRequests  int        `json:"pendingRequests"`
	PID              int        `json:"pid,omitempty"`
	ControlAddr      string     `json:"controlAddr,omitempty"`
	LastSession      string     `json:"lastSession,omitempty"`
	Saved            string     `json:"saved,omitempty"`
	Note             string     `json:"note,omitempty"`
}
