package models

import "time"

// BrowserProcessState is the persisted record of the supervised browser.
// ContainerID is set only for the docker engine, where PID is zero.
type BrowserProcessState struct {
	Endpoint    string    `json:"endpoint"`
	PID         int       `json:"pid,omitempty"`
	ContainerID string    `json:"containerId,omitempty"`
	EngineName  string    `json:"engineName"`
	StartedAt   time.Time `json:"startedAt"`
}

// BrowserStatus is reported by the status meta-command.
type BrowserStatus struct {
	Running    bool       `json:"running"`
	Endpoint   string     `json:"endpoint,omitempty"`
	PID        int        `json:"pid,omitempty"`
	EngineName string     `json:"engineName,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	Pages      int        `json:"pages,omitempty"`
}
