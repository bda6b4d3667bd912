package browser

import (
	"context"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// Instance is a freshly started browser, not yet known to be ready.
type Instance struct {
	PID         int
	ContainerID string
}

// Engine starts and stops one kind of browser process.
type Engine interface {
	Name() string
	// Start spawns a browser serving DevTools on 127.0.0.1:port. It must
	// not wait for readiness.
	Start(ctx context.Context, port int) (*Instance, error)
	// Stop ends the browser described by st.
	Stop(ctx context.Context, st *models.BrowserProcessState) error
}
