package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

// VersionInfo is the /json/version document of a DevTools endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// FreePort asks the kernel for an unused local TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Version fetches /json/version from endpoint.
func Version(ctx context.Context, endpoint string) (*VersionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}

	var v VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode version info: %w", err)
	}
	return &v, nil
}

// WaitReady polls endpoint until it answers /json/version or timeout
// elapses.
func WaitReady(ctx context.Context, endpoint string, timeout time.Duration) (*VersionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		attempt, done := context.WithTimeout(ctx, time.Second)
		v, err := Version(attempt, endpoint)
		done()
		if err == nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, errdefs.LaunchTimeout("browser did not become ready at %s within %s", endpoint, timeout)
		case <-ticker.C:
		}
	}
}

// Probe checks that endpoint accepts a DevTools websocket handshake and
// returns the browser websocket URL, rewritten to the endpoint's host so
// that container-internal addresses are reachable.
func Probe(ctx context.Context, endpoint string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := Version(ctx, endpoint)
	if err != nil {
		return "", errdefs.Connection(err, "no browser at %s", endpoint)
	}
	wsURL, err := rewriteHost(v.WebSocketDebuggerURL, endpoint)
	if err != nil {
		return "", errdefs.Connection(err, "bad websocket url from %s", endpoint)
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return "", errdefs.Connection(err, "websocket handshake with %s failed", wsURL)
	}
	conn.Close()
	return wsURL, nil
}

func rewriteHost(wsURL, endpoint string) (string, error) {
	e, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if wsURL == "" {
		scheme := "ws"
		if e.Scheme == "https" {
			scheme = "wss"
		}
		return scheme + "://" + e.Host, nil
	}
	w, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	w.Host = e.Host
	return w.String(), nil
}
