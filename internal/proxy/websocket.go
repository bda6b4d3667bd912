// Package proxy exposes the supervised browser's DevTools endpoint on another
// address, so an external DevTools client can attach to it.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	upstream *url.URL
	log      *zap.Logger
	client   *http.Client
	dialer   websocket.Dialer
}

// NewServer proxies to the DevTools HTTP endpoint, e.g.
// http://127.0.0.1:9222.
func NewServer(endpoint string, logger *zap.Logger) (*Server, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid browser endpoint %q", endpoint)
	}
	return &Server{
		upstream: u,
		log:      logger.Named("proxy"),
		client:   &http.Client{Timeout: 10 * time.Second},
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Router serves the DevTools discovery documents with websocket URLs
// pointing back at the proxy, and relays every /devtools websocket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/json/version", s.HandleDiscovery).Methods("GET", "OPTIONS")
	r.HandleFunc("/json", s.HandleDiscovery).Methods("GET", "OPTIONS")
	r.HandleFunc("/json/list", s.HandleDiscovery).Methods("GET", "OPTIONS")
	r.HandleFunc("/json/protocol", s.HandleDiscovery).Methods("GET", "OPTIONS")
	r.HandleFunc("/devtools/{kind}/{id}", s.HandleDebugConnection).Methods("GET")

	r.Use(corsMiddleware)
	return r
}

// HandleDiscovery fetches the same path from the browser and rewrites the
// browser's host to the one the client used.
func (s *Server) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	target := *s.upstream
	target.Path = r.URL.Path
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		http.Error(w, "Browser unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "Failed to read browser response: "+err.Error(), http.StatusBadGateway)
		return
	}
	body = bytes.ReplaceAll(body, []byte(s.upstream.Host), []byte(r.Host))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

// HandleDebugConnection relays one DevTools websocket in both directions
// until either side closes.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheme := "ws"
	if s.upstream.Scheme == "https" {
		scheme = "wss"
	}
	browserURL := fmt.Sprintf("%s://%s/devtools/%s/%s", scheme, s.upstream.Host, vars["kind"], vars["id"])

	browserConn, _, err := s.dialer.DialContext(r.Context(), browserURL, nil)
	if err != nil {
		s.log.Warn("failed to connect to browser", zap.String("url", browserURL), zap.Error(err))
		http.Error(w, "Browser unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	target := vars["kind"] + "/" + vars["id"]
	s.log.Info("devtools client connected", zap.String("target", target), zap.String("remote", r.RemoteAddr))

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client->browser")
	}()
	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser->client")
	}()

	err = <-errChan
	if err != nil && !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Debug("proxy connection ended", zap.String("target", target), zap.Error(err))
	}
	s.log.Info("devtools client disconnected", zap.String("target", target))
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Debug("websocket error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			s.log.Debug("failed to write message", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}

// Serve listens on addr and serves until ctx ends. ready is called with the
// bound address once connections are accepted.
func (s *Server) Serve(ctx context.Context, addr string, ready func(addr string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:     s.Router(),
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
