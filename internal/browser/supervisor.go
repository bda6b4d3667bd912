// Package browser supervises the long-lived browser process that every
// browserctl invocation connects to.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/state"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// Connection is a live client connection to the supervised browser.
type Connection struct {
	Browser *rod.Browser
	State   models.BrowserProcessState
	// Reused is true when the browser was already running; false when
	// this process launched it.
	Reused bool
}

type Supervisor struct {
	cfg    *config.Config
	repo   *state.Repository[models.BrowserProcessState]
	engine Engine
	log    *zap.Logger

	conn *Connection
}

type Option func(*Supervisor)

// WithEngine replaces the engine selected by configuration.
func WithEngine(e Engine) Option {
	return func(s *Supervisor) { s.engine = e }
}

func validState(st *models.BrowserProcessState) error {
	if st.Endpoint == "" {
		return errors.New("missing endpoint")
	}
	if st.PID <= 0 && st.ContainerID == "" {
		return errors.New("missing pid")
	}
	return nil
}

// StateRepository returns the repository holding the browser record.
func StateRepository(cfg *config.Config) *state.Repository[models.BrowserProcessState] {
	return state.New(cfg.BrowserStatePath(), validState)
}

func NewSupervisor(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		cfg:  cfg,
		repo: StateRepository(cfg),
		log:  logger.Named("supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		switch cfg.Browser.Engine {
		case config.EngineDocker:
			e, err := newDockerEngine(cfg, s.log)
			if err != nil {
				return nil, err
			}
			s.engine = e
		default:
			s.engine = newChromiumEngine(cfg, s.log)
		}
	}
	return s, nil
}

// Connect returns a connection to the running browser, launching one when
// the recorded browser is missing or unreachable.
func (s *Supervisor) Connect(ctx context.Context) (*Connection, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	st, ok, err := s.repo.Read()
	if err != nil {
		return nil, err
	}
	if ok {
		conn, err := s.attach(ctx, st)
		if err == nil {
			conn.Reused = true
			s.conn = conn
			return conn, nil
		}
		s.log.Info("recorded browser unreachable, relaunching", zap.String("endpoint", st.Endpoint), zap.Error(err))
		if err := s.repo.Delete(); err != nil {
			return nil, err
		}
	}
	return s.Launch(ctx)
}

// Launch starts a new browser, waits for it to accept connections and
// records it.
func (s *Supervisor) Launch(ctx context.Context) (*Connection, error) {
	port, err := FreePort()
	if err != nil {
		return nil, err
	}
	inst, err := s.engine.Start(ctx, port)
	if err != nil {
		return nil, err
	}

	st := &models.BrowserProcessState{
		Endpoint:    fmt.Sprintf("http://127.0.0.1:%d", port),
		PID:         inst.PID,
		ContainerID: inst.ContainerID,
		EngineName:  s.engine.Name(),
		StartedAt:   time.Now().UTC(),
	}

	if _, err := WaitReady(ctx, st.Endpoint, s.cfg.Timeouts.Launch); err != nil {
		if stopErr := s.engine.Stop(context.WithoutCancel(ctx), st); stopErr != nil {
			s.log.Warn("cleanup after failed launch", zap.Error(stopErr))
		}
		return nil, err
	}
	if err := s.repo.Write(st); err != nil {
		return nil, err
	}

	conn, err := s.attach(ctx, st)
	if err != nil {
		return nil, err
	}
	s.log.Info("browser launched", zap.String("engine", st.EngineName), zap.String("endpoint", st.Endpoint))
	s.conn = conn
	return conn, nil
}

func (s *Supervisor) attach(ctx context.Context, st *models.BrowserProcessState) (*Connection, error) {
	wsURL, err := Probe(ctx, st.Endpoint, s.cfg.Timeouts.Connect)
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, errdefs.Connection(err, "connect to %s", wsURL)
	}
	return &Connection{Browser: b, State: *st}, nil
}

// Attach connects to the browser listening at endpoint without consulting
// or touching the state record. The connection is dropped when ctx ends;
// the browser keeps running.
func (s *Supervisor) Attach(ctx context.Context, endpoint string) (*Connection, error) {
	wsURL, err := Probe(ctx, endpoint, s.cfg.Timeouts.Connect)
	if err != nil {
		return nil, err
	}
	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, errdefs.Connection(err, "connect to %s", wsURL)
	}
	return &Connection{
		Browser: b,
		State:   models.BrowserProcessState{Endpoint: endpoint},
		Reused:  true,
	}, nil
}

// Close terminates the recorded browser and forgets it.
func (s *Supervisor) Close(ctx context.Context) error {
	st, ok, err := s.repo.Read()
	if err != nil {
		return err
	}
	s.conn = nil
	if ok {
		if err := s.engine.Stop(ctx, st); err != nil {
			s.log.Warn("stop browser", zap.Error(err))
		}
	}
	if err := s.repo.Delete(); err != nil {
		return err
	}
	if ok {
		// give the profile lock a moment to clear before a relaunch
		time.Sleep(300 * time.Millisecond)
	}
	return nil
}

// Running reports whether a browser is recorded, without probing it.
func (s *Supervisor) Running() bool {
	_, ok, _ := s.repo.Read()
	return ok
}

// Status reports whether the recorded browser is alive. It never fails: an
// unreachable browser is forgotten and reported as not running.
func (s *Supervisor) Status(ctx context.Context) models.BrowserStatus {
	st, ok, err := s.repo.Read()
	if err != nil || !ok {
		return models.BrowserStatus{Running: false}
	}
	conn, err := s.attach(ctx, st)
	if err != nil {
		s.log.Debug("clearing stale browser state", zap.Error(err))
		_ = s.repo.Delete()
		return models.BrowserStatus{Running: false}
	}
	s.conn = conn
	conn.Reused = true

	status := models.BrowserStatus{
		Running:    true,
		Endpoint:   st.Endpoint,
		PID:        st.PID,
		EngineName: st.EngineName,
		StartedAt:  &st.StartedAt,
	}
	if pages, err := conn.Browser.Pages(); err == nil {
		status.Pages = len(pages)
	}
	return status
}

// Endpoint returns the endpoint of the recorded browser if it is reachable.
func (s *Supervisor) Endpoint(ctx context.Context) (string, error) {
	st, ok, err := s.repo.Read()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errdefs.Connection(nil, "no browser running; run `browserctl start` first")
	}
	if _, err := Probe(ctx, st.Endpoint, s.cfg.Timeouts.Connect); err != nil {
		_ = s.repo.Delete()
		return "", err
	}
	return st.Endpoint, nil
}
