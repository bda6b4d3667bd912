package browser

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

func itoa(n int) string { return strconv.Itoa(n) }

// nullEngine starts nothing, so the endpoint never becomes ready.
type nullEngine struct {
	mu      sync.Mutex
	started []int
	stopped []*models.BrowserProcessState
}

func (e *nullEngine) Name() string { return "null" }

func (e *nullEngine) Start(_ context.Context, port int) (*Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, port)
	return &Instance{PID: 999999}, nil
}

func (e *nullEngine) Stop(_ context.Context, st *models.BrowserProcessState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, st)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.Timeouts.Launch = 300 * time.Millisecond
	cfg.Timeouts.Connect = 200 * time.Millisecond
	return cfg
}

func TestLaunchTimeoutCleansUp(t *testing.T) {
	cfg := testConfig(t)
	engine := &nullEngine{}
	sup, err := NewSupervisor(cfg, zap.NewNop(), WithEngine(engine))
	require.NoError(t, err)

	_, err = sup.Launch(context.Background())
	assert.ErrorIs(t, err, errdefs.ErrLaunchTimeout)
	require.Len(t, engine.started, 1)
	require.Len(t, engine.stopped, 1)
	assert.Equal(t, 999999, engine.stopped[0].PID)
	assert.NoFileExists(t, cfg.BrowserStatePath())
}

func TestStatusClearsStaleState(t *testing.T) {
	cfg := testConfig(t)
	port, err := FreePort()
	require.NoError(t, err)

	repo := StateRepository(cfg)
	require.NoError(t, repo.Write(&models.BrowserProcessState{
		Endpoint:   "http://127.0.0.1:" + itoa(port),
		PID:        4242,
		EngineName: config.EngineChromium,
		StartedAt:  time.Now(),
	}))

	sup, err := NewSupervisor(cfg, zap.NewNop(), WithEngine(&nullEngine{}))
	require.NoError(t, err)

	status := sup.Status(context.Background())
	assert.False(t, status.Running)
	assert.NoFileExists(t, cfg.BrowserStatePath())
}

func TestStatusWithoutState(t *testing.T) {
	sup, err := NewSupervisor(testConfig(t), zap.NewNop(), WithEngine(&nullEngine{}))
	require.NoError(t, err)
	assert.Equal(t, models.BrowserStatus{Running: false}, sup.Status(context.Background()))
	assert.False(t, sup.Running())
}

func TestConnectRelaunchesAfterStaleState(t *testing.T) {
	cfg := testConfig(t)
	port, err := FreePort()
	require.NoError(t, err)
	require.NoError(t, StateRepository(cfg).Write(&models.BrowserProcessState{
		Endpoint: "http://127.0.0.1:" + itoa(port), PID: 4242, EngineName: "null",
	}))

	engine := &nullEngine{}
	sup, err := NewSupervisor(cfg, zap.NewNop(), WithEngine(engine))
	require.NoError(t, err)

	_, err = sup.Connect(context.Background())
	// the relaunch itself cannot succeed with an engine that starts nothing
	assert.ErrorIs(t, err, errdefs.ErrLaunchTimeout)
	assert.Len(t, engine.started, 1)
}

func TestCloseStopsAndForgets(t *testing.T) {
	cfg := testConfig(t)
	st := &models.BrowserProcessState{Endpoint: "http://127.0.0.1:1", PID: 31337, EngineName: "null"}
	require.NoError(t, StateRepository(cfg).Write(st))

	engine := &nullEngine{}
	sup, err := NewSupervisor(cfg, zap.NewNop(), WithEngine(engine))
	require.NoError(t, err)

	require.NoError(t, sup.Close(context.Background()))
	require.Len(t, engine.stopped, 1)
	assert.Equal(t, 31337, engine.stopped[0].PID)
	assert.NoFileExists(t, cfg.BrowserStatePath())

	// closing again is harmless
	require.NoError(t, sup.Close(context.Background()))
	assert.Len(t, engine.stopped, 1)
}

func TestEndpointWithoutBrowser(t *testing.T) {
	sup, err := NewSupervisor(testConfig(t), zap.NewNop(), WithEngine(&nullEngine{}))
	require.NoError(t, err)
	_, err = sup.Endpoint(context.Background())
	assert.ErrorIs(t, err, errdefs.ErrConnection)
}

func TestChromiumArgs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Browser.Headless = true
	cfg.Browser.Args = []string{"--lang=en-US"}
	e := newChromiumEngine(cfg, zap.NewNop())

	args := e.Args(9333)
	assert.Contains(t, args, "--remote-debugging-port=9333")
	assert.Contains(t, args, "--user-data-dir="+filepath.Join(cfg.StateDir, "profile"))
	assert.Contains(t, args, "--headless=new")
	assert.Contains(t, args, "--no-first-run")
	assert.Contains(t, args, "--lang=en-US")
	assert.Equal(t, "about:blank", args[len(args)-1])

	cfg.Browser.Headless = false
	assert.NotContains(t, e.Args(9333), "--headless=new")
}
