package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/proc"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// chromiumEngine runs a local Chromium as a detached process so that it
// outlives the invocation that launched it.
type chromiumEngine struct {
	cfg *config.Config
	log *zap.Logger
}

func newChromiumEngine(cfg *config.Config, log *zap.Logger) *chromiumEngine {
	return &chromiumEngine{cfg: cfg, log: log}
}

func (e *chromiumEngine) Name() string { return config.EngineChromium }

func (e *chromiumEngine) binary() (string, error) {
	if e.cfg.Browser.Bin != "" {
		return e.cfg.Browser.Bin, nil
	}
	if path, has := launcher.LookPath(); has {
		return path, nil
	}
	e.log.Info("no local browser found, downloading one")
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}
	return path, nil
}

// Args builds the command line for a browser serving DevTools on port.
func (e *chromiumEngine) Args(port int) []string {
	b := e.cfg.Browser
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=" + e.cfg.ProfileDir(),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-default-apps",
		"--disable-sync",
	}
	if b.Width > 0 && b.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", b.Width, b.Height))
	}
	if b.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, b.Args...)
	return append(args, "about:blank")
}

func (e *chromiumEngine) Start(ctx context.Context, port int) (*Instance, error) {
	bin, err := e.binary()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.cfg.ProfileDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	cmd := exec.Command(bin, e.Args(port)...)
	proc.Detach(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser %s: %w", bin, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		e.log.Debug("release browser process", zap.Error(err))
	}

	e.log.Info("browser spawned", zap.String("bin", bin), zap.Int("pid", pid), zap.Int("port", port))
	return &Instance{PID: pid}, nil
}

func (e *chromiumEngine) Stop(ctx context.Context, st *models.BrowserProcessState) error {
	if st.PID <= 0 || !proc.Alive(st.PID) {
		return nil
	}
	err := proc.Terminate(st.PID)
	if err == proc.ErrSignalsUnsupported {
		return proc.Kill(st.PID)
	}
	if err != nil {
		return fmt.Errorf("failed to terminate browser pid %d: %w", st.PID, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && proc.Alive(st.PID) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if proc.Alive(st.PID) {
		e.log.Warn("browser ignored SIGTERM, killing", zap.Int("pid", st.PID))
		return proc.Kill(st.PID)
	}
	return nil
}
