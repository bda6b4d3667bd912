package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/proc"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
	"github.com/shehryarbajwa/browserctl/internal/state"
	"github.com/shehryarbajwa/browserctl/internal/tracestore"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const (
	stopPollInterval = 100 * time.Millisecond
	controlTimeout   = 2 * time.Second
	maxAckLine       = 1024 * 1024
)

// Endpointer resolves the endpoint of the running browser.
type Endpointer interface {
	Endpoint(ctx context.Context) (string, error)
}

// StartResult is returned to the caller of `trace start`.
type StartResult struct {
	Result string `json:"result"`
	*Ack
}

// StopResult is returned to the caller of `trace stop`.
type StopResult struct {
	Result           string `json:"result"`
	SessionName      string `json:"sessionName"`
	CapturedRequests int    `json:"capturedRequests"`
	Saved            string `json:"saved,omitempty"`
}

// Client controls the daemon of one Kind from a CLI process.
type Client struct {
	kind    Kind
	cfg     *config.Config
	log     *zap.Logger
	repo    *state.Repository[models.TracerState]
	browser Endpointer
	http    *http.Client
	now     func() time.Time

	// command builds the daemon process for a JSON payload.
	command func(payload string) (*exec.Cmd, error)
}

// NewClient controls the network recording daemon.
func NewClient(cfg *config.Config, logger *zap.Logger, browser Endpointer) *Client {
	return NewKindClient(cfg, logger, browser, KindNetwork)
}

// NewKindClient controls the daemon capturing kind. browser may be nil when
// every Start is given an endpoint.
func NewKindClient(cfg *config.Config, logger *zap.Logger, browser Endpointer, kind Kind) *Client {
	kind = kind.normalize()
	return &Client{
		kind:    kind,
		cfg:     cfg,
		log:     logger.Named("daemon"),
		repo:    kindRepository(cfg, kind),
		browser: browser,
		http:    &http.Client{Timeout: controlTimeout},
		now:     time.Now,
		command: selfCommand,
	}
}

// selfCommand re-executes the running binary as `trace daemon <payload>`.
func selfCommand(payload string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return exec.Command(exe, "trace", "daemon", payload), nil
}

// active returns the tracer state when a daemon is recording and alive.
func (c *Client) active() (*models.TracerState, bool, error) {
	st, ok, err := c.repo.Read()
	if err != nil || !ok {
		return nil, false, err
	}
	if !st.Recording || !proc.Alive(st.PID) {
		return st, false, nil
	}
	return st, true, nil
}

// Start spawns a detached daemon recording under opts.Name and returns its
// acknowledgment. Only one recording runs at a time.
func (c *Client) Start(ctx context.Context, opts Options) (*StartResult, error) {
	st, live, err := c.active()
	if err != nil {
		return nil, err
	}
	if live {
		return nil, errdefs.DaemonLifecycle("already recording %q", st.SessionName)
	}

	opts.Kind = c.kind
	if opts.Name == "" {
		opts.Name = defaultName(c.kind, c.now())
	}
	if err := tracestore.ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if _, err := recorder.NewFilter(opts.Filter); err != nil {
		return nil, errdefs.InvalidArgument("%v", err)
	}
	if opts.Endpoint == "" {
		if c.browser == nil {
			return nil, errdefs.Connection(nil, "no browser endpoint")
		}
		endpoint, err := c.browser.Endpoint(ctx)
		if err != nil {
			return nil, err
		}
		opts.Endpoint = endpoint
	}

	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode daemon options: %w", err)
	}
	cmd, err := c.command(string(payload))
	if err != nil {
		return nil, err
	}
	proc.Detach(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe failed: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errdefs.DaemonLifecycle("failed to start recording daemon: %v", err)
	}
	c.log.Debug("recording daemon spawned", zap.Int("pid", cmd.Process.Pid), zap.String("session", opts.Name))

	ack, err := readAck(ctx, stdout, c.cfg.Timeouts.DaemonAck)
	if err != nil {
		if killErr := proc.Kill(cmd.Process.Pid); killErr != nil {
			c.log.Debug("kill unacknowledged daemon", zap.Error(killErr))
		}
		go cmd.Wait()
		return nil, err
	}
	if !ack.Started {
		go cmd.Wait()
		return nil, ackError(ack)
	}
	if err := cmd.Process.Release(); err != nil {
		c.log.Debug("release daemon process", zap.Error(err))
	}
	return &StartResult{Result: "Recording started: " + opts.Name, Ack: ack}, nil
}

func ackError(ack *Ack) error {
	msg := ack.Error
	if msg == "" {
		msg = "daemon exited without starting"
	}
	kind := errdefs.Kind(ack.Kind)
	if kind == "" {
		kind = errdefs.KindDaemonLifecycle
	}
	return &errdefs.Error{Kind: kind, Msg: "recording daemon failed: " + msg}
}

// readAck reads the daemon's single acknowledgment line.
func readAck(ctx context.Context, r io.Reader, timeout time.Duration) (*Ack, error) {
	type result struct {
		ack *Ack
		err error
	}
	ch := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxAckLine)
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			ch <- result{err: errdefs.DaemonLifecycle("recording daemon exited before acknowledging: %v", err)}
			return
		}
		var ack Ack
		if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
			ch <- result{err: errdefs.DaemonLifecycle("unreadable acknowledgment %q: %v", scanner.Text(), err)}
			return
		}
		ch <- result{ack: &ack}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.ack, res.err
	case <-timer.C:
		return nil, errdefs.DaemonLifecycle("recording daemon did not acknowledge within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop ends the live recording and waits for the daemon to save it.
func (c *Client) Stop(ctx context.Context) (*StopResult, error) {
	st, live, err := c.active()
	if err != nil {
		return nil, err
	}
	if !live {
		if st != nil && st.Recording {
			c.markVanished(st)
		}
		return nil, errdefs.DaemonLifecycle("no active recording")
	}

	if err := proc.Terminate(st.PID); err != nil {
		if !errors.Is(err, proc.ErrSignalsUnsupported) {
			c.log.Debug("terminate daemon, trying control endpoint", zap.Error(err))
		}
		if err := c.requestStop(ctx, st.ControlAddr); err != nil {
			return nil, err
		}
	}

	final, err := c.waitStopped(ctx, c.cfg.Timeouts.DaemonStop)
	if err != nil {
		return nil, err
	}
	res := &StopResult{
		Result:           "Recording stopped: " + st.SessionName,
		SessionName:      st.SessionName,
		CapturedRequests: final.CapturedRequests,
		Saved:            final.Saved,
	}
	if final.Note != "" {
		return res, errdefs.DaemonLifecycle("%s", final.Note)
	}
	return res, nil
}

func (c *Client) requestStop(ctx context.Context, addr string) error {
	if addr == "" {
		return errdefs.DaemonLifecycle("recording daemon has no control endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/v1/stop", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errdefs.DaemonLifecycle("stop request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return errdefs.DaemonLifecycle("stop request failed: %s", resp.Status)
	}
	return nil
}

// waitStopped polls the status file until the daemon reports it is no
// longer recording.
func (c *Client) waitStopped(ctx context.Context, timeout time.Duration) (*models.TracerState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		st, ok, err := c.repo.Read()
		if err != nil {
			return nil, err
		}
		if ok && !st.Recording {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, errdefs.DaemonLifecycle("recording daemon did not finish within %s; see %s", timeout, c.cfg.DaemonLogPath())
		case <-ticker.C:
		}
	}
}

// markVanished records that the daemon of st died without finishing.
func (c *Client) markVanished(st *models.TracerState) {
	gone := &models.TracerState{Recording: false, LastSession: st.SessionName, Note: "Daemon process not found."}
	if err := c.repo.Write(gone); err != nil {
		c.log.Warn("clear stale tracer state", zap.Error(err))
	}
}

// Status reports the recording state. A live daemon is asked directly over
// its control endpoint; the status file is the fallback.
func (c *Client) Status(ctx context.Context) (models.TracerState, error) {
	st, live, err := c.active()
	if err != nil {
		return models.TracerState{}, err
	}
	switch {
	case st == nil:
		return models.TracerState{Recording: false}, nil
	case st.Recording && !live:
		c.markVanished(st)
		return models.TracerState{Recording: false, Note: "Daemon process not found."}, nil
	case !live:
		return models.TracerState{Recording: false, LastSession: st.LastSession, Note: st.Note}, nil
	}

	if st.ControlAddr != "" {
		fresh, err := c.controlStatus(ctx, st.ControlAddr)
		if err == nil {
			return *fresh, nil
		}
		c.log.Debug("control status unavailable, using state file", zap.Error(err))
	}
	return *st, nil
}

func (c *Client) controlStatus(ctx context.Context, addr string) (*models.TracerState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/v1/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}
	var st models.TracerState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &st, nil
}
