// Package daemon runs a capture (the network recorder, a performance trace
// or a screencast) in a detached process and lets short-lived CLI
// invocations start, stop and query it.
//
// The daemon and its clients share one status file per Kind (see
// StateRepository). The daemon owns it while recording; clients only read
// it, except to mark a recording whose process has vanished as stopped.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
	"github.com/shehryarbajwa/browserctl/internal/state"
	"github.com/shehryarbajwa/browserctl/internal/tracestore"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const stateInterval = 2 * time.Second

// Options is the daemon's start payload, passed as a single JSON argument.
type Options struct {
	Kind     Kind   `json:"kind,omitempty"`
	Name     string `json:"name"`
	Endpoint string `json:"wsEndpoint,omitempty"`
	Filter   string `json:"filter,omitempty"`
	// Width and Height bound screencast frames.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Ack is the single line the daemon prints on stdout once it is recording,
// or once it has given up.
type Ack struct {
	Started bool   `json:"started"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	*recorder.StartInfo
	PID         int    `json:"pid,omitempty"`
	ControlAddr string `json:"controlAddr,omitempty"`
}

// DefaultName names a network recording started at t without an explicit
// name.
func DefaultName(t time.Time) string {
	return defaultName(KindNetwork, t)
}

func defaultName(kind Kind, t time.Time) string {
	return fmt.Sprintf("%s-%d", kind.prefix(), t.UnixMilli())
}

func validTracerState(st *models.TracerState) error {
	if st.Recording && st.PID <= 0 {
		return errors.New("recording without pid")
	}
	return nil
}

// StateRepository returns the repository holding the network recorder's
// status.
func StateRepository(cfg *config.Config) *state.Repository[models.TracerState] {
	return kindRepository(cfg, KindNetwork)
}

func kindRepository(cfg *config.Config, kind Kind) *state.Repository[models.TracerState] {
	path := cfg.TracerStatePath()
	if kind = kind.normalize(); kind != KindNetwork {
		path = filepath.Join(cfg.StateDir, string(kind)+"-state.json")
	}
	return state.New(path, validTracerState)
}

// Daemon is one recording process.
type Daemon struct {
	cfg  *config.Config
	log  *zap.Logger
	repo *state.Repository[models.TracerState]
	job  job

	controlAddr string
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// Run records until ctx is cancelled or a stop is requested over the
// control endpoint, then finishes the capture and saves its output. The acknowledgment is
// written to ack exactly once; ack is closed afterwards if it is a Closer,
// so nothing else may be printed there.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options, ack io.Writer) error {
	opts.Kind = opts.Kind.normalize()
	d := &Daemon{
		cfg:    cfg,
		log:    logger.Named("daemon").With(zap.String("kind", string(opts.Kind))),
		repo:   kindRepository(cfg, opts.Kind),
		stopCh: make(chan struct{}),
	}
	err := d.run(ctx, opts, ack)
	if err != nil {
		d.log.Error("recording daemon failed", zap.Error(err))
	}
	return err
}

func (d *Daemon) run(ctx context.Context, opts Options, ack io.Writer) error {
	ackOnce := func(a Ack) {
		if err := json.NewEncoder(ack).Encode(a); err != nil {
			d.log.Warn("write acknowledgment", zap.Error(err))
		}
		if c, ok := ack.(io.Closer); ok {
			c.Close()
		}
	}
	fail := func(err error) error {
		ackOnce(Ack{Error: err.Error(), Kind: string(errdefs.KindOf(err))})
		return err
	}

	if opts.Name == "" {
		opts.Name = defaultName(opts.Kind, time.Now())
	}
	if err := tracestore.ValidateName(opts.Name); err != nil {
		return fail(err)
	}
	j, err := newJob(d.cfg, d.log, opts)
	if err != nil {
		return fail(err)
	}
	d.job = j
	sup, err := browser.NewSupervisor(d.cfg, d.log)
	if err != nil {
		return fail(err)
	}

	// The browser connection outlives ctx so the session can be finalized
	// after a signal.
	connCtx, disconnect := context.WithCancel(context.WithoutCancel(ctx))
	defer disconnect()
	var conn *browser.Connection
	if opts.Endpoint != "" {
		conn, err = sup.Attach(connCtx, opts.Endpoint)
	} else {
		conn, err = sup.Connect(connCtx)
	}
	if err != nil {
		return fail(err)
	}

	info, err := d.job.start(connCtx, conn.Browser)
	if err != nil {
		return fail(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		if _, ferr := d.job.finish(connCtx); ferr != nil {
			d.log.Warn("abandon capture", zap.Error(ferr))
		}
		return fail(fmt.Errorf("failed to open control endpoint: %w", err))
	}
	d.controlAddr = "http://" + ln.Addr().String()
	srv := &http.Server{Handler: newControlRouter(d), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Warn("control endpoint stopped", zap.Error(err))
		}
	}()

	d.writeState()
	ackOnce(Ack{Started: true, StartInfo: info, PID: os.Getpid(), ControlAddr: d.controlAddr})
	d.log.Info("recording started",
		zap.String("session", info.SessionName),
		zap.Int("pages", info.Pages),
		zap.String("control", d.controlAddr))

	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			d.log.Info("signal received, finishing recording")
			break loop
		case <-d.stopCh:
			d.log.Info("stop requested, finishing recording")
			break loop
		case <-ticker.C:
			d.writeState()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = d.finish(shutdownCtx, sup, conn)
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		d.log.Warn("control endpoint shutdown", zap.Error(shutdownErr))
	}
	return err
}

// finish ends the capture and leaves the status file saying the recording
// is over. The browser itself is closed only when this process launched it.
func (d *Daemon) finish(ctx context.Context, sup *browser.Supervisor, conn *browser.Connection) error {
	res, jobErr := d.job.finish(ctx)
	if !conn.Reused {
		if err := sup.Close(ctx); err != nil {
			d.log.Warn("close browser", zap.Error(err))
		}
	}

	final := &models.TracerState{
		Recording:        false,
		LastSession:      res.Name,
		CapturedRequests: res.Captured,
		Saved:            res.Saved,
	}
	if jobErr != nil {
		final.Note = "Recording failed: " + jobErr.Error()
	}
	if err := d.repo.Write(final); err != nil {
		d.log.Error("write final state", zap.Error(err))
	}
	return jobErr
}

// State is the live status of the recording.
func (d *Daemon) State() models.TracerState {
	st := d.job.status()
	start := st.StartTime
	return models.TracerState{
		Recording:        st.Recording,
		SessionName:      st.Name,
		StartTime:        &start,
		CapturedRequests: st.Captured,
		PendingRequests:  st.Pending,
		PID:              os.Getpid(),
		ControlAddr:      d.controlAddr,
	}
}

// RequestStop ends the recording loop. Further calls are no-ops.
func (d *Daemon) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Daemon) writeState() {
	st := d.State()
	if err := d.repo.Write(&st); err != nil {
		d.log.Warn("write state", zap.Error(err))
	}
}
