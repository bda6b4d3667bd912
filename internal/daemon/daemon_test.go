package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
	"github.com/shehryarbajwa/browserctl/internal/tracestore"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const helperEnv = "BROWSERCTL_HELPER_DAEMON"

// TestHelperDaemon is not a real test: it is the process spawned by the
// client tests in place of `browserctl trace daemon`.
func TestHelperDaemon(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process")
	}
	var opts Options
	_ = json.Unmarshal([]byte(os.Args[len(os.Args)-1]), &opts)
	switch mode {
	case "ack":
		info := &recorder.StartInfo{SessionName: opts.Name, StartTime: time.Now(), Pages: 2}
		json.NewEncoder(os.Stdout).Encode(Ack{Started: true, StartInfo: info, PID: os.Getpid()})
	case "kind":
		info := &recorder.StartInfo{SessionName: string(opts.Kind) + "/" + opts.Name + "@" + opts.Endpoint}
		json.NewEncoder(os.Stdout).Encode(Ack{Started: true, StartInfo: info, PID: os.Getpid()})
	case "fail":
		json.NewEncoder(os.Stdout).Encode(Ack{Error: "no browser found", Kind: string(errdefs.KindConnection)})
	case "exit":
	}
	os.Exit(0)
}

func helperCommand(mode string) func(string) (*exec.Cmd, error) {
	return func(payload string) (*exec.Cmd, error) {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperDaemon$", "--", payload)
		cmd.Env = append(os.Environ(), helperEnv+"="+mode)
		return cmd, nil
	}
}

type fixedEndpoint struct {
	endpoint string
	err      error
}

func (f fixedEndpoint) Endpoint(context.Context) (string, error) { return f.endpoint, f.err }

func testClient(t *testing.T, ep Endpointer) (*Client, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.TraceDir = t.TempDir()
	cfg.Timeouts.DaemonAck = 5 * time.Second
	cfg.Timeouts.DaemonStop = 500 * time.Millisecond
	return NewClient(cfg, zap.NewNop(), ep), cfg
}

// deadPID returns the pid of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd, _ := helperCommand("exit")("{}")
	require.NoError(t, cmd.Run())
	return cmd.Process.Pid
}

func TestStartRejectsConcurrentRecording(t *testing.T) {
	c, _ := testClient(t, fixedEndpoint{endpoint: "http://127.0.0.1:9222"})
	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "checkout", PID: os.Getpid()}))

	_, err := c.Start(context.Background(), Options{Name: "other"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
	assert.Equal(t, `already recording "checkout"`, err.Error())
}

func TestStartWithoutBrowser(t *testing.T) {
	c, _ := testClient(t, fixedEndpoint{err: errdefs.Connection(nil, "no browser running")})
	c.command = func(string) (*exec.Cmd, error) {
		t.Fatal("daemon must not be spawned without a browser")
		return nil, nil
	}

	_, err := c.Start(context.Background(), Options{Name: "checkout"})
	assert.True(t, errors.Is(err, errdefs.ErrConnection))
}

func TestStartValidatesArguments(t *testing.T) {
	c, _ := testClient(t, fixedEndpoint{endpoint: "http://127.0.0.1:9222"})

	_, err := c.Start(context.Background(), Options{Name: "../escape"})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))

	_, err = c.Start(context.Background(), Options{Name: "ok", Filter: "[unterminated"})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}

func TestStartReturnsAcknowledgment(t *testing.T) {
	c, _ := testClient(t, fixedEndpoint{endpoint: "http://127.0.0.1:9222"})
	c.command = helperCommand("ack")
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Recording started: trace-1700000000000", res.Result)
	assert.True(t, res.Started)
	assert.Equal(t, "trace-1700000000000", res.SessionName)
	assert.Equal(t, 2, res.Pages)
}

func TestStartSurfacesDaemonFailure(t *testing.T) {
	c, _ := testClient(t, fixedEndpoint{endpoint: "http://127.0.0.1:9222"})
	c.command = helperCommand("fail")

	_, err := c.Start(context.Background(), Options{Name: "checkout"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConnection))
	assert.Contains(t, err.Error(), "no browser found")
}

func TestReadAck(t *testing.T) {
	ack, err := readAck(context.Background(), strings.NewReader(`{"started":true,"sessionName":"s","pages":1,"pid":42}`+"\n"), time.Second)
	require.NoError(t, err)
	assert.True(t, ack.Started)
	assert.Equal(t, "s", ack.SessionName)
	assert.Equal(t, 42, ack.PID)

	_, err = readAck(context.Background(), strings.NewReader(""), time.Second)
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))

	_, err = readAck(context.Background(), strings.NewReader("panic: boom\n"), time.Second)
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
}

func TestReadAckTimeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	_, err := readAck(context.Background(), r, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
	assert.Contains(t, err.Error(), "did not acknowledge")
}

func TestStopWithoutRecording(t *testing.T) {
	c, _ := testClient(t, nil)

	_, err := c.Stop(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
	assert.Equal(t, "no active recording", err.Error())
}

func TestStopClearsVanishedDaemon(t *testing.T) {
	c, _ := testClient(t, nil)
	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "checkout", PID: deadPID(t)}))

	_, err := c.Stop(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))

	st, ok, err := c.repo.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, st.Recording)
	assert.Equal(t, "checkout", st.LastSession)
}

func TestStatus(t *testing.T) {
	c, _ := testClient(t, nil)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Recording)

	require.NoError(t, c.repo.Write(&models.TracerState{Recording: false, LastSession: "checkout"}))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TracerState{Recording: false, LastSession: "checkout"}, st)

	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "gone", PID: deadPID(t)}))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Recording)
	assert.Equal(t, "Daemon process not found.", st.Note)
}

func TestStatusAsksLiveDaemon(t *testing.T) {
	c, _ := testClient(t, nil)
	fake := &fakeController{state: models.TracerState{Recording: true, SessionName: "live", CapturedRequests: 7, PID: os.Getpid()}}
	srv := httptest.NewServer(newControlRouter(fake))
	defer srv.Close()

	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "live", CapturedRequests: 1, PID: os.Getpid(), ControlAddr: srv.URL}))
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, st.CapturedRequests)

	// unreachable control endpoint falls back to the file
	srv.Close()
	st, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.CapturedRequests)
}

type fakeController struct {
	mu      sync.Mutex
	state   models.TracerState
	stopped int
}

func (f *fakeController) State() models.TracerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) RequestStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func TestControlRouter(t *testing.T) {
	fake := &fakeController{state: models.TracerState{Recording: true, SessionName: "checkout", PendingRequests: 3}}
	srv := httptest.NewServer(newControlRouter(fake))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	var st models.TracerState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, "checkout", st.SessionName)
	assert.Equal(t, 3, st.PendingRequests)

	resp, err = http.Get(srv.URL + "/v1/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, fake.stopped)
}

func TestRequestStopOverControlEndpoint(t *testing.T) {
	c, _ := testClient(t, nil)
	fake := &fakeController{}
	srv := httptest.NewServer(newControlRouter(fake))
	defer srv.Close()

	require.NoError(t, c.requestStop(context.Background(), srv.URL))
	assert.Equal(t, 1, fake.stopped)

	err := c.requestStop(context.Background(), "")
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
}

func TestWaitStopped(t *testing.T) {
	c, _ := testClient(t, nil)
	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "checkout", PID: os.Getpid()}))

	go func() {
		time.Sleep(150 * time.Millisecond)
		c.repo.Write(&models.TracerState{Recording: false, LastSession: "checkout", CapturedRequests: 4, Saved: "/tmp/checkout.json"})
	}()
	st, err := c.waitStopped(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, st.CapturedRequests)
	assert.Equal(t, "/tmp/checkout.json", st.Saved)

	require.NoError(t, c.repo.Write(&models.TracerState{Recording: true, SessionName: "stuck", PID: os.Getpid()}))
	_, err = c.waitStopped(context.Background(), 200*time.Millisecond)
	assert.True(t, errors.Is(err, errdefs.ErrDaemonLifecycle))
}

func TestWatchFollowsStateFile(t *testing.T) {
	c, _ := testClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan models.TracerState, 16)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, func(st models.TracerState) { seen <- st }) }()

	first := <-seen
	assert.False(t, first.Recording)

	require.NoError(t, c.repo.Write(&models.TracerState{Recording: false, LastSession: "checkout"}))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-seen:
			if st.LastSession == "checkout" {
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
}

func TestFinishSavesSessionAndState(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.TraceDir = t.TempDir()
	d := &Daemon{
		cfg:  cfg,
		log:  zap.NewNop(),
		repo: StateRepository(cfg),
		job: &networkJob{
			log:   zap.NewNop(),
			store: tracestore.NewStore(cfg.SessionsDir()),
			rec:   recorder.New(recorder.Options{Name: "checkout"}),
		},
		stopCh: make(chan struct{}),
	}

	require.NoError(t, d.finish(context.Background(), nil, &browser.Connection{Reused: true}))

	st, ok, err := d.repo.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, st.Recording)
	assert.Equal(t, "checkout", st.LastSession)
	assert.Equal(t, filepath.Join(cfg.SessionsDir(), "checkout.json"), st.Saved)
	assert.FileExists(t, st.Saved)

	d.RequestStop()
	d.RequestStop()
	select {
	case <-d.stopCh:
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, fmt.Sprintf("trace-%d", int64(1700000000123)), DefaultName(time.UnixMilli(1700000000123)))
}

func TestKindsUseSeparateStateFiles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()

	network := kindRepository(cfg, KindNetwork).Path()
	assert.Equal(t, cfg.TracerStatePath(), network)
	assert.Equal(t, network, kindRepository(cfg, "").Path())
	assert.Equal(t, filepath.Join(cfg.StateDir, "tracing-state.json"), kindRepository(cfg, KindTracing).Path())
	assert.Equal(t, filepath.Join(cfg.StateDir, "video-state.json"), kindRepository(cfg, KindVideo).Path())
}

func TestKindClientStartsItsKind(t *testing.T) {
	_, cfg := testClient(t, nil)
	c := NewKindClient(cfg, zap.NewNop(), nil, KindTracing)
	c.command = helperCommand("kind")
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	// a network recording does not block a trace
	require.NoError(t, StateRepository(cfg).Write(&models.TracerState{Recording: true, SessionName: "checkout", PID: os.Getpid()}))

	res, err := c.Start(context.Background(), Options{Endpoint: "http://127.0.0.1:9222"})
	require.NoError(t, err)
	assert.Equal(t, "tracing/tracing-1700000000000@http://127.0.0.1:9222", res.SessionName)
}

func TestKindClientNeedsEndpoint(t *testing.T) {
	_, cfg := testClient(t, nil)
	c := NewKindClient(cfg, zap.NewNop(), nil, KindVideo)
	c.command = func(string) (*exec.Cmd, error) {
		t.Fatal("daemon must not be spawned without an endpoint")
		return nil, nil
	}

	_, err := c.Start(context.Background(), Options{})
	assert.True(t, errors.Is(err, errdefs.ErrConnection))
}

func TestNewJob(t *testing.T) {
	cfg := config.DefaultConfig()

	j, err := newJob(cfg, zap.NewNop(), Options{Name: "a"})
	require.NoError(t, err)
	assert.IsType(t, &networkJob{}, j)

	j, err = newJob(cfg, zap.NewNop(), Options{Kind: KindTracing, Name: "a"})
	require.NoError(t, err)
	assert.IsType(t, &tracingJob{}, j)

	j, err = newJob(cfg, zap.NewNop(), Options{Kind: KindVideo, Name: "a", Width: 640})
	require.NoError(t, err)
	require.IsType(t, &videoJob{}, j)
	assert.Equal(t, 640, *j.(*videoJob).screencast().MaxWidth)
	assert.Nil(t, j.(*videoJob).screencast().MaxHeight)

	_, err = newJob(cfg, zap.NewNop(), Options{Kind: "audio", Name: "a"})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))

	_, err = newJob(cfg, zap.NewNop(), Options{Name: "a", Filter: "[x"})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}

func TestTracingFinishWithoutStart(t *testing.T) {
	j := newTracingJob("t", t.TempDir(), zap.NewNop())
	res, err := j.finish(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrCapture))
	assert.Equal(t, "t", res.Name)
	assert.Empty(t, res.Saved)
}

func TestVideoFinishWithoutFrames(t *testing.T) {
	out := t.TempDir()
	keep := filepath.Join(out, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	j := newVideoJob("v", out, 0, 0, zap.NewNop())
	res, err := j.finish(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Saved)
	assert.Zero(t, res.Captured)
	assert.FileExists(t, keep)
}

type failingJob struct{}

func (failingJob) start(context.Context, *rod.Browser) (*recorder.StartInfo, error) { return nil, nil }
func (failingJob) status() jobStatus                                                { return jobStatus{Name: "broken"} }
func (failingJob) finish(context.Context) (jobResult, error) {
	return jobResult{Name: "broken"}, errors.New("disk full")
}

func TestFinishRecordsFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()
	d := &Daemon{cfg: cfg, log: zap.NewNop(), repo: kindRepository(cfg, KindTracing), job: failingJob{}, stopCh: make(chan struct{})}

	err := d.finish(context.Background(), nil, &browser.Connection{Reused: true})
	require.EqualError(t, err, "disk full")

	st, ok, err := d.repo.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, st.Recording)
	assert.Equal(t, "broken", st.LastSession)
	assert.Equal(t, "Recording failed: disk full", st.Note)
}
