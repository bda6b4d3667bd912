package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/daemon"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

type fakeCaptureClient struct {
	kind    daemon.Kind
	state   models.TracerState
	started []daemon.Options
	stop    *daemon.StopResult
}

func (f *fakeCaptureClient) Status(context.Context) (models.TracerState, error) { return f.state, nil }

func (f *fakeCaptureClient) Start(_ context.Context, opts daemon.Options) (*daemon.StartResult, error) {
	f.started = append(f.started, opts)
	f.state.Recording = true
	return &daemon.StartResult{Result: "ok"}, nil
}

func (f *fakeCaptureClient) Stop(context.Context) (*daemon.StopResult, error) {
	f.state.Recording = false
	return f.stop, nil
}

// withCaptureClient routes the capture tools to fake for the rest of t.
func withCaptureClient(t *testing.T, fake *fakeCaptureClient) {
	t.Helper()
	prev := newCaptureClient
	newCaptureClient = func(_ *Env, kind daemon.Kind) captureClient {
		fake.kind = kind
		return fake
	}
	t.Cleanup(func() { newCaptureClient = prev })
}

func captureEnv(t *testing.T) *Env {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	return &Env{Config: cfg, Log: zap.NewNop(), Endpoint: "http://127.0.0.1:9222"}
}

func TestTracingStart(t *testing.T) {
	fake := &fakeCaptureClient{}
	withCaptureClient(t, fake)
	env := captureEnv(t)

	resp := &Response{}
	require.NoError(t, tracingStart(context.Background(), env, noParams{}, resp))
	assert.Equal(t, []string{"Trace recording started."}, resp.results)
	assert.Equal(t, daemon.KindTracing, fake.kind)
	require.Len(t, fake.started, 1)
	assert.Equal(t, "http://127.0.0.1:9222", fake.started[0].Endpoint)

	err := tracingStart(context.Background(), env, noParams{}, &Response{})
	assert.ErrorIs(t, err, errdefs.ErrDaemonLifecycle)
	assert.EqualError(t, err, "Tracing has already been started.")
	assert.Len(t, fake.started, 1)
}

func TestTracingStartNeedsEndpoint(t *testing.T) {
	withCaptureClient(t, &fakeCaptureClient{})
	env := captureEnv(t)
	env.Endpoint = ""

	err := tracingStart(context.Background(), env, noParams{}, &Response{})
	assert.ErrorIs(t, err, errdefs.ErrConnection)
}

func TestTracingStop(t *testing.T) {
	env := captureEnv(t)
	saved := filepath.Join(env.Config.OutputDir, "trace-x.json")
	require.NoError(t, os.WriteFile(saved, []byte(`{"traceEvents":[]}`), 0o644))

	fake := &fakeCaptureClient{stop: &daemon.StopResult{Saved: saved}}
	withCaptureClient(t, fake)

	err := tracingStop(context.Background(), env, saveParams{}, &Response{})
	assert.EqualError(t, err, "Tracing has not been started.")

	fake.state.Recording = true
	dest := filepath.Join(t.TempDir(), "checkout-trace.json")
	resp := &Response{}
	require.NoError(t, tracingStop(context.Background(), env, saveParams{Filename: dest}, resp))
	assert.Equal(t, []string{"Trace saved: [Trace](" + dest + ")"}, resp.results)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, saved)
}

func TestStartVideoSize(t *testing.T) {
	fake := &fakeCaptureClient{}
	withCaptureClient(t, fake)

	resp := &Response{}
	require.NoError(t, startVideo(context.Background(), captureEnv(t), startVideoParams{Size: &videoSize{Width: 800, Height: 600}}, resp))
	assert.Equal(t, daemon.KindVideo, fake.kind)
	assert.Equal(t, 800, fake.started[0].Width)
	assert.Equal(t, 600, fake.started[0].Height)
	assert.Equal(t, []string{"Video recording started."}, resp.results)

	err := startVideo(context.Background(), captureEnv(t), startVideoParams{}, &Response{})
	assert.EqualError(t, err, "Video recording already started.")

	err = startVideo(context.Background(), captureEnv(t), startVideoParams{Size: &videoSize{Width: -1}}, &Response{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestStopVideo(t *testing.T) {
	env := captureEnv(t)
	root := filepath.Join(env.Config.OutputDir, "video-x")
	for _, page := range []string{"page-2", "page-1"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, page), 0o755))
	}

	fake := &fakeCaptureClient{state: models.TracerState{Recording: true}, stop: &daemon.StopResult{Saved: root, CapturedRequests: 12}}
	withCaptureClient(t, fake)

	resp := &Response{}
	require.NoError(t, stopVideo(context.Background(), env, saveParams{}, resp))
	assert.Equal(t, []string{
		"[Video](" + filepath.Join(root, "page-1") + ")",
		"[Video](" + filepath.Join(root, "page-2") + ")",
		"12 frames",
	}, resp.results)

	err := stopVideo(context.Background(), env, saveParams{}, &Response{})
	assert.EqualError(t, err, "Video recording not started.")
}

func TestStopVideoWithoutFrames(t *testing.T) {
	withCaptureClient(t, &fakeCaptureClient{state: models.TracerState{Recording: true}, stop: &daemon.StopResult{}})

	resp := &Response{}
	require.NoError(t, stopVideo(context.Background(), captureEnv(t), saveParams{Filename: "ignored"}, resp))
	assert.Equal(t, []string{"No videos were recorded."}, resp.results)
}
