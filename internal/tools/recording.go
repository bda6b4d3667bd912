package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shehryarbajwa/browserctl/internal/daemon"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// captureClient drives the daemon that holds a trace or screencast open
// across invocations.
type captureClient interface {
	Status(ctx context.Context) (models.TracerState, error)
	Start(ctx context.Context, opts daemon.Options) (*daemon.StartResult, error)
	Stop(ctx context.Context) (*daemon.StopResult, error)
}

var newCaptureClient = func(env *Env, kind daemon.Kind) captureClient {
	return daemon.NewKindClient(env.Config, env.Log, nil, kind)
}

type saveParams struct {
	Filename string `json:"filename,omitempty"`
}

type videoSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type startVideoParams struct {
	Size *videoSize `json:"size,omitempty"`
}

func recordingTools() []Tool {
	return []Tool{
		tool("tracingStart", "Start a performance trace of the browser", tracingStart),
		tool("tracingStop", "Stop the performance trace and save it", tracingStop),
		tool("startVideo", "Start recording a screencast of every page", startVideo),
		tool("stopVideo", "Stop the screencast and save its frames", stopVideo),
	}
}

// startCapture starts the daemon of kind unless one is already running.
func startCapture(ctx context.Context, env *Env, kind daemon.Kind, opts daemon.Options, running string) error {
	if env.Endpoint == "" {
		return errdefs.Connection(nil, "browser endpoint unknown")
	}
	c := newCaptureClient(env, kind)
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if st.Recording {
		return errdefs.DaemonLifecycle("%s", running)
	}
	opts.Endpoint = env.Endpoint
	_, err = c.Start(ctx, opts)
	return err
}

// stopCapture stops the daemon of kind, failing with idle when none runs.
func stopCapture(ctx context.Context, env *Env, kind daemon.Kind, idle string) (*daemon.StopResult, error) {
	c := newCaptureClient(env, kind)
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Recording {
		return nil, errdefs.DaemonLifecycle("%s", idle)
	}
	return c.Stop(ctx)
}

func tracingStart(ctx context.Context, env *Env, _ noParams, resp *Response) error {
	if err := startCapture(ctx, env, daemon.KindTracing, daemon.Options{}, "Tracing has already been started."); err != nil {
		return err
	}
	resp.AddResult("Trace recording started.")
	return nil
}

func tracingStop(ctx context.Context, env *Env, p saveParams, resp *Response) error {
	res, err := stopCapture(ctx, env, daemon.KindTracing, "Tracing has not been started.")
	if err != nil {
		return err
	}
	if res.Saved == "" {
		return errdefs.Capture(nil, "trace was not saved")
	}
	path, err := moveArtifact(env, res.Saved, "trace", "json", p.Filename)
	if err != nil {
		return err
	}
	resp.AddResultf("Trace saved: [Trace](%s)", path)
	return nil
}

func startVideo(ctx context.Context, env *Env, p startVideoParams, resp *Response) error {
	var opts daemon.Options
	if p.Size != nil {
		if p.Size.Width < 0 || p.Size.Height < 0 {
			return errdefs.InvalidArgument("size must not be negative")
		}
		opts.Width, opts.Height = p.Size.Width, p.Size.Height
	}
	if err := startCapture(ctx, env, daemon.KindVideo, opts, "Video recording already started."); err != nil {
		return err
	}
	resp.AddResult("Video recording started.")
	return nil
}

func stopVideo(ctx context.Context, env *Env, p saveParams, resp *Response) error {
	res, err := stopCapture(ctx, env, daemon.KindVideo, "Video recording not started.")
	if err != nil {
		return err
	}
	if res.Saved == "" {
		resp.AddResult("No videos were recorded.")
		return nil
	}
	root, err := moveArtifact(env, res.Saved, "video", "", p.Filename)
	if err != nil {
		return err
	}
	pages, err := pageDirs(root)
	if err != nil {
		return err
	}
	for _, dir := range pages {
		resp.AddResultf("[Video](%s)", dir)
	}
	resp.AddResultf("%d frames", res.CapturedRequests)
	return nil
}

// moveArtifact moves what a daemon saved to the name the user asked for.
// Without a name the daemon's own path is kept.
func moveArtifact(env *Env, saved, prefix, ext, suggested string) (string, error) {
	if suggested == "" {
		return saved, nil
	}
	dest, err := outputFile(env.Config.OutputDir, prefix, ext, suggested, now())
	if err != nil {
		return "", err
	}
	if err := os.Rename(saved, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", saved, dest, err)
	}
	return dest, nil
}

func pageDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
