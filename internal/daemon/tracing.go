package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
)

// traceCategories is the category set of a DevTools performance recording,
// screenshots included.
var traceCategories = []string{
	"-*",
	"devtools.timeline",
	"v8.execute",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"toplevel",
	"blink.console",
	"blink.user_timing",
	"latencyInfo",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-v8.cpu_profiler",
	"disabled-by-default-devtools.screenshot",
}

// tracingJob holds a browser-wide performance trace open. Chrome ends a
// trace when the client that started it disconnects, which is why it lives
// in a daemon rather than in the tool invocation.
type tracingJob struct {
	name string
	dir  string
	log  *zap.Logger

	mu        sync.Mutex
	browser   *rod.Browser
	recording bool
	startTime time.Time
}

func newTracingJob(name, dir string, logger *zap.Logger) *tracingJob {
	return &tracingJob{name: name, dir: dir, log: logger}
}

func (j *tracingJob) start(ctx context.Context, b *rod.Browser) (*recorder.StartInfo, error) {
	err := proto.TracingStart{
		TransferMode: proto.TracingStartTransferModeReturnAsStream,
		TraceConfig:  &proto.TracingTraceConfig{IncludedCategories: traceCategories},
	}.Call(b.Context(ctx))
	if err != nil {
		return nil, errdefs.Capture(err, "start tracing")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.browser = b
	j.recording = true
	j.startTime = time.Now()
	return &recorder.StartInfo{SessionName: j.name, StartTime: j.startTime}, nil
}

func (j *tracingJob) status() jobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return jobStatus{Recording: j.recording, Name: j.name, StartTime: j.startTime}
}

// finish ends the trace and streams it to a JSON file in the Trace Event
// Format, loadable by the DevTools performance panel.
func (j *tracingJob) finish(ctx context.Context) (jobResult, error) {
	j.mu.Lock()
	b := j.browser
	j.recording = false
	j.mu.Unlock()

	res := jobResult{Name: j.name}
	if b == nil {
		return res, errdefs.Capture(nil, "tracing was never started")
	}
	b = b.Context(ctx)

	var done proto.TracingTracingComplete
	wait := b.WaitEvent(&done)
	if err := (proto.TracingEnd{}).Call(b); err != nil {
		return res, errdefs.Capture(err, "end tracing")
	}
	wait()
	if done.Stream == "" {
		return res, errdefs.Capture(ctx.Err(), "trace data was not delivered")
	}
	if done.DataLossOccurred {
		j.log.Warn("trace buffer overflowed, the trace is incomplete")
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return res, err
	}
	path := filepath.Join(j.dir, config.ArtifactName("trace", "json", j.startTime))
	n, err := writeStream(path, rod.NewStreamReader(b, done.Stream))
	if err != nil {
		return res, fmt.Errorf("failed to save trace: %w", err)
	}
	res.Saved = path
	j.log.Info("trace saved", zap.String("path", path), zap.Int64("bytes", n))
	return res, nil
}

func writeStream(path string, r io.ReadCloser) (int64, error) {
	defer r.Close()
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return n, err
}
