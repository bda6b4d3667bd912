package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/ratelimit"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
	"github.com/shehryarbajwa/browserctl/internal/tracestore"
)

// Kind selects what a daemon captures. Each kind has its own status file,
// so one daemon of every kind may run at the same time.
type Kind string

const (
	KindNetwork Kind = "network"
	KindTracing Kind = "tracing"
	KindVideo   Kind = "video"
)

func (k Kind) normalize() Kind {
	if k == "" {
		return KindNetwork
	}
	return k
}

// prefix names recordings of this kind that were started without a name.
func (k Kind) prefix() string {
	if k.normalize() == KindNetwork {
		return "trace"
	}
	return string(k)
}

// job is the capture a daemon holds open between its acknowledgment and
// its stop.
type job interface {
	start(ctx context.Context, b *rod.Browser) (*recorder.StartInfo, error)
	status() jobStatus
	// finish ends the capture and writes its output. It runs before the
	// browser connection is dropped.
	finish(ctx context.Context) (jobResult, error)
}

type jobStatus struct {
	Recording bool
	Name      string
	StartTime time.Time
	Captured  int
	Pending   int
}

type jobResult struct {
	Name     string
	Captured int
	Saved    string
}

func newJob(cfg *config.Config, logger *zap.Logger, opts Options) (job, error) {
	switch opts.Kind.normalize() {
	case KindNetwork:
		filter, err := recorder.NewFilter(opts.Filter)
		if err != nil {
			return nil, errdefs.InvalidArgument("%v", err)
		}
		return &networkJob{
			log:   logger,
			store: tracestore.NewStore(cfg.SessionsDir()),
			rec: recorder.New(recorder.Options{
				Name:             opts.Name,
				Filter:           filter,
				MaxBodySize:      cfg.Recorder.MaxBodySize,
				FetchConcurrency: cfg.Recorder.BodyFetchConcurrency,
				Limiter:          ratelimit.NewLimiter(cfg.Recorder.BodyFetchRate, cfg.Recorder.BodyFetchBurst),
				Logger:           logger,
			}),
		}, nil
	case KindTracing:
		return newTracingJob(opts.Name, cfg.OutputDir, logger), nil
	case KindVideo:
		return newVideoJob(opts.Name, cfg.OutputDir, opts.Width, opts.Height, logger), nil
	}
	return nil, errdefs.InvalidArgument("unknown capture kind %q", opts.Kind)
}

// networkJob records HTTP traffic into a trace session.
type networkJob struct {
	log   *zap.Logger
	rec   *recorder.Recorder
	store *tracestore.Store
}

func (j *networkJob) start(ctx context.Context, b *rod.Browser) (*recorder.StartInfo, error) {
	info, err := j.rec.Start(ctx, b)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (j *networkJob) status() jobStatus {
	st := j.rec.Status()
	return jobStatus{
		Recording: st.Recording,
		Name:      st.SessionName,
		StartTime: st.StartTime,
		Captured:  st.CapturedRequests,
		Pending:   st.PendingRequests,
	}
}

func (j *networkJob) finish(ctx context.Context) (jobResult, error) {
	session := j.rec.BuildSession(time.Now())
	j.rec.Stop()

	path, err := j.store.Save(session)
	res := jobResult{Name: session.Session.Name, Captured: session.Session.TotalRequests, Saved: path}
	if err != nil {
		return res, fmt.Errorf("failed to save session: %w", err)
	}
	j.log.Info("recording saved",
		zap.String("session", session.Session.Name),
		zap.Int("requests", session.Session.TotalRequests),
		zap.Int("droppedInFlight", session.Session.DroppedInFlight),
		zap.String("path", path))
	return res, nil
}
