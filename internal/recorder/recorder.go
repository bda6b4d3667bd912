// Package recorder captures the network traffic of browser pages into
// trace session records.
//
// Each request moves through a small state machine keyed by its transient
// correlation id:
//
//	new ──response──▶ responseReceived ──finished──▶ complete
//	 │                       │
//	 └──────failed───────────┴──────────────────────▶ failed
//
// Only the Recorder owns the in-flight table, and every transition goes
// through one of its On* methods.
package recorder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/ratelimit"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// Key identifies a request while it is in flight. Request ids are only
// unique within one target, so the target is part of the key.
type Key struct {
	Target    string
	RequestID string
}

type RequestSent struct {
	Key          Key
	URL          string
	Method       string
	Headers      map[string]string
	PostData     *string
	ResourceType string
	Initiator    string
	Timestamp    float64
	WallTime     float64
	// Redirect is set when this event continues a redirect chain; it is
	// the response that ended the previous hop.
	Redirect *ResponseReceived
}

type ResponseReceived struct {
	Key        Key
	Status     int
	StatusText string
	Headers    map[string]string
	MimeType   string
	Protocol   string
	Timestamp  float64
}

type LoadingFinished struct {
	Key               Key
	EncodedDataLength float64
}

type LoadingFailed struct {
	Key       Key
	ErrorText string
	Canceled  bool
}

// BodyFetcher retrieves a finished response body.
type BodyFetcher interface {
	ResponseBody(ctx context.Context, requestID string) (string, error)
}

type phase int

const (
	phaseNew phase = iota
	phaseResponseReceived
	phaseFetchingBody
)

type entry struct {
	phase  phase
	record models.NetworkRequestRecord
}

// Options configure a Recorder.
type Options struct {
	Name             string
	Filter           *Filter
	MaxBodySize      int
	FetchConcurrency int64
	Limiter          *ratelimit.Limiter
	Logger           *zap.Logger
}

// Status is a point-in-time view of a recording.
type Status struct {
	Recording        bool      `json:"recording"`
	SessionName      string    `json:"sessionName"`
	StartTime        time.Time `json:"startTime"`
	CapturedRequests int       `json:"capturedRequests"`
	PendingRequests  int       `json:"pendingRequests"`
}

type StopInfo struct {
	SessionName   string    `json:"sessionName"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	TotalRequests int       `json:"totalRequests"`
}

type Recorder struct {
	opts     Options
	log      *zap.Logger
	fetchSem *semaphore.Weighted
	limiter  *ratelimit.Limiter

	mu        sync.Mutex
	recording bool
	startTime time.Time
	inflight  map[Key]*entry
	completed []models.NetworkRequestRecord

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Recorder {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter(0, 1)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Recorder{
		opts:     opts,
		log:      opts.Logger.Named("recorder"),
		fetchSem: semaphore.NewWeighted(opts.FetchConcurrency),
		limiter:  opts.Limiter,
		inflight: make(map[Key]*entry),
	}
}

// begin resets the capture tables and opens the recording.
func (r *Recorder) begin(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.startTime = now
	r.inflight = make(map[Key]*entry)
	r.completed = nil
}

func (r *Recorder) OnRequestSent(ev RequestSent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || !r.opts.Filter.Match(ev.URL) {
		return
	}

	// A redirect reuses the request id: close out the previous hop first.
	if prev, ok := r.inflight[ev.Key]; ok {
		if ev.Redirect != nil {
			applyResponse(&prev.record, *ev.Redirect)
		}
		r.completeLocked(ev.Key, prev)
	}

	resourceType := ev.ResourceType
	if resourceType == "" {
		resourceType = "Other"
	}
	initiator := ev.Initiator
	if initiator == "" {
		initiator = "other"
	}
	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	r.inflight[ev.Key] = &entry{
		phase: phaseNew,
		record: models.NetworkRequestRecord{
			URL:            ev.URL,
			Method:         ev.Method,
			ResourceType:   resourceType,
			RequestHeaders: headers,
			PostData:       ev.PostData,
			Initiator:      initiator,
			Timestamp:      ev.Timestamp,
			WallTime:       ev.WallTime,
		},
	}
}

func (r *Recorder) OnResponseReceived(ev ResponseReceived) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	e, ok := r.inflight[ev.Key]
	if !ok || e.phase == phaseFetchingBody {
		return
	}
	applyResponse(&e.record, ev)
	e.phase = phaseResponseReceived
}

func applyResponse(rec *models.NetworkRequestRecord, ev ResponseReceived) {
	status := ev.Status
	ts := ev.Timestamp
	rec.Status = &status
	rec.StatusText = ev.StatusText
	rec.ResponseHeaders = ev.Headers
	rec.MimeType = ev.MimeType
	rec.Protocol = ev.Protocol
	rec.ResponseTimestamp = &ts
}

// OnLoadingFinished completes a request, fetching its body through fetcher
// when the capture rule allows. A failed fetch leaves the body null.
func (r *Recorder) OnLoadingFinished(ctx context.Context, ev LoadingFinished, fetcher BodyFetcher) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	e, ok := r.inflight[ev.Key]
	if !ok || e.phase == phaseFetchingBody {
		r.mu.Unlock()
		return
	}
	size := ev.EncodedDataLength
	url := e.record.URL
	e.record.EncodedDataLength = &size
	capture := fetcher != nil && ShouldCaptureBody(e.record.MimeType, size, r.opts.MaxBodySize)
	e.phase = phaseFetchingBody
	r.mu.Unlock()

	var body *string
	if capture {
		b, err := r.fetchBody(ctx, ev.Key, fetcher)
		if err != nil {
			r.log.Debug("response body not captured", zap.String("url", url), zap.Error(err))
		} else {
			body = &b
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.inflight[ev.Key]; ok && cur == e {
		e.record.ResponseBody = body
		r.completeLocked(ev.Key, e)
	}
}

func (r *Recorder) fetchBody(ctx context.Context, key Key, fetcher BodyFetcher) (string, error) {
	if err := r.fetchSem.Acquire(ctx, 1); err != nil {
		return "", errdefs.Capture(err, "body fetch for %s cancelled", key.RequestID)
	}
	defer r.fetchSem.Release(1)

	if err := r.limiter.Wait(ctx, key.Target); err != nil {
		return "", errdefs.Capture(err, "body fetch for %s cancelled", key.RequestID)
	}
	body, err := fetcher.ResponseBody(ctx, key.RequestID)
	if err != nil {
		return "", errdefs.Capture(err, "fetch body for %s", key.RequestID)
	}
	return body, nil
}

func (r *Recorder) OnLoadingFailed(ev LoadingFailed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.inflight[ev.Key]
	if !ok {
		return
	}
	e.record.Error = ev.ErrorText
	e.record.Canceled = ev.Canceled
	r.completeLocked(ev.Key, e)
}

func (r *Recorder) completeLocked(key Key, e *entry) {
	delete(r.inflight, key)
	r.completed = append(r.completed, e.record)
}

// Status reports progress.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Recording:        r.recording,
		SessionName:      r.opts.Name,
		StartTime:        r.startTime,
		CapturedRequests: len(r.completed),
		PendingRequests:  len(r.inflight),
	}
}

// Requests returns a copy of the completed records.
func (r *Recorder) Requests() []models.NetworkRequestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NetworkRequestRecord(nil), r.completed...)
}

// BuildSession snapshots the recording as a trace session. Requests still
// in flight are not included; their number is kept in DroppedInFlight.
func (r *Recorder) BuildSession(end time.Time) *models.TraceSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	requests := append([]models.NetworkRequestRecord{}, r.completed...)
	return &models.TraceSession{
		Session: models.TraceMeta{
			Name:            r.opts.Name,
			StartTime:       r.startTime,
			EndTime:         end,
			TotalRequests:   len(requests),
			DroppedInFlight: len(r.inflight),
		},
		Requests: requests,
	}
}

// Stop closes the recording and detaches from every page. Events that
// arrive afterwards are ignored.
func (r *Recorder) Stop() StopInfo {
	r.mu.Lock()
	r.recording = false
	cancel := r.cancel
	r.cancel = nil
	info := StopInfo{
		SessionName:   r.opts.Name,
		StartTime:     r.startTime,
		EndTime:       time.Now(),
		TotalRequests: len(r.completed),
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return info
}
