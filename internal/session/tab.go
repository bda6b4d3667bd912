package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

const (
	refFreshness          = 500 * time.Millisecond
	settleDelay           = 500 * time.Millisecond
	downloadDelay         = 500 * time.Millisecond
	navigationLoadTimeout = 10 * time.Second
	loadAfterNavigate     = 5 * time.Second
	modalGrace            = 250 * time.Millisecond
)

// Tab wraps one page and the state observed on it during this process.
type Tab struct {
	page *rod.Page
	cfg  *config.Config
	log  *zap.Logger

	mu       sync.Mutex
	console  *boundedLog[ConsoleMessage]
	requests *boundedLog[*ObservedRequest]
	inflight map[string]*ObservedRequest
	modals   []*ModalState
	modalCh  chan struct{}
	snapshot *Snapshot
	watches  map[*requestWatch]struct{}
}

func newTabState(cfg *config.Config, logger *zap.Logger) *Tab {
	return &Tab{
		cfg:      cfg,
		log:      logger,
		console:  newBoundedLog[ConsoleMessage](maxConsoleEntries),
		requests: newBoundedLog[*ObservedRequest](maxRequestEntries),
		inflight: map[string]*ObservedRequest{},
		modalCh:  make(chan struct{}, 1),
		watches:  map[*requestWatch]struct{}{},
	}
}

func newTab(ctx context.Context, page *rod.Page, cfg *config.Config, logger *zap.Logger) *Tab {
	t := newTabState(cfg, logger.With(zap.String("target", string(page.TargetID))))
	t.page = page

	wait := page.Context(ctx).EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			t.addConsole(string(e.Type), formatConsoleArgs(e.Args))
		},
		func(e *proto.RuntimeExceptionThrown) {
			text := e.ExceptionDetails.Text
			if ex := e.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
				text = ex.Description
			}
			t.addConsole("error", text)
		},
		func(e *proto.NetworkRequestWillBeSent) {
			navigation := e.Type == proto.NetworkResourceTypeDocument && string(e.RequestID) == string(e.LoaderID)
			t.onRequest(string(e.RequestID), e.Request.URL, e.Request.Method, string(e.Type), navigation)
		},
		func(e *proto.NetworkResponseReceived) {
			t.onResponse(string(e.RequestID), e.Response.Status, string(e.Type))
		},
		func(e *proto.NetworkLoadingFinished) {
			t.onRequestDone(string(e.RequestID), "")
		},
		func(e *proto.NetworkLoadingFailed) {
			t.onRequestDone(string(e.RequestID), e.ErrorText)
		},
		func(e *proto.PageJavascriptDialogOpening) {
			t.pushModal(dialogModal(e))
		},
		func(e *proto.PageJavascriptDialogClosed) {
			t.clearModals(ModalDialog)
		},
		func(e *proto.PageFileChooserOpened) {
			t.pushModal(fileChooserModal(e))
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame.ParentID == "" {
				t.invalidateSnapshot()
			}
		},
	)
	go wait()

	if err := (proto.PageSetInterceptFileChooserDialog{Enabled: true}).Call(page); err != nil {
		t.log.Debug("file chooser interception unavailable", zap.Error(err))
	}
	return t
}

func (t *Tab) Page() *rod.Page { return t.page }

func (t *Tab) TargetID() proto.TargetTargetID { return t.page.TargetID }

// Title returns the page title, or "" when the page cannot answer.
func (t *Tab) Title() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (t *Tab) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// NormalizeURL adds a scheme to scheme-less input: http for localhost,
// https otherwise.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	for _, p := range []string{"about:", "data:", "file:", "chrome:", "javascript:", "blob:"} {
		if strings.HasPrefix(raw, p) {
			return raw
		}
	}
	if strings.HasPrefix(raw, "localhost") || strings.HasPrefix(raw, "127.0.0.1") {
		return "http://" + raw
	}
	return "https://" + raw
}

func isDownloadError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "net::ERR_ABORTED") || strings.Contains(msg, "Download is starting")
}

// Navigate loads url in the tab. A navigation aborted because the response
// became a download is not an error.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.ClearRequests()

	p := t.page.Context(ctx).Timeout(t.cfg.Timeouts.Navigation)
	defer p.CancelTimeout()
	if err := p.Navigate(NormalizeURL(url)); err != nil {
		if !isDownloadError(err) {
			return err
		}
		sleep(ctx, downloadDelay)
		return nil
	}
	_ = t.page.Context(ctx).Timeout(loadAfterNavigate).WaitLoad()
	return nil
}

// CaptureSnapshot renders the accessibility tree of the main document and
// remembers it for ref resolution.
func (t *Tab) CaptureSnapshot(ctx context.Context) (*Snapshot, error) {
	p := t.page.Context(ctx).Timeout(t.cfg.Timeouts.Action)
	defer p.CancelTimeout()

	tree, err := proto.PageGetFrameTree{}.Call(p)
	if err != nil {
		return nil, err
	}
	ax, err := proto.AccessibilityGetFullAXTree{}.Call(p)
	if err != nil {
		return nil, err
	}

	snap := buildSnapshot(DocTag(string(tree.FrameTree.Frame.LoaderID)), convertAXNodes(ax.Nodes))
	snap.URL = tree.FrameTree.Frame.URL
	snap.Title = t.Title()
	snap.CapturedAt = time.Now()

	t.mu.Lock()
	t.snapshot = snap
	t.mu.Unlock()
	return snap, nil
}

func (t *Tab) lastSnapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

func (t *Tab) invalidateSnapshot() {
	t.mu.Lock()
	t.snapshot = nil
	t.mu.Unlock()
}

// ResolvedRef is an element located through a snapshot ref.
type ResolvedRef struct {
	Element *rod.Element
	Ref     string
	Label   string
}

// RefLocator resolves ref against the current document. Snapshots older
// than refFreshness are retaken first, so refs minted for a previous
// document never resolve.
func (t *Tab) RefLocator(ctx context.Context, ref string) (*ResolvedRef, error) {
	snap := t.lastSnapshot()
	if snap == nil || time.Since(snap.CapturedAt) > refFreshness {
		var err error
		if snap, err = t.CaptureSnapshot(ctx); err != nil {
			return nil, err
		}
	}
	id, err := snap.Lookup(ref)
	if err != nil {
		return nil, err
	}

	p := t.page.Context(ctx)
	res, err := proto.DOMResolveNode{BackendNodeID: proto.DOMBackendNodeID(id)}.Call(p)
	if err != nil {
		return nil, errdefs.NotFound("ref %s not found in current snapshot, retake a snapshot", ref)
	}
	el, err := p.ElementFromObject(res.Object)
	if err != nil {
		return nil, errdefs.NotFound("ref %s not found in current snapshot, retake a snapshot", ref)
	}
	return &ResolvedRef{Element: el, Ref: ref, Label: snap.Label(ref)}, nil
}

// WaitForTimeout waits d. With a dialog pending the page cannot run
// script, so the wait happens in-process instead of on a page timer.
func (t *Tab) WaitForTimeout(ctx context.Context, d time.Duration) {
	if t.hasModal(ModalDialog) || t.page == nil {
		sleep(ctx, d)
		return
	}
	p := t.page.Context(ctx).Timeout(d + t.cfg.Timeouts.Action)
	defer p.CancelTimeout()
	_, _ = p.Eval(`ms => new Promise(f => setTimeout(f, ms))`, d.Milliseconds())
}

// WaitForCompletion runs action and then waits for the requests it fired.
// A navigation waits for the load event; otherwise pending requests race a
// fixed timeout followed by one settle delay.
func (t *Tab) WaitForCompletion(ctx context.Context, action func(context.Context) error) error {
	w := t.watch()
	defer t.unwatch(w)

	if err := action(ctx); err != nil {
		return err
	}
	t.WaitForTimeout(ctx, settleDelay)

	seen, navigation := t.closeWatch(w)
	if navigation {
		_ = t.page.Context(ctx).Timeout(navigationLoadTimeout).WaitLoad()
		return nil
	}

	timer := time.NewTimer(t.cfg.Timeouts.Settle)
	defer timer.Stop()
	for !w.done(t) {
		select {
		case <-w.changed:
		case <-timer.C:
			return t.settleIfAny(ctx, seen)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.settleIfAny(ctx, seen)
}

func (t *Tab) settleIfAny(ctx context.Context, seen int) error {
	if seen > 0 {
		t.WaitForTimeout(ctx, settleDelay)
	}
	return nil
}

func (t *Tab) addConsole(typ, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.console.add(ConsoleMessage{Type: typ, Text: text, Timestamp: time.Now()})
}

// ConsoleMessages returns messages at or above the severity named by level.
func (t *Tab) ConsoleMessages(level string) []ConsoleMessage {
	threshold := levelThreshold(level)
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ConsoleMessage
	for _, m := range t.console.entries {
		if consoleLevel(m.Type) <= threshold {
			out = append(out, m)
		}
	}
	return out
}

func (t *Tab) ClearConsole() {
	t.mu.Lock()
	t.console.clear()
	t.mu.Unlock()
}

func (t *Tab) Requests() []ObservedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ObservedRequest, 0, len(t.requests.entries))
	for _, r := range t.requests.entries {
		out = append(out, *r)
	}
	return out
}

func (t *Tab) ClearRequests() {
	t.mu.Lock()
	t.requests.clear()
	t.mu.Unlock()
}

func (t *Tab) pushModal(m *ModalState) {
	t.mu.Lock()
	t.modals = append(t.modals, m)
	t.mu.Unlock()
	select {
	case t.modalCh <- struct{}{}:
	default:
	}
}

func (t *Tab) clearModal(m *ModalState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.modals {
		if s == m {
			t.modals = append(t.modals[:i:i], t.modals[i+1:]...)
			return
		}
	}
}

func (t *Tab) clearModals(typ ModalType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.modals[:0:0]
	for _, s := range t.modals {
		if s.Type != typ {
			kept = append(kept, s)
		}
	}
	t.modals = kept
}

// ModalStates returns the pending modal states, oldest first.
func (t *Tab) ModalStates() []ModalState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ModalState, 0, len(t.modals))
	for _, m := range t.modals {
		out = append(out, *m)
	}
	return out
}

func (t *Tab) findModal(typ ModalType) *ModalState {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.modals {
		if m.Type == typ {
			return m
		}
	}
	return nil
}

func (t *Tab) hasModal(typ ModalType) bool { return t.findModal(typ) != nil }

// awaitModal gives a modal opened before this process attached a short
// grace period to be reported.
func (t *Tab) awaitModal(ctx context.Context, typ ModalType) *ModalState {
	deadline := time.NewTimer(modalGrace)
	defer deadline.Stop()
	for {
		if m := t.findModal(typ); m != nil {
			return m
		}
		select {
		case <-t.modalCh:
		case <-deadline.C:
			return t.findModal(typ)
		case <-ctx.Done():
			return nil
		}
	}
}

// HandleDialog accepts or dismisses the pending dialog.
func (t *Tab) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	m := t.awaitModal(ctx, ModalDialog)
	if m == nil {
		return errdefs.ModalState("No dialog visible")
	}
	t.clearModal(m)
	return t.WaitForCompletion(ctx, func(ctx context.Context) error {
		return proto.PageHandleJavaScriptDialog{Accept: accept, PromptText: promptText}.Call(t.page.Context(ctx))
	})
}

// UploadFiles answers the pending file chooser with paths.
func (t *Tab) UploadFiles(ctx context.Context, paths []string) error {
	m := t.awaitModal(ctx, ModalFileChooser)
	if m == nil {
		return errdefs.ModalState("No file chooser visible")
	}
	t.clearModal(m)
	if len(paths) == 0 {
		return nil
	}
	if len(paths) > 1 && !m.Multiple {
		return errdefs.InvalidArgument("file chooser accepts a single file")
	}
	return t.WaitForCompletion(ctx, func(ctx context.Context) error {
		return proto.DOMSetFileInputFiles{Files: paths, BackendNodeID: m.BackendNodeID}.Call(t.page.Context(ctx))
	})
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
