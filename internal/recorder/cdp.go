package recorder

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

// StartInfo is printed by the daemon as its acknowledgment.
type StartInfo struct {
	SessionName string    `json:"sessionName"`
	StartTime   time.Time `json:"startTime"`
	Pages       int       `json:"pages"`
}

// Start opens the recording and attaches to every page of browser, the ones
// open now and the ones created later. Pages of other browser contexts are
// left alone.
func (r *Recorder) Start(ctx context.Context, b *rod.Browser) (StartInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	r.begin(time.Now())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	attached, err := browser.FollowPages(ctx, b, r.log, &r.wg, r.attachPage)
	if err != nil {
		r.Stop()
		return StartInfo{}, errdefs.Connection(err, "attach to pages")
	}

	st := r.Status()
	return StartInfo{SessionName: st.SessionName, StartTime: st.StartTime, Pages: attached}, nil
}

func (r *Recorder) attachPage(ctx context.Context, page *rod.Page) error {
	target := string(page.TargetID)
	p := page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return err
	}
	fetcher := &pageFetcher{page: p}

	wait := p.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			r.OnRequestSent(requestSentFromCDP(target, e))
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			r.OnResponseReceived(responseFromCDP(Key{target, string(e.RequestID)}, e.Response, float64(e.Timestamp)))
		},
		func(e *proto.NetworkLoadingFinished) {
			r.OnLoadingFinished(ctx, LoadingFinished{
				Key:               Key{target, string(e.RequestID)},
				EncodedDataLength: e.EncodedDataLength,
			}, fetcher)
		},
		func(e *proto.NetworkLoadingFailed) {
			r.OnLoadingFailed(LoadingFailed{
				Key:       Key{target, string(e.RequestID)},
				ErrorText: e.ErrorText,
				Canceled:  e.Canceled,
			})
		},
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		wait()
		r.limiter.Forget(target)
	}()
	r.log.Debug("attached", zap.String("target", target))
	return nil
}

func requestSentFromCDP(target string, e *proto.NetworkRequestWillBeSent) RequestSent {
	key := Key{target, string(e.RequestID)}
	ev := RequestSent{
		Key:          key,
		ResourceType: string(e.Type),
		Timestamp:    float64(e.Timestamp),
		WallTime:     float64(e.WallTime),
	}
	if e.Request != nil {
		ev.URL = e.Request.URL
		ev.Method = e.Request.Method
		ev.Headers = headerMap(e.Request.Headers)
		if e.Request.PostData != "" {
			pd := e.Request.PostData
			ev.PostData = &pd
		}
	}
	if e.Initiator != nil {
		ev.Initiator = string(e.Initiator.Type)
	}
	if e.RedirectResponse != nil {
		redirect := responseFromCDP(key, e.RedirectResponse, float64(e.Timestamp))
		ev.Redirect = &redirect
	}
	return ev
}

func responseFromCDP(key Key, res *proto.NetworkResponse, ts float64) ResponseReceived {
	return ResponseReceived{
		Key:        key,
		Status:     res.Status,
		StatusText: res.StatusText,
		Headers:    headerMap(res.Headers),
		MimeType:   res.MIMEType,
		Protocol:   res.Protocol,
		Timestamp:  ts,
	}
}

func headerMap(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

type pageFetcher struct {
	page *rod.Page
}

func (f *pageFetcher) ResponseBody(ctx context.Context, requestID string) (string, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: proto.NetworkRequestID(requestID)}.Call(f.page.Context(ctx))
	if err != nil {
		return "", err
	}
	if res.Base64Encoded {
		data, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return res.Body, nil
}
