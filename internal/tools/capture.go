package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type evaluateParams struct {
	Function string `json:"function"`
	Ref      string `json:"ref,omitempty"`
	Element  string `json:"element,omitempty"`
}

type screenshotParams struct {
	Type     string `json:"type,omitempty"`
	FullPage bool   `json:"fullPage,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type pdfParams struct {
	Filename string `json:"filename,omitempty"`
}

type waitParams struct {
	Time     float64 `json:"time,omitempty"`
	Text     string  `json:"text,omitempty"`
	TextGone string  `json:"textGone,omitempty"`
	Timeout  int     `json:"timeout,omitempty"`
}

const maxWaitTime = 30 * time.Second

func captureTools() []Tool {
	return []Tool{
		tool("evaluate", "Evaluate a JavaScript function on the page or an element", evaluate),
		tool("screenshot", "Take a screenshot of the page or an element", screenshot),
		tool("pdf", "Save the page as PDF", pdf),
		tool("waitFor", "Wait for time to pass or text to appear or disappear", waitFor),
	}
}

// asFunction wraps a bare expression into an arrow function.
func asFunction(src string) string {
	src = strings.TrimSpace(src)
	if strings.Contains(src, "=>") || strings.HasPrefix(src, "function") || strings.HasPrefix(src, "async") {
		return src
	}
	return fmt.Sprintf("() => (%s)", src)
}

func formatEvalResult(obj *proto.RuntimeRemoteObject) string {
	if obj == nil || obj.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return "undefined"
	}
	out, err := json.MarshalIndent(obj.Value.Val(), "", "  ")
	if err != nil {
		return obj.Value.String()
	}
	return string(out)
}

func evaluate(ctx context.Context, env *Env, p evaluateParams, resp *Response) error {
	if p.Function == "" {
		return errdefs.InvalidArgument("function is required")
	}
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	fn := asFunction(p.Function)

	if p.Ref == "" {
		resp.AddCodef("page.Eval(%q)", fn)
		return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
			res, err := tab.Page().Context(ctx).Eval(fn)
			if err != nil {
				return err
			}
			resp.AddResult(formatEvalResult(res))
			return nil
		})
	}

	r, err := tab.RefLocator(ctx, p.Ref)
	if err != nil {
		return err
	}
	resp.AddCodef("%s.Eval(%q)", elCode(r), fn)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		res, err := r.Element.Context(ctx).Eval(fmt.Sprintf("function() { return (%s)(this) }", fn))
		if err != nil {
			return err
		}
		resp.AddResult(formatEvalResult(res))
		return nil
	})
}

func screenshotFormat(typ string) (proto.PageCaptureScreenshotFormat, string, error) {
	switch strings.ToLower(typ) {
	case "", "png":
		return proto.PageCaptureScreenshotFormatPng, "png", nil
	case "jpeg", "jpg":
		return proto.PageCaptureScreenshotFormatJpeg, "jpeg", nil
	}
	return "", "", errdefs.InvalidArgument("unsupported screenshot type %q", typ)
}

func screenshot(ctx context.Context, env *Env, p screenshotParams, resp *Response) error {
	if p.FullPage && p.Ref != "" {
		return errdefs.InvalidArgument("fullPage cannot be used with element screenshots.")
	}
	format, ext, err := screenshotFormat(p.Type)
	if err != nil {
		return err
	}
	tab, err := currentTab(env)
	if err != nil {
		return err
	}

	quality := 90
	var data []byte
	prefix := "page"
	if p.Ref != "" {
		r, err := tab.RefLocator(ctx, p.Ref)
		if err != nil {
			return err
		}
		prefix = "element"
		resp.AddCodef("%s.Screenshot(%q)", elCode(r), format)
		data, err = r.Element.Context(ctx).Screenshot(format, quality)
		if err != nil {
			return err
		}
	} else {
		req := &proto.PageCaptureScreenshot{Format: format}
		if format == proto.PageCaptureScreenshotFormatJpeg {
			req.Quality = gson.Int(quality)
		}
		resp.AddCodef("page.Screenshot(%t, %q)", p.FullPage, format)
		data, err = tab.Page().Context(ctx).Screenshot(p.FullPage, req)
		if err != nil {
			return err
		}
	}
	return resp.writeFile(env, "Screenshot", prefix, ext, p.Filename, data)
}

func pdf(ctx context.Context, env *Env, p pdfParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	stream, err := tab.Page().Context(ctx).PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return err
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return err
	}
	resp.AddCode("page.PDF()")
	return resp.writeFile(env, "Page as PDF", "page", "pdf", p.Filename, data)
}

const textPresentJS = `(text) => !!document.body && document.body.innerText.includes(text)`

func waitFor(ctx context.Context, env *Env, p waitParams, resp *Response) error {
	if p.Text == "" && p.TextGone == "" && p.Time == 0 {
		return errdefs.InvalidArgument("Either time, text or textGone must be provided")
	}
	timeout := env.Config.Timeouts.Navigation
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout) * time.Millisecond
	}

	if p.Time > 0 {
		d := min(time.Duration(p.Time*float64(time.Second)), maxWaitTime)
		resp.AddCodef("time.Sleep(%s)", d)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	page := tab.Page().Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()
	if p.TextGone != "" {
		resp.AddCodef("waitText(%q, hidden)", p.TextGone)
		if err := waitText(ctx, page, p.TextGone, false); err != nil {
			return err
		}
	}
	if p.Text != "" {
		resp.AddCodef("waitText(%q, visible)", p.Text)
		if err := waitText(ctx, page, p.Text, true); err != nil {
			return err
		}
	}

	switch {
	case p.Text != "":
		resp.AddResultf("Waited for %s", p.Text)
	case p.TextGone != "":
		resp.AddResultf("Waited for %s", p.TextGone)
	default:
		resp.AddResultf("Waited for %v", p.Time)
	}
	resp.IncludeSnapshot()
	return nil
}

type evaler interface {
	Eval(js string, args ...any) (*proto.RuntimeRemoteObject, error)
}

func waitText(ctx context.Context, page evaler, text string, present bool) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		res, err := page.Eval(textPresentJS, text)
		if err != nil {
			if ctx.Err() == nil && !isTimeout(err) {
				return err
			}
			return errdefs.NotFound("timed out waiting for text %q", text)
		}
		if res.Value.Bool() == present {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
