package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"gopkg.in/yaml.v3"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type resizeParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type verifyTextParams struct {
	Text string `json:"text"`
}

type verifyElementParams struct {
	Role           string `json:"role"`
	AccessibleName string `json:"accessibleName"`
}

func miscTools() []Tool {
	return []Tool{
		tool("resize", "Resize the viewport of the current tab", resize),
		tool("close", "Close every open tab", closeAll),
		tool("getConfig", "Show the effective configuration", getConfig),
		tool("install", "Download a browser build for the chromium engine", install),
		tool("verifyText", "Check that text is visible on the page", verifyText),
		tool("verifyElement", "Check that an element with a role and name exists", verifyElement),
	}
}

func resize(ctx context.Context, env *Env, p resizeParams, resp *Response) error {
	if p.Width <= 0 || p.Height <= 0 {
		return errdefs.InvalidArgument("width and height must be positive")
	}
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddCodef("page.SetViewport(%d, %d)", p.Width, p.Height)
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             p.Width,
		Height:            p.Height,
		DeviceScaleFactor: 1,
	}.Call(tab.Page().Context(ctx))
}

func closeAll(ctx context.Context, env *Env, _ noParams, resp *Response) error {
	for range env.Session.Tabs() {
		if _, err := env.Session.CloseTab(ctx, nil); err != nil {
			return err
		}
	}
	resp.AddResult("Browser closed.")
	resp.AddCode("page.Close()")
	return nil
}

func getConfig(_ context.Context, env *Env, _ noParams, resp *Response) error {
	out, err := yaml.Marshal(env.Config)
	if err != nil {
		return err
	}
	resp.AddResult(strings.TrimRight(string(out), "\n"))
	return nil
}

func install(_ context.Context, env *Env, _ noParams, resp *Response) error {
	b := launcher.NewBrowser()
	b.Logger = zapWriter{env}
	path, err := b.Get()
	if err != nil {
		return err
	}
	resp.AddResultf("Browser installed at %s", path)
	return nil
}

// zapWriter feeds the launcher's download progress into the debug log.
type zapWriter struct{ env *Env }

func (w zapWriter) Println(args ...any) {
	w.env.Log.Debug(strings.TrimSpace(fmt.Sprintln(args...)))
}

func verifyText(ctx context.Context, env *Env, p verifyTextParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	res, err := tab.Page().Context(ctx).Eval(textPresentJS, p.Text)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return errdefs.NotFound("Text not found")
	}
	resp.AddCodef("expectText(%q)", p.Text)
	resp.AddResult("Done")
	return nil
}

// snapshotHas reports whether a rendered snapshot holds a node with role and
// accessible name.
func snapshotHas(text, role, name string) bool {
	needle := fmt.Sprintf("- %s %q", role, name)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == needle || strings.HasPrefix(line, needle+" ") || strings.HasPrefix(line, needle+":") {
			return true
		}
	}
	return false
}

func verifyElement(ctx context.Context, env *Env, p verifyElementParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	snap, err := tab.CaptureSnapshot(ctx)
	if err != nil {
		return err
	}
	if !snapshotHas(snap.Text, p.Role, p.AccessibleName) {
		return errdefs.NotFound("Element with role %q and accessible name %q not found", p.Role, p.AccessibleName)
	}
	resp.AddCodef("expectRole(%q, %q)", p.Role, p.AccessibleName)
	resp.AddResult("Done")
	return nil
}
