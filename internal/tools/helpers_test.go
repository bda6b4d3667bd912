package tools

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

func TestParseCombo(t *testing.T) {
	mods, key, err := parseCombo("Enter")
	require.NoError(t, err)
	assert.Empty(t, mods)
	assert.Equal(t, input.Enter, key)

	mods, key, err = parseCombo("Control+Shift+a")
	require.NoError(t, err)
	assert.Equal(t, []input.Key{input.ControlLeft, input.ShiftLeft}, mods)
	assert.Equal(t, input.Key('a'), key)

	mods, key, err = parseCombo("Control++")
	require.NoError(t, err)
	assert.Equal(t, []input.Key{input.ControlLeft}, mods)
	assert.Equal(t, input.Key('+'), key)

	_, _, err = parseCombo("Hyper+x")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	_, err = parseKey("é")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestAsFunction(t *testing.T) {
	assert.Equal(t, "() => (document.title)", asFunction("document.title"))
	assert.Equal(t, "() => 1", asFunction("() => 1"))
	assert.Equal(t, "function() { return 1 }", asFunction(" function() { return 1 } "))
}

func TestMouseButton(t *testing.T) {
	b, err := mouseButton("")
	require.NoError(t, err)
	assert.Equal(t, proto.InputMouseButtonLeft, b)
	b, err = mouseButton("Right")
	require.NoError(t, err)
	assert.Equal(t, proto.InputMouseButtonRight, b)
	_, err = mouseButton("fourth")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestScreenshotFormat(t *testing.T) {
	f, ext, err := screenshotFormat("jpg")
	require.NoError(t, err)
	assert.Equal(t, proto.PageCaptureScreenshotFormatJpeg, f)
	assert.Equal(t, "jpeg", ext)
	_, _, err = screenshotFormat("gif")
	assert.Error(t, err)
}

func TestRenderConsole(t *testing.T) {
	all := []session.ConsoleMessage{
		{Type: "log", Text: "hi"},
		{Type: "error", Text: "boom"},
		{Type: "warning", Text: "hmm"},
	}
	got := renderConsole(all, all[1:2], "error")
	want := "Total messages: 3 (Errors: 1, Warnings: 1)\nReturning 1 messages for level \"error\"\n\n[ERROR] boom"
	assert.Equal(t, want, got)

	assert.Equal(t, "Total messages: 0 (Errors: 0, Warnings: 0)\n", renderConsole(nil, nil, "info"))
}

func TestRenderRequests(t *testing.T) {
	reqs := []session.ObservedRequest{
		{URL: "https://a.com/", Method: "GET", ResourceType: "Document", Status: 200},
		{URL: "https://a.com/api", Method: "POST", ResourceType: "Fetch", Status: 201},
		{URL: "https://a.com/x.css", Method: "GET", ResourceType: "Stylesheet", Status: 404},
	}
	assert.Equal(t, "[POST] https://a.com/api => [201]\n[GET] https://a.com/x.css => [404]", renderRequests(reqs, false))
	assert.Len(t, splitLines(renderRequests(reqs, true)), 3)
	assert.Equal(t, "No network requests.", renderRequests(reqs[:1], false))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range s {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestRouteFromParams(t *testing.T) {
	r, err := routeFromParams(routeParams{
		Pattern:       "**/api/*",
		Headers:       []string{"X-Test: 1", "Authorization:Bearer t"},
		RemoveHeaders: "cookie, referer ,",
	})
	require.NoError(t, err)
	want := session.Route{
		Pattern:       "**/api/*",
		Headers:       map[string]string{"X-Test": "1", "Authorization": "Bearer t"},
		RemoveHeaders: []string{"cookie", "referer"},
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("route mismatch (-want +got):\n%s", diff)
	}

	_, err = routeFromParams(routeParams{Pattern: "*", Headers: []string{"broken"}})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestRouteLine(t *testing.T) {
	long := "0123456789012345678901234567890123456789012345678901234567890"
	assert.Equal(t, "1. *", routeLine(0, session.Route{Pattern: "*"}))
	assert.Equal(t,
		"2. **/api (status=404, body=01234567890123456789012345678901234567890123456789..., contentType=text/plain)",
		routeLine(1, session.Route{Pattern: "**/api", Status: 404, Body: long, ContentType: "text/plain"}))
}

func TestCookieParam(t *testing.T) {
	secure := true
	exp := 1700000000.0
	c, err := cookieParam(cookieSetParams{Name: "sid", Value: "1", Secure: &secure, Expires: &exp}, "https://shop.example.com/cart")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.Secure)
	assert.Equal(t, proto.TimeSinceEpoch(exp), c.Expires)

	_, err = cookieParam(cookieSetParams{Name: "sid"}, "about:blank")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	_, err = cookieParam(cookieSetParams{}, "https://a.com")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestFilterCookies(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "a", Domain: ".example.com", Path: "/"},
		{Name: "b", Domain: "api.example.com", Path: "/v1"},
		{Name: "c", Domain: "other.org", Path: "/v1/x"},
	}
	got := filterCookies(cookies, cookieFilter{Domain: "example.com", Path: "/v1"})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
	assert.Len(t, filterCookies(cookies, cookieFilter{}), 3)
}

func TestSnapshotHas(t *testing.T) {
	text := "- heading \"Welcome\" [level=1]\n  - button \"Go\" [ref=ab:e1]\n- textbox \"Email\" [ref=ab:e2]: x@y\n"
	assert.True(t, snapshotHas(text, "button", "Go"))
	assert.True(t, snapshotHas(text, "textbox", "Email"))
	assert.True(t, snapshotHas(text, "heading", "Welcome"))
	assert.False(t, snapshotHas(text, "button", "Gone"))
	assert.False(t, snapshotHas(text, "link", "Go"))
}

func TestRenderStorage(t *testing.T) {
	assert.Equal(t, "No localStorage items found", renderStorage("localStorage", nil))
	assert.Equal(t, "a=1\nb=", renderStorage("sessionStorage", []storageEntry{{Key: "a", Value: "1"}, {Key: "b"}}))
}
