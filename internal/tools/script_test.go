package tools

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type fakeScriptPage struct {
	url     string
	title   string
	calls   []string
	fields  map[string]string
	evalFn  string
	evalArg []any
	waited  time.Duration
}

func (f *fakeScriptPage) URL(context.Context) (string, error)   { return f.url, nil }
func (f *fakeScriptPage) Title(context.Context) (string, error) { return f.title, nil }

func (f *fakeScriptPage) Goto(_ context.Context, url string) error {
	f.calls = append(f.calls, "goto "+url)
	f.url = url
	return nil
}

func (f *fakeScriptPage) Evaluate(_ context.Context, fn string, args ...any) (any, error) {
	f.evalFn, f.evalArg = fn, args
	return map[string]any{"width": 1280.0}, nil
}

func (f *fakeScriptPage) Content(context.Context) (string, error) {
	return "<html></html>", nil
}

func (f *fakeScriptPage) Click(_ context.Context, selector string) error {
	if selector == "#missing" {
		return errdefs.NotFound("no element matches %q", selector)
	}
	f.calls = append(f.calls, "click "+selector)
	return nil
}

func (f *fakeScriptPage) Fill(_ context.Context, selector, value string) error {
	if f.fields == nil {
		f.fields = map[string]string{}
	}
	f.fields[selector] = value
	return nil
}

func (f *fakeScriptPage) TextContent(_ context.Context, selector string) (string, error) {
	return f.fields[selector], nil
}

func (f *fakeScriptPage) WaitForTimeout(_ context.Context, d time.Duration) { f.waited += d }

func TestRunScriptReturnsJSON(t *testing.T) {
	page := &fakeScriptPage{title: "Example Domain"}

	out, err := runScript(context.Background(), page, `async (page) => { return await page.title(); }`)
	require.NoError(t, err)
	assert.Equal(t, `"Example Domain"`, out)

	out, err = runScript(context.Background(), page, `(page) => ({ title: page.title(), n: [1, 2] })`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Example Domain","n":[1,2]}`, out)

	out, err = runScript(context.Background(), page, `async (page) => { await page.waitForTimeout(250); }`)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 250*time.Millisecond, page.waited)
}

func TestRunScriptDrivesPage(t *testing.T) {
	page := &fakeScriptPage{}
	code := `async (page) => {
		await page.goto("https://example.com/login");
		await page.fill("#email", "a@b.c");
		await page.click("button[type=submit]");
		return page.textContent("#email");
	}`

	out, err := runScript(context.Background(), page, code)
	require.NoError(t, err)
	assert.Equal(t, `"a@b.c"`, out)
	if diff := cmp.Diff([]string{"goto https://example.com/login", "click button[type=submit]"}, page.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScriptEvaluateSendsSource(t *testing.T) {
	page := &fakeScriptPage{}

	out, err := runScript(context.Background(), page, `async (page) => page.evaluate((k) => ({ width: window.innerWidth }), "w")`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"width":1280}`, out)
	assert.Contains(t, page.evalFn, "window.innerWidth")
	assert.Equal(t, []any{"w"}, page.evalArg)
}

func TestRunScriptErrors(t *testing.T) {
	page := &fakeScriptPage{}
	ctx := context.Background()

	_, err := runScript(ctx, page, `async (page) => { throw new Error("boom"); }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = runScript(ctx, page, `async (page) => { await page.click("#missing"); }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no element matches "#missing"`)

	out, err := runScript(ctx, page, `async (page) => {
		try { await page.click("#missing"); } catch (e) { return "recovered"; }
	}`)
	require.NoError(t, err)
	assert.Equal(t, `"recovered"`, out)

	_, err = runScript(ctx, page, `async (page) => { await page.goto(); }`)
	assert.Error(t, err)

	_, err = runScript(ctx, page, `(page) =>`)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = runScript(ctx, page, `42`)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = runScript(ctx, page, `(page) => new Promise(() => {})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")
}

func TestRunScriptStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := runScript(ctx, &fakeScriptPage{}, `(page) => { for (;;) {} }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline exceeded")
}
