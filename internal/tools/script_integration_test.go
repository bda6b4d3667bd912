//go:build integration

package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

func browserEnv(ctx context.Context, t *testing.T) *Env {
	t.Helper()
	l := launcher.New().Headless(true).NoSandbox(true)
	if bin := os.Getenv("BROWSERCTL_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	u, err := l.Launch()
	require.NoError(t, err, "Failed to launch browser")
	b := rod.New().ControlURL(u)
	require.NoError(t, b.Connect(), "Failed to connect to browser")

	cfg := config.DefaultConfig()
	cfg.Timeouts.Action = 2 * time.Second
	s, err := session.New(ctx, b, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		if err := b.Close(); err != nil {
			t.Logf("Close error: %v", err)
		}
		l.Kill()
		l.Cleanup()
	})
	_, err = s.EnsureTab(ctx)
	require.NoError(t, err)
	return &Env{Session: s, Config: cfg, Log: zap.NewNop()}
}

func TestRunCodeAgainstBrowser_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Form</title></head><body>
			<input id="name"><button id="send" onclick="document.getElementById('out').textContent = 'hi ' + document.getElementById('name').value">Send</button>
			<p id="out"></p></body></html>`)
	}))
	defer srv.Close()
	env := browserEnv(ctx, t)

	resp := &Response{}
	code := fmt.Sprintf(`async (page) => {
		await page.goto(%q);
		await page.fill("#name", "rod");
		await page.click("#send");
		return { title: await page.title(), out: await page.textContent("#out"), w: await page.evaluate(() => typeof window) };
	}`, srv.URL)
	require.NoError(t, runCode(ctx, env, runCodeParams{Code: code}, resp))
	require.Len(t, resp.results, 1)
	assert.JSONEq(t, `{"title":"Form","out":"hi rod","w":"object"}`, resp.results[0])

	err := runCode(ctx, env, runCodeParams{Code: `async (page) => { await page.click("#missing"); }`}, &Response{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no element matches "#missing"`)
}
