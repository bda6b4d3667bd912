//go:build integration

package recorder

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

func launchBrowser(t *testing.T) *rod.Browser {
	t.Helper()
	l := launcher.New().Headless(true).NoSandbox(true)
	if bin := os.Getenv("BROWSERCTL_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	u, err := l.Launch()
	require.NoError(t, err, "Failed to launch browser")

	b := rod.New().ControlURL(u)
	require.NoError(t, b.Connect(), "Failed to connect to browser")
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Logf("Close error: %v", err)
		}
		l.Kill()
		l.Cleanup()
	})
	return b
}

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/late", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>late</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func findRecord(records []models.NetworkRequestRecord, suffix string) *models.NetworkRequestRecord {
	for i := range records {
		if strings.HasSuffix(records[i].URL, suffix) {
			return &records[i]
		}
	}
	return nil
}

func recorded(r *Recorder, suffix string) func() bool {
	return func() bool { return findRecord(r.Requests(), suffix) != nil }
}

func newIntegrationRecorder(t *testing.T, srv *httptest.Server) *Recorder {
	t.Helper()
	// The browser also asks for /favicon.ico; only the routes the tests
	// drive are recorded.
	f, err := NewFilter(srv.URL + "/{start,hop,final,late}")
	require.NoError(t, err)
	return New(Options{Name: "integration", Filter: f, Logger: zap.NewNop()})
}

func TestRecorderRedirectChain_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	srv := apiServer(t)
	b := launchBrowser(t)

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	require.NoError(t, err)

	r := newIntegrationRecorder(t, srv)
	info, err := r.Start(ctx, b)
	require.NoError(t, err)
	defer r.Stop()
	assert.Equal(t, "integration", info.SessionName)
	assert.GreaterOrEqual(t, info.Pages, 1)

	require.NoError(t, page.Context(ctx).Navigate(srv.URL+"/start"))
	require.Eventually(t, recorded(r, "/final"), 10*time.Second, 50*time.Millisecond)

	records := r.Requests()
	var urls []string
	for _, rec := range records {
		urls = append(urls, strings.TrimPrefix(rec.URL, srv.URL))
	}
	require.Equal(t, []string{"/start", "/hop", "/final"}, urls)

	start, hop, final := records[0], records[1], records[2]
	require.NotNil(t, start.Status)
	assert.Equal(t, http.StatusFound, *start.Status)
	assert.Equal(t, "/hop", start.ResponseHeaders["Location"], "redirect response is kept on its hop")
	require.NotNil(t, hop.Status)
	assert.Equal(t, http.StatusMovedPermanently, *hop.Status)
	assert.Nil(t, hop.ResponseBody)

	require.NotNil(t, final.Status)
	assert.Equal(t, http.StatusOK, *final.Status)
	assert.Equal(t, "application/json", final.MimeType)
	require.NotNil(t, final.ResponseBody)
	assert.JSONEq(t, `{"ok":true}`, *final.ResponseBody)
	assert.Equal(t, "GET", final.Method)
	assert.Equal(t, "Document", final.ResourceType)
}

func TestRecorderFollowsNewPages_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	srv := apiServer(t)
	b := launchBrowser(t)

	r := newIntegrationRecorder(t, srv)
	_, err := r.Start(ctx, b)
	require.NoError(t, err)

	_, err = b.Page(proto.TargetCreateTarget{URL: srv.URL + "/late"})
	require.NoError(t, err)
	require.Eventually(t, recorded(r, "/late"), 10*time.Second, 50*time.Millisecond,
		"page created after start was not recorded")

	info := r.Stop()
	assert.Equal(t, 1, info.TotalRequests)
	assert.False(t, r.Status().Recording)

	// Nothing is recorded once stopped.
	_, err = b.Page(proto.TargetCreateTarget{URL: srv.URL + "/final"})
	require.NoError(t, err)
	time.Sleep(time.Second)
	assert.Nil(t, findRecord(r.Requests(), "/final"))
}

func TestRecorderStaysInItsBrowserContext_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	srv := apiServer(t)
	b := launchBrowser(t)

	incognito, err := b.Incognito()
	require.NoError(t, err)
	inside, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	require.NoError(t, err)
	outside, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	require.NoError(t, err)

	r := newIntegrationRecorder(t, srv)
	info, err := r.Start(ctx, incognito)
	require.NoError(t, err)
	defer r.Stop()
	assert.Equal(t, 1, info.Pages)

	require.NoError(t, outside.Context(ctx).Navigate(srv.URL+"/late"))
	require.NoError(t, inside.Context(ctx).Navigate(srv.URL+"/final"))
	require.Eventually(t, recorded(r, "/final"), 10*time.Second, 50*time.Millisecond)
	assert.Nil(t, findRecord(r.Requests(), "/late"), "page of another context was recorded")
}
