package storagestate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

func TestOriginOf(t *testing.T) {
	cases := map[string]string{
		"https://App.Example.com/login?next=/": "https://app.example.com",
		"http://localhost:3000/dashboard":      "http://localhost:3000",
		"about:blank":                          "",
		"chrome://newtab/":                     "",
		"data:text/html,<p>hi</p>":             "",
		"file:///tmp/index.html":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, OriginOf(in), in)
	}
}

func TestCookieParamsKeepsSessionCookies(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Session: true, Expires: -1, HTTPOnly: true, Secure: true},
		{Name: "pref", Value: "dark", Domain: "example.com", Path: "/", Expires: 1893456000, SameSite: proto.NetworkCookieSameSiteLax},
	}
	want := []*proto.NetworkCookieParam{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", HTTPOnly: true, Secure: true},
		{Name: "pref", Value: "dark", Domain: "example.com", Path: "/", Expires: 1893456000, SameSite: proto.NetworkCookieSameSiteLax},
	}
	if diff := cmp.Diff(want, CookieParams(cookies)); diff != "" {
		t.Errorf("CookieParams mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	st := &State{
		Cookies: []*proto.NetworkCookie{{Name: "sid", Value: "abc", Domain: "example.com", Path: "/"}},
		Origins: []Origin{{Origin: "https://example.com", LocalStorage: []Item{{Name: "token", Value: "t1"}}}},
	}
	require.NoError(t, Save(path, st))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Cookies[0].Value)
	assert.Equal(t, st.Origins, got.Origins)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{cookies"), 0644))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}
