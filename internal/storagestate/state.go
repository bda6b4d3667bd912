// Package storagestate saves and restores what keeps a browser logged in:
// its cookies and the localStorage of the origins it has open.
package storagestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

type Item struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin is the localStorage of one origin.
type Origin struct {
	Origin       string `json:"origin"`
	LocalStorage []Item `json:"localStorage"`
}

// State is the saved form, one JSON document.
type State struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
	Origins []Origin               `json:"origins"`
}

const (
	readLocalStorageJS  = `() => Object.keys(localStorage).map(name => ({ name, value: localStorage.getItem(name) || '' }))`
	writeLocalStorageJS = `(items) => { for (const { name, value } of items) localStorage.setItem(name, value); }`
	scratchDocument     = `<!doctype html><title>storage</title>`
)

// Capture reads the browser's cookies and the localStorage of every origin
// open in a tab.
func Capture(ctx context.Context, sess *session.Session) (*State, error) {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	st := &State{Cookies: cookies, Origins: []Origin{}}

	seen := make(map[string]bool)
	for _, tab := range sess.Tabs() {
		origin := OriginOf(tab.URL())
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true

		res, err := tab.Page().Context(ctx).Eval(readLocalStorageJS)
		if err != nil {
			return nil, fmt.Errorf("failed to read localStorage of %s: %w", origin, err)
		}
		var items []Item
		if err := res.Value.Unmarshal(&items); err != nil {
			return nil, fmt.Errorf("failed to decode localStorage of %s: %w", origin, err)
		}
		if len(items) > 0 {
			st.Origins = append(st.Origins, Origin{Origin: origin, LocalStorage: items})
		}
	}
	sort.Slice(st.Origins, func(i, j int) bool { return st.Origins[i].Origin < st.Origins[j].Origin })
	return st, nil
}

// Apply adds the saved cookies to the browser and writes the saved
// localStorage items. Origins without an open tab are written through a
// short-lived page whose document is served locally, so nothing is fetched.
func Apply(ctx context.Context, sess *session.Session, st *State) error {
	if len(st.Cookies) > 0 {
		if err := sess.SetCookies(ctx, CookieParams(st.Cookies)); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	open := make(map[string]*rod.Page)
	for _, tab := range sess.Tabs() {
		if origin := OriginOf(tab.URL()); origin != "" {
			if _, ok := open[origin]; !ok {
				open[origin] = tab.Page()
			}
		}
	}
	for _, o := range st.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		var err error
		if page, ok := open[o.Origin]; ok {
			_, err = page.Context(ctx).Eval(writeLocalStorageJS, o.LocalStorage)
		} else {
			err = writeThroughScratchPage(ctx, sess.Browser(), o)
		}
		if err != nil {
			return fmt.Errorf("failed to restore localStorage of %s: %w", o.Origin, err)
		}
	}
	return nil
}

func writeThroughScratchPage(ctx context.Context, browser *rod.Browser, o Origin) error {
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return err
	}
	defer page.Close()

	router := page.HijackRequests()
	if err := router.Add(o.Origin+"/*", "", func(h *rod.Hijack) {
		h.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		h.Response.SetBody(scratchDocument)
	}); err != nil {
		return err
	}
	go router.Run()
	defer router.Stop()

	if err := page.Navigate(o.Origin + "/"); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return err
	}
	_, err = page.Eval(writeLocalStorageJS, o.LocalStorage)
	return err
}

// CookieParams converts read cookies into the form accepted when setting
// them. Session cookies stay session cookies.
func CookieParams(cookies []*proto.NetworkCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if !c.Session && c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

// OriginOf returns scheme://host[:port] of an http(s) URL, or "".
func OriginOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

// Save writes st to path as indented JSON.
func Save(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	return nil
}

func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errdefs.NotFound("Storage state file %s not found", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errdefs.InvalidArgument("Invalid storage state file %s: %v", path, err)
	}
	return &st, nil
}
