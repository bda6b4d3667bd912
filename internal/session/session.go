// Package session wraps the pages of the supervised browser into tabs and
// tracks the current one for page tools.
package session

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type Session struct {
	browser *rod.Browser
	cfg     *config.Config
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tabs    []*Tab
	current *Tab
	routes  *routeTable
}

// New wraps every page of browser and follows pages created later in the
// same browser context.
func New(ctx context.Context, browser *rod.Browser, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		browser: browser,
		cfg:     cfg,
		log:     logger.Named("session"),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.routes = newRouteTable(browser, s.log)

	pages, err := browser.Pages()
	if err != nil {
		cancel()
		return nil, errdefs.Connection(err, "list pages")
	}
	for _, p := range pages {
		s.addPage(p)
	}

	wait := browser.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			info := e.TargetInfo
			if info.Type != proto.TargetTargetInfoTypePage || s.hasTarget(info.TargetID) {
				return
			}
			p, err := browser.PageFromTarget(info.TargetID)
			if err != nil {
				s.log.Debug("attach new page", zap.String("target", string(info.TargetID)), zap.Error(err))
				return
			}
			s.addPage(p)
		},
		func(e *proto.TargetTargetDestroyed) {
			s.removeTarget(e.TargetID)
		},
	)
	go wait()
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		s.log.Debug("target discovery", zap.Error(err))
	}
	return s, nil
}

// Close stops event handling and interception rules. Pages stay open.
func (s *Session) Close() {
	s.routes.close()
	s.cancel()
}

func (s *Session) Browser() *rod.Browser { return s.browser }

func (s *Session) Config() *config.Config { return s.cfg }

func (s *Session) hasTarget(id proto.TargetTargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(id) >= 0
}

func (s *Session) indexOfLocked(id proto.TargetTargetID) int {
	for i, t := range s.tabs {
		if t.TargetID() == id {
			return i
		}
	}
	return -1
}

func (s *Session) addPage(p *rod.Page) *Tab {
	s.mu.Lock()
	if i := s.indexOfLocked(p.TargetID); i >= 0 {
		t := s.tabs[i]
		s.mu.Unlock()
		return t
	}
	s.mu.Unlock()

	t := newTab(s.ctx, p, s.cfg, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(p.TargetID); i >= 0 {
		return s.tabs[i]
	}
	s.tabs = append(s.tabs, t)
	if s.current == nil {
		s.current = t
	}
	return t
}

func (s *Session) removeTarget(id proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(id); i >= 0 {
		s.removeLocked(i)
	}
}

func (s *Session) removeLocked(i int) {
	closed := s.tabs[i]
	s.tabs = append(s.tabs[:i:i], s.tabs[i+1:]...)
	if s.current != closed {
		return
	}
	if next := nextCurrent(i, len(s.tabs)); next >= 0 {
		s.current = s.tabs[next]
	} else {
		s.current = nil
	}
}

// nextCurrent picks the tab that becomes current after the current tab at
// index removed is closed, given the remaining tab count. -1 means none.
func nextCurrent(removed, remaining int) int {
	if remaining == 0 {
		return -1
	}
	return min(removed, remaining-1)
}

func (s *Session) Tabs() []*Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Tab(nil), s.tabs...)
}

func (s *Session) CurrentTab() *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentTabOrDie returns the current tab or a NotFound error when the
// browser has no pages.
func (s *Session) CurrentTabOrDie() (*Tab, error) {
	if t := s.CurrentTab(); t != nil {
		return t, nil
	}
	return nil, errdefs.NotFound("No open pages available.")
}

// EnsureTab returns the current tab, opening one if the browser has none.
func (s *Session) EnsureTab(ctx context.Context) (*Tab, error) {
	if t := s.CurrentTab(); t != nil {
		return t, nil
	}
	return s.NewTab(ctx)
}

// NewTab opens a blank page and makes it current.
func (s *Session) NewTab(ctx context.Context) (*Tab, error) {
	p, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, err
	}
	t := s.addPage(p.Context(s.ctx))
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return t, nil
}

// SelectTab brings the tab at index to the front and makes it current.
func (s *Session) SelectTab(ctx context.Context, index int) (*Tab, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.tabs) {
		s.mu.Unlock()
		return nil, errdefs.NotFound("Tab %d not found", index)
	}
	t := s.tabs[index]
	s.current = t
	s.mu.Unlock()

	if _, err := t.page.Context(ctx).Activate(); err != nil {
		return nil, err
	}
	return t, nil
}

// CloseTab closes the tab at index, or the current tab when index is nil,
// and returns the URL it showed.
func (s *Session) CloseTab(ctx context.Context, index *int) (string, error) {
	s.mu.Lock()
	i := s.indexOfCurrentLocked()
	if index != nil {
		i = *index
	}
	if i < 0 || i >= len(s.tabs) {
		s.mu.Unlock()
		if index == nil {
			return "", errdefs.NotFound("No open pages available.")
		}
		return "", errdefs.NotFound("Tab %d not found", *index)
	}
	t := s.tabs[i]
	s.mu.Unlock()

	url := t.URL()
	if err := t.page.Context(ctx).Close(); err != nil {
		return "", err
	}
	s.removeTarget(t.TargetID())
	return url, nil
}

func (s *Session) indexOfCurrentLocked() int {
	for i, t := range s.tabs {
		if t == s.current {
			return i
		}
	}
	return -1
}

// Cookies lists the cookies of the browser-wide jar.
func (s *Session) Cookies(ctx context.Context) ([]*proto.NetworkCookie, error) {
	return s.browser.Context(ctx).GetCookies()
}

func (s *Session) SetCookies(ctx context.Context, cookies []*proto.NetworkCookieParam) error {
	return s.browser.Context(ctx).SetCookies(cookies)
}

// DeleteCookie removes every cookie called name and reports how many went.
func (s *Session) DeleteCookie(ctx context.Context, name string) (int, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return 0, err
	}
	tab, err := s.EnsureTab(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range cookies {
		if c.Name != name {
			continue
		}
		err := proto.NetworkDeleteCookies{Name: c.Name, Domain: c.Domain, Path: c.Path}.Call(tab.page.Context(ctx))
		if err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		return 0, errdefs.NotFound("cookie %s not found", name)
	}
	return n, nil
}

func (s *Session) ClearCookies(ctx context.Context) error {
	return s.browser.Context(ctx).SetCookies(nil)
}
