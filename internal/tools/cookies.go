package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type cookieFilter struct {
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

type cookieName struct {
	Name string `json:"name"`
}

type cookieSetParams struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Expires  *float64 `json:"expires,omitempty"`
	HTTPOnly *bool    `json:"httpOnly,omitempty"`
	Secure   *bool    `json:"secure,omitempty"`
	SameSite string   `json:"sameSite,omitempty"`
}

func cookieTools() []Tool {
	return []Tool{
		tool("cookieList", "List cookies, optionally filtered by domain or path", cookieList),
		tool("cookieGet", "Show one cookie by name", cookieGet),
		tool("cookieSet", "Set a cookie", cookieSet),
		tool("cookieDelete", "Delete cookies by name", cookieDelete),
		tool("cookieClear", "Delete every cookie", cookieClear),
	}
}

func filterCookies(cookies []*proto.NetworkCookie, f cookieFilter) []*proto.NetworkCookie {
	var out []*proto.NetworkCookie
	for _, c := range cookies {
		if f.Domain != "" && !strings.Contains(c.Domain, f.Domain) {
			continue
		}
		if f.Path != "" && !strings.HasPrefix(c.Path, f.Path) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cookieLine(c *proto.NetworkCookie) string {
	return fmt.Sprintf("%s=%s (domain: %s, path: %s)", c.Name, c.Value, c.Domain, c.Path)
}

func cookieList(ctx context.Context, env *Env, p cookieFilter, resp *Response) error {
	cookies, err := env.Session.Cookies(ctx)
	if err != nil {
		return err
	}
	cookies = filterCookies(cookies, p)
	if len(cookies) == 0 {
		resp.AddResult("No cookies found")
		return nil
	}
	lines := make([]string, 0, len(cookies))
	for _, c := range cookies {
		lines = append(lines, cookieLine(c))
	}
	resp.AddResult(strings.Join(lines, "\n"))
	return nil
}

func cookieGet(ctx context.Context, env *Env, p cookieName, resp *Response) error {
	cookies, err := env.Session.Cookies(ctx)
	if err != nil {
		return err
	}
	for _, c := range cookies {
		if c.Name == p.Name {
			resp.AddResultf("%s=%s (domain: %s, path: %s, httpOnly: %t, secure: %t, sameSite: %s)",
				c.Name, c.Value, c.Domain, c.Path, c.HTTPOnly, c.Secure, c.SameSite)
			return nil
		}
	}
	return errdefs.NotFound("Cookie '%s' not found", p.Name)
}

// cookieParam builds the cookie to set. An empty domain defaults to the
// host of pageURL.
func cookieParam(p cookieSetParams, pageURL string) (*proto.NetworkCookieParam, error) {
	if p.Name == "" {
		return nil, errdefs.InvalidArgument("cookie name is required")
	}
	c := &proto.NetworkCookieParam{
		Name:   p.Name,
		Value:  p.Value,
		Domain: p.Domain,
		Path:   p.Path,
	}
	if c.Domain == "" {
		u, err := url.Parse(pageURL)
		if err != nil || u.Hostname() == "" {
			return nil, errdefs.InvalidArgument("cookie domain is required when the current page has no host")
		}
		c.Domain = u.Hostname()
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if p.Expires != nil {
		c.Expires = proto.TimeSinceEpoch(*p.Expires)
	}
	if p.HTTPOnly != nil {
		c.HTTPOnly = *p.HTTPOnly
	}
	if p.Secure != nil {
		c.Secure = *p.Secure
	}
	if p.SameSite != "" {
		c.SameSite = proto.NetworkCookieSameSite(p.SameSite)
	}
	return c, nil
}

func cookieSet(ctx context.Context, env *Env, p cookieSetParams, resp *Response) error {
	tab, err := env.Session.EnsureTab(ctx)
	if err != nil {
		return err
	}
	c, err := cookieParam(p, tab.URL())
	if err != nil {
		return err
	}
	if err := env.Session.SetCookies(ctx, []*proto.NetworkCookieParam{c}); err != nil {
		return err
	}
	resp.AddResultf("Cookie '%s' set.", p.Name)
	return nil
}

func cookieDelete(ctx context.Context, env *Env, p cookieName, resp *Response) error {
	if _, err := env.Session.DeleteCookie(ctx, p.Name); err != nil {
		return err
	}
	resp.AddResultf("Cookie '%s' deleted.", p.Name)
	return nil
}

func cookieClear(ctx context.Context, env *Env, _ noParams, resp *Response) error {
	if err := env.Session.ClearCookies(ctx); err != nil {
		return err
	}
	resp.AddResult("All cookies cleared.")
	return nil
}
