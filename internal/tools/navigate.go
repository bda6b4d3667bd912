package tools

import (
	"context"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

type navigateParams struct {
	URL string `json:"url"`
}

func navigationTools() []Tool {
	return []Tool{
		tool("navigate", "Navigate the current tab to a URL", navigate),
		tool("navigateBack", "Go back in history", historyStep("NavigateBack", func(t *session.Tab) error {
			return t.Page().NavigateBack()
		})),
		tool("navigateForward", "Go forward in history", historyStep("NavigateForward", func(t *session.Tab) error {
			return t.Page().NavigateForward()
		})),
		tool("reload", "Reload the current page", historyStep("Reload", func(t *session.Tab) error {
			return t.Page().Reload()
		})),
	}
}

func navigate(ctx context.Context, env *Env, p navigateParams, resp *Response) error {
	if p.URL == "" {
		return errdefs.InvalidArgument("url is required")
	}
	tab, err := env.Session.EnsureTab(ctx)
	if err != nil {
		return err
	}
	if err := tab.Navigate(ctx, p.URL); err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("page.Navigate(%q)", session.NormalizeURL(p.URL))
	return nil
}

func historyStep(method string, step func(*session.Tab) error) func(context.Context, *Env, noParams, *Response) error {
	return func(ctx context.Context, env *Env, _ noParams, resp *Response) error {
		tab, err := currentTab(env)
		if err != nil {
			return err
		}
		if err := tab.WaitForCompletion(ctx, func(context.Context) error { return step(tab) }); err != nil {
			return err
		}
		resp.IncludeSnapshot()
		resp.AddCodef("page.%s()", method)
		return nil
	}
}
