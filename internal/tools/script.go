package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

type runCodeParams struct {
	Code string `json:"code"`
}

func scriptTools() []Tool {
	return []Tool{
		tool("runCode", "Run a script against the page, e.g. async (page) => page.title()", runCode),
	}
}

// scriptPage is the page handed to runCode scripts. Every method blocks;
// scripts may still await them.
type scriptPage interface {
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Goto(ctx context.Context, url string) error
	Evaluate(ctx context.Context, fn string, args ...any) (any, error)
	Content(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	TextContent(ctx context.Context, selector string) (string, error)
	WaitForTimeout(ctx context.Context, d time.Duration)
}

func runCode(ctx context.Context, env *Env, p runCodeParams, resp *Response) error {
	if p.Code == "" {
		return errdefs.InvalidArgument("code is required")
	}
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddCodef("await (%s)(page);", p.Code)
	page := &tabScriptPage{tab: tab, timeout: env.Config.Timeouts.Action}
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		out, err := runScript(ctx, page, p.Code)
		if err != nil {
			return err
		}
		if out != "" {
			resp.AddResult(out)
		}
		return nil
	})
}

// runScript calls the function code evaluates to with page and returns its
// result as JSON, or "" when it returned undefined.
func runScript(ctx context.Context, page scriptPage, code string) (string, error) {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	val, err := vm.RunString("(" + code + "\n)")
	if err != nil {
		return "", errdefs.InvalidArgument("invalid code: %v", err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return "", errdefs.InvalidArgument("code must be a function taking page, e.g. async (page) => page.title()")
	}
	res, err := fn(goja.Undefined(), bindPage(ctx, vm, page))
	if err != nil {
		return "", fmt.Errorf("script failed: %w", err)
	}

	if promise, ok := res.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateRejected:
			return "", fmt.Errorf("script failed: %s", promise.Result().String())
		case goja.PromiseStatePending:
			return "", fmt.Errorf("script did not finish: only page methods can be awaited")
		}
		res = promise.Result()
	}
	if res == nil || goja.IsUndefined(res) {
		return "", nil
	}
	out, err := json.Marshal(res.Export())
	if err != nil {
		return "", fmt.Errorf("script result is not serializable: %w", err)
	}
	return string(out), nil
}

func bindPage(ctx context.Context, vm *goja.Runtime, page scriptPage) *goja.Object {
	obj := vm.NewObject()
	check := func(err error) {
		if err != nil {
			panic(vm.NewGoError(err))
		}
	}
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		check(obj.Set(name, fn))
	}
	value := func(v any, err error) goja.Value {
		check(err)
		return vm.ToValue(v)
	}
	arg := func(call goja.FunctionCall, i int) string {
		if goja.IsUndefined(call.Argument(i)) {
			panic(vm.NewTypeError("argument %d is required", i+1))
		}
		return call.Argument(i).String()
	}

	set("url", func(goja.FunctionCall) goja.Value { return value(page.URL(ctx)) })
	set("title", func(goja.FunctionCall) goja.Value { return value(page.Title(ctx)) })
	set("content", func(goja.FunctionCall) goja.Value { return value(page.Content(ctx)) })
	set("goto", func(call goja.FunctionCall) goja.Value {
		check(page.Goto(ctx, arg(call, 0)))
		return goja.Undefined()
	})
	set("click", func(call goja.FunctionCall) goja.Value {
		check(page.Click(ctx, arg(call, 0)))
		return goja.Undefined()
	})
	set("fill", func(call goja.FunctionCall) goja.Value {
		check(page.Fill(ctx, arg(call, 0), call.Argument(1).String()))
		return goja.Undefined()
	})
	set("textContent", func(call goja.FunctionCall) goja.Value {
		return value(page.TextContent(ctx, arg(call, 0)))
	})
	set("waitForTimeout", func(call goja.FunctionCall) goja.Value {
		page.WaitForTimeout(ctx, time.Duration(call.Argument(0).ToInteger())*time.Millisecond)
		return goja.Undefined()
	})
	// evaluate runs in the browser: a function is sent as its source text.
	set("evaluate", func(call goja.FunctionCall) goja.Value {
		var args []any
		if len(call.Arguments) > 1 {
			for _, a := range call.Arguments[1:] {
				args = append(args, a.Export())
			}
		}
		return value(page.Evaluate(ctx, arg(call, 0), args...))
	})
	return obj
}

type tabScriptPage struct {
	tab     *session.Tab
	timeout time.Duration
}

func (s *tabScriptPage) URL(context.Context) (string, error)   { return s.tab.URL(), nil }
func (s *tabScriptPage) Title(context.Context) (string, error) { return s.tab.Title(), nil }

func (s *tabScriptPage) Goto(ctx context.Context, url string) error {
	return s.tab.Navigate(ctx, url)
}

func (s *tabScriptPage) Evaluate(ctx context.Context, fn string, args ...any) (any, error) {
	res, err := s.tab.Page().Context(ctx).Eval(asFunction(fn), args...)
	if err != nil {
		return nil, err
	}
	if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (s *tabScriptPage) Content(ctx context.Context) (string, error) {
	return s.tab.Page().Context(ctx).HTML()
}

func (s *tabScriptPage) element(ctx context.Context, selector string) (*rod.Element, error) {
	lookup, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	el, err := s.tab.Page().Context(lookup).Element(selector)
	if err != nil {
		if isTimeout(err) {
			return nil, errdefs.NotFound("no element matches %q", selector)
		}
		return nil, err
	}
	return el.Context(ctx), nil
}

func (s *tabScriptPage) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *tabScriptPage) Fill(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (s *tabScriptPage) TextContent(ctx context.Context, selector string) (string, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (s *tabScriptPage) WaitForTimeout(ctx context.Context, d time.Duration) {
	s.tab.WaitForTimeout(ctx, d)
}
