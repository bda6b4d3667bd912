package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

type snapshotParams struct {
	Filename string `json:"filename,omitempty"`
}

type refParams struct {
	Ref     string `json:"ref"`
	Element string `json:"element,omitempty"`
}

type clickParams struct {
	refParams
	DoubleClick bool   `json:"doubleClick,omitempty"`
	Button      string `json:"button,omitempty"`
}

type dragParams struct {
	StartRef string `json:"startRef"`
	EndRef   string `json:"endRef"`
}

type selectParams struct {
	refParams
	Values []string `json:"values"`
}

type typeParams struct {
	refParams
	Text   string `json:"text"`
	Slowly bool   `json:"slowly,omitempty"`
	Submit bool   `json:"submit,omitempty"`
}

type formField struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Ref   string `json:"ref"`
	Value string `json:"value"`
}

type fillFormParams struct {
	Fields []formField `json:"fields"`
}

func interactionTools() []Tool {
	return []Tool{
		tool("snapshot", "Capture an accessibility snapshot of the current tab", snapshot),
		tool("click", "Click an element by ref", click),
		tool("hover", "Hover over an element by ref", hover),
		tool("drag", "Drag one element onto another", drag),
		tool("selectOption", "Select options in a dropdown", selectOption),
		tool("check", "Check a checkbox or radio", setChecked(true)),
		tool("uncheck", "Uncheck a checkbox", setChecked(false)),
		tool("type", "Type text into an editable element", typeText),
		tool("fillForm", "Fill several form fields", fillForm),
	}
}

func snapshot(ctx context.Context, env *Env, p snapshotParams, resp *Response) error {
	if _, err := env.Session.EnsureTab(ctx); err != nil {
		return err
	}
	resp.IncludeSnapshot()
	if p.Filename != "" {
		path, err := outputFile(env.Config.OutputDir, "snapshot", "md", p.Filename, now())
		if err != nil {
			return err
		}
		resp.snapshotFile = path
		resp.AddResultf("[Snapshot](%s)", path)
	}
	return nil
}

func resolve(ctx context.Context, env *Env, ref string) (*session.Tab, *session.ResolvedRef, error) {
	if ref == "" {
		return nil, nil, errdefs.InvalidArgument("ref is required")
	}
	tab, err := currentTab(env)
	if err != nil {
		return nil, nil, err
	}
	r, err := tab.RefLocator(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return tab, r, nil
}

func mouseButton(name string) (proto.InputMouseButton, error) {
	switch strings.ToLower(name) {
	case "", "left":
		return proto.InputMouseButtonLeft, nil
	case "right":
		return proto.InputMouseButtonRight, nil
	case "middle":
		return proto.InputMouseButtonMiddle, nil
	}
	return "", errdefs.InvalidArgument("unknown mouse button %q", name)
}

func elCode(r *session.ResolvedRef) string {
	return fmt.Sprintf("el(%s)", r.Label)
}

func click(ctx context.Context, env *Env, p clickParams, resp *Response) error {
	button, err := mouseButton(p.Button)
	if err != nil {
		return err
	}
	tab, r, err := resolve(ctx, env, p.Ref)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	count := 1
	if p.DoubleClick {
		count = 2
	}
	resp.AddCodef("%s.Click(%q, %d)", elCode(r), button, count)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		return r.Element.Context(ctx).Click(button, count)
	})
}

func hover(ctx context.Context, env *Env, p refParams, resp *Response) error {
	tab, r, err := resolve(ctx, env, p.Ref)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("%s.Hover()", elCode(r))
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		return r.Element.Context(ctx).Hover()
	})
}

func drag(ctx context.Context, env *Env, p dragParams, resp *Response) error {
	tab, start, err := resolve(ctx, env, p.StartRef)
	if err != nil {
		return err
	}
	_, end, err := resolve(ctx, env, p.EndRef)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("%s.DragTo(%s)", elCode(start), elCode(end))
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		from, err := start.Element.Context(ctx).WaitInteractable()
		if err != nil {
			return err
		}
		to, err := end.Element.Context(ctx).WaitInteractable()
		if err != nil {
			return err
		}
		mouse := tab.Page().Context(ctx).Mouse
		if err := mouse.MoveTo(*from); err != nil {
			return err
		}
		if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		if err := mouse.MoveLinear(*to, 5); err != nil {
			return err
		}
		return mouse.Up(proto.InputMouseButtonLeft, 1)
	})
}

const selectOptionsJS = `(values) => {
	const wanted = new Set(values);
	let matched = 0;
	for (const opt of this.options) {
		opt.selected = wanted.has(opt.value) || wanted.has(opt.label);
		if (opt.selected) matched++;
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return matched;
}`

func selectOption(ctx context.Context, env *Env, p selectParams, resp *Response) error {
	tab, r, err := resolve(ctx, env, p.Ref)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("%s.Select(%q)", elCode(r), p.Values)
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		return selectValues(ctx, r, p.Values)
	})
}

func selectValues(ctx context.Context, r *session.ResolvedRef, values []string) error {
	res, err := r.Element.Context(ctx).Eval(selectOptionsJS, values)
	if err != nil {
		return err
	}
	if res.Value.Int() == 0 && len(values) > 0 {
		return errdefs.NotFound("no option matching %q", values)
	}
	return nil
}

func isChecked(ctx context.Context, r *session.ResolvedRef) (bool, error) {
	v, err := r.Element.Context(ctx).Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func ensureChecked(ctx context.Context, r *session.ResolvedRef, want bool) error {
	checked, err := isChecked(ctx, r)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return r.Element.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func setChecked(want bool) func(context.Context, *Env, refParams, *Response) error {
	return func(ctx context.Context, env *Env, p refParams, resp *Response) error {
		_, r, err := resolve(ctx, env, p.Ref)
		if err != nil {
			return err
		}
		if want {
			resp.AddCodef("%s.Check()", elCode(r))
		} else {
			resp.AddCodef("%s.Uncheck()", elCode(r))
		}
		return ensureChecked(ctx, r, want)
	}
}

func fill(ctx context.Context, r *session.ResolvedRef, text string) error {
	el := r.Element.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func typeText(ctx context.Context, env *Env, p typeParams, resp *Response) error {
	tab, r, err := resolve(ctx, env, p.Ref)
	if err != nil {
		return err
	}
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		if p.Slowly {
			resp.IncludeSnapshot()
			resp.AddCodef("%s.Type(%q)", elCode(r), p.Text)
			if err := r.Element.Context(ctx).Focus(); err != nil {
				return err
			}
			if err := typeSequentially(tab.Page().Context(ctx), p.Text); err != nil {
				return err
			}
		} else {
			resp.AddCodef("%s.Input(%q)", elCode(r), p.Text)
			if err := fill(ctx, r, p.Text); err != nil {
				return err
			}
		}
		if p.Submit {
			resp.IncludeSnapshot()
			resp.AddCodef("%s.Press(Enter)", elCode(r))
			return pressKeyCombo(tab.Page().Context(ctx), "Enter")
		}
		return nil
	})
}

func fillForm(ctx context.Context, env *Env, p fillFormParams, resp *Response) error {
	for _, f := range p.Fields {
		_, r, err := resolve(ctx, env, f.Ref)
		if err != nil {
			return err
		}
		switch f.Type {
		case "textbox", "slider":
			resp.AddCodef("%s.Input(%q)", elCode(r), f.Value)
			err = fill(ctx, r, f.Value)
		case "checkbox", "radio":
			resp.AddCodef("%s.SetChecked(%s)", elCode(r), f.Value)
			err = ensureChecked(ctx, r, f.Value == "true")
		case "combobox":
			resp.AddCodef("%s.Select(%q)", elCode(r), f.Value)
			err = selectValues(ctx, r, []string{f.Value})
		default:
			err = errdefs.InvalidArgument("field %q has unsupported type %q", f.Name, f.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
