package tools

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type keyParams struct {
	Key string `json:"key"`
}

type pressSequentiallyParams struct {
	Text   string `json:"text"`
	Submit bool   `json:"submit,omitempty"`
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
	"Insert":     input.Insert,
	"Shift":      input.ShiftLeft,
	"Control":    input.ControlLeft,
	"Alt":        input.AltLeft,
	"Meta":       input.MetaLeft,
	"F1":         input.F1,
	"F2":         input.F2,
	"F3":         input.F3,
	"F4":         input.F4,
	"F5":         input.F5,
	"F6":         input.F6,
	"F7":         input.F7,
	"F8":         input.F8,
	"F9":         input.F9,
	"F10":        input.F10,
	"F11":        input.F11,
	"F12":        input.F12,
}

// parseKey maps a key name or a single printable ASCII character to a key.
func parseKey(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if r := []rune(name); len(r) == 1 && r[0] < unicode.MaxASCII && unicode.IsPrint(r[0]) {
		return input.Key(r[0]), nil
	}
	return 0, errdefs.InvalidArgument("unknown key: %s (use Enter, Tab, Escape, ArrowDown, etc.)", name)
}

// parseCombo splits "Control+Shift+A" into held modifiers and the final key.
func parseCombo(combo string) (mods []input.Key, key input.Key, err error) {
	parts := strings.Split(combo, "+")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		// "Control++" presses plus
		parts = append(parts[:len(parts)-2], "+")
	}
	for _, p := range parts[:len(parts)-1] {
		k, err := parseKey(p)
		if err != nil {
			return nil, 0, err
		}
		mods = append(mods, k)
	}
	key, err = parseKey(parts[len(parts)-1])
	return mods, key, err
}

func pressKeyCombo(page *rod.Page, combo string) error {
	mods, key, err := parseCombo(combo)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		return page.Keyboard.Type(key)
	}
	return page.KeyActions().Press(mods...).Type(key).Do()
}

// typeSequentially types text one key at a time. Characters without a key
// are inserted as text.
func typeSequentially(page *rod.Page, text string) error {
	for _, r := range text {
		var err error
		switch {
		case r == '\n':
			err = page.Keyboard.Type(input.Enter)
		case r < unicode.MaxASCII && unicode.IsPrint(r):
			err = page.Keyboard.Type(input.Key(r))
		default:
			err = page.InsertText(string(r))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func keyboardTools() []Tool {
	return []Tool{
		tool("pressKey", "Press a key or key combination", pressKey),
		tool("pressSequentially", "Type text key by key into the focused element", pressSequentially),
		tool("keydown", "Hold a key down", keyDown),
		tool("keyup", "Release a held key", keyUp),
	}
}

func pressKey(ctx context.Context, env *Env, p keyParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	if _, _, err := parseCombo(p.Key); err != nil {
		return err
	}
	resp.AddCodef("page.Keyboard.Press(%q)", p.Key)
	if p.Key == "Enter" {
		resp.IncludeSnapshot()
		return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
			return pressKeyCombo(tab.Page().Context(ctx), p.Key)
		})
	}
	return pressKeyCombo(tab.Page().Context(ctx), p.Key)
}

func pressSequentially(ctx context.Context, env *Env, p pressSequentiallyParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Keyboard.Type(%q)", p.Text)
	if err := typeSequentially(tab.Page().Context(ctx), p.Text); err != nil {
		return err
	}
	if !p.Submit {
		return nil
	}
	resp.AddCode(`page.Keyboard.Press("Enter")`)
	resp.IncludeSnapshot()
	return tab.WaitForCompletion(ctx, func(ctx context.Context) error {
		return tab.Page().Context(ctx).Keyboard.Type(input.Enter)
	})
}

func keyDown(ctx context.Context, env *Env, p keyParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	k, err := parseKey(p.Key)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Keyboard.Down(%q)", p.Key)
	return tab.Page().Context(ctx).Keyboard.Press(k)
}

func keyUp(ctx context.Context, env *Env, p keyParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	k, err := parseKey(p.Key)
	if err != nil {
		return err
	}
	resp.AddCodef("page.Keyboard.Up(%q)", p.Key)
	return tab.Page().Context(ctx).Keyboard.Release(k)
}
