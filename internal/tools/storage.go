package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

type storageKey struct {
	Key string `json:"key"`
}

type storageEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const (
	storageListJS   = `(kind) => { const s = window[kind]; const r = []; for (let i = 0; i < s.length; i++) { const k = s.key(i); if (k !== null) r.push({ key: k, value: s.getItem(k) || '' }); } return r; }`
	storageGetJS    = `(kind, key) => window[kind].getItem(key)`
	storageSetJS    = `(kind, key, value) => { window[kind].setItem(key, value); }`
	storageDeleteJS = `(kind, key) => { window[kind].removeItem(key); }`
	storageClearJS  = `(kind) => { window[kind].clear(); }`
)

// storageTools builds the List/Get/Set/Delete/Clear tools for one web
// storage area, localStorage or sessionStorage.
func storageTools(kind string) []Tool {
	return []Tool{
		tool(kind+"List", "List "+kind+" items", func(ctx context.Context, env *Env, _ noParams, resp *Response) error {
			tab, err := currentTab(env)
			if err != nil {
				return err
			}
			res, err := tab.Page().Context(ctx).Eval(storageListJS, kind)
			if err != nil {
				return err
			}
			raw, err := res.Value.MarshalJSON()
			if err != nil {
				return err
			}
			var items []storageEntry
			if err := json.Unmarshal(raw, &items); err != nil {
				return err
			}
			resp.AddResult(renderStorage(kind, items))
			return nil
		}),
		tool(kind+"Get", "Get a "+kind+" item", func(ctx context.Context, env *Env, p storageKey, resp *Response) error {
			tab, err := currentTab(env)
			if err != nil {
				return err
			}
			res, err := tab.Page().Context(ctx).Eval(storageGetJS, kind, p.Key)
			if err != nil {
				return err
			}
			if res.Value.Nil() {
				return errdefs.NotFound("%s key '%s' not found", kind, p.Key)
			}
			resp.AddResultf("%s=%s", p.Key, res.Value.Str())
			return nil
		}),
		tool(kind+"Set", "Set a "+kind+" item", func(ctx context.Context, env *Env, p storageEntry, resp *Response) error {
			tab, err := currentTab(env)
			if err != nil {
				return err
			}
			if _, err := tab.Page().Context(ctx).Eval(storageSetJS, kind, p.Key, p.Value); err != nil {
				return err
			}
			resp.AddResultf("%s '%s' set.", kind, p.Key)
			return nil
		}),
		tool(kind+"Delete", "Delete a "+kind+" item", func(ctx context.Context, env *Env, p storageKey, resp *Response) error {
			tab, err := currentTab(env)
			if err != nil {
				return err
			}
			if _, err := tab.Page().Context(ctx).Eval(storageDeleteJS, kind, p.Key); err != nil {
				return err
			}
			resp.AddResultf("%s '%s' deleted.", kind, p.Key)
			return nil
		}),
		tool(kind+"Clear", "Clear "+kind, func(ctx context.Context, env *Env, _ noParams, resp *Response) error {
			tab, err := currentTab(env)
			if err != nil {
				return err
			}
			if _, err := tab.Page().Context(ctx).Eval(storageClearJS, kind); err != nil {
				return err
			}
			resp.AddResultf("%s cleared.", kind)
			return nil
		}),
	}
}

func renderStorage(kind string, items []storageEntry) string {
	if len(items) == 0 {
		return fmt.Sprintf("No %s items found", kind)
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Key+"="+it.Value)
	}
	return strings.Join(lines, "\n")
}
