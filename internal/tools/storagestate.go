package tools

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/storagestate"
)

type storageStateFile struct {
	Filename string `json:"filename"`
}

func storageStateTools() []Tool {
	return []Tool{
		tool("storageState", "Save cookies and localStorage to a file", storageState),
		tool("setStorageState", "Restore cookies and localStorage from a file", setStorageState),
	}
}

func storageState(ctx context.Context, env *Env, p storageStateFile, resp *Response) error {
	if _, err := env.Session.EnsureTab(ctx); err != nil {
		return err
	}
	st, err := storagestate.Capture(ctx, env.Session)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return resp.writeFile(env, "Storage state", "storage-state", "json", p.Filename, data)
}

func setStorageState(ctx context.Context, env *Env, p storageStateFile, resp *Response) error {
	if p.Filename == "" {
		return errdefs.InvalidArgument("filename is required")
	}
	path, err := filepath.Abs(p.Filename)
	if err != nil {
		return err
	}
	st, err := storagestate.Load(path)
	if err != nil {
		return err
	}
	if err := storagestate.Apply(ctx, env.Session, st); err != nil {
		return err
	}
	resp.AddResultf("Storage state restored from %s", p.Filename)
	return nil
}
