package tools

import (
	"context"
)

type dialogParams struct {
	Accept     bool   `json:"accept"`
	PromptText string `json:"promptText,omitempty"`
}

type uploadParams struct {
	Paths []string `json:"paths"`
}

func modalTools() []Tool {
	return []Tool{
		tool("handleDialog", "Accept or dismiss the pending dialog", handleDialog),
		tool("fileUpload", "Answer the pending file chooser", fileUpload),
	}
}

func handleDialog(ctx context.Context, env *Env, p dialogParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	if p.Accept {
		resp.AddCodef("dialog.Accept(%q)", p.PromptText)
	} else {
		resp.AddCode("dialog.Dismiss()")
	}
	return tab.HandleDialog(ctx, p.Accept, p.PromptText)
}

func fileUpload(ctx context.Context, env *Env, p uploadParams, resp *Response) error {
	tab, err := currentTab(env)
	if err != nil {
		return err
	}
	resp.IncludeSnapshot()
	resp.AddCodef("fileChooser.SetFiles(%q)", p.Paths)
	return tab.UploadFiles(ctx, p.Paths)
}
