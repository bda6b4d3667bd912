package session

import (
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

type ModalType string

const (
	ModalDialog      ModalType = "dialog"
	ModalFileChooser ModalType = "fileChooser"
)

// ModalState is a pending dialog or file chooser that blocks the page until
// a tool resolves it.
type ModalState struct {
	Type          ModalType
	Description   string
	DialogType    string
	Message       string
	DefaultPrompt string
	BackendNodeID proto.DOMBackendNodeID
	Multiple      bool
}

func dialogModal(e *proto.PageJavascriptDialogOpening) *ModalState {
	return &ModalState{
		Type:          ModalDialog,
		Description:   fmt.Sprintf("%q dialog with message %q", string(e.Type), e.Message),
		DialogType:    string(e.Type),
		Message:       e.Message,
		DefaultPrompt: e.DefaultPrompt,
	}
}

func fileChooserModal(e *proto.PageFileChooserOpened) *ModalState {
	return &ModalState{
		Type:          ModalFileChooser,
		Description:   "File chooser",
		BackendNodeID: e.BackendNodeID,
		Multiple:      e.Mode == proto.PageFileChooserOpenedModeSelectMultiple,
	}
}
