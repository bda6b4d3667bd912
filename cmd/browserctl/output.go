package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

var stdout io.Writer = os.Stdout

// errorOutput is printed instead of a result when a command fails.
type errorOutput struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func printError(err error) {
	out := errorOutput{Error: err.Error(), Kind: string(errdefs.KindOf(err))}
	if werr := writeJSON(out); werr != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

type result struct {
	Result string `json:"result"`
}

// paramsArg returns the optional JSON params argument. It is checked for
// syntax here; each command decodes it into its own shape.
func paramsArg(args []string) (json.RawMessage, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errdefs.InvalidArgument("expected at most one JSON params argument, got %d", len(args))
	}
	if !json.Valid([]byte(args[0])) {
		return nil, errdefs.InvalidArgument("Invalid JSON params: %s", args[0])
	}
	return json.RawMessage(args[0]), nil
}

// decodeParams decodes raw into v. Absent params leave v untouched.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errdefs.InvalidArgument("Invalid JSON params: %v", err)
	}
	return nil
}
