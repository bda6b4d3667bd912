package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/session"
)

var now = time.Now

// Response accumulates what a tool produced.
type Response struct {
	results      []string
	code         []string
	snapshot     bool
	snapshotFile string
}

// Output is the JSON document printed for a successful tool run.
type Output struct {
	Result   string   `json:"result,omitempty"`
	Code     string   `json:"code,omitempty"`
	Snapshot string   `json:"snapshot,omitempty"`
	Tabs     []string `json:"tabs,omitempty"`
}

func (r *Response) AddResult(text string) { r.results = append(r.results, text) }

func (r *Response) AddResultf(format string, args ...any) {
	r.AddResult(fmt.Sprintf(format, args...))
}

func (r *Response) AddCode(line string) { r.code = append(r.code, line) }

func (r *Response) AddCodef(format string, args ...any) {
	r.AddCode(fmt.Sprintf(format, args...))
}

// IncludeSnapshot asks for the current tab's snapshot in the output.
func (r *Response) IncludeSnapshot() { r.snapshot = true }

// Serialize renders the response. A snapshot that cannot be taken, for
// example mid-navigation, is left out rather than failing the tool.
func (r *Response) Serialize(ctx context.Context, s *session.Session, log *zap.Logger) Output {
	out := Output{
		Result: strings.Join(r.results, "\n"),
		Code:   strings.Join(r.code, "\n"),
	}
	if s == nil {
		return out
	}

	if r.snapshot {
		if tab := s.CurrentTab(); tab != nil {
			snap, err := tab.CaptureSnapshot(ctx)
			switch {
			case err != nil:
				log.Debug("snapshot skipped", zap.Error(err))
			case r.snapshotFile != "":
				if err := os.WriteFile(r.snapshotFile, []byte(snap.Text), 0o644); err != nil {
					log.Warn("write snapshot file", zap.Error(err))
				}
				out.Snapshot = snap.Text
			default:
				out.Snapshot = snap.Text
			}
		}
	}

	current := s.CurrentTab()
	for i, tab := range s.Tabs() {
		out.Tabs = append(out.Tabs, tabLine(i, tab == current, tab.Title(), tab.URL()))
	}
	return out
}

func tabLine(i int, current bool, title, url string) string {
	marker := ""
	if current {
		marker = " (current)"
	}
	return fmt.Sprintf("%d:%s [%s](%s)", i, marker, title, url)
}

// outputFile picks where a generated artifact goes: an absolute suggestion
// as given, a relative one under the working directory, otherwise a
// timestamped name in dir.
func outputFile(dir, prefix, ext, suggested string, now time.Time) (string, error) {
	var path string
	switch {
	case suggested != "" && filepath.IsAbs(suggested):
		path = suggested
	case suggested != "":
		abs, err := filepath.Abs(suggested)
		if err != nil {
			return "", err
		}
		path = abs
	default:
		path = filepath.Join(dir, config.ArtifactName(prefix, ext, now))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Response) writeFile(env *Env, title, prefix, ext, suggested string, data []byte) error {
	path, err := outputFile(env.Config.OutputDir, prefix, ext, suggested, now())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	r.AddResultf("[%s](%s)", title, path)
	return nil
}
