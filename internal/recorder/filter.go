package recorder

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter decides which request URLs are recorded. A pattern containing glob
// metacharacters is compiled as a glob over the whole URL; anything else is
// a substring match. The empty pattern matches everything.
type Filter struct {
	pattern string
	g       glob.Glob
}

func NewFilter(pattern string) (*Filter, error) {
	f := &Filter{pattern: pattern}
	if strings.ContainsAny(pattern, "*?[{") {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", pattern, err)
		}
		f.g = g
	}
	return f, nil
}

func (f *Filter) Match(url string) bool {
	switch {
	case f == nil || f.pattern == "":
		return true
	case f.g != nil:
		return f.g.Match(url)
	}
	return strings.Contains(url, f.pattern)
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.pattern
}
