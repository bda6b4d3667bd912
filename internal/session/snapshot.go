package session

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

var interactiveRoles = map[string]bool{
	"button":           true,
	"checkbox":         true,
	"combobox":         true,
	"link":             true,
	"listbox":          true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"option":           true,
	"radio":            true,
	"searchbox":        true,
	"slider":           true,
	"spinbutton":       true,
	"switch":           true,
	"tab":              true,
	"textbox":          true,
	"treeitem":         true,
}

// roles that only add nesting; their children are rendered in their place
var transparentRoles = map[string]bool{
	"":              true,
	"none":          true,
	"generic":       true,
	"presentation":  true,
	"InlineTextBox": true,
	"LineBreak":     true,
	"RootWebArea":   true,
	"Ignored":       true,
}

var flagProperties = []string{"checked", "disabled", "expanded", "selected", "pressed", "required"}

// axNode is the part of an accessibility node the snapshot needs.
type axNode struct {
	ID        string
	ChildIDs  []string
	ParentID  string
	Role      string
	Name      string
	Value     string
	BackendID int
	Ignored   bool
	Props     map[string]string
}

// Snapshot is a rendered accessibility tree and the refs minted from it.
type Snapshot struct {
	Doc        string
	URL        string
	Title      string
	Text       string
	Refs       map[string]int
	Labels     map[string]string
	CapturedAt time.Time
}

// DocTag derives the document tag embedded in refs from a main frame loader
// id. A new document gets a new loader id and so a new tag. The full 64-bit
// hash is kept: a shared tag would let a ref survive a navigation.
func DocTag(loaderID string) string {
	h := fnv.New64a()
	h.Write([]byte(loaderID))
	return fmt.Sprintf("%016x", h.Sum64())
}

// FormatRef builds the ref for the n-th interactive node of a document.
func FormatRef(doc string, n int) string {
	return fmt.Sprintf("%s:e%d", doc, n)
}

// ParseRef splits a ref into its document tag and ordinal.
func ParseRef(ref string) (doc string, n int, err error) {
	doc, ord, ok := strings.Cut(ref, ":")
	if ok && strings.HasPrefix(ord, "e") {
		if n, err := strconv.Atoi(ord[1:]); err == nil && n > 0 && doc != "" {
			return doc, n, nil
		}
	}
	return "", 0, errdefs.NotFound("ref %s not found in current snapshot, retake a snapshot", ref)
}

// Label describes the node behind ref as `role "name"`.
func (s *Snapshot) Label(ref string) string {
	if l, ok := s.Labels[ref]; ok {
		return l
	}
	return ref
}

// Lookup returns the backend node id behind ref.
func (s *Snapshot) Lookup(ref string) (int, error) {
	doc, _, err := ParseRef(ref)
	if err != nil {
		return 0, err
	}
	id, ok := s.Refs[ref]
	if doc != s.Doc || !ok {
		return 0, errdefs.NotFound("ref %s not found in current snapshot, retake a snapshot", ref)
	}
	return id, nil
}

// buildSnapshot renders nodes as an indented list and assigns refs to
// interactive nodes in pre-order, so an unchanged document always yields
// the same refs.
func buildSnapshot(doc string, nodes []axNode) *Snapshot {
	byID := make(map[string]*axNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	var b strings.Builder
	snap := &Snapshot{Doc: doc, Refs: map[string]int{}, Labels: map[string]string{}}
	counter := 0

	var walk func(n *axNode, depth int)
	walk = func(n *axNode, depth int) {
		childDepth := depth
		if !n.Ignored && !transparentRoles[n.Role] {
			b.WriteString(strings.Repeat("  ", depth))
			if n.Role == "StaticText" {
				fmt.Fprintf(&b, "- text: %q\n", n.Name)
			} else {
				writeNode(&b, n)
				if interactiveRoles[n.Role] && n.BackendID > 0 {
					counter++
					ref := FormatRef(doc, counter)
					snap.Refs[ref] = n.BackendID
					snap.Labels[ref] = label(n)
					fmt.Fprintf(&b, " [ref=%s]", ref)
				}
				if n.Value != "" && n.Value != n.Name {
					fmt.Fprintf(&b, ": %s", n.Value)
				}
				b.WriteByte('\n')
			}
			childDepth = depth + 1
		}
		for _, id := range n.ChildIDs {
			if c, ok := byID[id]; ok {
				walk(c, childDepth)
			}
		}
	}

	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == "" || byID[n.ParentID] == nil {
			walk(n, 0)
		}
	}
	snap.Text = b.String()
	return snap
}

func label(n *axNode) string {
	if n.Name == "" {
		return n.Role
	}
	return fmt.Sprintf("%s %q", n.Role, n.Name)
}

func writeNode(b *strings.Builder, n *axNode) {
	b.WriteString("- ")
	b.WriteString(n.Role)
	if n.Name != "" {
		fmt.Fprintf(b, " %q", n.Name)
	}
	for _, p := range flagProperties {
		switch v := n.Props[p]; v {
		case "", "false":
		case "true":
			fmt.Fprintf(b, " [%s]", p)
		default:
			fmt.Fprintf(b, " [%s=%s]", p, v)
		}
	}
	if lvl := n.Props["level"]; lvl != "" {
		fmt.Fprintf(b, " [level=%s]", lvl)
	}
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil || v.Value.Nil() {
		return ""
	}
	if s := v.Value.Str(); s != "" {
		return s
	}
	return v.Value.String()
}

func convertAXNodes(in []*proto.AccessibilityAXNode) []axNode {
	out := make([]axNode, 0, len(in))
	for _, n := range in {
		node := axNode{
			ID:        string(n.NodeID),
			ParentID:  string(n.ParentID),
			Role:      axString(n.Role),
			Name:      axString(n.Name),
			Value:     axString(n.Value),
			BackendID: int(n.BackendDOMNodeID),
			Ignored:   n.Ignored,
			Props:     map[string]string{},
		}
		for _, c := range n.ChildIDs {
			node.ChildIDs = append(node.ChildIDs, string(c))
		}
		for _, p := range n.Properties {
			node.Props[string(p.Name)] = axString(p.Value)
		}
		out = append(out, node)
	}
	return out
}
