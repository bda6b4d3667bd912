package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
)

func loginPage() []axNode {
	return []axNode{
		{ID: "1", Role: "RootWebArea", Name: "Login", ChildIDs: []string{"2", "3", "7"}},
		{ID: "2", ParentID: "1", Role: "heading", Name: "Sign in", Props: map[string]string{"level": "1"}, ChildIDs: []string{"8"}},
		{ID: "8", ParentID: "2", Role: "StaticText", Name: "Sign in"},
		{ID: "3", ParentID: "1", Role: "generic", ChildIDs: []string{"4", "5", "6"}},
		{ID: "4", ParentID: "3", Role: "textbox", Name: "Email", Value: "a@b.c", BackendID: 40},
		{ID: "5", ParentID: "3", Role: "checkbox", Name: "Remember me", BackendID: 50, Props: map[string]string{"checked": "true"}},
		{ID: "6", ParentID: "3", Role: "button", Name: "Submit", BackendID: 60, Props: map[string]string{"disabled": "false"}},
		{ID: "7", ParentID: "1", Role: "link", Name: "Forgot?", BackendID: 70, Ignored: true},
	}
}

func TestBuildSnapshot(t *testing.T) {
	snap := buildSnapshot("ab12", loginPage())

	want := `- heading "Sign in" [level=1]
  - text: "Sign in"
- textbox "Email" [ref=ab12:e1]: a@b.c
- checkbox "Remember me" [checked] [ref=ab12:e2]
- button "Submit" [ref=ab12:e3]
`
	assert.Equal(t, want, snap.Text)
	assert.Equal(t, map[string]int{"ab12:e1": 40, "ab12:e2": 50, "ab12:e3": 60}, snap.Refs)
	assert.Equal(t, `button "Submit"`, snap.Label("ab12:e3"))
}

func TestBuildSnapshotIsDeterministic(t *testing.T) {
	a := buildSnapshot("ab12", loginPage())
	b := buildSnapshot("ab12", loginPage())
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Refs, b.Refs)
}

func TestParseRef(t *testing.T) {
	doc, n, err := ParseRef("ab12:e7")
	require.NoError(t, err)
	assert.Equal(t, "ab12", doc)
	assert.Equal(t, 7, n)

	for _, bad := range []string{"", "e7", "ab12:7", "ab12:e0", ":e3", "ab12:ex"} {
		_, _, err := ParseRef(bad)
		assert.ErrorIs(t, err, errdefs.ErrNotFound, bad)
	}
}

func TestLookupRejectsRefFromOtherDocument(t *testing.T) {
	before := buildSnapshot(DocTag("loader-1"), loginPage())
	after := buildSnapshot(DocTag("loader-2"), loginPage())
	require.NotEqual(t, before.Doc, after.Doc)

	ref := FormatRef(before.Doc, 3)
	id, err := before.Lookup(ref)
	require.NoError(t, err)
	assert.Equal(t, 60, id)

	_, err = after.Lookup(ref)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.Contains(t, err.Error(), "retake a snapshot")

	id, err = after.Lookup(FormatRef(after.Doc, 3))
	require.NoError(t, err)
	assert.Equal(t, 60, id)
}

func TestDocTagStable(t *testing.T) {
	assert.Equal(t, DocTag("abc"), DocTag("abc"))
	assert.Len(t, DocTag("abc"), 16)
}

func TestDocTagDistinguishesLoaders(t *testing.T) {
	// Loader ids as Chrome mints them: 32 upper-case hex digits.
	seen := make(map[string]string, 20000)
	for i := 0; i < 20000; i++ {
		loader := fmt.Sprintf("8F3A1C0D9B2E4F67A1B2C3D4E5%06X", i)
		tag := DocTag(loader)
		if prev, dup := seen[tag]; dup {
			t.Fatalf("loaders %s and %s share tag %s", prev, loader, tag)
		}
		seen[tag] = loader
	}
}

func TestLookupRejectsRefAcrossLoaders(t *testing.T) {
	old := buildSnapshot(DocTag("8F3A1C0D9B2E4F67A1B2C3D4E51C25C"), loginPage())
	fresh := buildSnapshot(DocTag("8F3A1C0D9B2E4F67A1B2C3D4E519ED14"), loginPage())
	require.NotEqual(t, old.Doc, fresh.Doc)

	_, err := fresh.Lookup(FormatRef(old.Doc, 3))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
