package editor

import (
	"encoding/json"
	"errors"
	"testing"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T, options int) (*contract.Tree, string) {
	t.Helper()
	tree := contract.NewTree()
	s, err := tree.AddSection("Price", contract.VariantDynamic)
	require.NoError(t, err)
	require.NoError(t, tree.ResizeOptions(s.ID, options))
	return tree, s.ID
}

func runTexts(d document.Document) []string {
	var out []string
	for _, r := range d.Runs() {
		out = append(out, r.Text)
	}
	return out
}

func TestEndToEndPlaceholderEdit(t *testing.T) {
	tree, id := newTree(t, 2)
	before, _ := tree.Section(id)
	s := New(tree, tokens.Default())

	require.NoError(t, s.OpenOption(id, 0))
	assert.Equal(t, StateEditingOption, s.State())
	require.NoError(t, s.InsertText("Price: ", nil))
	require.NoError(t, s.InsertPlaceholder("AssetPrice"))
	require.NoError(t, s.FinishEdit())
	assert.Equal(t, StateIdle, s.State())

	after, _ := tree.Section(id)
	body := after.Options[0].Body
	assert.Equal(t, []string{"Price: ", "[AssetPrice]", " "}, runTexts(body))
	assert.Equal(t, []string{"AssetPrice"}, body.Tokens())
	assert.Contains(t, after.Options[0].BodyHTML, "Price: ")
	assert.Contains(t, after.Options[0].BodyHTML, `data-token="AssetPrice">[AssetPrice]</span>`)
	assert.True(t, after.Options[1].Body.Equal(before.Options[1].Body))
	assert.Equal(t, before.Options[1].BodyHTML, after.Options[1].BodyHTML)
}

func TestUnknownTokenKeepsWorkingCopy(t *testing.T) {
	tree, id := newTree(t, 1)
	s := New(tree, tokens.Default())
	require.NoError(t, s.OpenOption(id, 0))
	require.NoError(t, s.InsertText("Total: ", nil))
	before := s.Working()

	err := s.InsertPlaceholder("NotARealToken")
	assert.True(t, errors.Is(err, document.ErrUnknownToken))
	assert.True(t, s.Working().Equal(before))
	assert.Equal(t, StateEditingOption, s.State())
}

func TestEditsRequireOpenNode(t *testing.T) {
	tree, _ := newTree(t, 1)
	s := New(tree, tokens.Default())

	assert.True(t, errors.Is(s.InsertText("x", nil), ErrNoOpenNode))
	assert.True(t, errors.Is(s.InsertPlaceholder("AssetPrice"), ErrNoOpenNode))
	assert.True(t, errors.Is(s.ApplyStyle(document.StyleBold), ErrNoOpenNode))
	assert.True(t, errors.Is(s.DeleteRange(), ErrNoOpenNode))
	assert.True(t, errors.Is(s.Select(document.Caret(0)), ErrNoOpenNode))
	assert.True(t, errors.Is(s.SetMetadata(contract.NodeMetadata{}), ErrNoOpenNode))
}

func TestInvalidTransitions(t *testing.T) {
	tree, id := newTree(t, 1)
	s := New(tree, tokens.Default())

	assert.True(t, errors.Is(s.OpenSubOption(0), ErrInvalidTransition))
	assert.True(t, errors.Is(s.ReturnToOption(), ErrInvalidTransition))
	assert.True(t, errors.Is(s.Discard(), ErrInvalidTransition))
	assert.True(t, errors.Is(s.FinishEdit(), ErrInvalidTransition))

	require.NoError(t, s.OpenOption(id, 0))
	assert.True(t, errors.Is(s.ReturnToOption(), ErrInvalidTransition))
	assert.True(t, errors.Is(s.OpenSubOption(0), contract.ErrNodeNotFound))
	assert.Equal(t, StateEditingOption, s.State())
}

func TestSubOptionEditingCommitsToParentPath(t *testing.T) {
	tree, id := newTree(t, 2)
	require.NoError(t, tree.ResizeSubOptions(id, 1, 2))
	s := New(tree, tokens.Default())

	require.NoError(t, s.OpenOption(id, 1))
	require.NoError(t, s.OpenSubOption(1))
	assert.Equal(t, StateEditingSubOption, s.State())
	path, ok := s.Path()
	require.True(t, ok)
	assert.Equal(t, contract.SubOptionPath(id, 1, 1), path)

	require.NoError(t, s.InsertText("late fee applies", nil))
	require.NoError(t, s.ReturnToOption())
	assert.Equal(t, StateEditingOption, s.State())
	assert.False(t, s.Dirty())

	sec, _ := tree.Section(id)
	assert.Equal(t, "late fee applies", sec.Options[1].SubOptions[1].Body.PlainText())
	assert.Equal(t, "<p>late fee applies</p>\n", sec.Options[1].SubOptions[1].BodyHTML)
	assert.True(t, sec.Options[1].SubOptions[0].Body.IsEmpty())
}

func TestNavigationCommitsPendingEdits(t *testing.T) {
	tree, id := newTree(t, 2)
	s := New(tree, tokens.Default())

	require.NoError(t, s.OpenOption(id, 0))
	require.NoError(t, s.InsertText("first", nil))
	require.NoError(t, s.SetMetadata(contract.NodeMetadata{Summary: "First", Icon: icons.RefMoney}))
	require.NoError(t, s.OpenOption(id, 1))

	sec, _ := tree.Section(id)
	assert.Equal(t, "first", sec.Options[0].Body.PlainText())
	assert.Equal(t, "First", sec.Options[0].Summary)
	assert.Equal(t, icons.RefMoney, sec.Options[0].Icon)
	assert.True(t, s.Working().IsEmpty())
}

func TestFailedCommitKeepsSession(t *testing.T) {
	tree, id := newTree(t, 2)
	s := New(tree, tokens.Default())

	require.NoError(t, s.OpenOption(id, 1))
	require.NoError(t, s.InsertText("orphan", nil))
	// the option disappears underneath the open session
	require.NoError(t, tree.ResizeOptions(id, 1))
	fingerprint := tree.Fingerprint()

	err := s.FinishEdit()
	assert.True(t, errors.Is(err, contract.ErrNodeNotFound))
	assert.Equal(t, StateEditingOption, s.State())
	assert.Equal(t, "orphan", s.Working().PlainText())
	assert.True(t, s.Dirty())

	err = s.OpenOption(id, 0)
	assert.True(t, errors.Is(err, contract.ErrNodeNotFound))
	path, _ := s.Path()
	assert.Equal(t, contract.OptionPath(id, 1), path)
	assert.Equal(t, fingerprint, tree.Fingerprint())

	require.NoError(t, s.Discard())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, fingerprint, tree.Fingerprint())
}

func TestDiscardLeavesTreeUnchanged(t *testing.T) {
	tree, id := newTree(t, 1)
	before := tree.Fingerprint()
	s := New(tree, tokens.Default())

	require.NoError(t, s.OpenOption(id, 0))
	require.NoError(t, s.InsertText("draft", nil))
	require.NoError(t, s.Discard())

	assert.Equal(t, before, tree.Fingerprint())
	assert.True(t, s.Working().IsEmpty())
}

func TestStylingAndDeletion(t *testing.T) {
	tree, id := newTree(t, 1)
	s := New(tree, tokens.Default())
	require.NoError(t, s.OpenOption(id, 0))
	require.NoError(t, s.InsertText("Net thirty days", nil))

	require.NoError(t, s.Select(document.Selection{Start: 4, End: 10}))
	require.NoError(t, s.ApplyStyle(document.StyleBold))
	assert.Equal(t, []string{"Net ", "thirty", " days"}, runTexts(s.Working()))
	require.NoError(t, s.ToggleStyle(document.StyleBold))
	assert.Equal(t, []string{"Net thirty days"}, runTexts(s.Working()))
	assert.Error(t, s.ApplyStyle(document.Style("BLINK")))

	require.NoError(t, s.Select(document.Selection{Start: 100, End: 3}))
	assert.Equal(t, document.Selection{Start: 3, End: 15}, s.Selection())
	require.NoError(t, s.DeleteRange())
	assert.Equal(t, "Net", s.Working().PlainText())
	assert.Equal(t, document.Caret(3), s.Selection())
}

func TestSnapshotRestore(t *testing.T) {
	tree, id := newTree(t, 2)
	s := New(tree, tokens.Default())
	require.NoError(t, s.OpenOption(id, 1))
	require.NoError(t, s.InsertText("Pay ", nil))
	require.NoError(t, s.InsertPlaceholder("PlatformFee"))
	require.NoError(t, s.SetMetadata(contract.NodeMetadata{Summary: "fee"}))

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	restored, err := Restore(tree, tokens.Default(), snap)
	require.NoError(t, err)

	assert.Equal(t, StateEditingOption, restored.State())
	assert.True(t, restored.Working().Equal(s.Working()))
	assert.Equal(t, s.Selection(), restored.Selection())
	assert.Equal(t, "fee", restored.Metadata().Summary)
	assert.True(t, restored.Dirty())

	require.NoError(t, restored.FinishEdit())
	sec, _ := tree.Section(id)
	assert.Equal(t, []string{"PlatformFee"}, sec.Options[1].Body.Tokens())
}

func TestRestoreRejectsStaleSnapshot(t *testing.T) {
	tree, id := newTree(t, 2)
	s := New(tree, tokens.Default())
	require.NoError(t, s.OpenOption(id, 1))
	snap := s.Snapshot()

	require.NoError(t, tree.ResizeOptions(id, 1))
	_, err := Restore(tree, tokens.Default(), snap)
	assert.True(t, errors.Is(err, contract.ErrNodeNotFound))

	bad := Snapshot{State: StateEditingSubOption, Path: &contract.NodePath{SectionID: id, Option: 0, SubOption: -1}}
	_, err = Restore(tree, tokens.Default(), bad)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = Restore(tree, tokens.Default(), Snapshot{State: "LOST"})
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	idle, err := Restore(tree, tokens.Default(), Snapshot{State: StateIdle})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, idle.State())
}
