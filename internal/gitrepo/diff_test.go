package gitrepo

import (
	"testing"

	"clausebook/api/internal/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(id, title string) contract.SerializedSection {
	return contract.SerializedSection{
		ID:      id,
		Title:   title,
		Variant: contract.VariantFixed,
		Options: []contract.SerializedOption{{}},
	}
}

func kinds(changes []SectionChange) map[string]ChangeKind {
	out := map[string]ChangeKind{}
	for _, c := range changes {
		out[c.SectionID] = c.Kind
	}
	return out
}

func TestDiffSections(t *testing.T) {
	from := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), section("b", "Delivery"), section("c", "Warranty"),
	}}

	assert.Empty(t, DiffSections(from, from))

	retitled := section("b", "Shipping")
	retitled.DescriptionOfChange = "renamed for clarity"
	to := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), retitled, section("d", "Termination"),
	}}
	changes := DiffSections(from, to)
	assert.Equal(t, map[string]ChangeKind{"b": ChangeModified, "d": ChangeAdded, "c": ChangeRemoved}, kinds(changes))
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"title"}, changes[0].Fields)
	assert.Equal(t, "renamed for clarity", changes[0].Description)
	assert.Equal(t, "c", changes[2].SectionID)
}

func TestDiffSectionsDetectsMovesAndOptionEdits(t *testing.T) {
	from := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), section("b", "Delivery"), section("c", "Warranty"),
	}}
	moved := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("b", "Delivery"), section("a", "Price"), section("c", "Warranty"),
	}}
	assert.Equal(t, map[string]ChangeKind{"a": ChangeMoved, "b": ChangeMoved}, kinds(DiffSections(from, moved)))

	// deleting a section does not make the others look moved
	removed := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), section("c", "Warranty"),
	}}
	assert.Equal(t, map[string]ChangeKind{"b": ChangeRemoved}, kinds(DiffSections(from, removed)))

	edited := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), section("b", "Delivery"), section("c", "Warranty"),
	}}
	edited.Sections[2].Options[0].Summary = "two years"
	edited.Sections[2].Options[0].BodyHTML = "<p>ignored</p>\n"
	changes := DiffSections(from, edited)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"options"}, changes[0].Fields)

	htmlOnly := contract.SerializedTree{Sections: []contract.SerializedSection{
		section("a", "Price"), section("b", "Delivery"), section("c", "Warranty"),
	}}
	htmlOnly.Sections[0].Options[0].BodyHTML = "<p>stale</p>\n"
	assert.Empty(t, DiffSections(from, htmlOnly))
}

func TestCommitMessage(t *testing.T) {
	changes := []SectionChange{
		{SectionID: "a", Title: "Price", Kind: ChangeModified, Fields: []string{"options"}, Description: "raise fee"},
		{SectionID: "b", Title: "Delivery", Kind: ChangeRemoved},
	}
	assert.Equal(t, "Update 2 section(s)\n\n- modified \"Price\" (options): raise fee\n- removed \"Delivery\"\n", CommitMessage("", changes))
	assert.Equal(t, "Quarterly review\n\n- removed \"Delivery\"\n", CommitMessage(" Quarterly review ", changes[1:]))
	assert.Equal(t, "Added section \"Fees\"\n\n- added \"Fees\"\n", CommitMessage("", []SectionChange{{Title: "Fees", Kind: ChangeAdded}}))
}
