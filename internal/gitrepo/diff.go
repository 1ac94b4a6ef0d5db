package gitrepo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
	ChangeMoved    ChangeKind = "moved"
)

// SectionChange describes how one section differs between two trees.
type SectionChange struct {
	SectionID   string     `json:"sectionId"`
	Title       string     `json:"title"`
	Kind        ChangeKind `json:"kind"`
	Description string     `json:"descriptionOfChange,omitempty"`
	Fields      []string   `json:"fields,omitempty"`
}

// DiffSections compares two trees section by section. Sections are matched
// by ID; results follow the order of to, then removed sections in the order
// of from. A section counts as moved when its order relative to the sections
// present in both trees changed. Stored HTML is ignored because it is derived
// from the bodies.
func DiffSections(from, to contract.SerializedTree) []SectionChange {
	before := map[string]contract.SerializedSection{}
	for _, s := range from.Sections {
		before[s.ID] = s
	}
	after := map[string]bool{}
	for _, s := range to.Sections {
		after[s.ID] = true
	}
	fromOrder := commonOrder(from, after)
	toOrder := commonOrder(to, presence(before))

	changes := make([]SectionChange, 0)
	for _, s := range to.Sections {
		prev, ok := before[s.ID]
		if !ok {
			changes = append(changes, SectionChange{SectionID: s.ID, Title: s.Title, Kind: ChangeAdded, Description: s.DescriptionOfChange})
			continue
		}
		if fields := changedFields(prev, s); len(fields) > 0 {
			changes = append(changes, SectionChange{SectionID: s.ID, Title: s.Title, Kind: ChangeModified, Description: s.DescriptionOfChange, Fields: fields})
		} else if fromOrder[s.ID] != toOrder[s.ID] {
			changes = append(changes, SectionChange{SectionID: s.ID, Title: s.Title, Kind: ChangeMoved, Description: s.DescriptionOfChange})
		}
	}
	for _, s := range from.Sections {
		if !after[s.ID] {
			changes = append(changes, SectionChange{SectionID: s.ID, Title: s.Title, Kind: ChangeRemoved})
		}
	}
	return changes
}

func presence(m map[string]contract.SerializedSection) map[string]bool {
	out := make(map[string]bool, len(m))
	for id := range m {
		out[id] = true
	}
	return out
}

// commonOrder indexes the sections of tree that are also in keep.
func commonOrder(tree contract.SerializedTree, keep map[string]bool) map[string]int {
	out := map[string]int{}
	for _, s := range tree.Sections {
		if keep[s.ID] {
			out[s.ID] = len(out)
		}
	}
	return out
}

func changedFields(a, b contract.SerializedSection) []string {
	var fields []string
	if a.Title != b.Title {
		fields = append(fields, "title")
	}
	if a.Variant != b.Variant {
		fields = append(fields, "variant")
	}
	if a.Icon != b.Icon {
		fields = append(fields, "icon")
	}
	if len(a.Options) != len(b.Options) {
		fields = append(fields, "options")
		return fields
	}
	for i := range a.Options {
		if !sameOption(a.Options[i], b.Options[i]) {
			fields = append(fields, "options")
			break
		}
	}
	return fields
}

func sameOption(a, b contract.SerializedOption) bool {
	if a.Summary != b.Summary || a.ShortDescription != b.ShortDescription || a.Icon != b.Icon || a.MutexSubOptions != b.MutexSubOptions {
		return false
	}
	if !sameBody(a.Body, b.Body) || len(a.SubOptions) != len(b.SubOptions) {
		return false
	}
	for i := range a.SubOptions {
		if !sameBody(a.SubOptions[i].Body, b.SubOptions[i].Body) {
			return false
		}
	}
	return true
}

// sameBody compares compact encodings so payload whitespace from an indented
// file does not count as a change.
func sameBody(a, b document.SerializedDocument) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

// CommitMessage builds a commit message: a subject line followed by one line
// per changed section.
func CommitMessage(summary string, changes []SectionChange) string {
	subject := strings.TrimSpace(summary)
	if subject == "" {
		subject = fmt.Sprintf("Update %d section(s)", len(changes))
		if len(changes) == 1 {
			subject = fmt.Sprintf("%s section %q", titleCase(changes[0].Kind), changes[0].Title)
		}
	}

	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n")
	for i, c := range changes {
		if i == 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s %q", c.Kind, c.Title)
		if len(c.Fields) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(c.Fields, ", "))
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			fmt.Fprintf(&b, ": %s", d)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func titleCase(k ChangeKind) string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}
