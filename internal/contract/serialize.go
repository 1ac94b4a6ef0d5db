package contract

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"clausebook/api/internal/document"
	"clausebook/api/internal/icons"

	"golang.org/x/crypto/blake2b"
)

// SerializedSubOption, SerializedOption and SerializedSection are the JSON
// forms of the tree nodes.
type SerializedSubOption struct {
	Body     document.SerializedDocument `json:"body"`
	BodyHTML string                      `json:"bodyHtml"`
}

type SerializedOption struct {
	Body             document.SerializedDocument `json:"body"`
	BodyHTML         string                      `json:"bodyHtml"`
	Summary          string                      `json:"summary"`
	ShortDescription string                      `json:"shortDescription"`
	Icon             icons.Ref                   `json:"icon,omitempty"`
	SubOptions       []SerializedSubOption       `json:"subOptions"`
	MutexSubOptions  bool                        `json:"mutexSubOptions"`
}

type SerializedSection struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	DescriptionOfChange string             `json:"descriptionOfChange"`
	Variant             Variant            `json:"variant"`
	Icon                icons.Ref          `json:"icon,omitempty"`
	Options             []SerializedOption `json:"options"`
}

// SerializedTree is the persisted form of a Tree.
type SerializedTree struct {
	Sections []SerializedSection `json:"sections"`
}

// ExportTree produces the persisted form. Empty lists are written as [].
func (t *Tree) ExportTree() SerializedTree {
	out := SerializedTree{Sections: make([]SerializedSection, 0, len(t.sections))}
	for _, s := range t.sections {
		ss := SerializedSection{
			ID:                  s.ID,
			Title:               s.Title,
			DescriptionOfChange: s.DescriptionOfChange,
			Variant:             s.Variant,
			Icon:                s.Icon,
			Options:             make([]SerializedOption, 0, len(s.Options)),
		}
		for _, o := range s.Options {
			so := SerializedOption{
				Body:             o.Body.ToCanonicalForm(),
				BodyHTML:         o.BodyHTML,
				Summary:          o.Summary,
				ShortDescription: o.ShortDescription,
				Icon:             o.Icon,
				SubOptions:       make([]SerializedSubOption, 0, len(o.SubOptions)),
				MutexSubOptions:  o.MutexSubOptions,
			}
			for _, sub := range o.SubOptions {
				so.SubOptions = append(so.SubOptions, SerializedSubOption{Body: sub.Body.ToCanonicalForm(), BodyHTML: sub.BodyHTML})
			}
			ss.Options = append(ss.Options, so)
		}
		out.Sections = append(out.Sections, ss)
	}
	return out
}

// ImportTree validates a serialized tree and builds a Tree from it. Body HTML
// is regenerated from the bodies; the stored HTML is ignored.
func ImportTree(st SerializedTree) (*Tree, error) {
	t := &Tree{sections: make([]*Section, 0, len(st.Sections))}
	seen := map[string]bool{}
	for i, ss := range st.Sections {
		if ss.ID == "" {
			return nil, fmt.Errorf("%w: sections[%d]: missing id", ErrInvalidTree, i)
		}
		if seen[ss.ID] {
			return nil, fmt.Errorf("%w: sections[%d]: duplicate id %q", ErrInvalidTree, i, ss.ID)
		}
		seen[ss.ID] = true
		if !ss.Variant.Valid() {
			return nil, fmt.Errorf("%w: section %s: unknown variant %q", ErrInvalidTree, ss.ID, ss.Variant)
		}
		if allowed := AllowedOptionCount(ss.Variant); !allowed.Allows(len(ss.Options)) {
			return nil, fmt.Errorf("%w: section %s: %s section has %d options, want %s", ErrInvalidTree, ss.ID, ss.Variant, len(ss.Options), allowed)
		}
		if !ss.Icon.Valid() {
			return nil, fmt.Errorf("%w: section %s: unknown icon %q", ErrInvalidTree, ss.ID, ss.Icon)
		}
		s := &Section{
			ID:                  ss.ID,
			Title:               ss.Title,
			DescriptionOfChange: ss.DescriptionOfChange,
			Variant:             ss.Variant,
			Icon:                ss.Icon,
			Options:             make([]Option, 0, len(ss.Options)),
		}
		for oi, so := range ss.Options {
			if !so.Icon.Valid() {
				return nil, fmt.Errorf("%w: %s: unknown icon %q", ErrInvalidTree, OptionPath(ss.ID, oi), so.Icon)
			}
			body, err := document.FromCanonicalForm(so.Body)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", OptionPath(ss.ID, oi), err)
			}
			opt := Option{
				Body:             body,
				BodyHTML:         body.ToHTML(),
				Summary:          so.Summary,
				ShortDescription: so.ShortDescription,
				Icon:             so.Icon,
				MutexSubOptions:  so.MutexSubOptions,
			}
			for si, sso := range so.SubOptions {
				subBody, err := document.FromCanonicalForm(sso.Body)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", SubOptionPath(ss.ID, oi, si), err)
				}
				opt.SubOptions = append(opt.SubOptions, SubOption{Body: subBody, BodyHTML: subBody.ToHTML()})
			}
			s.Options = append(s.Options, opt)
		}
		t.sections = append(t.sections, s)
	}
	return t, nil
}

// MarshalTree encodes the exported tree as JSON.
func (t *Tree) MarshalTree() ([]byte, error) {
	return json.Marshal(t.ExportTree())
}

// ParseTree decodes JSON and imports it. Empty input yields an empty tree.
func ParseTree(raw []byte) (*Tree, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewTree(), nil
	}
	var st SerializedTree
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidTree, err)
	}
	return ImportTree(st)
}

// Fingerprint is the hex blake2b-256 digest of the exported JSON. Equal trees
// have equal fingerprints.
func (t *Tree) Fingerprint() string {
	raw, err := t.MarshalTree()
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
