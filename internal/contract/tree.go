// Package contract models contract templates as a three level tree:
// sections hold options, options hold sub-options, and every option and
// sub-option owns a rich-text body. Tree mutations validate first and then
// apply, so a failed call leaves the tree untouched.
package contract

import (
	"fmt"
	"strings"

	"clausebook/api/internal/document"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/util"
)

// Variant controls how many options a section may hold.
type Variant string

const (
	VariantFixed    Variant = "FIXED"
	VariantOptional Variant = "OPTIONAL"
	VariantDynamic  Variant = "DYNAMIC"
)

// Valid reports whether v is one of the three known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantFixed, VariantOptional, VariantDynamic:
		return true
	}
	return false
}

// ParseVariant reads a variant name, ignoring case and surrounding space.
func ParseVariant(raw string) (Variant, error) {
	v := Variant(strings.ToUpper(strings.TrimSpace(raw)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidTree, raw)
	}
	return v, nil
}

// SubOption is a nested alternative inside an option.
type SubOption struct {
	Body     document.Document
	BodyHTML string
}

func (s SubOption) clone() SubOption {
	return SubOption{Body: s.Body.Clone(), BodyHTML: s.BodyHTML}
}

// Option is one alternative body of a section. MutexSubOptions marks its
// sub-options as mutually exclusive; it is policy, not enforced on edit.
type Option struct {
	Body             document.Document
	BodyHTML         string
	Summary          string
	ShortDescription string
	Icon             icons.Ref
	SubOptions       []SubOption
	MutexSubOptions  bool
}

func (o Option) clone() Option {
	out := o
	out.Body = o.Body.Clone()
	out.SubOptions = nil
	if o.SubOptions != nil {
		out.SubOptions = make([]SubOption, len(o.SubOptions))
		for i, s := range o.SubOptions {
			out.SubOptions[i] = s.clone()
		}
	}
	return out
}

// Section is a top-level clause. Variant bounds the number of options.
type Section struct {
	ID                  string
	Title               string
	DescriptionOfChange string
	Variant             Variant
	Icon                icons.Ref
	Options             []Option
}

func (s *Section) clone() *Section {
	out := *s
	out.Options = make([]Option, len(s.Options))
	for i, o := range s.Options {
		out.Options[i] = o.clone()
	}
	return &out
}

func (s *Section) option(index int) (*Option, error) {
	if index < 0 || index >= len(s.Options) {
		return nil, fmt.Errorf("%w: section %s has no option %d", ErrNodeNotFound, s.ID, index)
	}
	return &s.Options[index], nil
}

// Tree is the single owner of all sections and their nodes. Readers get
// deep copies; only Tree methods mutate.
type Tree struct {
	sections []*Section
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len is the number of sections.
func (t *Tree) Len() int {
	return len(t.sections)
}

func (t *Tree) find(id string) (int, *Section, error) {
	for i, s := range t.sections {
		if s.ID == id {
			return i, s, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: section %q", ErrNodeNotFound, id)
}

// Section returns a copy of the section with the given id.
func (t *Tree) Section(id string) (Section, bool) {
	_, s, err := t.find(id)
	if err != nil {
		return Section{}, false
	}
	return *s.clone(), true
}

// Sections returns copies of all sections in order.
func (t *Tree) Sections() []Section {
	out := make([]Section, len(t.sections))
	for i, s := range t.sections {
		out[i] = *s.clone()
	}
	return out
}

// AddSection appends a section holding one empty option.
func (t *Tree) AddSection(title string, variant Variant) (Section, error) {
	if !variant.Valid() {
		return Section{}, fmt.Errorf("%w: unknown variant %q", ErrInvalidTree, variant)
	}
	s := &Section{
		ID:      util.NewID("sec"),
		Title:   strings.TrimSpace(title),
		Variant: variant,
		Options: []Option{{}},
	}
	t.sections = append(t.sections, s)
	return *s.clone(), nil
}

// RemoveSection deletes a section and everything under it.
func (t *Tree) RemoveSection(id string) error {
	i, _, err := t.find(id)
	if err != nil {
		return err
	}
	t.sections = append(t.sections[:i], t.sections[i+1:]...)
	return nil
}

// MoveSection moves a section to index, shifting the others.
func (t *Tree) MoveSection(id string, index int) error {
	i, s, err := t.find(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.sections) {
		return fmt.Errorf("%w: position %d of %d", ErrNodeNotFound, index, len(t.sections))
	}
	rest := append(append([]*Section(nil), t.sections[:i]...), t.sections[i+1:]...)
	out := make([]*Section, 0, len(t.sections))
	out = append(out, rest[:index]...)
	out = append(out, s)
	out = append(out, rest[index:]...)
	t.sections = out
	return nil
}

// SetVariant changes a section's variant. FIXED and OPTIONAL keep only the
// first option; the rest are discarded.
func (t *Tree) SetVariant(id string, variant Variant) error {
	if !variant.Valid() {
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidTree, variant)
	}
	_, s, err := t.find(id)
	if err != nil {
		return err
	}
	if len(s.Options) == 0 {
		s.Options = []Option{{}}
	}
	if variant != VariantDynamic {
		s.Options = s.Options[:1:1]
	}
	s.Variant = variant
	return nil
}

// ResizeOptions grows a DYNAMIC section with empty options or drops options
// from the tail. Dropped content is not recoverable.
func (t *Tree) ResizeOptions(id string, count int) error {
	_, s, err := t.find(id)
	if err != nil {
		return err
	}
	if s.Variant != VariantDynamic {
		return fmt.Errorf("%w: section %s is %s, options can only be resized on %s sections", ErrInvalidResize, id, s.Variant, VariantDynamic)
	}
	if allowed := AllowedOptionCount(s.Variant); !allowed.Allows(count) {
		return fmt.Errorf("%w: %d options, want %s", ErrInvalidResize, count, allowed)
	}
	s.Options = resize(s.Options, count)
	return nil
}

// ResizeSubOptions grows or shrinks an option's sub-options.
func (t *Tree) ResizeSubOptions(id string, optionIndex, count int) error {
	_, s, err := t.find(id)
	if err != nil {
		return err
	}
	opt, err := s.option(optionIndex)
	if err != nil {
		return err
	}
	if allowed := AllowedSubOptionCount(); !allowed.Allows(count) {
		return fmt.Errorf("%w: %d sub-options, want %s", ErrInvalidResize, count, allowed)
	}
	opt.SubOptions = resize(opt.SubOptions, count)
	return nil
}

func resize[T any](items []T, count int) []T {
	if count <= len(items) {
		return items[:count:count]
	}
	out := make([]T, count)
	copy(out, items)
	return out
}

// SetMutexSubOptions flips the mutual exclusivity flag. Existing sub-options
// are kept regardless of how many there are.
func (t *Tree) SetMutexSubOptions(id string, optionIndex int, mutex bool) error {
	_, s, err := t.find(id)
	if err != nil {
		return err
	}
	opt, err := s.option(optionIndex)
	if err != nil {
		return err
	}
	opt.MutexSubOptions = mutex
	return nil
}

// Clone returns an independent deep copy of the tree.
func (t *Tree) Clone() *Tree {
	out := &Tree{sections: make([]*Section, len(t.sections))}
	for i, s := range t.sections {
		out.sections[i] = s.clone()
	}
	return out
}
