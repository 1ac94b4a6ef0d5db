package contract

import (
	"fmt"

	"clausebook/api/internal/document"
	"clausebook/api/internal/icons"
)

// Level is the depth a NodePath addresses.
type Level int

const (
	LevelSection Level = iota
	LevelOption
	LevelSubOption
)

func (l Level) String() string {
	switch l {
	case LevelOption:
		return "option"
	case LevelSubOption:
		return "suboption"
	default:
		return "section"
	}
}

// NodePath addresses a section, an option of a section, or a sub-option of an
// option. Unused indexes are -1.
type NodePath struct {
	SectionID string `json:"sectionId"`
	Option    int    `json:"option"`
	SubOption int    `json:"subOption"`
}

// SectionPath addresses a section's own metadata.
func SectionPath(sectionID string) NodePath {
	return NodePath{SectionID: sectionID, Option: -1, SubOption: -1}
}

// OptionPath addresses an option by zero-based index.
func OptionPath(sectionID string, option int) NodePath {
	return NodePath{SectionID: sectionID, Option: option, SubOption: -1}
}

// SubOptionPath addresses a sub-option of an option.
func SubOptionPath(sectionID string, option, subOption int) NodePath {
	return NodePath{SectionID: sectionID, Option: option, SubOption: subOption}
}

// Level derives the depth from which indexes are set.
func (p NodePath) Level() Level {
	switch {
	case p.Option < 0:
		return LevelSection
	case p.SubOption < 0:
		return LevelOption
	default:
		return LevelSubOption
	}
}

// String renders the path with display labels, e.g. "sec_1/B/2".
func (p NodePath) String() string {
	switch p.Level() {
	case LevelSection:
		return p.SectionID
	case LevelOption:
		return fmt.Sprintf("%s/%s", p.SectionID, DisplayLabel(p.Option))
	default:
		return fmt.Sprintf("%s/%s/%d", p.SectionID, DisplayLabel(p.Option), p.SubOption+1)
	}
}

// NodeMetadata carries the non-body fields of a node. Which fields apply
// depends on the level: sections use Title, DescriptionOfChange and Icon;
// options use Summary, ShortDescription and Icon; sub-options use none.
type NodeMetadata struct {
	Title               string    `json:"title,omitempty"`
	DescriptionOfChange string    `json:"descriptionOfChange,omitempty"`
	Summary             string    `json:"summary,omitempty"`
	ShortDescription    string    `json:"shortDescription,omitempty"`
	Icon                icons.Ref `json:"icon,omitempty"`
}

// NodeContent is a detached copy of a node's editable content.
type NodeContent struct {
	Path     NodePath
	Body     document.Document
	BodyHTML string
	Metadata NodeMetadata
}

// Node returns a copy of the addressed node.
func (t *Tree) Node(path NodePath) (NodeContent, error) {
	_, s, err := t.find(path.SectionID)
	if err != nil {
		return NodeContent{}, err
	}
	out := NodeContent{Path: path}
	switch path.Level() {
	case LevelSection:
		out.Metadata = NodeMetadata{Title: s.Title, DescriptionOfChange: s.DescriptionOfChange, Icon: s.Icon}
	case LevelOption:
		opt, err := s.option(path.Option)
		if err != nil {
			return NodeContent{}, err
		}
		out.Body = opt.Body.Clone()
		out.BodyHTML = opt.BodyHTML
		out.Metadata = NodeMetadata{Summary: opt.Summary, ShortDescription: opt.ShortDescription, Icon: opt.Icon}
	default:
		sub, err := s.subOption(path.Option, path.SubOption)
		if err != nil {
			return NodeContent{}, err
		}
		out.Body = sub.Body.Clone()
		out.BodyHTML = sub.BodyHTML
	}
	return out, nil
}

func (s *Section) subOption(option, subOption int) (*SubOption, error) {
	opt, err := s.option(option)
	if err != nil {
		return nil, err
	}
	if subOption < 0 || subOption >= len(opt.SubOptions) {
		return nil, fmt.Errorf("%w: option %s of section %s has no sub-option %d", ErrNodeNotFound, DisplayLabel(option), s.ID, subOption)
	}
	return &opt.SubOptions[subOption], nil
}

// CommitNodeEdit replaces the addressed node's body, HTML and metadata in one
// step. html must be the rendering of body. On any error the tree is unchanged.
func (t *Tree) CommitNodeEdit(path NodePath, body document.Document, html string, meta NodeMetadata) error {
	_, s, err := t.find(path.SectionID)
	if err != nil {
		return err
	}
	if !meta.Icon.Valid() {
		return fmt.Errorf("%w: %s", icons.ErrIconNotFound, meta.Icon)
	}
	if path.Level() != LevelSection && html != body.ToHTML() {
		return fmt.Errorf("%w: %s", ErrStaleHTML, path)
	}

	switch path.Level() {
	case LevelSection:
		s.Title = meta.Title
		s.DescriptionOfChange = meta.DescriptionOfChange
		s.Icon = meta.Icon
	case LevelOption:
		opt, err := s.option(path.Option)
		if err != nil {
			return err
		}
		opt.Body = body.Clone()
		opt.BodyHTML = html
		opt.Summary = meta.Summary
		opt.ShortDescription = meta.ShortDescription
		opt.Icon = meta.Icon
	default:
		sub, err := s.subOption(path.Option, path.SubOption)
		if err != nil {
			return err
		}
		sub.Body = body.Clone()
		sub.BodyHTML = html
	}
	return nil
}
