// Package editor implements the node editing state machine. A Session holds
// at most one working copy taken from a contract tree and writes it back on
// finish, or on navigation to another node, through Tree.CommitNodeEdit.
package editor

import (
	"errors"
	"fmt"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
)

var (
	ErrInvalidTransition = errors.New("invalid editor transition")
	ErrNoOpenNode        = errors.New("no node is open for editing")
)

type State string

const (
	StateIdle             State = "IDLE"
	StateEditingOption    State = "EDITING_OPTION"
	StateEditingSubOption State = "EDITING_SUBOPTION"
)

func (s State) Valid() bool {
	switch s {
	case StateIdle, StateEditingOption, StateEditingSubOption:
		return true
	}
	return false
}

// Session edits one node of a tree at a time. It is not safe for concurrent
// use; callers serialize access per template.
type Session struct {
	tree *contract.Tree
	reg  document.TokenValidator

	state     State
	path      contract.NodePath
	working   document.Document
	selection document.Selection
	meta      contract.NodeMetadata
	dirty     bool
}

func New(tree *contract.Tree, reg document.TokenValidator) *Session {
	return &Session{tree: tree, reg: reg, state: StateIdle}
}

func (s *Session) State() State {
	return s.state
}

// Path returns the node under edit; ok is false while idle.
func (s *Session) Path() (contract.NodePath, bool) {
	return s.path, s.state != StateIdle
}

func (s *Session) Working() document.Document {
	return s.working.Clone()
}

// WorkingHTML renders the working copy.
func (s *Session) WorkingHTML() string {
	return s.working.ToHTML()
}

func (s *Session) Selection() document.Selection {
	return s.selection
}

func (s *Session) Metadata() contract.NodeMetadata {
	return s.meta
}

func (s *Session) Dirty() bool {
	return s.dirty
}

// OpenOption starts editing an option. Pending edits on the current node are
// committed first; if that fails nothing changes.
func (s *Session) OpenOption(sectionID string, optionIndex int) error {
	return s.navigate(contract.OptionPath(sectionID, optionIndex), StateEditingOption)
}

// OpenSubOption edits a sub-option of the open option. The parent option
// stays recorded so commits go to the right path.
func (s *Session) OpenSubOption(subOptionIndex int) error {
	if s.state == StateIdle {
		return fmt.Errorf("%w: open an option before its sub-options", ErrInvalidTransition)
	}
	return s.navigate(contract.SubOptionPath(s.path.SectionID, s.path.Option, subOptionIndex), StateEditingSubOption)
}

// ReturnToOption goes from a sub-option back to its parent option.
func (s *Session) ReturnToOption() error {
	if s.state != StateEditingSubOption {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateEditingOption)
	}
	return s.navigate(contract.OptionPath(s.path.SectionID, s.path.Option), StateEditingOption)
}

func (s *Session) navigate(path contract.NodePath, next State) error {
	if s.state != StateIdle && s.dirty {
		if err := s.commit(); err != nil {
			return fmt.Errorf("commit %s before opening %s: %w", s.path, path, err)
		}
	}
	node, err := s.tree.Node(path)
	if err != nil {
		return err
	}
	s.state = next
	s.path = path
	s.working = node.Body
	s.meta = node.Metadata
	s.selection = document.Caret(node.Body.Len())
	s.dirty = false
	return nil
}

func (s *Session) commit() error {
	if err := s.tree.CommitNodeEdit(s.path, s.working, s.working.ToHTML(), s.meta); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Session) requireOpen() error {
	if s.state == StateIdle {
		return ErrNoOpenNode
	}
	return nil
}

// Select moves the selection within the working copy; out of range offsets are clamped.
func (s *Session) Select(sel document.Selection) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	n := s.working.Len()
	clamp := func(v int) int { return max(0, min(v, n)) }
	start, end := clamp(sel.Start), clamp(sel.End)
	if start > end {
		start, end = end, start
	}
	s.selection = document.Selection{Start: start, End: end}
	return nil
}

func (s *Session) InsertText(text string, styles document.StyleSet) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	s.working, s.selection = s.working.InsertText(s.selection, text, styles)
	s.dirty = true
	return nil
}

// InsertPlaceholder fails with document.ErrUnknownToken and leaves the
// working copy as it was when the registry does not know tokenName.
func (s *Session) InsertPlaceholder(tokenName string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	doc, sel, err := s.working.InsertPlaceholder(s.reg, s.selection, tokenName)
	if err != nil {
		return err
	}
	s.working, s.selection = doc, sel
	s.dirty = true
	return nil
}

func (s *Session) ApplyStyle(style document.Style) error {
	return s.restyle(style, document.Document.ApplyStyle)
}

func (s *Session) RemoveStyle(style document.Style) error {
	return s.restyle(style, document.Document.RemoveStyle)
}

func (s *Session) ToggleStyle(style document.Style) error {
	return s.restyle(style, document.Document.ToggleStyle)
}

func (s *Session) restyle(style document.Style, fn func(document.Document, document.Selection, document.Style) document.Document) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !style.Valid() {
		return fmt.Errorf("unknown style %q", style)
	}
	next := fn(s.working, s.selection, style)
	if !next.Equal(s.working) {
		s.working = next
		s.dirty = true
	}
	return nil
}

func (s *Session) DeleteRange() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.selection.Collapsed() {
		return nil
	}
	s.working, s.selection = s.working.DeleteRange(s.selection)
	s.dirty = true
	return nil
}

// SetMetadata replaces the node metadata that the next commit writes.
func (s *Session) SetMetadata(meta contract.NodeMetadata) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.meta = meta
	s.dirty = true
	return nil
}

// Discard drops the working copy and returns to idle. The tree is untouched.
func (s *Session) Discard() error {
	if s.state == StateIdle {
		return fmt.Errorf("%w: nothing to discard", ErrInvalidTransition)
	}
	s.reset()
	return nil
}

// FinishEdit renders the working copy, commits it and returns to idle. When
// the commit fails the session keeps its state and working copy.
func (s *Session) FinishEdit() error {
	if s.state == StateIdle {
		return fmt.Errorf("%w: nothing to finish", ErrInvalidTransition)
	}
	if err := s.commit(); err != nil {
		return fmt.Errorf("commit %s: %w", s.path, err)
	}
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.state = StateIdle
	s.path = contract.NodePath{}
	s.working = document.Empty()
	s.selection = document.Selection{}
	s.meta = contract.NodeMetadata{}
	s.dirty = false
}
