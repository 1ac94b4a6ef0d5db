package editor

import (
	"fmt"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
)

// Snapshot is the serialisable state of a Session, kept between requests
// while an edit lease is held.
type Snapshot struct {
	State     State                 `json:"state"`
	Path      *contract.NodePath    `json:"path,omitempty"`
	Working   document.Document     `json:"working"`
	Selection document.Selection    `json:"selection"`
	Metadata  contract.NodeMetadata `json:"metadata"`
	Dirty     bool                  `json:"dirty"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:     s.state,
		Working:   s.working.Clone(),
		Selection: s.selection,
		Metadata:  s.meta,
		Dirty:     s.dirty,
	}
	if s.state != StateIdle {
		path := s.path
		snap.Path = &path
	}
	return snap
}

// Restore rebuilds a session over tree. The snapshot's node must still exist
// and match its state.
func Restore(tree *contract.Tree, reg document.TokenValidator, snap Snapshot) (*Session, error) {
	if !snap.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, snap.State)
	}
	s := New(tree, reg)
	if snap.State == StateIdle {
		return s, nil
	}
	if snap.Path == nil {
		return nil, fmt.Errorf("%w: %s snapshot without a path", ErrInvalidTransition, snap.State)
	}
	want := contract.LevelOption
	if snap.State == StateEditingSubOption {
		want = contract.LevelSubOption
	}
	if snap.Path.Level() != want {
		return nil, fmt.Errorf("%w: %s snapshot addresses a %s", ErrInvalidTransition, snap.State, snap.Path.Level())
	}
	if _, err := tree.Node(*snap.Path); err != nil {
		return nil, err
	}
	s.state = snap.State
	s.path = *snap.Path
	s.working = snap.Working.Clone()
	s.meta = snap.Metadata
	s.dirty = snap.Dirty
	if err := s.Select(snap.Selection); err != nil {
		return nil, err
	}
	return s, nil
}
