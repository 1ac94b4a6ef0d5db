package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/editor"
	"clausebook/api/internal/session"
	"clausebook/api/internal/store"
	"clausebook/api/internal/util"
)

// EditOp names one step of an edit session.
type EditOp string

const (
	EditOpenOption        EditOp = "open-option"
	EditOpenSubOption     EditOp = "open-sub-option"
	EditReturnToOption    EditOp = "return-to-option"
	EditSelect            EditOp = "select"
	EditInsertText        EditOp = "insert-text"
	EditInsertPlaceholder EditOp = "insert-placeholder"
	EditApplyStyle        EditOp = "apply-style"
	EditRemoveStyle       EditOp = "remove-style"
	EditToggleStyle       EditOp = "toggle-style"
	EditDeleteRange       EditOp = "delete-range"
	EditSetMetadata       EditOp = "set-metadata"
	EditFinish            EditOp = "finish"
	EditDiscard           EditOp = "discard"
)

// EditCommand is one request against the caller's edit session. Only the
// fields the op reads need to be set.
type EditCommand struct {
	Op        EditOp                 `json:"op"`
	SectionID string                 `json:"sectionId,omitempty"`
	Option    int                    `json:"option,omitempty"`
	SubOption int                    `json:"subOption,omitempty"`
	Start     int                    `json:"start,omitempty"`
	End       int                    `json:"end,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Styles    []string               `json:"styles,omitempty"`
	Token     string                 `json:"token,omitempty"`
	Style     string                 `json:"style,omitempty"`
	Metadata  *contract.NodeMetadata `json:"metadata,omitempty"`
}

// EditView is what a client needs to render the session.
type EditView struct {
	TemplateID       string                `json:"templateId"`
	Owner            string                `json:"owner"`
	Revision         int64                 `json:"revision"`
	Fingerprint      string                `json:"fingerprint"`
	ExpiresAt        time.Time             `json:"expiresAt"`
	State            editor.State          `json:"state"`
	Path             string                `json:"path,omitempty"`
	Working          document.Document     `json:"working"`
	WorkingHTML      string                `json:"workingHtml"`
	Selection        document.Selection    `json:"selection"`
	Metadata         contract.NodeMetadata `json:"metadata"`
	Dirty            bool                  `json:"dirty"`
	UnresolvedTokens []string              `json:"unresolvedTokens"`
	// SessionReset is set when reopening found a stale session whose node no
	// longer exists, so its working copy could not be kept.
	SessionReset bool `json:"sessionReset,omitempty"`
}

func (s *Service) requireLeases() error {
	if s.leases == nil {
		return domainError(http.StatusServiceUnavailable, "EDITING_UNAVAILABLE", "Edit sessions need a lease store", nil)
	}
	return nil
}

func leaseHeld(lease session.Lease) error {
	return domainError(http.StatusConflict, "LEASE_HELD", "Template is being edited by someone else", map[string]any{
		"owner":     lease.Owner,
		"expiresAt": lease.ExpiresAt,
	})
}

// checkNoForeignLease refuses writes while someone other than author holds
// the edit lease.
func (s *Service) checkNoForeignLease(ctx context.Context, templateID, author string) error {
	if s.leases == nil {
		return nil
	}
	lease, err := s.leases.Load(ctx, templateID)
	if errors.Is(err, session.ErrLeaseNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lease.Owner != author {
		return leaseHeld(lease)
	}
	return nil
}

// rebaseOwnLease moves author's lease onto a revision author saved outside
// the session. A snapshot whose node no longer exists is reset to idle.
func (s *Service) rebaseOwnLease(ctx context.Context, rec store.TemplateRecord, tree *contract.Tree, author string) {
	if s.leases == nil {
		return
	}
	lease, err := s.leases.LoadOwned(ctx, rec.ID, author)
	if err != nil {
		return
	}
	lease.BaseRevision = rec.Revision
	if _, err := editor.Restore(tree.Clone(), s.tokens, lease.Snapshot); err != nil {
		util.Log.WithError(err).WithField("template", rec.ID).WithField("lease", author).Info("edit session reset after structural change")
		lease.Snapshot = editor.Snapshot{State: editor.StateIdle}
	}
	if _, err := s.leases.Save(ctx, lease); err != nil {
		util.Log.WithError(err).WithField("template", rec.ID).Warn("rebase lease")
	}
}

// OpenEdit takes the edit lease for author and opens an option. Reopening
// while already holding the lease keeps the session and navigates.
func (s *Service) OpenEdit(ctx context.Context, templateID, author, sectionID string, option int) (EditView, error) {
	if err := s.requireLeases(); err != nil {
		return EditView{}, err
	}
	author = s.author(author)
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return EditView{}, err
	}
	lease, err := s.leases.Acquire(ctx, templateID, author, lt.rec.Revision)
	if errors.Is(err, session.ErrLeaseHeld) {
		return EditView{}, leaseHeld(lease)
	}
	if err != nil {
		return EditView{}, err
	}
	reset := false
	if lease.BaseRevision != lt.rec.Revision {
		// Keep the working copy when its node survived the newer revision.
		if _, err := editor.Restore(lt.tree.Clone(), s.tokens, lease.Snapshot); err != nil {
			util.Log.WithError(err).WithField("template", templateID).WithField("lease", author).Warn("stale edit session reset")
			lease.Snapshot = editor.Snapshot{State: editor.StateIdle}
			reset = true
		}
		lease.BaseRevision = lt.rec.Revision
		if lease, err = s.leases.Save(ctx, lease); err != nil {
			return EditView{}, err
		}
	}
	util.Log.WithField("template", templateID).WithField("lease", author).WithField("section", sectionID).Debug("edit session open")
	view, err := s.ApplyEdit(ctx, templateID, author, EditCommand{Op: EditOpenOption, SectionID: sectionID, Option: option})
	if err != nil {
		return EditView{}, err
	}
	view.SessionReset = reset
	return view, nil
}

// EditState returns author's session without changing it.
func (s *Service) EditState(ctx context.Context, templateID, author string) (EditView, error) {
	if err := s.requireLeases(); err != nil {
		return EditView{}, err
	}
	lease, lt, sess, err := s.restoreSession(ctx, templateID, s.author(author))
	if err != nil {
		return EditView{}, err
	}
	return s.editView(lease, lt.rec, lt.tree, sess), nil
}

// ApplyEdit runs one command in author's session. Commits made by the
// session (navigation or finish) are saved as a new template revision in
// the same request.
func (s *Service) ApplyEdit(ctx context.Context, templateID, author string, cmd EditCommand) (EditView, error) {
	if err := s.requireLeases(); err != nil {
		return EditView{}, err
	}
	author = s.author(author)
	lease, lt, sess, err := s.restoreSession(ctx, templateID, author)
	if err != nil {
		return EditView{}, err
	}
	before := lt.tree.Fingerprint()
	if err := runEdit(sess, cmd); err != nil {
		return EditView{}, err
	}

	rec := lt.rec
	if lt.tree.Fingerprint() != before {
		rec, err = s.persist(ctx, lt.rec, lt.tree, author, "")
		if err != nil {
			return EditView{}, err
		}
		lease.BaseRevision = rec.Revision
	}
	lease.Snapshot = sess.Snapshot()
	if lease, err = s.leases.Save(ctx, lease); err != nil {
		return EditView{}, err
	}
	return s.editView(lease, rec, lt.tree, sess), nil
}

// ReleaseEdit drops author's lease. Unsaved work in the session is lost.
func (s *Service) ReleaseEdit(ctx context.Context, templateID, author string) error {
	if err := s.requireLeases(); err != nil {
		return err
	}
	return s.leases.Release(ctx, templateID, s.author(author))
}

func (s *Service) restoreSession(ctx context.Context, templateID, author string) (session.Lease, loadedTemplate, *editor.Session, error) {
	lease, err := s.leases.LoadOwned(ctx, templateID, author)
	if err != nil {
		return session.Lease{}, loadedTemplate{}, nil, err
	}
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return session.Lease{}, loadedTemplate{}, nil, err
	}
	if lease.BaseRevision != lt.rec.Revision {
		return session.Lease{}, loadedTemplate{}, nil, domainError(http.StatusConflict, "LEASE_STALE",
			"Template changed since the edit session started; reopen it", map[string]any{
				"baseRevision": lease.BaseRevision,
				"revision":     lt.rec.Revision,
			})
	}
	sess, err := editor.Restore(lt.tree, s.tokens, lease.Snapshot)
	if err != nil {
		return session.Lease{}, loadedTemplate{}, nil, fmt.Errorf("restore edit session: %w", err)
	}
	return lease, lt, sess, nil
}

func parseStyles(raw []string) (document.StyleSet, error) {
	styles := make([]document.Style, 0, len(raw))
	for _, r := range raw {
		style, err := parseStyle(r)
		if err != nil {
			return nil, err
		}
		styles = append(styles, style)
	}
	return document.NewStyleSet(styles...), nil
}

func parseStyle(raw string) (document.Style, error) {
	style, err := document.ParseStyle(raw)
	if err != nil {
		return "", domainError(http.StatusUnprocessableEntity, "INVALID_STYLE", err.Error(), nil)
	}
	return style, nil
}

func runEdit(sess *editor.Session, cmd EditCommand) error {
	op := EditOp(strings.ToLower(strings.TrimSpace(string(cmd.Op))))
	switch op {
	case EditOpenOption:
		return sess.OpenOption(cmd.SectionID, cmd.Option)
	case EditOpenSubOption:
		return sess.OpenSubOption(cmd.SubOption)
	case EditReturnToOption:
		return sess.ReturnToOption()
	case EditSelect:
		return sess.Select(document.Selection{Start: cmd.Start, End: cmd.End})
	case EditInsertText:
		styles, err := parseStyles(cmd.Styles)
		if err != nil {
			return err
		}
		return sess.InsertText(cmd.Text, styles)
	case EditInsertPlaceholder:
		return sess.InsertPlaceholder(cmd.Token)
	case EditApplyStyle, EditRemoveStyle, EditToggleStyle:
		style, err := parseStyle(cmd.Style)
		if err != nil {
			return err
		}
		switch op {
		case EditApplyStyle:
			return sess.ApplyStyle(style)
		case EditRemoveStyle:
			return sess.RemoveStyle(style)
		default:
			return sess.ToggleStyle(style)
		}
	case EditDeleteRange:
		return sess.DeleteRange()
	case EditSetMetadata:
		if cmd.Metadata == nil {
			return validationError("metadata is required")
		}
		return sess.SetMetadata(*cmd.Metadata)
	case EditFinish:
		return sess.FinishEdit()
	case EditDiscard:
		return sess.Discard()
	}
	return domainError(http.StatusUnprocessableEntity, "UNKNOWN_OP", fmt.Sprintf("unknown edit op %q", cmd.Op), nil)
}

func (s *Service) editView(lease session.Lease, rec store.TemplateRecord, tree *contract.Tree, sess *editor.Session) EditView {
	view := EditView{
		TemplateID:       rec.ID,
		Owner:            lease.Owner,
		Revision:         rec.Revision,
		Fingerprint:      rec.Fingerprint,
		ExpiresAt:        lease.ExpiresAt,
		State:            sess.State(),
		Working:          sess.Working(),
		WorkingHTML:      sess.WorkingHTML(),
		Selection:        sess.Selection(),
		Metadata:         sess.Metadata(),
		Dirty:            sess.Dirty(),
		UnresolvedTokens: unresolvedTokens(tree, s.tokens),
	}
	if path, ok := sess.Path(); ok {
		view.Path = path.String()
	}
	return view
}
