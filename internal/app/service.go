package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clausebook/api/internal/config"
	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/export"
	"clausebook/api/internal/gitrepo"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/lint"
	"clausebook/api/internal/search"
	"clausebook/api/internal/session"
	"clausebook/api/internal/store"
	"clausebook/api/internal/tokens"
	"clausebook/api/internal/util"
)

// Dependencies are the collaborators of a Service. Leases may be nil, which
// disables edit sessions. Tokens and Icons default to the embedded catalogues.
type Dependencies struct {
	Store  *store.SQLStore
	Git    *gitrepo.Service
	Search *search.Service
	Leases *session.RedisStore
	Tokens *tokens.Registry
	Icons  icons.Catalogue
}

type Service struct {
	cfg      config.Config
	store    *store.SQLStore
	git      *gitrepo.Service
	search   *search.Service
	leases   *session.RedisStore
	tokens   *tokens.Registry
	icons    icons.Catalogue
	linter   *lint.Linter
	exporter *export.Service
}

func New(cfg config.Config, deps Dependencies) (*Service, error) {
	if deps.Store == nil || deps.Git == nil {
		return nil, errors.New("app: store and git service are required")
	}
	s := &Service{
		cfg:    cfg,
		store:  deps.Store,
		git:    deps.Git,
		search: deps.Search,
		leases: deps.Leases,
		tokens: deps.Tokens,
		icons:  deps.Icons,
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewFallback(deps.Store))
	}
	if s.tokens == nil {
		s.tokens = tokens.Default()
	}
	if s.icons == nil {
		s.icons = icons.NewStatic()
	}
	linter, err := lint.New(s.tokens)
	if err != nil {
		return nil, fmt.Errorf("build linter: %w", err)
	}
	s.linter = linter
	s.exporter = export.NewService(s, cfg.ChromeExecPath)
	return s, nil
}

// TemplateSummary is the list view of a template.
type TemplateSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Revision     int64     `json:"revision"`
	Fingerprint  string    `json:"fingerprint"`
	SectionCount int       `json:"sectionCount"`
	UpdatedBy    string    `json:"updatedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TemplateDetail is a template with its full section tree.
type TemplateDetail struct {
	TemplateSummary
	Tree             contract.SerializedTree `json:"tree"`
	UnresolvedTokens []string                `json:"unresolvedTokens"`
	// Warnings are non-blocking lint findings for an imported or replaced tree.
	Warnings []lint.Issue `json:"warnings,omitempty"`
}

// Precondition guards a write. A zero value accepts any current state.
type Precondition struct {
	Revision    int64
	Fingerprint string
}

func (p Precondition) check(rec store.TemplateRecord) error {
	details := map[string]any{"revision": rec.Revision, "fingerprint": rec.Fingerprint}
	if p.Fingerprint != "" && p.Fingerprint != rec.Fingerprint {
		return domainError(http.StatusPreconditionFailed, "PRECONDITION_FAILED", "Template changed since it was read", details)
	}
	if p.Revision != 0 && p.Revision != rec.Revision {
		return domainError(http.StatusConflict, "REVISION_CONFLICT", "Template was saved by someone else", details)
	}
	return nil
}

type loadedTemplate struct {
	rec  store.TemplateRecord
	tree *contract.Tree
}

func (s *Service) load(ctx context.Context, templateID string) (loadedTemplate, error) {
	rec, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return loadedTemplate{}, err
	}
	tree, err := contract.ParseTree(rec.Tree)
	if err != nil {
		return loadedTemplate{}, fmt.Errorf("template %s: %w", templateID, err)
	}
	return loadedTemplate{rec: rec, tree: tree}, nil
}

func (s *Service) summary(rec store.TemplateRecord, tree *contract.Tree) TemplateSummary {
	return TemplateSummary{
		ID:           rec.ID,
		Name:         rec.Name,
		Revision:     rec.Revision,
		Fingerprint:  rec.Fingerprint,
		SectionCount: tree.Len(),
		UpdatedBy:    rec.UpdatedBy,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (s *Service) detail(rec store.TemplateRecord, tree *contract.Tree) TemplateDetail {
	return TemplateDetail{
		TemplateSummary:  s.summary(rec, tree),
		Tree:             tree.ExportTree(),
		UnresolvedTokens: unresolvedTokens(tree, s.tokens),
	}
}

// unresolvedTokens lists placeholder names the registry no longer knows, in
// tree order without duplicates.
func unresolvedTokens(tree *contract.Tree, reg *tokens.Registry) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	for _, sec := range tree.Sections() {
		for _, opt := range sec.Options {
			add(opt.Body.UnresolvedTokens(reg))
			for _, sub := range opt.SubOptions {
				add(sub.Body.UnresolvedTokens(reg))
			}
		}
	}
	return out
}

func (s *Service) author(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if s.cfg.DefaultAuthorName != "" {
		return s.cfg.DefaultAuthorName
	}
	return "Clausebook"
}

func (s *Service) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	records, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateSummary, 0, len(records))
	for _, rec := range records {
		tree, err := contract.ParseTree(rec.Tree)
		if err != nil {
			util.Log.WithError(err).WithField("template", rec.ID).Warn("list templates: unreadable tree")
			tree = contract.NewTree()
		}
		out = append(out, s.summary(rec, tree))
	}
	return out, nil
}

func (s *Service) GetTemplate(ctx context.Context, templateID string) (TemplateDetail, error) {
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return TemplateDetail{}, err
	}
	return s.detail(lt.rec, lt.tree), nil
}

// CreateTemplate stores a new template. A nil tree starts it empty.
func (s *Service) CreateTemplate(ctx context.Context, name, author string, tree *contract.Tree) (TemplateDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TemplateDetail{}, validationError("name is required")
	}
	if tree == nil {
		tree = contract.NewTree()
	}
	author = s.author(author)
	raw, err := tree.MarshalTree()
	if err != nil {
		return TemplateDetail{}, fmt.Errorf("marshal tree: %w", err)
	}
	sections := search.SectionTexts(tree)
	rec, err := s.store.CreateTemplate(ctx, store.TemplateRecord{
		ID:          util.NewID("tpl"),
		Name:        name,
		Tree:        raw,
		Fingerprint: tree.Fingerprint(),
		UpdatedBy:   author,
	}, sections)
	if err != nil {
		return TemplateDetail{}, err
	}
	if err := s.git.EnsureTemplateRepo(rec.ID, tree.ExportTree(), author); err != nil {
		return TemplateDetail{}, err
	}
	s.search.IndexTemplate(rec, sections)
	util.Log.WithField("template", rec.ID).WithField("author", author).Info("template created")
	return s.detail(rec, tree), nil
}

// ImportTemplate lints a serialised tree and stores it as a new template.
func (s *Service) ImportTemplate(ctx context.Context, name, author string, raw []byte) (TemplateDetail, error) {
	tree, warnings, err := s.parseLinted(raw)
	if err != nil {
		return TemplateDetail{}, err
	}
	detail, err := s.CreateTemplate(ctx, name, author, tree)
	if err != nil {
		return TemplateDetail{}, err
	}
	detail.Warnings = warnings
	return detail, nil
}

// parseLinted loads raw, refusing it only when lint finds blocking issues.
// Warnings are returned for the caller to pass on.
func (s *Service) parseLinted(raw []byte) (*contract.Tree, []lint.Issue, error) {
	errs, warnings := lint.Split(s.linter.Lint(raw))
	if len(errs) > 0 {
		return nil, nil, domainError(http.StatusUnprocessableEntity, "LINT_FAILED", "Template tree has problems", errs)
	}
	tree, err := contract.ParseTree(raw)
	if err != nil {
		return nil, nil, err
	}
	return tree, warnings, nil
}

func (s *Service) Lint(raw []byte) []lint.Issue {
	issues := s.linter.Lint(raw)
	if issues == nil {
		return []lint.Issue{}
	}
	return issues
}

func (s *Service) DeleteTemplate(ctx context.Context, templateID, author string) error {
	if err := s.checkNoForeignLease(ctx, templateID, s.author(author)); err != nil {
		return err
	}
	if err := s.store.DeleteTemplate(ctx, templateID); err != nil {
		return err
	}
	if s.leases != nil {
		if err := s.leases.Release(ctx, templateID, s.author(author)); err != nil {
			util.Log.WithError(err).WithField("template", templateID).Warn("delete template: release lease")
		}
	}
	s.search.DeleteTemplate(templateID)
	util.Log.WithField("template", templateID).Info("template deleted")
	return nil
}

// persist saves tree over rec, records it in the template history and
// refreshes the search index. The store is the source of truth: a failed
// history commit is logged, not returned.
func (s *Service) persist(ctx context.Context, rec store.TemplateRecord, tree *contract.Tree, author, summary string) (store.TemplateRecord, error) {
	raw, err := tree.MarshalTree()
	if err != nil {
		return store.TemplateRecord{}, fmt.Errorf("marshal tree: %w", err)
	}
	expected := rec.Revision
	rec.Tree = raw
	rec.Fingerprint = tree.Fingerprint()
	rec.UpdatedBy = author
	sections := search.SectionTexts(tree)
	saved, err := s.store.SaveTemplate(ctx, rec, expected, sections)
	if err != nil {
		return store.TemplateRecord{}, err
	}
	if _, err := s.git.CommitTemplate(saved.ID, tree.ExportTree(), author, summary); err != nil && !errors.Is(err, gitrepo.ErrNoChanges) {
		util.Log.WithError(err).WithField("template", saved.ID).WithField("revision", saved.Revision).Error("commit template history")
	}
	s.search.IndexTemplate(saved, sections)
	return saved, nil
}

// mutate applies fn to the stored tree and saves the result. fn must leave
// the tree unchanged when it fails.
func (s *Service) mutate(ctx context.Context, templateID string, pre Precondition, author, summary string, fn func(*contract.Tree) error) (TemplateDetail, error) {
	author = s.author(author)
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return TemplateDetail{}, err
	}
	if err := pre.check(lt.rec); err != nil {
		return TemplateDetail{}, err
	}
	if err := s.checkNoForeignLease(ctx, templateID, author); err != nil {
		return TemplateDetail{}, err
	}
	if err := fn(lt.tree); err != nil {
		return TemplateDetail{}, err
	}
	saved, err := s.persist(ctx, lt.rec, lt.tree, author, summary)
	if err != nil {
		return TemplateDetail{}, err
	}
	s.rebaseOwnLease(ctx, saved, lt.tree, author)
	return s.detail(saved, lt.tree), nil
}

func (s *Service) RenameTemplate(ctx context.Context, templateID string, pre Precondition, author, name string) (TemplateDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TemplateDetail{}, validationError("name is required")
	}
	author = s.author(author)
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return TemplateDetail{}, err
	}
	if err := pre.check(lt.rec); err != nil {
		return TemplateDetail{}, err
	}
	if err := s.checkNoForeignLease(ctx, templateID, author); err != nil {
		return TemplateDetail{}, err
	}
	lt.rec.Name = name
	saved, err := s.persist(ctx, lt.rec, lt.tree, author, "")
	if err != nil {
		return TemplateDetail{}, err
	}
	s.rebaseOwnLease(ctx, saved, lt.tree, author)
	return s.detail(saved, lt.tree), nil
}

// ReplaceTree swaps the whole section tree after linting it.
func (s *Service) ReplaceTree(ctx context.Context, templateID string, pre Precondition, author string, raw []byte) (TemplateDetail, error) {
	next, warnings, err := s.parseLinted(raw)
	if err != nil {
		return TemplateDetail{}, err
	}
	detail, err := s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		*tree = *next
		return nil
	})
	if err != nil {
		return TemplateDetail{}, err
	}
	detail.Warnings = warnings
	return detail, nil
}

func parseVariant(raw string) (contract.Variant, error) {
	v, err := contract.ParseVariant(raw)
	if err != nil {
		return "", domainError(http.StatusUnprocessableEntity, "INVALID_VARIANT", err.Error(), map[string]any{
			"allowed": []contract.Variant{contract.VariantFixed, contract.VariantOptional, contract.VariantDynamic},
		})
	}
	return v, nil
}

func (s *Service) AddSection(ctx context.Context, templateID string, pre Precondition, author, title, variant string) (TemplateDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return TemplateDetail{}, validationError("title is required")
	}
	v, err := parseVariant(variant)
	if err != nil {
		return TemplateDetail{}, err
	}
	return s.mutate(ctx, templateID, pre, author, fmt.Sprintf("Add section %q", title), func(tree *contract.Tree) error {
		_, err := tree.AddSection(title, v)
		return err
	})
}

// ImportMarkdownSection appends a FIXED section whose body is parsed from
// Markdown.
func (s *Service) ImportMarkdownSection(ctx context.Context, templateID string, pre Precondition, author, title string, src []byte) (TemplateDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return TemplateDetail{}, validationError("title is required")
	}
	body, err := document.FromMarkdown(src, s.tokens)
	if err != nil {
		return TemplateDetail{}, err
	}
	return s.mutate(ctx, templateID, pre, author, fmt.Sprintf("Import section %q", title), func(tree *contract.Tree) error {
		sec, err := tree.AddSection(title, contract.VariantFixed)
		if err != nil {
			return err
		}
		if err := tree.CommitNodeEdit(contract.OptionPath(sec.ID, 0), body, body.ToHTML(), contract.NodeMetadata{}); err != nil {
			_ = tree.RemoveSection(sec.ID)
			return err
		}
		return nil
	})
}

func (s *Service) UpdateSection(ctx context.Context, templateID string, pre Precondition, author, sectionID string, meta contract.NodeMetadata) (TemplateDetail, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return TemplateDetail{}, validationError("title is required")
	}
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		return tree.CommitNodeEdit(contract.SectionPath(sectionID), document.Empty(), "", meta)
	})
}

func (s *Service) RemoveSection(ctx context.Context, templateID string, pre Precondition, author, sectionID string) (TemplateDetail, error) {
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		return tree.RemoveSection(sectionID)
	})
}

func (s *Service) MoveSection(ctx context.Context, templateID string, pre Precondition, author, sectionID string, index int) (TemplateDetail, error) {
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		return tree.MoveSection(sectionID, index)
	})
}

// confirmShrink refuses a change that drops content unless the caller
// confirmed it.
func confirmShrink(confirm bool, what string, current, requested int) error {
	if confirm || requested >= current {
		return nil
	}
	return domainError(http.StatusConflict, "CONFIRMATION_REQUIRED",
		fmt.Sprintf("Reducing %s from %d to %d discards content; resend with confirm", what, current, requested),
		map[string]any{"current": current, "requested": requested})
}

func sectionOf(tree *contract.Tree, sectionID string) (contract.Section, error) {
	sec, ok := tree.Section(sectionID)
	if !ok {
		return contract.Section{}, fmt.Errorf("%w: section %s", contract.ErrNodeNotFound, sectionID)
	}
	return sec, nil
}

func optionOf(sec contract.Section, index int) (contract.Option, error) {
	if index < 0 || index >= len(sec.Options) {
		return contract.Option{}, fmt.Errorf("%w: section %s has no option %d", contract.ErrNodeNotFound, sec.ID, index)
	}
	return sec.Options[index], nil
}

func (s *Service) SetVariant(ctx context.Context, templateID string, pre Precondition, author, sectionID, variant string, confirm bool) (TemplateDetail, error) {
	v, err := parseVariant(variant)
	if err != nil {
		return TemplateDetail{}, err
	}
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		sec, err := sectionOf(tree, sectionID)
		if err != nil {
			return err
		}
		if v != contract.VariantDynamic {
			if err := confirmShrink(confirm, "options", len(sec.Options), 1); err != nil {
				return err
			}
		}
		return tree.SetVariant(sectionID, v)
	})
}

func (s *Service) ResizeOptions(ctx context.Context, templateID string, pre Precondition, author, sectionID string, count int, confirm bool) (TemplateDetail, error) {
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		sec, err := sectionOf(tree, sectionID)
		if err != nil {
			return err
		}
		if count >= 1 {
			if err := confirmShrink(confirm, "options", len(sec.Options), count); err != nil {
				return err
			}
		}
		return tree.ResizeOptions(sectionID, count)
	})
}

func (s *Service) ResizeSubOptions(ctx context.Context, templateID string, pre Precondition, author, sectionID string, option, count int, confirm bool) (TemplateDetail, error) {
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		sec, err := sectionOf(tree, sectionID)
		if err != nil {
			return err
		}
		opt, err := optionOf(sec, option)
		if err != nil {
			return err
		}
		if count >= 0 {
			if err := confirmShrink(confirm, "sub-options", len(opt.SubOptions), count); err != nil {
				return err
			}
		}
		return tree.ResizeSubOptions(sectionID, option, count)
	})
}

func (s *Service) SetMutexSubOptions(ctx context.Context, templateID string, pre Precondition, author, sectionID string, option int, mutex bool) (TemplateDetail, error) {
	return s.mutate(ctx, templateID, pre, author, "", func(tree *contract.Tree) error {
		return tree.SetMutexSubOptions(sectionID, option, mutex)
	})
}

// ValidateSelection checks a sub-option selection against an option's mutex
// flag without changing anything.
func (s *Service) ValidateSelection(ctx context.Context, templateID, sectionID string, option int, selected []int) error {
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return err
	}
	sec, err := sectionOf(lt.tree, sectionID)
	if err != nil {
		return err
	}
	opt, err := optionOf(sec, option)
	if err != nil {
		return err
	}
	return contract.ValidateMutexSelection(opt, selected)
}

func (s *Service) Tokens() []tokens.TokenDescriptor {
	return s.tokens.ListTokens()
}

func (s *Service) Icons(ctx context.Context) ([]icons.Entry, error) {
	return s.icons.List(ctx)
}

func (s *Service) ResolveIcon(ctx context.Context, raw string) (icons.Icon, error) {
	ref, err := icons.ParseRef(raw)
	if err != nil {
		return icons.Icon{}, domainError(http.StatusNotFound, "ICON_NOT_FOUND", err.Error(), nil)
	}
	icon, err := s.icons.Resolve(ctx, ref)
	if errors.Is(err, icons.ErrIconNotFound) {
		return icons.Icon{}, domainError(http.StatusNotFound, "ICON_NOT_FOUND", err.Error(), nil)
	}
	return icon, err
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

// Reindex pushes every stored template to the search index.
func (s *Service) Reindex(ctx context.Context) {
	s.search.ReindexAll(ctx, s.store)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports each backing service; the database is the only
// required one.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]string) {
	checks := map[string]string{"database": "ok", "leases": "disabled"}
	ready := true
	if err := s.store.Ping(ctx); err != nil {
		checks["database"] = "unavailable"
		ready = false
	}
	if s.leases != nil {
		checks["leases"] = "ok"
		if err := s.leases.Ping(ctx); err != nil {
			checks["leases"] = "unavailable"
		}
	}
	return ready, checks
}
