package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/export"
	"clausebook/api/internal/gitrepo"
	"clausebook/api/internal/store"
	"clausebook/api/internal/util"
)

const latestVersion = "latest"

var releaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

func (s *Service) History(ctx context.Context, templateID string, limit int) ([]gitrepo.Commit, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.git.History(templateID, limit)
}

// treeAt loads the tree at version: "latest" (or empty) is the stored
// template, anything else a commit hash or release name.
func (s *Service) treeAt(ctx context.Context, templateID, version string) (store.TemplateRecord, *contract.Tree, error) {
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return store.TemplateRecord{}, nil, err
	}
	version = strings.TrimSpace(version)
	if version == "" || version == latestVersion {
		return lt.rec, lt.tree, nil
	}
	st, err := s.git.GetContentByHash(templateID, version)
	if err != nil {
		util.Log.WithError(err).WithField("template", templateID).Debug("resolve version")
		return store.TemplateRecord{}, nil, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", fmt.Sprintf("Unknown version %q", version), nil)
	}
	tree, err := contract.ImportTree(st)
	if err != nil {
		return store.TemplateRecord{}, nil, err
	}
	return lt.rec, tree, nil
}

// TemplateAt returns the template as it was at version.
func (s *Service) TemplateAt(ctx context.Context, templateID, version string) (TemplateDetail, error) {
	rec, tree, err := s.treeAt(ctx, templateID, version)
	if err != nil {
		return TemplateDetail{}, err
	}
	return s.detail(rec, tree), nil
}

// Compare lists section changes from one version to another.
func (s *Service) Compare(ctx context.Context, templateID, from, to string) ([]gitrepo.SectionChange, error) {
	if strings.TrimSpace(from) == "" {
		return nil, validationError("from is required")
	}
	_, fromTree, err := s.treeAt(ctx, templateID, from)
	if err != nil {
		return nil, err
	}
	_, toTree, err := s.treeAt(ctx, templateID, to)
	if err != nil {
		return nil, err
	}
	changes := gitrepo.DiffSections(fromTree.ExportTree(), toTree.ExportTree())
	if changes == nil {
		changes = []gitrepo.SectionChange{}
	}
	return changes, nil
}

// CreateRelease tags the stored revision under name. When the history lags
// behind the store (a commit failed after a save) the stored tree is
// committed first so the tag matches the recorded revision.
func (s *Service) CreateRelease(ctx context.Context, templateID, author, name string) (store.Release, error) {
	name = strings.TrimSpace(name)
	if !releaseNamePattern.MatchString(name) {
		return store.Release{}, validationError("release name must be letters, digits, dots, dashes or underscores")
	}
	author = s.author(author)
	lt, err := s.load(ctx, templateID)
	if err != nil {
		return store.Release{}, err
	}
	hash, err := s.releaseCommit(lt, author, name)
	if err != nil {
		return store.Release{}, err
	}
	commit, err := s.git.TagRelease(templateID, hash, name, author)
	if err != nil {
		return store.Release{}, err
	}
	release := store.Release{
		TemplateID: templateID,
		Name:       name,
		CommitHash: commit.Hash,
		Revision:   lt.rec.Revision,
		CreatedBy:  author,
	}
	if err := s.store.InsertRelease(ctx, release); err != nil {
		if derr := s.git.DeleteTag(templateID, name); derr != nil {
			util.Log.WithError(derr).WithField("template", templateID).WithField("release", name).Error("remove release tag")
		}
		return store.Release{}, err
	}
	util.Log.WithField("template", templateID).WithField("release", name).Info("release created")
	releases, err := s.store.ListReleases(ctx, templateID)
	if err != nil {
		return store.Release{}, err
	}
	for _, r := range releases {
		if r.Name == name {
			return r, nil
		}
	}
	return release, nil
}

// releaseCommit returns the hash of the commit holding the stored tree.
func (s *Service) releaseCommit(lt loadedTemplate, author, name string) (string, error) {
	head, err := s.git.History(lt.rec.ID, 1)
	if err != nil {
		return "", err
	}
	if len(head) == 0 {
		return "", domainError(http.StatusConflict, "NO_HISTORY", "Template has no committed revision", nil)
	}
	st, err := s.git.GetContentByHash(lt.rec.ID, head[0].Hash)
	if err != nil {
		return "", err
	}
	if committed, err := contract.ImportTree(st); err == nil && committed.Fingerprint() == lt.rec.Fingerprint {
		return head[0].Hash, nil
	}
	util.Log.WithField("template", lt.rec.ID).WithField("revision", lt.rec.Revision).Warn("history behind store, committing before release")
	commit, err := s.git.CommitTemplate(lt.rec.ID, lt.tree.ExportTree(), author, fmt.Sprintf("Record revision %d for release %s", lt.rec.Revision, name))
	if errors.Is(err, gitrepo.ErrNoChanges) {
		return head[0].Hash, nil
	}
	if err != nil {
		return "", err
	}
	return commit.Hash, nil
}

func (s *Service) ListReleases(ctx context.Context, templateID string) ([]store.Release, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.ListReleases(ctx, templateID)
}

// TemplateForExport implements export.Source.
func (s *Service) TemplateForExport(ctx context.Context, templateID, version string) (export.Template, error) {
	rec, tree, err := s.treeAt(ctx, templateID, version)
	if err != nil {
		return export.Template{}, err
	}
	if version == "" {
		version = latestVersion
	}
	return export.Template{
		ID:        rec.ID,
		Name:      rec.Name,
		Revision:  rec.Revision,
		Version:   version,
		UpdatedBy: rec.UpdatedBy,
		UpdatedAt: rec.UpdatedAt,
		Tree:      tree,
	}, nil
}

func (s *Service) Export(ctx context.Context, templateID, version, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{TemplateID: templateID, Version: version, Format: f})
}

// Preview renders the stored template as HTML.
func (s *Service) Preview(ctx context.Context, templateID string) (string, error) {
	result, err := s.exporter.Export(ctx, export.Request{TemplateID: templateID, Version: latestVersion, Format: export.FormatHTML})
	if err != nil {
		return "", err
	}
	return string(result.Data), nil
}
