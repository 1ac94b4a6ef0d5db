package app

import (
	"net/http"
	"strings"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/lint"
	"clausebook/api/internal/search"
	"clausebook/api/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tokens": s.service.Tokens()})
}

func (s *HTTPServer) handleIcons(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Icons(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icons": entries})
}

func (s *HTTPServer) handleIcon(w http.ResponseWriter, r *http.Request) {
	icon, err := s.service.ResolveIcon(r.Context(), chi.URLParam(r, "icon"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") || icon.ContentType == "" {
		writeJSON(w, http.StatusOK, icon)
		return
	}
	w.Header().Set("Content-Type", icon.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(icon.Image)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	q := search.Query{
		Text:             strings.TrimSpace(query.Get("q")),
		FilterType:       search.ResultType(query.Get("type")),
		FilterTemplateID: query.Get("template"),
		FilterToken:      query.Get("token"),
		Limit:            limit,
		Offset:           offset,
	}
	if q.Text == "" && q.FilterToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q or token is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

func (s *HTTPServer) handleLint(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		invalidBody(w, err)
		return
	}
	issues := s.service.Lint(raw)
	errs, _ := lint.Split(issues)
	writeJSON(w, http.StatusOK, map[string]any{"ok": len(errs) == 0, "issues": issues})
}

func (s *HTTPServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListTemplates(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": items})
}

func (s *HTTPServer) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	detail, err := s.service.CreateTemplate(r.Context(), body.Name, author(r), nil)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeTemplate(w, http.StatusCreated, detail)
}

// handleImportTemplate creates a template from a serialised tree. The name
// comes from the query string so the body stays a plain tree document.
func (s *HTTPServer) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		invalidBody(w, err)
		return
	}
	detail, err := s.service.ImportTemplate(r.Context(), r.URL.Query().Get("name"), author(r), raw)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeTemplate(w, http.StatusCreated, detail)
}

func (s *HTTPServer) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag(detail.Fingerprint) {
		w.Header().Set("ETag", match)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeTemplate(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleRenameTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.RenameTemplate(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), body.Name)
	})
}

func (s *HTTPServer) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), chi.URLParam(r, "templateID"), author(r)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReplaceTree(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawBody(r)
	if err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.ReplaceTree(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), raw)
	})
}

// writeMutation runs fn under the request's precondition and writes the
// updated template.
func (s *HTTPServer) writeMutation(w http.ResponseWriter, r *http.Request, fn func(Precondition) (TemplateDetail, error)) {
	pre, err := precondition(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	detail, err := fn(pre)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeTemplate(w, http.StatusOK, detail)
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	html, err := s.service.Preview(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := query.Get("format")
	if format == "" {
		format = "pdf"
	}
	result, err := s.service.Export(r.Context(), chi.URLParam(r, "templateID"), query.Get("version"), format)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		fail(w, r, err)
		return
	}
	commits, err := s.service.History(r.Context(), chi.URLParam(r, "templateID"), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.TemplateAt(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "version"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	changes, err := s.service.Compare(r.Context(), chi.URLParam(r, "templateID"), query.Get("from"), query.Get("to"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func releasePayload(release store.Release) map[string]any {
	return map[string]any{
		"name":       release.Name,
		"commitHash": release.CommitHash,
		"revision":   release.Revision,
		"createdBy":  release.CreatedBy,
		"createdAt":  release.CreatedAt,
	}
}

func (s *HTTPServer) handleListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.service.ListReleases(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(releases))
	for _, release := range releases {
		items = append(items, releasePayload(release))
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": items})
}

func (s *HTTPServer) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	release, err := s.service.CreateRelease(r.Context(), chi.URLParam(r, "templateID"), author(r), body.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, releasePayload(release))
}

func (s *HTTPServer) handleAddSection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string `json:"title"`
		Variant string `json:"variant"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.AddSection(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), body.Title, body.Variant)
	})
}

func (s *HTTPServer) handleImportMarkdown(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.ImportMarkdownSection(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), body.Title, []byte(body.Markdown))
	})
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title               string `json:"title"`
		DescriptionOfChange string `json:"descriptionOfChange"`
		Icon                string `json:"icon"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	ref, err := icons.ParseRef(body.Icon)
	if err != nil {
		fail(w, r, err)
		return
	}
	meta := contract.NodeMetadata{Title: body.Title, DescriptionOfChange: body.DescriptionOfChange, Icon: ref}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.UpdateSection(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), meta)
	})
}

func (s *HTTPServer) handleRemoveSection(w http.ResponseWriter, r *http.Request) {
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.RemoveSection(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"))
	})
}

func (s *HTTPServer) handleMoveSection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int `json:"index"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.MoveSection(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), body.Index)
	})
}

func (s *HTTPServer) handleSetVariant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variant string `json:"variant"`
		Confirm bool   `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.SetVariant(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), body.Variant, body.Confirm)
	})
}

func (s *HTTPServer) handleResizeOptions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count   int  `json:"count"`
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.ResizeOptions(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), body.Count, body.Confirm)
	})
}

func (s *HTTPServer) handleResizeSubOptions(w http.ResponseWriter, r *http.Request) {
	option, err := pathInt(r, "option")
	if err != nil {
		fail(w, r, err)
		return
	}
	var body struct {
		Count   int  `json:"count"`
		Confirm bool `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.ResizeSubOptions(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), option, body.Count, body.Confirm)
	})
}

func (s *HTTPServer) handleSetMutex(w http.ResponseWriter, r *http.Request) {
	option, err := pathInt(r, "option")
	if err != nil {
		fail(w, r, err)
		return
	}
	var body struct {
		Mutex bool `json:"mutex"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	s.writeMutation(w, r, func(pre Precondition) (TemplateDetail, error) {
		return s.service.SetMutexSubOptions(r.Context(), chi.URLParam(r, "templateID"), pre, author(r), chi.URLParam(r, "sectionID"), option, body.Mutex)
	})
}

func (s *HTTPServer) handleValidateSelection(w http.ResponseWriter, r *http.Request) {
	option, err := pathInt(r, "option")
	if err != nil {
		fail(w, r, err)
		return
	}
	var body struct {
		Selected []int `json:"selected"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	if err := s.service.ValidateSelection(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "sectionID"), option, body.Selected); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleEditState(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.EditState(r.Context(), chi.URLParam(r, "templateID"), author(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleOpenEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SectionID string `json:"sectionId"`
		Option    int    `json:"option"`
	}
	if err := decodeBody(r, &body); err != nil {
		invalidBody(w, err)
		return
	}
	view, err := s.service.OpenEdit(r.Context(), chi.URLParam(r, "templateID"), author(r), body.SectionID, body.Option)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleEditCommand(w http.ResponseWriter, r *http.Request) {
	var cmd EditCommand
	if err := decodeBody(r, &cmd); err != nil {
		invalidBody(w, err)
		return
	}
	view, err := s.service.ApplyEdit(r.Context(), chi.URLParam(r, "templateID"), author(r), cmd)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleReleaseEdit(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReleaseEdit(r.Context(), chi.URLParam(r, "templateID"), author(r)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
