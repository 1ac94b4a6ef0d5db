package search

import (
	"context"

	"clausebook/api/internal/store"
	"clausebook/api/internal/util"
)

// RecordSource lists what a full reindex pushes to Meilisearch.
type RecordSource interface {
	ListTemplates(ctx context.Context) ([]store.TemplateRecord, error)
	ListSections(ctx context.Context) (map[string][]store.SectionText, error)
}

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// NewFallback picks the SQL searcher for the store's dialect.
func NewFallback(st *store.SQLStore) Searcher {
	if st.Dialect() == store.DialectPostgres {
		return NewPgFTS(st.DB())
	}
	return NewLike(st.DB())
}

func (s *Service) meiliUp() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to SQL.
func (s *Service) Search(q Query) Response {
	if s.meiliUp() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		util.Log.WithError(err).Warn("search: meilisearch error, falling back to sql")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		util.Log.WithError(err).Error("search: fallback error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTemplate indexes a template and its sections (fire-and-forget to Meilisearch).
func (s *Service) IndexTemplate(rec store.TemplateRecord, sections []store.SectionText) {
	if !s.meiliUp() {
		return
	}
	tpl, secs := Records(rec, sections)
	go func() {
		if err := s.meili.IndexTemplate(tpl, secs); err != nil {
			util.Log.WithError(err).WithField("template", tpl.ID).Warn("search: index template")
		}
	}()
}

// DeleteTemplate removes a template from the search index (fire-and-forget).
func (s *Service) DeleteTemplate(id string) {
	if !s.meiliUp() {
		return
	}
	go func() {
		if err := s.meili.DeleteTemplate(id); err != nil {
			util.Log.WithError(err).WithField("template", id).Warn("search: delete template")
		}
	}()
}

// ReindexAll reads every template from src and pushes it to Meilisearch.
// Called during startup when Meilisearch is healthy.
func (s *Service) ReindexAll(ctx context.Context, src RecordSource) {
	if !s.meiliUp() || src == nil {
		return
	}
	templates, err := src.ListTemplates(ctx)
	if err != nil {
		util.Log.WithError(err).Error("search: reindex load templates")
		return
	}
	sections, err := src.ListSections(ctx)
	if err != nil {
		util.Log.WithError(err).Error("search: reindex load sections")
		return
	}

	tpls := make([]TemplateRecord, 0, len(templates))
	var secs []SectionRecord
	for _, rec := range templates {
		tpl, recs := Records(rec, sections[rec.ID])
		tpls = append(tpls, tpl)
		secs = append(secs, recs...)
	}
	if err := s.meili.IndexAll(tpls, secs); err != nil {
		util.Log.WithError(err).Error("search: reindex")
		return
	}
	util.Log.WithField("templates", len(tpls)).WithField("sections", len(secs)).Info("search: reindexed")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
