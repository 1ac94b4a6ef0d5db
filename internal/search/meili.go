package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"clausebook/api/internal/util"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxTemplates = "clausebook_templates"
	idxSections  = "clausebook_sections"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// An unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		util.Log.WithError(err).WithField("url", url).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxTemplates,
			primaryKey: "id",
			filterable: []string{"id"},
			searchable: []string{"name"},
		},
		{
			uid:        idxSections,
			primaryKey: "id",
			filterable: []string{"templateId", "tokens", "variant"},
			searchable: []string{"title", "bodyText", "tokens"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			util.Log.WithError(err).WithField("index", idx.uid).Debug("search: create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			util.Log.WithError(err).WithField("index", idx.uid).Warn("search: update filterable attrs")
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			util.Log.WithError(err).WithField("index", idx.uid).Warn("search: update searchable attrs")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				util.Log.Info("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or the filtered one) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	var queries []*meili.SearchRequest
	targets := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxTemplates, ResultTemplate},
		{idxSections, ResultSection},
	}
	for _, ti := range targets {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		if q.FilterToken != "" && ti.rtyp == ResultTemplate {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 int64(q.limit()),
			Offset:                int64(q.offset()),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}
		if filters := meiliFilters(q, ti.rtyp); len(filters) > 0 {
			sr.Filter = filters
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func meiliFilters(q Query, rtyp ResultType) []string {
	var filters []string
	if q.FilterTemplateID != "" {
		field := "templateId"
		if rtyp == ResultTemplate {
			field = "id"
		}
		filters = append(filters, fmt.Sprintf("%s = %q", field, q.FilterTemplateID))
	}
	if q.FilterToken != "" && rtyp == ResultSection {
		filters = append(filters, fmt.Sprintf("tokens = %q", q.FilterToken))
	}
	return filters
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxTemplates:
		return ResultTemplate
	case idxSections:
		return ResultSection
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	switch rtyp {
	case ResultTemplate:
		r.ID = decodeString(hit, "id")
		r.TemplateID = r.ID
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
	case ResultSection:
		r.TemplateID = decodeString(hit, "templateId")
		r.SectionID = decodeString(hit, "sectionId")
		r.ID = r.SectionID
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "bodyText"), decodeString(hit, "bodyText"))
		if raw, ok := hit["tokens"]; ok {
			_ = json.Unmarshal(raw, &r.Tokens)
		}
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexTemplate replaces a template and all of its sections in the index.
func (m *Meili) IndexTemplate(tpl TemplateRecord, sections []SectionRecord) error {
	if _, err := m.client.Index(idxTemplates).AddDocuments([]TemplateRecord{tpl}, nil); err != nil {
		return err
	}
	if _, err := m.client.Index(idxSections).DeleteDocumentsByFilter(fmt.Sprintf("templateId = %q", tpl.ID), nil); err != nil {
		return err
	}
	if len(sections) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSections).AddDocuments(sections, nil)
	return err
}

// DeleteTemplate removes a template and its sections from the index.
func (m *Meili) DeleteTemplate(id string) error {
	if _, err := m.client.Index(idxTemplates).DeleteDocument(id, nil); err != nil {
		return err
	}
	_, err := m.client.Index(idxSections).DeleteDocumentsByFilter(fmt.Sprintf("templateId = %q", id), nil)
	return err
}

// IndexAll bulk-indexes templates and sections.
func (m *Meili) IndexAll(templates []TemplateRecord, sections []SectionRecord) error {
	if len(templates) > 0 {
		if _, err := m.client.Index(idxTemplates).AddDocuments(templates, nil); err != nil {
			return err
		}
	}
	if len(sections) > 0 {
		if _, err := m.client.Index(idxSections).AddDocuments(sections, nil); err != nil {
			return err
		}
	}
	return nil
}
