package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTemplate ResultType = "template"
	ResultSection  ResultType = "section"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	TemplateID string     `json:"templateId"`
	SectionID  string     `json:"sectionId,omitempty"`
	Tokens     []string   `json:"tokens,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterTemplateID string
	// FilterToken restricts section hits to sections using the placeholder.
	FilterToken string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TemplateRecord is the data we index for a template.
type TemplateRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SectionCount int    `json:"sectionCount"`
	Revision     int64  `json:"revision"`
}

// SectionRecord is the data we index for one section of a template.
type SectionRecord struct {
	ID         string   `json:"id"`
	TemplateID string   `json:"templateId"`
	SectionID  string   `json:"sectionId"`
	Title      string   `json:"title"`
	Variant    string   `json:"variant"`
	BodyText   string   `json:"bodyText"`
	Tokens     []string `json:"tokens"`
}

func sectionDocID(templateID, sectionID string) string {
	return templateID + "__" + sectionID
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	return max(q.Offset, 0)
}
