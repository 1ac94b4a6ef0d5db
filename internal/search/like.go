package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Like implements Searcher with case-insensitive substring matching, for
// SQLite databases that have no full-text index.
type Like struct {
	db *sql.DB
}

func NewLike(db *sql.DB) *Like {
	return &Like{db: db}
}

func (l *Like) Healthy() bool {
	return true
}

func (l *Like) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" && q.FilterToken == "" {
		return nil, 0, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	args := []any{pattern}
	argN := 2

	var subQueries []string

	if (q.FilterType == "" || q.FilterType == ResultTemplate) && q.FilterToken == "" && text != "" {
		where := `lower(t.name) LIKE ?1 ESCAPE '\'`
		if q.FilterTemplateID != "" {
			where += fmt.Sprintf(" AND t.id = ?%d", argN)
			args = append(args, q.FilterTemplateID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'template' AS type, t.id, t.name AS title, '' AS body,
				t.id AS template_id, '' AS section_id, '' AS tokens, 0 AS rank
			FROM templates t
			WHERE %s`, where))
	}

	if q.FilterType == "" || q.FilterType == ResultSection {
		var conds []string
		if text != "" {
			conds = append(conds, `(lower(s.title) LIKE ?1 ESCAPE '\' OR lower(s.body_text) LIKE ?1 ESCAPE '\')`)
		}
		if q.FilterTemplateID != "" {
			conds = append(conds, fmt.Sprintf("s.template_id = ?%d", argN))
			args = append(args, q.FilterTemplateID)
			argN++
		}
		if q.FilterToken != "" {
			conds = append(conds, fmt.Sprintf("(' ' || s.tokens || ' ') LIKE ?%d", argN))
			args = append(args, "% "+q.FilterToken+" %")
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'section' AS type, s.section_id AS id, s.title, s.body_text AS body,
				s.template_id, s.section_id, s.tokens,
				CASE WHEN lower(s.title) LIKE ?1 ESCAPE '\' THEN 1 ELSE 2 END AS rank
			FROM template_sections s
			WHERE %s`, strings.Join(conds, " AND ")))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", strings.Join(subQueries, " UNION ALL "))
	dataSQL := fmt.Sprintf(`SELECT type, id, title, body, template_id, section_id, tokens
		FROM (%s) sub
		ORDER BY rank, title
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		q.limit(), q.offset())

	results, total, err := querySearch(context.Background(), l.db, countSQL, dataSQL, args, "like")
	if err != nil {
		return nil, 0, err
	}
	for i := range results {
		results[i].Snippet = snippet(results[i].Snippet, text, 120)
	}
	return results, total, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
