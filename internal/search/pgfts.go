package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over template names and section full-text vectors
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" && q.FilterToken == "" {
		return nil, 0, nil
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if (q.FilterType == "" || q.FilterType == ResultTemplate) && q.FilterToken == "" && strings.TrimSpace(q.Text) != "" {
		where := "to_tsvector('english', t.name) @@ " + tsQuery
		if q.FilterTemplateID != "" {
			where += fmt.Sprintf(" AND t.id = $%d", argN)
			args = append(args, q.FilterTemplateID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'template'::text AS type, t.id, t.name AS title, ''::text AS snippet,
				t.id AS template_id, ''::text AS section_id, ''::text AS tokens,
				ts_rank(to_tsvector('english', t.name), %s) AS rank
			FROM templates t
			WHERE %s`, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultSection {
		var conds []string
		if strings.TrimSpace(q.Text) != "" {
			conds = append(conds, "s.fts @@ "+tsQuery)
		}
		if q.FilterTemplateID != "" {
			conds = append(conds, fmt.Sprintf("s.template_id = $%d", argN))
			args = append(args, q.FilterTemplateID)
			argN++
		}
		if q.FilterToken != "" {
			conds = append(conds, fmt.Sprintf("$%d = ANY(string_to_array(s.tokens, ' '))", argN))
			args = append(args, q.FilterToken)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'section'::text AS type, s.section_id AS id, s.title,
				ts_headline('english', coalesce(s.body_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.template_id, s.section_id, s.tokens,
				ts_rank(s.fts, %s) AS rank
			FROM template_sections s
			WHERE %s`, tsQuery, tsQuery, strings.Join(conds, " AND ")))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", strings.Join(subQueries, " UNION ALL "))
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, template_id, section_id, tokens
		FROM (%s) sub
		ORDER BY rank DESC, title
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		q.limit(), q.offset())

	return querySearch(context.Background(), p.db, countSQL, dataSQL, args, "pgfts")
}

func querySearch(ctx context.Context, db *sql.DB, countSQL, dataSQL string, args []any, name string) ([]Result, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s count: %w", name, err)
	}

	rows, err := db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s query: %w", name, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ, tokens string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TemplateID, &r.SectionID, &tokens); err != nil {
			return nil, 0, fmt.Errorf("%s scan: %w", name, err)
		}
		r.Type = ResultType(typ)
		r.Tokens = strings.Fields(tokens)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
