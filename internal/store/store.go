package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists templates in Postgres or SQLite. Queries are written with
// $N placeholders and rebound for the dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres, now: time.Now}
}

func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectSQLite, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tree, revision, fingerprint, updated_by, created_at, updated_at
		FROM templates
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]TemplateRecord, 0)
	for rows.Next() {
		item, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (TemplateRecord, error) {
	var item TemplateRecord
	var tree, createdAt, updatedAt string
	if err := row.Scan(&item.ID, &item.Name, &tree, &item.Revision, &item.Fingerprint, &item.UpdatedBy, &createdAt, &updatedAt); err != nil {
		return TemplateRecord{}, err
	}
	item.Tree = []byte(tree)
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, templateID string) (TemplateRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, tree, revision, fingerprint, updated_by, created_at, updated_at
		FROM templates
		WHERE id=$1
	`), templateID)
	item, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TemplateRecord{}, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("get template: %w", err)
	}
	return item, nil
}

// CreateTemplate inserts a new template at revision 1.
func (s *SQLStore) CreateTemplate(ctx context.Context, item TemplateRecord, sections []SectionText) (TemplateRecord, error) {
	now := s.now()
	item.Revision = 1
	item.CreatedAt = now.UTC()
	item.UpdatedAt = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("begin create template: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO templates (id, name, tree, revision, fingerprint, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`), item.ID, item.Name, string(item.Tree), item.Revision, item.Fingerprint, item.UpdatedBy, formatTime(now), formatTime(now)); err != nil {
		return TemplateRecord{}, fmt.Errorf("insert template: %w", err)
	}
	if err := s.replaceSections(ctx, tx, item.ID, sections); err != nil {
		return TemplateRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return TemplateRecord{}, fmt.Errorf("commit create template: %w", err)
	}
	return item, nil
}

// SaveTemplate writes a new revision when the stored revision still equals
// expectedRevision, and fails with ErrRevisionConflict otherwise.
func (s *SQLStore) SaveTemplate(ctx context.Context, item TemplateRecord, expectedRevision int64, sections []SectionText) (TemplateRecord, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("begin save template: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE templates
		SET name=$1, tree=$2, fingerprint=$3, updated_by=$4, updated_at=$5, revision=revision+1
		WHERE id=$6 AND revision=$7
	`), item.Name, string(item.Tree), item.Fingerprint, item.UpdatedBy, formatTime(now), item.ID, expectedRevision)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("update template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("update template: %w", err)
	}
	if affected == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, s.q(`SELECT revision FROM templates WHERE id=$1`), item.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return TemplateRecord{}, fmt.Errorf("template %s: %w", item.ID, ErrNotFound)
		}
		if err != nil {
			return TemplateRecord{}, fmt.Errorf("read revision: %w", err)
		}
		return TemplateRecord{}, fmt.Errorf("template %s at revision %d, expected %d: %w", item.ID, current, expectedRevision, ErrRevisionConflict)
	}
	if err := s.replaceSections(ctx, tx, item.ID, sections); err != nil {
		return TemplateRecord{}, err
	}

	saved, err := scanTemplate(tx.QueryRowContext(ctx, s.q(`
		SELECT id, name, tree, revision, fingerprint, updated_by, created_at, updated_at
		FROM templates WHERE id=$1
	`), item.ID))
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("reload template: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return TemplateRecord{}, fmt.Errorf("commit save template: %w", err)
	}
	return saved, nil
}

func (s *SQLStore) replaceSections(ctx context.Context, tx *sql.Tx, templateID string, sections []SectionText) error {
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM template_sections WHERE template_id=$1`), templateID); err != nil {
		return fmt.Errorf("clear template sections: %w", err)
	}
	for _, sec := range sections {
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO template_sections (template_id, section_id, position, title, variant, body_text, tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`), templateID, sec.SectionID, sec.Position, sec.Title, sec.Variant, sec.BodyText, strings.Join(sec.Tokens, " ")); err != nil {
			return fmt.Errorf("insert template section %s: %w", sec.SectionID, err)
		}
	}
	return nil
}

// ListSections returns the indexed view of every section, for reindexing.
func (s *SQLStore) ListSections(ctx context.Context) (map[string][]SectionText, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, section_id, position, title, variant, body_text, tokens
		FROM template_sections
		ORDER BY template_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	out := map[string][]SectionText{}
	for rows.Next() {
		var templateID, tokens string
		var sec SectionText
		if err := rows.Scan(&templateID, &sec.SectionID, &sec.Position, &sec.Title, &sec.Variant, &sec.BodyText, &tokens); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.Tokens = strings.Fields(tokens)
		out[templateID] = append(out[templateID], sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return out, nil
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, templateID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete template: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"template_releases", "template_sections"} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE template_id=$1`), templateID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM templates WHERE id=$1`), templateID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete template: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertRelease(ctx context.Context, release Release) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO template_releases (template_id, name, commit_hash, revision, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), release.TemplateID, release.Name, release.CommitHash, release.Revision, release.CreatedBy, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

func (s *SQLStore) ListReleases(ctx context.Context, templateID string) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT template_id, name, commit_hash, revision, created_by, created_at
		FROM template_releases
		WHERE template_id=$1
		ORDER BY created_at DESC, name
	`), templateID)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	items := make([]Release, 0)
	for rows.Next() {
		var item Release
		var createdAt string
		if err := rows.Scan(&item.TemplateID, &item.Name, &item.CommitHash, &item.Revision, &item.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
