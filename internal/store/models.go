package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRevisionConflict = errors.New("revision conflict")
)

// TemplateRecord is a stored contract template. Tree holds the exported
// section tree JSON; Revision increases by one on every save.
type TemplateRecord struct {
	ID          string
	Name        string
	Tree        []byte
	Revision    int64
	Fingerprint string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SectionText is the denormalised, searchable view of one section.
type SectionText struct {
	SectionID string
	Position  int
	Title     string
	Variant   string
	BodyText  string
	Tokens    []string
}

// Release names a published revision of a template.
type Release struct {
	TemplateID string
	Name       string
	CommitHash string
	Revision   int64
	CreatedBy  string
	CreatedAt  time.Time
}

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return t
}
