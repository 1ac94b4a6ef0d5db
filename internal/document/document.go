// Package document implements the rich-text body model used by contract
// template nodes: styled text runs plus range annotations, one annotation kind
// being a placeholder token reference resolved at contract generation time.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownToken indicates a placeholder insertion named a token the registry does not know.
	ErrUnknownToken = errors.New("unknown placeholder token")
	// ErrMalformedDocument indicates serialized document data violates run or annotation invariants.
	ErrMalformedDocument = errors.New("malformed document")
)

// TokenValidator is the part of the token registry the document model consumes.
type TokenValidator interface {
	IsValidToken(name string) bool
}

// Style is an inline text style.
type Style string

const (
	StyleBold          Style = "BOLD"
	StyleItalic        Style = "ITALIC"
	StyleUnderline     Style = "UNDERLINE"
	StyleStrikethrough Style = "STRIKETHROUGH"
	StyleCode          Style = "CODE"
)

// styleRank fixes the canonical order of styles inside a StyleSet and the
// nesting order of their HTML tags (lower rank renders outermost).
var styleRank = map[Style]int{
	StyleBold:          0,
	StyleItalic:        1,
	StyleUnderline:     2,
	StyleStrikethrough: 3,
	StyleCode:          4,
}

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	_, ok := styleRank[s]
	return ok
}

// ParseStyle accepts a style name case-insensitively.
func ParseStyle(raw string) (Style, error) {
	s := Style(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown style %q", raw)
	}
	return s, nil
}

// StyleSet is a sorted, duplicate-free set of styles.
type StyleSet []Style

// NewStyleSet builds a canonical set, dropping unknown styles and duplicates.
func NewStyleSet(styles ...Style) StyleSet {
	set := make(StyleSet, 0, len(styles))
	for _, s := range styles {
		if !s.Valid() || set.Has(s) {
			continue
		}
		set = append(set, s)
	}
	sort.Slice(set, func(i, j int) bool { return styleRank[set[i]] < styleRank[set[j]] })
	return set
}

// Has reports whether s is in the set.
func (ss StyleSet) Has(s Style) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// With returns a new set that also contains s.
func (ss StyleSet) With(s Style) StyleSet {
	return NewStyleSet(append(append(StyleSet{}, ss...), s)...)
}

// Without returns a new set with s removed.
func (ss StyleSet) Without(s Style) StyleSet {
	out := make(StyleSet, 0, len(ss))
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Equal compares two canonical sets.
func (ss StyleSet) Equal(other StyleSet) bool {
	if len(ss) != len(other) {
		return false
	}
	for i := range ss {
		if ss[i] != other[i] {
			return false
		}
	}
	return true
}

// AnnotationKind tags what an annotation range means.
type AnnotationKind string

const (
	KindPlaceholder AnnotationKind = "PLACEHOLDER_TOKEN"
	KindOpaqueMark  AnnotationKind = "OPAQUE_MARK"
)

// Run is a span of text sharing one style set.
type Run struct {
	Text   string
	Styles StyleSet
}

// Annotation marks the half-open rune range [Start, End) of the document text.
// Payload is compact JSON; placeholders carry {"tokenName": "..."}.
type Annotation struct {
	Start   int
	End     int
	Kind    AnnotationKind
	Payload json.RawMessage
}

type placeholderPayload struct {
	TokenName string `json:"tokenName"`
}

// TokenName returns the referenced token for placeholder annotations.
func (a Annotation) TokenName() string {
	if a.Kind != KindPlaceholder || len(a.Payload) == 0 {
		return ""
	}
	var p placeholderPayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return ""
	}
	return p.TokenName
}

func (a Annotation) equal(b Annotation) bool {
	return a.Start == b.Start && a.End == b.End && a.Kind == b.Kind && bytes.Equal(a.Payload, b.Payload)
}

func placeholderAnnotation(start, end int, tokenName string) Annotation {
	payload, _ := json.Marshal(placeholderPayload{TokenName: tokenName})
	return Annotation{Start: start, End: end, Kind: KindPlaceholder, Payload: payload}
}

// Selection is a rune range; Start == End is a caret.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Caret returns a collapsed selection at offset.
func Caret(offset int) Selection {
	return Selection{Start: offset, End: offset}
}

// Collapsed reports whether the selection is a caret.
func (s Selection) Collapsed() bool {
	return s.Start == s.End
}

// Document is an immutable rich-text value. Editing operations return a new
// Document and never modify the receiver. The zero value is an empty document.
type Document struct {
	runs        []Run
	annotations []Annotation
}

// Empty returns an empty document.
func Empty() Document {
	return Document{}
}

// Runs returns a copy of the document runs.
func (d Document) Runs() []Run {
	out := make([]Run, len(d.runs))
	for i, r := range d.runs {
		out[i] = Run{Text: r.Text, Styles: append(StyleSet{}, r.Styles...)}
	}
	return out
}

// Annotations returns a copy of the annotations.
func (d Document) Annotations() []Annotation {
	out := make([]Annotation, len(d.annotations))
	for i, a := range d.annotations {
		a.Payload = append(json.RawMessage(nil), a.Payload...)
		out[i] = a
	}
	return out
}

// Len is the text length in runes.
func (d Document) Len() int {
	n := 0
	for _, r := range d.runs {
		n += len([]rune(r.Text))
	}
	return n
}

// IsEmpty reports whether the document has no text.
func (d Document) IsEmpty() bool {
	return len(d.runs) == 0
}

// PlainText concatenates the run text.
func (d Document) PlainText() string {
	var b strings.Builder
	for _, r := range d.runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Tokens lists placeholder token names in document order.
func (d Document) Tokens() []string {
	var names []string
	for _, a := range d.annotations {
		if a.Kind == KindPlaceholder {
			names = append(names, a.TokenName())
		}
	}
	return names
}

// UnresolvedTokens lists placeholder names the registry does not know. Such
// tokens come from persisted or legacy data and are kept as display-only text.
func (d Document) UnresolvedTokens(reg TokenValidator) []string {
	var names []string
	for _, name := range d.Tokens() {
		if reg == nil || !reg.IsValidToken(name) {
			names = append(names, name)
		}
	}
	return names
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d.IsEmpty() && len(d.annotations) == 0 {
		return Document{}
	}
	return Document{runs: d.Runs(), annotations: d.Annotations()}
}

// Equal compares runs and annotations, order included.
func (d Document) Equal(other Document) bool {
	if len(d.runs) != len(other.runs) || len(d.annotations) != len(other.annotations) {
		return false
	}
	for i := range d.runs {
		if d.runs[i].Text != other.runs[i].Text || !d.runs[i].Styles.Equal(other.runs[i].Styles) {
			return false
		}
	}
	for i := range d.annotations {
		if !d.annotations[i].equal(other.annotations[i]) {
			return false
		}
	}
	return true
}

func (d Document) clampSelection(sel Selection) Selection {
	n := d.Len()
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > n {
			return n
		}
		return v
	}
	start, end := clamp(sel.Start), clamp(sel.End)
	if start > end {
		start, end = end, start
	}
	return Selection{Start: start, End: end}
}
