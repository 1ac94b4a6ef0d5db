package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SerializedRun is the wire form of a Run.
type SerializedRun struct {
	Text   string   `json:"text"`
	Styles []string `json:"styles"`
}

// SerializedAnnotation is the wire form of an Annotation.
type SerializedAnnotation struct {
	Start   int             `json:"start"`
	End     int             `json:"end"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// SerializedDocument is the persisted canonical form of a Document.
type SerializedDocument struct {
	Runs        []SerializedRun        `json:"runs"`
	Annotations []SerializedAnnotation `json:"annotations"`
}

// ToCanonicalForm produces the persisted form, preserving run and annotation order.
func (d Document) ToCanonicalForm() SerializedDocument {
	out := SerializedDocument{
		Runs:        make([]SerializedRun, 0, len(d.runs)),
		Annotations: make([]SerializedAnnotation, 0, len(d.annotations)),
	}
	for _, r := range d.runs {
		styles := make([]string, 0, len(r.Styles))
		for _, s := range r.Styles {
			styles = append(styles, string(s))
		}
		out.Runs = append(out.Runs, SerializedRun{Text: r.Text, Styles: styles})
	}
	for _, a := range d.annotations {
		payload := a.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		out.Annotations = append(out.Annotations, SerializedAnnotation{
			Start:   a.Start,
			End:     a.End,
			Kind:    string(a.Kind),
			Payload: append(json.RawMessage(nil), payload...),
		})
	}
	return out
}

// FromCanonicalForm validates and loads a serialized document. Placeholder
// token names are not checked against a registry here; unknown names survive
// as display-only tokens (see UnresolvedTokens).
func FromCanonicalForm(sd SerializedDocument) (Document, error) {
	var d Document
	textLen := 0
	for i, sr := range sd.Runs {
		if sr.Text == "" {
			return Document{}, malformed("runs[%d]: empty text", i)
		}
		styles := make(StyleSet, 0, len(sr.Styles))
		for _, raw := range sr.Styles {
			s := Style(raw)
			if !s.Valid() {
				return Document{}, malformed("runs[%d]: unknown style %q", i, raw)
			}
			if styles.Has(s) {
				return Document{}, malformed("runs[%d]: duplicate style %q", i, raw)
			}
			styles = append(styles, s)
		}
		d.runs = append(d.runs, Run{Text: sr.Text, Styles: NewStyleSet(styles...)})
		textLen += len([]rune(sr.Text))
	}

	prevEnd, prevStart := 0, -1
	for i, sa := range sd.Annotations {
		kind := AnnotationKind(sa.Kind)
		if kind != KindPlaceholder && kind != KindOpaqueMark {
			return Document{}, malformed("annotations[%d]: unknown kind %q", i, sa.Kind)
		}
		if sa.Start < 0 || sa.End > textLen || sa.Start >= sa.End {
			return Document{}, malformed("annotations[%d]: range [%d,%d) outside text of length %d", i, sa.Start, sa.End, textLen)
		}
		if sa.Start < prevStart {
			return Document{}, malformed("annotations[%d]: not ordered by start", i)
		}
		if sa.Start < prevEnd {
			return Document{}, malformed("annotations[%d]: overlaps previous annotation", i)
		}
		payload, err := compactPayload(sa.Payload)
		if err != nil {
			return Document{}, malformed("annotations[%d]: payload: %v", i, err)
		}
		a := Annotation{Start: sa.Start, End: sa.End, Kind: kind, Payload: payload}
		if kind == KindPlaceholder && a.TokenName() == "" {
			return Document{}, malformed("annotations[%d]: placeholder without tokenName", i)
		}
		d.annotations = append(d.annotations, a)
		prevStart, prevEnd = sa.Start, sa.End
	}
	return d, nil
}

// MarshalCanonical encodes the canonical form as JSON.
func (d Document) MarshalCanonical() ([]byte, error) {
	return json.Marshal(d.ToCanonicalForm())
}

// ParseCanonical decodes and validates canonical JSON. Empty input yields an
// empty document.
func ParseCanonical(raw []byte) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{}, nil
	}
	var sd SerializedDocument
	if err := json.Unmarshal(raw, &sd); err != nil {
		return Document{}, malformed("decode: %v", err)
	}
	return FromCanonicalForm(sd)
}

// MarshalJSON makes Document embed as its canonical form.
func (d Document) MarshalJSON() ([]byte, error) {
	return d.MarshalCanonical()
}

// UnmarshalJSON parses and validates the canonical form.
func (d *Document) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseCanonical(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func compactPayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}
