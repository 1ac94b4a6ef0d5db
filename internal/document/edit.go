package document

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// char is one rune with its styles; edits work on exploded text and rebuild runs.
type char struct {
	r      rune
	styles StyleSet
}

func (d Document) explode() []char {
	chars := make([]char, 0, d.Len())
	for _, run := range d.runs {
		for _, r := range run.Text {
			chars = append(chars, char{r: r, styles: run.Styles})
		}
	}
	return chars
}

// assemble rebuilds normalized runs: adjacent runs with equal styles merge
// unless an annotation starts or ends between them.
func assemble(chars []char, annotations []Annotation) Document {
	cuts := make(map[int]bool, len(annotations)*2)
	for _, a := range annotations {
		cuts[a.Start] = true
		cuts[a.End] = true
	}

	var runs []Run
	var text []rune
	var styles StyleSet
	flush := func() {
		if len(text) > 0 {
			runs = append(runs, Run{Text: string(text), Styles: append(StyleSet{}, styles...)})
		}
		text = text[:0]
	}
	for i, c := range chars {
		if i > 0 && (cuts[i] || !c.styles.Equal(styles)) {
			flush()
		}
		if len(text) == 0 {
			styles = c.styles
		}
		text = append(text, c.r)
	}
	flush()

	var anns []Annotation
	if len(annotations) > 0 {
		anns = append([]Annotation(nil), annotations...)
	}
	return Document{runs: runs, annotations: anns}
}

// InsertText inserts text at sel, replacing the selected range when it is not
// collapsed. Annotations at or after the insertion point shift right. An
// insertion point strictly inside a placeholder moves to the placeholder end.
// Empty text is a no-op.
func (d Document) InsertText(sel Selection, text string, styles StyleSet) (Document, Selection) {
	text = norm.NFC.String(text)
	if text == "" {
		return d, sel
	}
	sel = d.clampSelection(sel)

	base := d
	if !sel.Collapsed() {
		base, sel = d.DeleteRange(sel)
	}
	at := sel.Start
	for _, a := range base.annotations {
		if a.Kind == KindPlaceholder && a.Start < at && at < a.End {
			at = a.End
		}
	}

	inserted := []rune(text)
	n := len(inserted)
	styles = NewStyleSet(styles...)

	chars := base.explode()
	out := make([]char, 0, len(chars)+n)
	out = append(out, chars[:at]...)
	for _, r := range inserted {
		out = append(out, char{r: r, styles: styles})
	}
	out = append(out, chars[at:]...)

	anns := make([]Annotation, 0, len(base.annotations))
	for _, a := range base.annotations {
		switch {
		case a.Start >= at:
			a.Start += n
			a.End += n
		case a.End > at:
			a.End += n
		}
		anns = append(anns, a)
	}
	return assemble(out, anns), Caret(at + n)
}

// InsertPlaceholder inserts "[tokenName]" tagged with a placeholder annotation
// spanning exactly that text, followed by one space with no styles and no
// annotation. At the end of a document the space is a run of its own; before
// unstyled text it joins that text's run, since runs stay normalised. It
// fails without touching the document when reg does not know tokenName. The
// returned selection is a caret after the space.
func (d Document) InsertPlaceholder(reg TokenValidator, sel Selection, tokenName string) (Document, Selection, error) {
	if reg == nil || !reg.IsValidToken(tokenName) {
		return d, sel, fmt.Errorf("%w: %q", ErrUnknownToken, tokenName)
	}

	display := "[" + tokenName + "]"
	withToken, caret := d.InsertText(sel, display, nil)
	end := caret.Start
	start := end - len([]rune(display))

	anns := make([]Annotation, 0, len(withToken.annotations)+1)
	placed := false
	for _, a := range withToken.annotations {
		if !placed && a.Start >= end {
			anns = append(anns, placeholderAnnotation(start, end, tokenName))
			placed = true
		}
		// an opaque mark that was extended by the insertion is split back out
		if a.Kind == KindOpaqueMark && a.Start < start && a.End > start {
			anns = append(anns, Annotation{Start: a.Start, End: start, Kind: a.Kind, Payload: a.Payload})
			if a.End > end {
				if !placed {
					anns = append(anns, placeholderAnnotation(start, end, tokenName))
					placed = true
				}
				anns = append(anns, Annotation{Start: end, End: a.End, Kind: a.Kind, Payload: a.Payload})
			}
			continue
		}
		anns = append(anns, a)
	}
	if !placed {
		anns = append(anns, placeholderAnnotation(start, end, tokenName))
	}

	tagged := assemble(withToken.explode(), anns)
	out, after := tagged.insertSpaceAfter(end)
	return out, after, nil
}

// insertSpaceAfter adds an unstyled, unannotated space at offset, leaving
// annotations that end at offset untouched. The space merges with an
// adjacent unstyled run.
func (d Document) insertSpaceAfter(at int) (Document, Selection) {
	chars := d.explode()
	out := make([]char, 0, len(chars)+1)
	out = append(out, chars[:at]...)
	out = append(out, char{r: ' ', styles: StyleSet{}})
	out = append(out, chars[at:]...)

	anns := make([]Annotation, 0, len(d.annotations))
	for _, a := range d.annotations {
		if a.Start >= at {
			a.Start++
			a.End++
		}
		anns = append(anns, a)
	}
	return assemble(out, anns), Caret(at + 1)
}

// DeleteRange removes the selected text. The range widens to cover any
// placeholder it touches, so tokens are never left partially deleted; opaque
// marks are clipped and dropped once empty.
func (d Document) DeleteRange(sel Selection) (Document, Selection) {
	sel = d.clampSelection(sel)
	if sel.Collapsed() {
		return d, sel
	}
	start, end := sel.Start, sel.End
	for _, a := range d.annotations {
		if a.Kind == KindPlaceholder && a.Start < end && a.End > start {
			if a.Start < start {
				start = a.Start
			}
			if a.End > end {
				end = a.End
			}
		}
	}
	width := end - start

	chars := d.explode()
	out := make([]char, 0, len(chars)-width)
	out = append(out, chars[:start]...)
	out = append(out, chars[end:]...)

	anns := make([]Annotation, 0, len(d.annotations))
	for _, a := range d.annotations {
		switch {
		case a.End <= start:
		case a.Start >= end:
			a.Start -= width
			a.End -= width
		case a.Kind == KindPlaceholder:
			continue
		default:
			newStart := a.Start
			if newStart > start {
				newStart = start
			}
			kept := (a.End - a.Start) - overlap(a.Start, a.End, start, end)
			if kept <= 0 {
				continue
			}
			a.Start = newStart
			a.End = newStart + kept
		}
		anns = append(anns, a)
	}
	return assemble(out, anns), Caret(start)
}

func overlap(aStart, aEnd, bStart, bEnd int) int {
	lo, hi := aStart, aEnd
	if bStart > lo {
		lo = bStart
	}
	if bEnd < hi {
		hi = bEnd
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// ApplyStyle adds style to every character in sel.
func (d Document) ApplyStyle(sel Selection, style Style) Document {
	return d.restyle(sel, func(ss StyleSet) StyleSet { return ss.With(style) }, style)
}

// RemoveStyle clears style from every character in sel.
func (d Document) RemoveStyle(sel Selection, style Style) Document {
	return d.restyle(sel, func(ss StyleSet) StyleSet { return ss.Without(style) }, style)
}

// ToggleStyle removes style when the whole selection already carries it and
// applies it otherwise.
func (d Document) ToggleStyle(sel Selection, style Style) Document {
	if d.HasStyle(sel, style) {
		return d.RemoveStyle(sel, style)
	}
	return d.ApplyStyle(sel, style)
}

// HasStyle reports whether every character in a non-empty sel carries style.
func (d Document) HasStyle(sel Selection, style Style) bool {
	sel = d.clampSelection(sel)
	if sel.Collapsed() {
		return false
	}
	chars := d.explode()
	for _, c := range chars[sel.Start:sel.End] {
		if !c.styles.Has(style) {
			return false
		}
	}
	return true
}

func (d Document) restyle(sel Selection, fn func(StyleSet) StyleSet, style Style) Document {
	sel = d.clampSelection(sel)
	if sel.Collapsed() || !style.Valid() {
		return d
	}
	chars := d.explode()
	for i := sel.Start; i < sel.End; i++ {
		chars[i].styles = fn(chars[i].styles)
	}
	return assemble(chars, d.annotations)
}
