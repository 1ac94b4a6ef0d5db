package document

import (
	"fmt"
	"html"
	"strings"
)

var styleTags = map[Style]string{
	StyleBold:          "strong",
	StyleItalic:        "em",
	StyleUnderline:     "u",
	StyleStrikethrough: "s",
	StyleCode:          "code",
}

// ToHTML renders the document. Each line of text becomes a paragraph; the
// output is derived data and must be regenerated after every change.
func (d Document) ToHTML() string {
	chars := d.explode()
	if len(chars) == 0 {
		return ""
	}
	owner := make([]int, len(chars))
	for i := range owner {
		owner[i] = -1
	}
	for idx, a := range d.annotations {
		for k := a.Start; k < a.End && k < len(chars); k++ {
			owner[k] = idx
		}
	}

	var b strings.Builder
	open := -1
	var seg []rune
	var segStyles StyleSet

	flushSegment := func() {
		if len(seg) > 0 {
			b.WriteString(renderStyled(string(seg), segStyles))
		}
		seg = seg[:0]
	}
	closeSpan := func() {
		if open >= 0 {
			b.WriteString("</span>")
			open = -1
		}
	}

	b.WriteString("<p>")
	for i, c := range chars {
		if c.r == '\n' {
			flushSegment()
			closeSpan()
			b.WriteString("</p>\n<p>")
			continue
		}
		if owner[i] != open {
			flushSegment()
			closeSpan()
			if owner[i] >= 0 {
				b.WriteString(openSpan(d.annotations[owner[i]]))
				open = owner[i]
			}
		} else if len(seg) > 0 && !c.styles.Equal(segStyles) {
			flushSegment()
		}
		if len(seg) == 0 {
			segStyles = c.styles
		}
		seg = append(seg, c.r)
	}
	flushSegment()
	closeSpan()
	b.WriteString("</p>\n")
	return b.String()
}

func openSpan(a Annotation) string {
	if a.Kind == KindPlaceholder {
		return fmt.Sprintf(`<span class="placeholder" data-token="%s">`, html.EscapeString(a.TokenName()))
	}
	return `<span class="mark">`
}

// renderStyled wraps escaped text in style tags; the first style in the set is
// the outermost tag.
func renderStyled(text string, styles StyleSet) string {
	out := html.EscapeString(text)
	for i := len(styles) - 1; i >= 0; i-- {
		tag, ok := styleTags[styles[i]]
		if !ok {
			continue
		}
		out = fmt.Sprintf("<%s>%s</%s>", tag, out, tag)
	}
	return out
}
