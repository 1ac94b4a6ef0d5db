package document

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

var markdownToken = regexp.MustCompile(`\[([A-Za-z][A-Za-z0-9]*)\]`)

// FromMarkdown converts a markdown clause into a document. Blocks become lines,
// emphasis maps to BOLD and ITALIC, code to CODE and headings to BOLD.
// Bracketed names the registry knows become placeholders; anything else stays
// plain text.
func FromMarkdown(src []byte, reg TokenValidator) (Document, error) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var chars []char
	counts := map[Style]int{}
	current := func() StyleSet {
		var ss []Style
		for s, n := range counts {
			if n > 0 {
				ss = append(ss, s)
			}
		}
		return NewStyleSet(ss...)
	}
	emit := func(s string, styles StyleSet) {
		for _, r := range norm.NFC.String(s) {
			chars = append(chars, char{r: r, styles: styles})
		}
	}
	newBlock := func() {
		if len(chars) > 0 && chars[len(chars)-1].r != '\n' {
			chars = append(chars, char{r: '\n', styles: StyleSet{}})
		}
	}

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			if entering {
				newBlock()
			}
		case *ast.Heading:
			if entering {
				newBlock()
				counts[StyleBold]++
			} else {
				counts[StyleBold]--
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if !entering {
				return ast.WalkContinue, nil
			}
			newBlock()
			lines := node.Lines()
			var b strings.Builder
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			emit(strings.TrimRight(b.String(), "\n"), NewStyleSet(StyleCode))
			return ast.WalkSkipChildren, nil
		case *ast.Emphasis:
			style := StyleItalic
			if node.Level >= 2 {
				style = StyleBold
			}
			if entering {
				counts[style]++
			} else {
				counts[style]--
			}
		case *ast.CodeSpan:
			if entering {
				counts[StyleCode]++
			} else {
				counts[StyleCode]--
			}
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			emit(string(node.Segment.Value(src)), current())
			switch {
			case node.HardLineBreak():
				chars = append(chars, char{r: '\n', styles: StyleSet{}})
			case node.SoftLineBreak():
				emit(" ", current())
			}
		case *ast.String:
			if entering {
				emit(string(node.Value), current())
			}
		case *ast.AutoLink:
			if entering {
				emit(string(node.Label(src)), current())
			}
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Document{}, err
	}
	for len(chars) > 0 && chars[len(chars)-1].r == '\n' {
		chars = chars[:len(chars)-1]
	}
	if len(chars) == 0 {
		return Document{}, nil
	}

	var anns []Annotation
	if reg != nil {
		plain := make([]rune, len(chars))
		for i, c := range chars {
			plain[i] = c.r
		}
		s := string(plain)
		for _, m := range markdownToken.FindAllStringSubmatchIndex(s, -1) {
			name := s[m[2]:m[3]]
			if !reg.IsValidToken(name) {
				continue
			}
			start := utf8.RuneCountInString(s[:m[0]])
			end := start + utf8.RuneCountInString(s[m[0]:m[1]])
			anns = append(anns, placeholderAnnotation(start, end, name))
		}
	}
	return assemble(chars, anns), nil
}
