package export

import (
	"bytes"
	"fmt"
	"strings"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"

	"github.com/fumiama/go-docx"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// exportDOCX writes the template as a Word document, built from the node
// bodies rather than their HTML so styles and placeholders map to Word runs.
func exportDOCX(tpl Template) (*Result, error) {
	w := docx.New().WithDefaultTheme()

	w.AddParagraph().AddText(tpl.Name).Bold().Size("36")
	if tpl.Revision > 0 {
		w.AddParagraph().AddText(fmt.Sprintf("Revision %d", tpl.Revision)).Color("666666").Size("18")
	}

	if tpl.Tree != nil {
		for i, s := range tpl.Tree.Sections() {
			w.AddParagraph().AddText(fmt.Sprintf("%d. %s", i+1, s.Title)).Bold().Size("28")
			w.AddParagraph().AddText(variantNote(s)).Italic().Color("666666").Size("18")
			for oi, o := range s.Options {
				if s.Variant == contract.VariantDynamic {
					label := "Option " + contract.DisplayLabel(oi)
					if o.Summary != "" {
						label += ": " + o.Summary
					}
					w.AddParagraph().AddText(label).Bold()
				}
				writeBody(w, o.Body, "")
				if o.MutexSubOptions && len(o.SubOptions) > 0 {
					w.AddParagraph().AddText("Only one of the following may apply.").Italic().Color("8A5A00")
				}
				for si, sub := range o.SubOptions {
					writeBody(w, sub.Body, fmt.Sprintf("%d.%d  ", i+1, si+1))
				}
			}
		}
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(tpl.Name) + ".docx",
		MimeType: docxMimeType,
	}, nil
}

// writeBody adds one paragraph per line of body. Placeholder runs are
// highlighted.
func writeBody(w *docx.Docx, body document.Document, prefix string) {
	para := w.AddParagraph()
	if prefix != "" {
		para.AddText(prefix)
	}
	placeholder := placeholderMask(body)
	offset := 0
	for _, r := range body.Runs() {
		inPlaceholder := placeholder[offset]
		offset += len([]rune(r.Text))
		for i, line := range strings.Split(r.Text, "\n") {
			if i > 0 {
				para = w.AddParagraph()
			}
			if line == "" {
				continue
			}
			run := para.AddText(line)
			for _, style := range r.Styles {
				switch style {
				case document.StyleBold:
					run.Bold()
				case document.StyleItalic:
					run.Italic()
				case document.StyleUnderline:
					run.Underline("single")
				case document.StyleStrikethrough:
					run.Strike(true)
				case document.StyleCode:
					run.Color("C7254E")
				}
			}
			if inPlaceholder {
				run.Highlight("yellow")
			}
		}
	}
}

// placeholderMask reports, by rune offset, which characters belong to a
// placeholder. Runs never straddle an annotation boundary, so checking a
// run's first offset is enough.
func placeholderMask(body document.Document) map[int]bool {
	mask := map[int]bool{}
	for _, a := range body.Annotations() {
		if a.Kind != document.KindPlaceholder {
			continue
		}
		for i := a.Start; i < a.End; i++ {
			mask[i] = true
		}
	}
	return mask
}
