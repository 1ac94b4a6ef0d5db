package search

import (
	"sort"
	"strings"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/store"

	"github.com/PuerkitoBio/goquery"
)

// PlainTextFromHTML extracts the text of rendered body HTML, one line per
// paragraph.
func PlainTextFromHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var lines []string
	paragraphs := doc.Find("p")
	if paragraphs.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		if line := strings.TrimSpace(p.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n")
}

// SectionTexts builds the searchable view of every section of tree. Body
// text covers options and sub-options; tokens are the distinct placeholders
// used anywhere in the section.
func SectionTexts(tree *contract.Tree) []store.SectionText {
	sections := tree.Sections()
	out := make([]store.SectionText, 0, len(sections))
	for i, s := range sections {
		var parts []string
		seen := map[string]bool{}
		addTokens := func(names []string) {
			for _, n := range names {
				seen[n] = true
			}
		}
		for _, o := range s.Options {
			for _, text := range []string{o.Summary, o.ShortDescription, PlainTextFromHTML(o.BodyHTML)} {
				if text != "" {
					parts = append(parts, text)
				}
			}
			addTokens(o.Body.Tokens())
			for _, sub := range o.SubOptions {
				if text := PlainTextFromHTML(sub.BodyHTML); text != "" {
					parts = append(parts, text)
				}
				addTokens(sub.Body.Tokens())
			}
		}
		tokens := make([]string, 0, len(seen))
		for n := range seen {
			tokens = append(tokens, n)
		}
		sort.Strings(tokens)
		out = append(out, store.SectionText{
			SectionID: s.ID,
			Position:  i,
			Title:     s.Title,
			Variant:   string(s.Variant),
			BodyText:  strings.Join(parts, "\n"),
			Tokens:    tokens,
		})
	}
	return out
}

// Records converts stored rows into index records.
func Records(rec store.TemplateRecord, sections []store.SectionText) (TemplateRecord, []SectionRecord) {
	out := make([]SectionRecord, 0, len(sections))
	for _, s := range sections {
		tokens := s.Tokens
		if tokens == nil {
			tokens = []string{}
		}
		out = append(out, SectionRecord{
			ID:         sectionDocID(rec.ID, s.SectionID),
			TemplateID: rec.ID,
			SectionID:  s.SectionID,
			Title:      s.Title,
			Variant:    s.Variant,
			BodyText:   s.BodyText,
			Tokens:     tokens,
		})
	}
	return TemplateRecord{ID: rec.ID, Name: rec.Name, SectionCount: len(sections), Revision: rec.Revision}, out
}

// snippet cuts a window of text around the first case-insensitive match of term.
func snippet(text, term string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	at := indexFold(runes, []rune(term))
	if at < 0 {
		return string(runes[:width]) + "…"
	}
	start := max(0, at-width/3)
	end := min(len(runes), start+width)
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if strings.EqualFold(string(haystack[i:i+len(needle)]), string(needle)) {
			return i
		}
	}
	return -1
}
