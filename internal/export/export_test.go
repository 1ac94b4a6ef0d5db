package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTemplate(t *testing.T) Template {
	t.Helper()
	reg := tokens.Default()
	tree := contract.NewTree()

	price, err := tree.AddSection("Price & payment", contract.VariantDynamic)
	require.NoError(t, err)
	require.NoError(t, tree.ResizeOptions(price.ID, 2))
	require.NoError(t, tree.ResizeSubOptions(price.ID, 1, 2))
	require.NoError(t, tree.SetMutexSubOptions(price.ID, 1, true))

	commit := func(path contract.NodePath, text, token string, styles document.StyleSet, meta contract.NodeMetadata) {
		doc, sel := document.Empty().InsertText(document.Caret(0), text, styles)
		if token != "" {
			doc, _, err = doc.InsertPlaceholder(reg, sel, token)
			require.NoError(t, err)
		}
		require.NoError(t, tree.CommitNodeEdit(path, doc, doc.ToHTML(), meta))
	}
	commit(contract.OptionPath(price.ID, 0), "Price: ", "AssetPrice", nil, contract.NodeMetadata{Summary: "Lump sum"})
	commit(contract.OptionPath(price.ID, 1), "Paid in instalments", "", document.NewStyleSet(document.StyleBold), contract.NodeMetadata{Summary: "Instalments"})
	commit(contract.SubOptionPath(price.ID, 1, 0), "Monthly\nby transfer", "", nil, contract.NodeMetadata{})
	commit(contract.SubOptionPath(price.ID, 1, 1), "Quarterly", "", nil, contract.NodeMetadata{})

	_, err = tree.AddSection("Delivery", contract.VariantFixed)
	require.NoError(t, err)

	return Template{
		ID:        "tpl_1",
		Name:      "Vehicle Sale",
		Revision:  4,
		UpdatedBy: "Avery",
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Tree:      tree,
	}
}

func TestBuildView(t *testing.T) {
	view := BuildView(sampleTemplate(t))
	require.Len(t, view.Sections, 2)

	price := view.Sections[0]
	assert.Equal(t, 1, price.Number)
	assert.Equal(t, "Choose one of 2 options", price.VariantNote)
	require.Len(t, price.Options, 2)
	assert.Equal(t, "A", price.Options[0].Label)
	assert.True(t, price.Options[0].ShowLabel)
	assert.Equal(t, "B", price.Options[1].Label)
	assert.True(t, price.Options[1].Mutex)
	require.Len(t, price.Options[1].SubOptions, 2)
	assert.Equal(t, 2, price.Options[1].SubOptions[1].Number)

	delivery := view.Sections[1]
	assert.Equal(t, "Always included", delivery.VariantNote)
	assert.False(t, delivery.Options[0].ShowLabel)

	assert.Empty(t, BuildView(Template{Name: "empty"}).Sections)
}

func TestRenderTemplateHTML(t *testing.T) {
	html, err := RenderTemplateHTML(BuildView(sampleTemplate(t)))
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Vehicle Sale</title>")
	assert.Contains(t, html, "Revision 4 | Avery | Mar 1, 2026")
	assert.Contains(t, html, "1. Price &amp; payment")
	assert.Contains(t, html, "Option A: <span class=\"summary\">Lump sum</span>")
	assert.Contains(t, html, `<span class="placeholder" data-token="AssetPrice">[AssetPrice]</span>`)
	assert.Contains(t, html, "<strong>Paid in instalments</strong>")
	assert.Contains(t, html, "<p>Monthly</p>\n<p>by transfer</p>")
	assert.Contains(t, html, "Only one of the following may apply.")
	assert.Contains(t, html, "2. Delivery")
	assert.NotContains(t, html, "&lt;p&gt;")
}

func TestRenderFormats(t *testing.T) {
	svc := NewService(nil, "")
	tpl := sampleTemplate(t)

	res, err := svc.Render(context.Background(), tpl, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "Vehicle-Sale.html", res.Filename)
	assert.True(t, strings.HasPrefix(res.MimeType, "text/html"))

	_, err = svc.Render(context.Background(), tpl, Format("odt"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = svc.Export(context.Background(), Request{TemplateID: "tpl_1", Format: FormatHTML})
	assert.Error(t, err)
}

func TestExportDOCX(t *testing.T) {
	res, err := exportDOCX(sampleTemplate(t))
	require.NoError(t, err)
	assert.Equal(t, "Vehicle-Sale.docx", res.Filename)
	assert.Equal(t, docxMimeType, res.MimeType)

	zr, err := zip.NewReader(bytes.NewReader(res.Data), int64(len(res.Data)))
	require.NoError(t, err)
	var body string
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		raw, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		body = string(raw)
	}
	require.NotEmpty(t, body, "word/document.xml missing")
	for _, want := range []string{"Vehicle Sale", "1. Price &amp; payment", "Option A: Lump sum", "[AssetPrice]", "Monthly", "by transfer", "1.2  ", "Delivery"} {
		assert.Contains(t, body, want)
	}
}

func TestPlaceholderMask(t *testing.T) {
	doc, sel := document.Empty().InsertText(document.Caret(0), "Pay ", nil)
	doc, _, err := doc.InsertPlaceholder(tokens.Default(), sel, "PlatformFee")
	require.NoError(t, err)
	mask := placeholderMask(doc)
	assert.False(t, mask[3])
	assert.True(t, mask[4])
	assert.True(t, mask[4+len("[PlatformFee]")-1])
	assert.False(t, mask[4+len("[PlatformFee]")])
}

func TestExportPDF(t *testing.T) {
	if testing.Short() {
		t.Skip("pdf export needs a browser")
	}
	if _, err := findChrome(""); err != nil {
		t.Skip("chromium not installed")
	}
	res, err := NewService(nil, "").Render(context.Background(), sampleTemplate(t), FormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF")))
}

func TestFindChromeMissing(t *testing.T) {
	_, err := findChrome("definitely-not-a-browser-binary")
	assert.True(t, errors.Is(err, ErrPDFDependencyMissing))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	_, err = ParseFormat("rtf")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Sale Agreement v1.2", "Sale-Agreement-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "template"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"café", "caf%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, percentEncodeForDataURL(tt.input))
		})
	}
}
