package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenSet map[string]bool

func (s tokenSet) IsValidToken(name string) bool { return s[name] }

var testTokens = tokenSet{"ContractId": true, "AssetPrice": true, "PaymentDueDate": true}

func runTexts(d Document) []string {
	var out []string
	for _, r := range d.Runs() {
		out = append(out, r.Text)
	}
	return out
}

func pricedDocument(t *testing.T) Document {
	t.Helper()
	d, sel := Empty().InsertText(Caret(0), "Price: ", nil)
	require.Equal(t, Caret(7), sel)
	d, sel, err := d.InsertPlaceholder(testTokens, sel, "AssetPrice")
	require.NoError(t, err)
	require.Equal(t, Caret(20), sel)
	return d
}

func TestInsertPlaceholderOnEmptyDocument(t *testing.T) {
	d, sel, err := Empty().InsertPlaceholder(testTokens, Caret(0), "ContractId")
	require.NoError(t, err)

	assert.Equal(t, []string{"[ContractId]", " "}, runTexts(d))
	for _, r := range d.Runs() {
		assert.Empty(t, r.Styles)
	}
	anns := d.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, KindPlaceholder, anns[0].Kind)
	assert.Equal(t, 0, anns[0].Start)
	assert.Equal(t, 12, anns[0].End)
	assert.Equal(t, "ContractId", anns[0].TokenName())
	assert.Equal(t, "[ContractId]", string([]rune(d.PlainText())[anns[0].Start:anns[0].End]))
	assert.Equal(t, Caret(13), sel)
}

func TestInsertPlaceholderRejectsUnknownToken(t *testing.T) {
	before := pricedDocument(t)
	after, sel, err := before.InsertPlaceholder(testTokens, Caret(3), "NotARealToken")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownToken))
	assert.True(t, after.Equal(before))
	assert.Equal(t, Caret(3), sel)
}

func TestInsertPlaceholderAfterText(t *testing.T) {
	d := pricedDocument(t)

	assert.Equal(t, []string{"Price: ", "[AssetPrice]", " "}, runTexts(d))
	assert.Equal(t, []string{"AssetPrice"}, d.Tokens())
	assert.Equal(t, 20, d.Len())
}

func TestInsertPlaceholderBeforeText(t *testing.T) {
	d, _ := Empty().InsertText(Caret(0), "due now", nil)
	d, sel, err := d.InsertPlaceholder(testTokens, Caret(0), "AssetPrice")
	require.NoError(t, err)
	assert.Equal(t, Caret(13), sel)

	// the space joins the following unstyled run but stays outside the token
	assert.Equal(t, []string{"[AssetPrice]", " due now"}, runTexts(d))
	assert.Equal(t, "[AssetPrice] due now", d.PlainText())
	anns := d.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 0, anns[0].Start)
	assert.Equal(t, 12, anns[0].End)
	for _, r := range d.Runs() {
		assert.Empty(t, r.Styles)
	}

	bold, _ := Empty().InsertText(Caret(0), "due", NewStyleSet(StyleBold))
	bold, _, err = bold.InsertPlaceholder(testTokens, Caret(0), "AssetPrice")
	require.NoError(t, err)
	assert.Equal(t, []string{"[AssetPrice]", " ", "due"}, runTexts(bold), "a styled neighbour keeps the space in its own run")
}

func TestInsertTextShiftsAnnotations(t *testing.T) {
	d := pricedDocument(t)

	d, sel := d.InsertText(Caret(0), "Unit ", nil)
	assert.Equal(t, Caret(5), sel)
	anns := d.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 12, anns[0].Start)
	assert.Equal(t, 24, anns[0].End)
	assert.Equal(t, "Unit Price: [AssetPrice] ", d.PlainText())
}

func TestInsertTextInsidePlaceholderMovesToTokenEnd(t *testing.T) {
	d := pricedDocument(t)

	d, sel := d.InsertText(Caret(10), "x", nil)
	assert.Equal(t, Caret(20), sel)
	assert.Equal(t, "Price: [AssetPrice]x ", d.PlainText())
	assert.Equal(t, []string{"Price: ", "[AssetPrice]", "x "}, runTexts(d))
	anns := d.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 7, anns[0].Start)
	assert.Equal(t, 19, anns[0].End)
}

func TestInsertTextEmptyIsNoop(t *testing.T) {
	d := pricedDocument(t)
	out, sel := d.InsertText(Caret(4), "", []Style{StyleBold})
	assert.True(t, out.Equal(d))
	assert.Equal(t, Caret(4), sel)
}

func TestInsertTextReplacesSelection(t *testing.T) {
	d, _ := Empty().InsertText(Caret(0), "Hello world", nil)
	d, sel := d.InsertText(Selection{Start: 6, End: 11}, "there", StyleSet{StyleItalic})

	assert.Equal(t, "Hello there", d.PlainText())
	assert.Equal(t, Caret(11), sel)
	runs := d.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, StyleSet{StyleItalic}, runs[1].Styles)
}

func TestInsertTextNormalizesNFC(t *testing.T) {
	d, sel := Empty().InsertText(Caret(0), "Cafe\u0301", nil)
	assert.Equal(t, "Caf\u00e9", d.PlainText())
	assert.Equal(t, Caret(4), sel)
}

func TestInsertTextInsideOpaqueMarkExtendsIt(t *testing.T) {
	d, err := FromCanonicalForm(SerializedDocument{
		Runs:        []SerializedRun{{Text: "Hello world"}},
		Annotations: []SerializedAnnotation{{Start: 0, End: 5, Kind: string(KindOpaqueMark), Payload: []byte(`{"id":1}`)}},
	})
	require.NoError(t, err)

	d, _ = d.InsertText(Caret(2), "XX", nil)
	anns := d.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 0, anns[0].Start)
	assert.Equal(t, 7, anns[0].End)
	assert.JSONEq(t, `{"id":1}`, string(anns[0].Payload))
}

func TestDeleteRangeRemovesWholePlaceholder(t *testing.T) {
	d := pricedDocument(t)

	out, sel := d.DeleteRange(Selection{Start: 8, End: 9})
	assert.Equal(t, Caret(7), sel)
	assert.Equal(t, "Price:  ", out.PlainText())
	assert.Empty(t, out.Annotations())
	assert.Equal(t, []string{"Price:  "}, runTexts(out))
}

func TestDeleteRangeShiftsLaterAnnotations(t *testing.T) {
	d := pricedDocument(t)

	out, _ := d.DeleteRange(Selection{Start: 0, End: 2})
	anns := out.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 5, anns[0].Start)
	assert.Equal(t, 17, anns[0].End)
}

func TestDeleteRangeClipsOpaqueMark(t *testing.T) {
	d, err := FromCanonicalForm(SerializedDocument{
		Runs:        []SerializedRun{{Text: "Hello world"}},
		Annotations: []SerializedAnnotation{{Start: 3, End: 8, Kind: string(KindOpaqueMark)}},
	})
	require.NoError(t, err)

	out, _ := d.DeleteRange(Selection{Start: 0, End: 5})
	anns := out.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 0, anns[0].Start)
	assert.Equal(t, 3, anns[0].End)

	out, _ = d.DeleteRange(Selection{Start: 2, End: 9})
	assert.Empty(t, out.Annotations())
}

func TestStyleOperations(t *testing.T) {
	d := pricedDocument(t)

	bold := d.ApplyStyle(Selection{Start: 0, End: 5}, StyleBold)
	assert.True(t, bold.HasStyle(Selection{Start: 0, End: 5}, StyleBold))
	assert.False(t, bold.HasStyle(Selection{Start: 0, End: 6}, StyleBold))
	assert.Equal(t, []string{"Price", ": ", "[AssetPrice]", " "}, runTexts(bold))

	toggled := bold.ToggleStyle(Selection{Start: 0, End: 5}, StyleBold)
	assert.True(t, toggled.Equal(d))

	partial := bold.ToggleStyle(Selection{Start: 0, End: 7}, StyleBold)
	assert.True(t, partial.HasStyle(Selection{Start: 0, End: 7}, StyleBold))

	assert.True(t, d.ApplyStyle(Caret(2), StyleBold).Equal(d))
	assert.True(t, d.ApplyStyle(Selection{Start: 0, End: 3}, Style("BLINK")).Equal(d))
}

func TestStyleAcrossPlaceholderKeepsRunBoundary(t *testing.T) {
	d := pricedDocument(t).ApplyStyle(Selection{Start: 0, End: 20}, StyleItalic)
	assert.Equal(t, []string{"Price: ", "[AssetPrice]", " "}, runTexts(d))
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	d := pricedDocument(t)
	snapshot := d.Clone()

	d.InsertText(Caret(0), "abc", nil)
	d.ApplyStyle(Selection{Start: 0, End: 10}, StyleCode)
	d.DeleteRange(Selection{Start: 0, End: 20})
	_, _, _ = d.InsertPlaceholder(testTokens, Caret(0), "ContractId")

	assert.True(t, d.Equal(snapshot))
}

func TestUnresolvedTokens(t *testing.T) {
	d, err := ParseCanonical([]byte(`{"runs":[{"text":"[Legacy] [AssetPrice]","styles":[]}],"annotations":[
		{"start":0,"end":8,"kind":"PLACEHOLDER_TOKEN","payload":{"tokenName":"Legacy"}},
		{"start":9,"end":21,"kind":"PLACEHOLDER_TOKEN","payload":{"tokenName":"AssetPrice"}}]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"Legacy", "AssetPrice"}, d.Tokens())
	assert.Equal(t, []string{"Legacy"}, d.UnresolvedTokens(testTokens))
}

func TestParseStyle(t *testing.T) {
	s, err := ParseStyle(" bold ")
	require.NoError(t, err)
	assert.Equal(t, StyleBold, s)

	_, err = ParseStyle("blink")
	assert.Error(t, err)

	assert.Equal(t, StyleSet{StyleBold, StyleCode}, NewStyleSet(StyleCode, StyleBold, StyleCode, "BLINK"))
}
