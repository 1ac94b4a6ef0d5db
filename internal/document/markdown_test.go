package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMarkdown(t *testing.T) {
	d, err := FromMarkdown([]byte("Price is **[AssetPrice]** per *unit*\n\nPay by [PaymentDueDate] or [Unknown].\n"), testTokens)
	require.NoError(t, err)

	assert.Equal(t, "Price is [AssetPrice] per unit\nPay by [PaymentDueDate] or [Unknown].", d.PlainText())
	assert.Equal(t, []string{"AssetPrice", "PaymentDueDate"}, d.Tokens())
	assert.True(t, d.HasStyle(Selection{Start: 9, End: 21}, StyleBold))
	assert.True(t, d.HasStyle(Selection{Start: 26, End: 30}, StyleItalic))
	assert.False(t, d.HasStyle(Selection{Start: 0, End: 9}, StyleBold))

	anns := d.Annotations()
	require.Len(t, anns, 2)
	assert.Equal(t, 9, anns[0].Start)
	assert.Equal(t, 21, anns[0].End)
}

func TestFromMarkdownHeadingsAndCode(t *testing.T) {
	d, err := FromMarkdown([]byte("# Title\n\nPay `[AssetPrice]` by *Friday*\n"), testTokens)
	require.NoError(t, err)

	newGolden(t).Assert(t, "markdown", []byte(d.ToHTML()))
}

func TestFromMarkdownSoftBreakAndNilRegistry(t *testing.T) {
	d, err := FromMarkdown([]byte("first line\nsecond [AssetPrice]"), nil)
	require.NoError(t, err)

	assert.Equal(t, "first line second [AssetPrice]", d.PlainText())
	assert.Empty(t, d.Annotations())
}

func TestFromMarkdownEmpty(t *testing.T) {
	d, err := FromMarkdown([]byte("  \n\n"), testTokens)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}
