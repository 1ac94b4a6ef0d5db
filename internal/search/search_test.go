package search

import (
	"context"
	"testing"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/store"
	"clausebook/api/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextFromHTML(t *testing.T) {
	html := "<p>Price: <span class=\"placeholder\" data-token=\"AssetPrice\">[AssetPrice]</span> </p>\n<p><strong>Terms &amp; </strong>conditions</p>\n"
	assert.Equal(t, "Price: [AssetPrice]\nTerms & conditions", PlainTextFromHTML(html))
	assert.Equal(t, "", PlainTextFromHTML(""))
	assert.Equal(t, "loose text", PlainTextFromHTML("loose text"))
}

func buildTree(t *testing.T) *contract.Tree {
	t.Helper()
	tree := contract.NewTree()
	price, err := tree.AddSection("Price", contract.VariantDynamic)
	require.NoError(t, err)
	require.NoError(t, tree.ResizeOptions(price.ID, 2))
	require.NoError(t, tree.ResizeSubOptions(price.ID, 1, 1))

	reg := tokens.Default()
	commit := func(path contract.NodePath, text, token string, meta contract.NodeMetadata) {
		doc, sel := document.Empty().InsertText(document.Caret(0), text, nil)
		if token != "" {
			doc, _, err = doc.InsertPlaceholder(reg, sel, token)
			require.NoError(t, err)
		}
		require.NoError(t, tree.CommitNodeEdit(path, doc, doc.ToHTML(), meta))
	}
	commit(contract.OptionPath(price.ID, 0), "Fixed price ", "AssetPrice", contract.NodeMetadata{Summary: "Fixed"})
	commit(contract.OptionPath(price.ID, 1), "Instalments plus ", "PlatformFee", contract.NodeMetadata{})
	commit(contract.SubOptionPath(price.ID, 1, 0), "Due on ", "PaymentDueDate", contract.NodeMetadata{})

	_, err = tree.AddSection("Delivery", contract.VariantFixed)
	require.NoError(t, err)
	return tree
}

func TestSectionTexts(t *testing.T) {
	texts := SectionTexts(buildTree(t))
	require.Len(t, texts, 2)

	price := texts[0]
	assert.Equal(t, "Price", price.Title)
	assert.Equal(t, "DYNAMIC", price.Variant)
	assert.Equal(t, []string{"AssetPrice", "PaymentDueDate", "PlatformFee"}, price.Tokens)
	assert.Contains(t, price.BodyText, "Fixed\nFixed price [AssetPrice]")
	assert.Contains(t, price.BodyText, "Due on [PaymentDueDate]")

	assert.Equal(t, 1, texts[1].Position)
	assert.Empty(t, texts[1].Tokens)
	assert.Equal(t, "", texts[1].BodyText)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("short", "x", 10))
	assert.Equal(t, "0123456789…", snippet("0123456789abcdef", "zz", 10))
	assert.Equal(t, "…789abcdefg…", snippet("0123456789abcdefghijkl", "ABC", 10))
}

func newLikeService(t *testing.T) (*Service, *store.SQLStore) {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, "../../db/migrations", store.DialectSQLite))
	st := store.NewSQLiteStore(db)
	return NewService(nil, NewFallback(st)), st
}

func TestLikeFallbackSearch(t *testing.T) {
	svc, st := newLikeService(t)
	ctx := context.Background()
	tree := buildTree(t)
	raw, err := tree.MarshalTree()
	require.NoError(t, err)
	_, err = st.CreateTemplate(ctx, store.TemplateRecord{ID: "tpl_sale", Name: "Vehicle sale", Tree: raw, Fingerprint: tree.Fingerprint()}, SectionTexts(tree))
	require.NoError(t, err)

	resp := svc.Search(Query{Text: "instalments"})
	require.Equal(t, 1, resp.Total)
	hit := resp.Results[0]
	assert.Equal(t, ResultSection, hit.Type)
	assert.Equal(t, "Price", hit.Title)
	assert.Equal(t, "tpl_sale", hit.TemplateID)
	assert.Contains(t, hit.Tokens, "PlatformFee")

	resp = svc.Search(Query{Text: "sale"})
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, ResultTemplate, resp.Results[0].Type)

	resp = svc.Search(Query{FilterToken: "PaymentDueDate"})
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Price", resp.Results[0].Title)

	resp = svc.Search(Query{FilterToken: "Payment"})
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Results)

	resp = svc.Search(Query{Text: "delivery", FilterType: ResultTemplate})
	assert.Equal(t, 0, resp.Total)

	resp = svc.Search(Query{Text: "100%"})
	assert.Equal(t, 0, resp.Total)
}

func TestServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil)
	resp := svc.Search(Query{Text: "anything"})
	assert.Equal(t, []Result{}, resp.Results)
	svc.IndexTemplate(store.TemplateRecord{ID: "x"}, nil)
	svc.DeleteTemplate("x")
	svc.ReindexAll(context.Background(), nil)
}
