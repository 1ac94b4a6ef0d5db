package lint

import (
	"sync"
	"testing"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinter(t *testing.T) *Linter {
	t.Helper()
	l, err := New(tokens.Default())
	require.NoError(t, err)
	return l
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestLintCleanTemplate(t *testing.T) {
	tree := contract.NewTree()
	sec, err := tree.AddSection("Price", contract.VariantFixed)
	require.NoError(t, err)
	doc, sel := document.Empty().InsertText(document.Caret(0), "Price: ", nil)
	doc, _, err = doc.InsertPlaceholder(tokens.Default(), sel, "AssetPrice")
	require.NoError(t, err)
	require.NoError(t, tree.CommitNodeEdit(contract.OptionPath(sec.ID, 0), doc, doc.ToHTML(), contract.NodeMetadata{}))

	raw, err := tree.MarshalTree()
	require.NoError(t, err)
	assert.Empty(t, newLinter(t).Lint(raw))
}

func TestLintSyntaxError(t *testing.T) {
	issues := newLinter(t).Lint([]byte(`{"sections": [`))
	require.Len(t, issues, 1)
	assert.Equal(t, CodeSyntax, issues[0].Code)
}

func TestLintSchemaViolations(t *testing.T) {
	raw := []byte(`{"sections":[
		{"id":"s1","title":"Price","variant":"FIXED","options":[
			{"body":{"runs":[],"annotations":[]}},
			{"body":{"runs":[],"annotations":[]}}
		]},
		{"id":"s2","title":"Fee","variant":"SOMETIMES","options":[{"body":{"runs":[],"annotations":[]}}]},
		{"id":"s3","title":"Icon","variant":"DYNAMIC","icon":"UNICORN","options":[{"body":{"runs":[{"text":"","styles":["BLINK"]}],"annotations":[]}}]}
	]}`)
	issues := newLinter(t).Lint(raw)
	require.NotEmpty(t, issues)
	paths := map[string]bool{}
	for _, i := range issues {
		assert.Equal(t, CodeSchema, i.Code)
		paths[i.Path] = true
	}
	has := func(prefix string) bool {
		for p := range paths {
			if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
				return true
			}
		}
		return false
	}
	assert.True(t, has("sections.0.options"), paths)
	assert.True(t, has("sections.1.variant"), paths)
	assert.True(t, has("sections.2"), paths)
}

func TestLintUnknownFieldIsRejected(t *testing.T) {
	raw := []byte(`{"sections":[{"id":"s1","title":"Price","variant":"FIXED","colour":"red","options":[{"body":{"runs":[{"text":"x","styles":[]}],"annotations":[]}}]}]}`)
	issues := newLinter(t).Lint(raw)
	require.NotEmpty(t, issues)
	assert.Equal(t, CodeSchema, issues[0].Code)
}

func TestLintSemanticIssues(t *testing.T) {
	raw := []byte(`{"sections":[
		{"id":"s1","title":"Price","variant":"DYNAMIC","options":[
			{"body":{"runs":[{"text":"Pay [Bogus]","styles":[]}],"annotations":[{"start":4,"end":11,"kind":"PLACEHOLDER_TOKEN","payload":{"tokenName":"Bogus"}}]},
			 "mutexSubOptions":true,"subOptions":[{"body":{"runs":[],"annotations":[]}}]},
			{"body":{"runs":[],"annotations":[]}}
		]},
		{"id":"s2","title":" price ","variant":"FIXED","options":[{"body":{"runs":[{"text":"ok","styles":[]}],"annotations":[]}}]},
		{"id":"s3","title":"","variant":"OPTIONAL","options":[{"body":{"runs":[{"text":"ok","styles":[]}],"annotations":[]}}]}
	]}`)
	issues := newLinter(t).Lint(raw)
	assert.Equal(t, []Issue{
		{Path: "s1/A", Code: CodeLonelyMutex, Severity: SeverityWarning, Message: "mutually exclusive sub-options need at least two, found 1"},
		{Path: "s1/A", Code: CodeUnknownToken, Severity: SeverityWarning, Message: "placeholder [Bogus] is not in the token registry"},
		{Path: "s1/A/1", Code: CodeEmptyBody, Severity: SeverityWarning, Message: "sub-option 1 has no text"},
		{Path: "s1/B", Code: CodeEmptyBody, Severity: SeverityWarning, Message: "option B has no text"},
		{Path: "s2", Code: CodeDuplicateName, Severity: SeverityWarning, Message: `title "price" is also used by section s1`},
		{Path: "s3", Code: CodeEmptyTitle, Severity: SeverityWarning, Message: "section has no title"},
	}, issues)

	errs, warnings := Split(issues)
	assert.Empty(t, errs, "authoring findings never block a tree")
	assert.Len(t, warnings, 6)
}

func TestLintSeverity(t *testing.T) {
	l := newLinter(t)
	syntax := l.Lint([]byte(`{"sections": [`))
	require.Len(t, syntax, 1)
	assert.True(t, syntax[0].Blocking())

	schema := l.Lint([]byte(`{"sections":[{"id":"s1","title":"Price","variant":"FIXED","options":[]}]}`))
	require.NotEmpty(t, schema)
	errs, warnings := Split(schema)
	assert.Len(t, errs, len(schema))
	assert.Empty(t, warnings)
	assert.Equal(t, SeverityError, schema[0].Severity)
}

func TestLintConcurrentUse(t *testing.T) {
	l := newLinter(t)
	clean := []byte(`{"sections":[{"id":"s1","title":"Price","variant":"FIXED","options":[{"body":{"runs":[{"text":"ok","styles":[]}],"annotations":[]}}]}]}`)
	broken := []byte(`{"sections":[{"id":"s1","title":"Price","variant":"MAYBE","options":[]}]}`)

	var wg sync.WaitGroup
	results := make(chan []Issue, 16*20)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if (g+i)%2 == 0 {
					results <- l.Lint(clean)
				} else {
					results <- l.Lint(broken)
				}
			}
		}(g)
	}
	wg.Wait()
	close(results)

	var cleanRuns, brokenRuns int
	for issues := range results {
		if len(issues) == 0 {
			cleanRuns++
		} else {
			brokenRuns++
		}
	}
	assert.Equal(t, 160, cleanRuns)
	assert.Equal(t, 160, brokenRuns)
}

func TestLintInvalidTreeAfterSchema(t *testing.T) {
	raw := []byte(`{"sections":[
		{"id":"s1","title":"A","variant":"FIXED","options":[{"body":{"runs":[{"text":"x","styles":[]}],"annotations":[]}}]},
		{"id":"s1","title":"B","variant":"FIXED","options":[{"body":{"runs":[{"text":"x","styles":[]}],"annotations":[]}}]}
	]}`)
	assert.Equal(t, []string{CodeInvalidTree}, codes(newLinter(t).Lint(raw)))
}

func TestIssueString(t *testing.T) {
	assert.Equal(t, "s1/A: [empty-body] option A has no text", Issue{Path: "s1/A", Code: CodeEmptyBody, Message: "option A has no text"}.String())
	assert.Equal(t, "[syntax] bad", Issue{Code: CodeSyntax, Message: "bad"}.String())
}
