// Package lint checks serialised templates: structure against a CUE schema,
// then placeholder tokens and authoring mistakes against a token registry.
package lint

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/icons"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

const (
	CodeSyntax        = "syntax"
	CodeSchema        = "schema"
	CodeInvalidTree   = "invalid-tree"
	CodeUnknownToken  = "unknown-token"
	CodeEmptyTitle    = "empty-title"
	CodeEmptyBody     = "empty-body"
	CodeLonelyMutex   = "mutex-needs-suboptions"
	CodeDuplicateName = "duplicate-title"
)

// Severity says whether an issue makes a tree unusable.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding. Path is a dotted JSON path for schema issues and a
// node path for everything else.
type Issue struct {
	Path     string   `json:"path"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// severityOf classifies codes. Only trees that cannot be loaded are errors;
// authoring findings describe trees the editor itself produces.
func severityOf(code string) Severity {
	switch code {
	case CodeSyntax, CodeSchema, CodeInvalidTree:
		return SeverityError
	}
	return SeverityWarning
}

// Blocking reports whether the issue prevents the tree from being stored.
func (i Issue) Blocking() bool {
	return i.Severity == SeverityError
}

// Split separates blocking issues from warnings, keeping order.
func Split(issues []Issue) (errs, warnings []Issue) {
	for _, i := range issues {
		if i.Blocking() {
			errs = append(errs, i)
		} else {
			warnings = append(warnings, i)
		}
	}
	return errs, warnings
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", i.Path, i.Code, i.Message)
}

// Linter holds the compiled schema. Lint calls are serialised because the
// CUE runtime is not goroutine safe.
type Linter struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
	reg    document.TokenValidator
}

func New(reg document.TokenValidator) (*Linter, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource+iconDefinition(), cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile lint schema: %w", err)
	}
	return &Linter{ctx: ctx, schema: schema.LookupPath(cue.ParsePath("#Tree")), reg: reg}, nil
}

func iconDefinition() string {
	alts := []string{`""`}
	for _, ref := range icons.Refs() {
		alts = append(alts, strconv.Quote(string(ref)))
	}
	return "\n#Icon: " + strings.Join(alts, " | ") + "\n"
}

// Lint returns every issue found in raw, sorted by path then code. Semantic
// checks run only when the schema passes.
func (l *Linter) Lint(raw []byte) []Issue {
	issues := l.check(raw)
	for i := range issues {
		issues[i].Severity = severityOf(issues[i].Code)
	}
	sortIssues(issues)
	return issues
}

func (l *Linter) check(raw []byte) []Issue {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.ctx.CompileBytes(raw, cue.Filename("template.json"))
	if err := data.Err(); err != nil {
		return []Issue{{Code: CodeSyntax, Message: firstLine(err.Error())}}
	}
	if issues := l.schemaIssues(l.schema.Unify(data)); len(issues) > 0 {
		return issues
	}
	return l.treeIssues(raw)
}

func (l *Linter) schemaIssues(v cue.Value) []Issue {
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var issues []Issue
	seen := map[string]bool{}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{Path: strings.Join(e.Path(), "."), Code: CodeSchema, Message: fmt.Sprintf(format, args...)}
		if key := issue.String(); !seen[key] {
			seen[key] = true
			issues = append(issues, issue)
		}
	}
	return issues
}

func (l *Linter) treeIssues(raw []byte) []Issue {
	tree, err := contract.ParseTree(raw)
	if err != nil {
		return []Issue{{Code: CodeInvalidTree, Message: err.Error()}}
	}

	var issues []Issue
	add := func(path contract.NodePath, code, format string, args ...any) {
		issues = append(issues, Issue{Path: path.String(), Code: code, Message: fmt.Sprintf(format, args...)})
	}
	checkBody := func(path contract.NodePath, body document.Document) {
		if l.reg == nil {
			return
		}
		for _, name := range body.UnresolvedTokens(l.reg) {
			add(path, CodeUnknownToken, "placeholder [%s] is not in the token registry", name)
		}
	}

	titles := map[string]string{}
	for _, s := range tree.Sections() {
		sp := contract.SectionPath(s.ID)
		title := strings.TrimSpace(s.Title)
		if title == "" {
			add(sp, CodeEmptyTitle, "section has no title")
		} else if other, ok := titles[strings.ToLower(title)]; ok {
			add(sp, CodeDuplicateName, "title %q is also used by section %s", title, other)
		} else {
			titles[strings.ToLower(title)] = s.ID
		}
		for oi, o := range s.Options {
			op := contract.OptionPath(s.ID, oi)
			if o.Body.IsEmpty() {
				add(op, CodeEmptyBody, "option %s has no text", contract.DisplayLabel(oi))
			}
			checkBody(op, o.Body)
			if o.MutexSubOptions && len(o.SubOptions) < 2 {
				add(op, CodeLonelyMutex, "mutually exclusive sub-options need at least two, found %d", len(o.SubOptions))
			}
			for si, sub := range o.SubOptions {
				subp := contract.SubOptionPath(s.ID, oi, si)
				if sub.Body.IsEmpty() {
					add(subp, CodeEmptyBody, "sub-option %d has no text", si+1)
				}
				checkBody(subp, sub.Body)
			}
		}
	}
	return issues
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		if issues[i].Code != issues[j].Code {
			return issues[i].Code < issues[j].Code
		}
		return issues[i].Message < issues[j].Message
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
