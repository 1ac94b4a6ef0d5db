package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/export"
	"clausebook/api/internal/lint"
	"clausebook/api/internal/util"

	"github.com/spf13/cobra"
)

func newTokensCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List the placeholder tokens templates may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reg.ListTokens())
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tGROUP\tLABEL")
			for _, tok := range reg.ListTokens() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tok.Name, tok.Group, tok.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")
	return cmd
}

func newLintCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lint <template.json>",
		Short: "Check a serialised template for schema and authoring problems",
		Long: `Check a serialised template against the template schema, then for
unknown placeholder tokens and common authoring mistakes.

Exits non-zero when the template cannot be loaded. Authoring findings are
printed as warnings. Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0])
			if err != nil {
				return err
			}
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			linter, err := lint.New(reg)
			if err != nil {
				return err
			}
			issues := linter.Lint(raw)
			out := cmd.OutOrStdout()
			if asJSON {
				if issues == nil {
					issues = []lint.Issue{}
				}
				if err := json.NewEncoder(out).Encode(issues); err != nil {
					return err
				}
			} else {
				for _, issue := range issues {
					fmt.Fprintln(out, issue.String())
				}
			}
			if errs, _ := lint.Split(issues); len(errs) > 0 {
				return fmt.Errorf("%s: %d blocking issue(s)", args[0], len(errs))
			}
			util.Log.WithField("file", args[0]).Info("template is clean")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print issues as JSON")
	return cmd
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "render <template.json>",
		Short: "Render a serialised template as an HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := loadTemplate(args[0], name)
			if err != nil {
				return err
			}
			html, err := export.RenderTemplateHTML(export.BuildView(tpl))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), html)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template name shown in the heading (default is the file name)")
	return cmd
}

func newImportMarkdownCmd(opts *rootOptions) *cobra.Command {
	var (
		title string
		into  string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "import-md <clause.md>",
		Short: "Turn a Markdown clause into a FIXED template section",
		Long: `Parse a Markdown clause and append it as a FIXED section.

Bracketed names the token catalogue knows, such as [BuyerName], become
placeholders. The resulting template is written as JSON to stdout or --out.
With --into the section is appended to an existing template.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			src, err := readInput(args[0])
			if err != nil {
				return err
			}
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			body, err := document.FromMarkdown(src, reg)
			if err != nil {
				return err
			}
			if unknown := body.UnresolvedTokens(reg); len(unknown) > 0 {
				util.Log.WithField("tokens", unknown).Warn("clause uses tokens outside the catalogue")
			}

			tree := contract.NewTree()
			if into != "" {
				raw, err := readInput(into)
				if err != nil {
					return err
				}
				if tree, err = contract.ParseTree(raw); err != nil {
					return fmt.Errorf("%s: %w", into, err)
				}
			}
			sec, err := tree.AddSection(title, contract.VariantFixed)
			if err != nil {
				return err
			}
			if err := tree.CommitNodeEdit(contract.OptionPath(sec.ID, 0), body, body.ToHTML(), contract.NodeMetadata{}); err != nil {
				return err
			}
			raw, err := tree.MarshalTree()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			}
			return os.WriteFile(out, raw, 0o644)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "section title (default is the file name)")
	cmd.Flags().StringVar(&into, "into", "", "existing template to append the section to")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the template here instead of stdout")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		name   string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <template.json>",
		Short: "Export a serialised template as HTML, PDF or DOCX",
		Long: `Export a serialised template.

PDF export drives a headless Chrome; set chrome_path in the config file or
CLAUSECTL_CHROME_PATH when it is not on PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			tpl, err := loadTemplate(args[0], name)
			if err != nil {
				return err
			}
			result, err := export.NewService(nil, opts.chromePath()).Render(cmd.Context(), tpl, f)
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return err
			}
			util.Log.WithField("file", out).WithField("bytes", len(result.Data)).Info("exported")
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatDOCX), "output format: html, pdf or docx")
	cmd.Flags().StringVar(&name, "name", "", "template name (default is the file name)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default derives from the template name)")
	return cmd
}

func loadTemplate(path, name string) (export.Template, error) {
	raw, err := readInput(path)
	if err != nil {
		return export.Template{}, err
	}
	tree, err := contract.ParseTree(raw)
	if err != nil {
		return export.Template{}, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	version := tree.Fingerprint()
	if len(version) > 12 {
		version = version[:12]
	}
	return export.Template{
		ID:      name,
		Name:    name,
		Version: version,
		Tree:    tree,
	}, nil
}
