package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("template.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/template.html"))

// RenderTemplateHTML renders a standalone HTML page for the view.
func RenderTemplateHTML(view TemplateView) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
