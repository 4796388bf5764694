package frontend

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates
var templateFS embed.FS

var funcs = template.FuncMap{
	"percent": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	"join":    strings.Join,
}

// LoadPageTemplate parses the embedded page template
func LoadPageTemplate() (*template.Template, error) {
	tmpl, err := template.New("page.html").Funcs(funcs).ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return tmpl, nil
}
