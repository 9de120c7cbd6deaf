// Package render produces plain-text reports from templates embedded at
// build time, such as the audit export summary shipped inside each archive.
package render

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine renders the embedded report templates by name.
type Engine struct {
	templates *template.Template
}

// New parses every embedded template once, failing fast on a broken one.
func New() (*Engine, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with data.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", fmt.Errorf("renderer not initialised")
	}

	tmpl := e.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
