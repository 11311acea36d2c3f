// Package web provides the HTML pages of the authentication sample: the
// sign-in variants, the re-auth prompt, and the signed-in home page.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var pageFS embed.FS

// Pages renders the embedded HTML pages. Every page is a standalone
// file under templates/, addressed by its base name.
type Pages struct {
	set *template.Template
}

// NewPages parses the embedded page files.
func NewPages() (*Pages, error) {
	set, err := template.ParseFS(pageFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse pages: %w", err)
	}
	return &Pages{set: set}, nil
}

// Render writes the named page with data. Output is buffered so a
// failure mid-render leaves the response untouched instead of emitting
// half a page with a 200 status.
func (p *Pages) Render(w http.ResponseWriter, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := p.set.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render page %q: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}
