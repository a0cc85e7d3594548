// Package web renders the server-side HTML views for the application.
//
// Each page template defines a "content" block that is composed with the
// shared base layout at startup. Handlers pass a [PageData] with the shared
// navigation state plus a page-specific Data payload.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/setplaylist/setplaylist/internal/formatter"
	"github.com/setplaylist/setplaylist/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the envelope passed to every template.
type PageData struct {
	Title string
	User  *models.User
	Flash string
	Data  any
}

// Renderer executes page templates composed with the base layout.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses all embedded templates. Every page is composed with the
// base layout so navigation and flash messages render consistently.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"formatName":     formatter.FormatName,
		"unformatName":   formatter.UnformatName,
		"setlistDisplay": formatter.FormatSetlistDisplay,
		"duration":       formatter.FormatDuration,
	}

	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, entry := range entries {
		name := entry.Name()
		if name == "base.html" {
			continue
		}

		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Render executes the named page template into a buffer before writing, so a
// template failure never produces a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown template: %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// ErrorData is the payload for the error page.
type ErrorData struct {
	Status  int
	Message string
}

// RenderError renders the shared error page for the given status code.
func (r *Renderer) RenderError(w http.ResponseWriter, status int, message string) error {
	return r.Render(w, status, "error.html", PageData{
		Title: http.StatusText(status),
		Data:  ErrorData{Status: status, Message: message},
	})
}
