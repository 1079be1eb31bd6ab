package showcase

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/k3a/html2text"

	"github.com/tphakala/showcase/internal/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders pages with html/template, so every interpolated value is
// escaped for its context and unsafe URLs are neutralised.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("showcase").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.New(err).
			Component("showcase").
			Category(errors.CategoryRender).
			Context("operation", "parse_templates").
			Build()
	}
	return &Renderer{templates: tmpl}, nil
}

// MustNewRenderer is NewRenderer for package-level initialisation.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render writes the full HTML document for page.
func (r *Renderer) Render(w io.Writer, page *Page) error {
	return r.execute(w, "page", page)
}

// RenderCard writes a single card fragment.
func (r *Renderer) RenderCard(w io.Writer, card *Card) error {
	return r.execute(w, "card", card)
}

// RenderText writes a plain-text rendition of page.
func (r *Renderer) RenderText(w io.Writer, page *Page) error {
	var buf bytes.Buffer
	if err := r.Render(&buf, page); err != nil {
		return err
	}
	if _, err := io.WriteString(w, html2text.HTML2Text(buf.String())+"\n"); err != nil {
		return errors.New(err).
			Component("showcase").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

// FallbackHTML returns the panel that replaces a frame that failed to load.
func (r *Renderer) FallbackHTML(url string) (string, error) {
	var buf bytes.Buffer
	if err := r.execute(&buf, "fallback", url); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute renders the named template; it lets the web server use the
// renderer as its template engine.
func (r *Renderer) Execute(w io.Writer, name string, data any) error {
	return r.execute(w, name, data)
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	if err := r.templates.ExecuteTemplate(w, name, data); err != nil {
		return errors.New(err).
			Component("showcase").
			Category(errors.CategoryRender).
			Context("template", name).
			Build()
	}
	return nil
}
