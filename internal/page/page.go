package page

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/example/recipe-finder/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Data is what the upload page renders.
type Data struct {
	// Action is the form target for the upload.
	Action string
	State  view.State
	// Notice overrides State.Notice when set.
	Notice *view.Notice
}

// LoadingLabel is exposed to the template for the client-side submit hook.
func (Data) LoadingLabel() string {
	return view.LoadingLabel
}

// Render writes the upload page for state to w. The page is fully rendered
// into memory first so a template error never leaves a partial page.
func Render(w io.Writer, d Data) error {
	if d.Action == "" {
		d.Action = "/upload"
	}
	if d.Notice == nil {
		d.Notice = d.State.Notice
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "upload", d); err != nil {
		return fmt.Errorf("render upload page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
