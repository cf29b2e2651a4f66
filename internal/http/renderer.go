package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/runboard/internal/domain/model"
)

// templatePatterns are the globs parsed from the template filesystem, layout first.
var templatePatterns = []string{"*.tmpl", "pages/*.tmpl", "partials/*.tmpl"}

// TemplateRenderer executes the dashboard's html/templates into buffered responses.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS // required
	Logger     *slog.Logger
}

// PageData is the root value of every full-page render.
type PageData struct {
	Title       string
	CurrentPage string
	// Content names the template rendered inside the layout.
	Content string
	Data    any
}

// NewTemplateRenderer parses every template under cfg.TemplateFS.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	r := &TemplateRenderer{logger: cfg.Logger}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "templates")

	t, err := template.New("root").Funcs(r.funcs()).ParseFS(cfg.TemplateFS, templatePatterns...)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.t = t
	return r, nil
}

// RenderFull renders the layout with data.Content as its body.
func (r *TemplateRenderer) RenderFull(w http.ResponseWriter, data PageData) error {
	return r.Render(w, "layout", data)
}

// Render executes the named template and writes it as HTML. Nothing is written when execution
// fails, so the caller can still send an error response.
func (r *TemplateRenderer) Render(w http.ResponseWriter, name string, data any) error {
	buf, err := r.execute(name, data)
	if err != nil {
		r.logger.Error("render template", "template", name, "error", err)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

func (r *TemplateRenderer) execute(name string, data any) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := r.t.ExecuteTemplate(buf, name, data); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *TemplateRenderer) funcs() template.FuncMap {
	return template.FuncMap{
		// include renders a template chosen at runtime (the layout's page content).
		"include": func(name string, data any) (template.HTML, error) {
			buf, err := r.execute(name, data)
			if err != nil {
				return "", err
			}
			//nolint:gosec // output of our own html/template execution
			return template.HTML(buf.String()), nil
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
		"isoTime": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
		"stepClass": func(s model.StepStatus) string {
			return "step--" + string(s)
		},
		"jobClass": func(s model.JobStatus) string {
			return "job--" + strings.ReplaceAll(string(s), "_", "-")
		},
		"statusLabel": func(s model.JobStatus) string {
			return s.DisplayName()
		},
		"artifactIcon": func(k model.ArtifactKind) string {
			return k.Icon()
		},
		"seconds": func(d time.Duration) string {
			return fmt.Sprintf("%ds", int(d.Seconds()))
		},
	}
}
