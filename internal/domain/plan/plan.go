// Package plan describes the ordered step plans the job runner executes. Plans are YAML
// documents; each step is one of a closed set of kinds so the runner can match them
// exhaustively.
package plan

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// StepKind discriminates the step variants a plan may contain.
type StepKind string

const (
	// KindNote records progress without calling the automation collaborator.
	KindNote StepKind = "note"
	// KindLogin signs into the portal with a freshly issued one-time password.
	KindLogin StepKind = "login"
	// KindNavigate opens a page or report inside the portal.
	KindNavigate StepKind = "navigate"
	// KindApplyDateFilter narrows the current report to a date range.
	KindApplyDateFilter StepKind = "apply_date_filter"
	// KindDownloadDocument saves the current report as a document.
	KindDownloadDocument StepKind = "download_document"
	// KindEditCells changes spreadsheet cells in the portal.
	KindEditCells StepKind = "edit_cells"
	// KindExportTable exports tabular data from the portal.
	KindExportTable StepKind = "export_table"
)

// AllKinds lists every step kind.
func AllKinds() []StepKind {
	return []StepKind{
		KindNote, KindLogin, KindNavigate, KindApplyDateFilter,
		KindDownloadDocument, KindEditCells, KindExportTable,
	}
}

// Valid returns true if the kind is known.
func (k StepKind) Valid() bool {
	switch k {
	case KindNote, KindLogin, KindNavigate, KindApplyDateFilter,
		KindDownloadDocument, KindEditCells, KindExportTable:
		return true
	default:
		return false
	}
}

// External reports whether the step is performed by the automation collaborator.
func (k StepKind) External() bool {
	return k.Valid() && k != KindNote
}

// NeedsCredential reports whether the step must wait for a fresh one-time password first.
func (k StepKind) NeedsCredential() bool {
	return k == KindLogin
}

// Param is an input a plan needs before it can run.
type Param struct {
	Name     string `yaml:"name"`
	Prompt   string `yaml:"prompt,omitempty"`
	Default  string `yaml:"default,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// Step is one planned unit of work.
type Step struct {
	Kind StepKind `yaml:"kind"`
	// Title is the provisional title recorded while the step is processing.
	Title string `yaml:"title"`
	// SuccessTitle replaces Title once the step succeeds. Empty keeps Title.
	SuccessTitle string            `yaml:"success_title,omitempty"`
	Args         map[string]string `yaml:"args,omitempty"`
	Description  []string          `yaml:"description,omitempty"`
	// Timeout overrides the runner's per-action timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Plan is an ordered list of steps plus the metadata used to create jobs from it.
type Plan struct {
	Name        string            `yaml:"name"`
	Team        string            `yaml:"team,omitempty"`
	Label       string            `yaml:"label"`
	Description string            `yaml:"description,omitempty"`
	KeyDetails  map[string]string `yaml:"key_details,omitempty"`
	Params      []Param           `yaml:"params,omitempty"`
	Steps       []Step            `yaml:"steps"`
}

// Parse decodes and validates a YAML plan.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the plan's structure and that every template in it parses.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plan name is required")
	}
	if strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("plan %s: label is required", p.Name)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s: at least one step is required", p.Name)
	}
	seen := make(map[string]struct{}, len(p.Params))
	for i, prm := range p.Params {
		if strings.TrimSpace(prm.Name) == "" {
			return fmt.Errorf("plan %s: param %d has no name", p.Name, i)
		}
		if _, dup := seen[prm.Name]; dup {
			return fmt.Errorf("plan %s: duplicate param %q", p.Name, prm.Name)
		}
		seen[prm.Name] = struct{}{}
	}
	for i, s := range p.Steps {
		if !s.Kind.Valid() {
			return fmt.Errorf("plan %s: step %d has unknown kind %q", p.Name, i, s.Kind)
		}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("plan %s: step %d has no title", p.Name, i)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("plan %s: step %d has a negative timeout", p.Name, i)
		}
	}
	// Render with placeholder values to surface template syntax errors early.
	probe := make(map[string]string, len(p.Params))
	for _, prm := range p.Params {
		probe[prm.Name] = prm.Name
	}
	if _, err := p.Render(probe, time.Time{}); err != nil {
		return err
	}
	return nil
}

// ResolveParams applies defaults and checks that every required param is present.
func (p *Plan) ResolveParams(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(p.Params)+len(in))
	for k, v := range in {
		out[k] = v
	}
	var missing []string
	for _, prm := range p.Params {
		if strings.TrimSpace(out[prm.Name]) != "" {
			continue
		}
		if prm.Default != "" {
			out[prm.Name] = prm.Default
			continue
		}
		if prm.Required {
			missing = append(missing, prm.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("plan %s: missing required params: %s", p.Name, strings.Join(missing, ", "))
	}
	return out, nil
}

// Render returns a copy of the plan with every text field expanded against params.
// Templates use text/template syntax, e.g. "{{.start}}"; "{{today}}" expands to now's date.
func (p *Plan) Render(params map[string]string, now time.Time) (*Plan, error) {
	r := renderer{params: params, now: now}
	out := &Plan{
		Name:        p.Name,
		Team:        p.Team,
		Label:       r.text("label", p.Label),
		Description: r.text("description", p.Description),
		KeyDetails:  r.textMap("key_details", p.KeyDetails),
		Params:      append([]Param(nil), p.Params...),
		Steps:       make([]Step, len(p.Steps)),
	}
	for i, s := range p.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		out.Steps[i] = Step{
			Kind:         s.Kind,
			Title:        r.text(field+".title", s.Title),
			SuccessTitle: r.text(field+".success_title", s.SuccessTitle),
			Args:         r.textMap(field+".args", s.Args),
			Description:  r.textSlice(field+".description", s.Description),
			Timeout:      s.Timeout,
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.Name, r.err)
	}
	return out, nil
}

type renderer struct {
	params map[string]string
	now    time.Time
	err    error
}

func (r *renderer) text(field, src string) string {
	if r.err != nil || !strings.Contains(src, "{{") {
		return src
	}
	tmpl, err := template.New(field).
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"today": func() string { return r.now.Format(time.DateOnly) },
		}).
		Parse(src)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", field, err)
		return src
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.params); err != nil {
		r.err = fmt.Errorf("%s: %w", field, err)
		return src
	}
	return buf.String()
}

func (r *renderer) textMap(field string, src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = r.text(field+"."+k, v)
	}
	return out
}

func (r *renderer) textSlice(field string, src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	for i, v := range src {
		out[i] = r.text(fmt.Sprintf("%s[%d]", field, i), v)
	}
	return out
}
