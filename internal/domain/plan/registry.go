package plan

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/target/runboard/internal/errors"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry holds the plans available to the runner, keyed by name.
type Registry struct {
	plans map[string]*Plan
}

// Builtin returns a registry with the plans shipped in the binary.
func Builtin() (*Registry, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin plans: %w", err)
	}
	r := &Registry{plans: make(map[string]*Plan, len(entries))}
	for _, e := range entries {
		data, readErr := builtinFS.ReadFile("builtin/" + e.Name())
		if readErr != nil {
			return nil, fmt.Errorf("read builtin plan %s: %w", e.Name(), readErr)
		}
		p, parseErr := Parse(data)
		if parseErr != nil {
			return nil, fmt.Errorf("builtin plan %s: %w", e.Name(), parseErr)
		}
		r.plans[p.Name] = p
	}
	return r, nil
}

// MustBuiltin is like Builtin but panics on error.
func MustBuiltin() *Registry {
	r, err := Builtin()
	if err != nil {
		panic(err)
	}
	return r
}

// LoadDir adds every *.yaml / *.yml plan in dir, replacing built-in plans of the same name.
// An empty dir is a no-op.
func (r *Registry) LoadDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read plan dir %s: %w", dir, err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, loadErr := Load(filepath.Join(dir, e.Name()))
		if loadErr != nil {
			return loadErr
		}
		r.plans[p.Name] = p
	}
	return nil
}

// Add registers p, replacing any plan of the same name.
func (r *Registry) Add(p *Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.plans[p.Name] = p
	return nil
}

// Get returns the named plan or a NotFound error.
func (r *Registry) Get(name string) (*Plan, error) {
	p, ok := r.plans[name]
	if !ok {
		return nil, apperrors.NotFoundf("plan %q not found", name)
	}
	return p, nil
}

// Names returns the registered plan names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.plans))
	for name := range r.plans {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
