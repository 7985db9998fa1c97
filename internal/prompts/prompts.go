// Package prompts holds the stage prompt templates. Templates are data: the
// built-in set is embedded and a directory can override any of them without a
// rebuild.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml styles/*.md
var builtinFS embed.FS

// Styles are the house style guides, loaded once per process and passed to
// stages explicitly through the prompt bag.
type Styles struct {
	Shared   string
	LinkedIn string
	X        string
}

type file struct {
	Version   int                 `yaml:"version"`
	Templates map[string]entryDef `yaml:"templates"`
}

type entryDef struct {
	MaxTokens int    `yaml:"max_tokens"`
	Text      string `yaml:"text"`
}

type entry struct {
	tmpl      *template.Template
	maxTokens int
}

// Registry maps stage names to parsed templates.
type Registry struct {
	entries map[string]entry
	styles  Styles
}

// ErrUnknownTemplate is returned when no template is registered under a name.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// Load builds the registry from the embedded defaults, then applies overrides
// from dir/prompts.yaml and dir/styles/*.md when dir is set.
func Load(dir string) (*Registry, error) {
	data, err := builtinFS.ReadFile("prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading builtin prompts: %w", err)
	}
	styles := Styles{
		Shared:   readBuiltin("styles/style_shared.md"),
		LinkedIn: readBuiltin("styles/style_li.md"),
		X:        readBuiltin("styles/style_x.md"),
	}

	reg, err := Parse(data, styles)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return reg, nil
	}

	override := filepath.Join(dir, "prompts.yaml")
	if b, err := os.ReadFile(override); err == nil {
		extra, err := Parse(b, styles)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", override, err)
		}
		for name, e := range extra.entries {
			reg.entries[name] = e
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", override, err)
	}

	for name, dst := range map[string]*string{
		"style_shared.md": &reg.styles.Shared,
		"style_li.md":     &reg.styles.LinkedIn,
		"style_x.md":      &reg.styles.X,
	} {
		if b, err := os.ReadFile(filepath.Join(dir, "styles", name)); err == nil {
			*dst = string(b)
		}
	}
	return reg, nil
}

// Parse reads a prompts.yaml document.
func Parse(data []byte, styles Styles) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing prompts: %w", err)
	}
	reg := &Registry{entries: make(map[string]entry, len(f.Templates)), styles: styles}
	for name, def := range f.Templates {
		if strings.TrimSpace(def.Text) == "" {
			return nil, fmt.Errorf("prompt %q has no text", name)
		}
		tmpl, err := template.New(name).
			Option("missingkey=error").
			Funcs(template.FuncMap{"delimit": Delimit, "join": strings.Join}).
			Parse(def.Text)
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %q: %w", name, err)
		}
		reg.entries[name] = entry{tmpl: tmpl, maxTokens: def.MaxTokens}
	}
	return reg, nil
}

// Render executes the named template against data.
func (r *Registry) Render(name string, data map[string]any) (string, error) {
	e, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// MaxTokens is the template's configured output budget, 0 when unset.
func (r *Registry) MaxTokens(name string) int {
	return r.entries[name].maxTokens
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names lists registered templates in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Styles returns the loaded style guides.
func (r *Registry) Styles() Styles {
	return r.styles
}

// Delimit fences free text so the model cannot read it as instructions.
// Marker lines inside the content are removed.
func Delimit(label, content string) string {
	begin := "<<<BEGIN " + label + ">>>"
	end := "<<<END " + label + ">>>"
	content = strings.ReplaceAll(content, begin, "")
	content = strings.ReplaceAll(content, end, "")
	return begin + "\n" + strings.TrimSpace(content) + "\n" + end
}

func readBuiltin(name string) string {
	b, err := builtinFS.ReadFile(name)
	if err != nil {
		return ""
	}
	return string(b)
}
