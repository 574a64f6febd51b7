// Package reply renders the assistant's user-visible text from named
// templates. Output is Markdown; identifiers are always masked.
package reply

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"

	"github.com/aretw0/carebot/pkg/redact"
)

//go:embed templates.tmpl
var builtin embed.FS

var funcs = template.FuncMap{
	"join": func(v any, sep string) string {
		switch t := v.(type) {
		case []string:
			return strings.Join(t, sep)
		case []any:
			parts := make([]string, len(t))
			for i, p := range t {
				parts[i] = fmt.Sprint(p)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(v)
		}
	},
	"mask": func(v any) string {
		if v == nil {
			return ""
		}
		return redact.Identifier(fmt.Sprint(v))
	},
}

// Formatter implements ports.Formatter.
type Formatter struct {
	tmpl *template.Template
}

// New parses the built-in templates.
func New() (*Formatter, error) {
	return NewFromFS(builtin, "templates.tmpl")
}

// NewFromFS parses templates from the given files, for deployments that
// override the wording.
func NewFromFS(fsys fs.FS, patterns ...string) (*Formatter, error) {
	t, err := template.New("reply").Funcs(funcs).Option("missingkey=zero").ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("parse reply templates: %w", err)
	}
	return &Formatter{tmpl: t}, nil
}

// Format renders the named template.
func (f *Formatter) Format(name string, data map[string]any) (string, error) {
	if f.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown reply template %q", name)
	}
	var buf bytes.Buffer
	if err := f.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Names lists the available templates.
func (f *Formatter) Names() []string {
	var out []string
	for _, t := range f.tmpl.Templates() {
		if t.Name() != "reply" && t.Name() != "templates.tmpl" {
			out = append(out, t.Name())
		}
	}
	sort.Strings(out)
	return out
}
