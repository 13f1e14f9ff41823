// Package render wraps text/template behind a small renderer type so
// configured strings can be literals or templates interchangeably.
package render

import (
	"fmt"
	"strings"
	"text/template"
)

// Renderer produces a string from a variable map. It is either a literal,
// returned verbatim, or a compiled template.
type Renderer struct {
	literal string
	tmpl    *template.Template
}

// New compiles raw into a Renderer. Strings containing template actions
// ("{{") compile as templates, anything else stays a literal. Referencing
// a variable that is absent at render time is a render error.
func New(name, raw string) (*Renderer, error) {
	if !strings.Contains(raw, "{{") {
		return &Renderer{literal: raw}, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) IsTemplate() bool {
	return r.tmpl != nil
}

// Render executes the renderer against vars. Literals ignore vars.
func (r *Renderer) Render(vars map[string]any) (string, error) {
	if r.tmpl == nil {
		return r.literal, nil
	}
	var out strings.Builder
	err := r.tmpl.Execute(&out, vars)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// Variables builds the data map a value template sees: the extracted value
// under "value" plus the ambient variable map. Ambient keys never shadow
// "value".
func Variables(value string, ambient map[string]any) map[string]any {
	data := make(map[string]any, len(ambient)+1)
	for k, v := range ambient {
		data[k] = v
	}
	data["value"] = value
	return data
}

// MapRenderer renders a set of named values, such as request headers or
// query params, against a shared variable map.
type MapRenderer struct {
	fields map[string]*Renderer
}

// NewMap compiles every value of raw. A nil or empty map yields a renderer
// that renders to an empty map.
func NewMap(name string, raw map[string]string) (*MapRenderer, error) {
	fields := make(map[string]*Renderer, len(raw))
	for k, v := range raw {
		r, err := New(name+"."+k, v)
		if err != nil {
			return nil, err
		}
		fields[k] = r
	}
	return &MapRenderer{fields: fields}, nil
}

func (m *MapRenderer) Render(vars map[string]any) (map[string]string, error) {
	if len(m.fields) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m.fields))
	for k, r := range m.fields {
		v, err := r.Render(vars)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
