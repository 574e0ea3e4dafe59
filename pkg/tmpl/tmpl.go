// Package tmpl renders prompt templates for agent invocations.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// indent prefixes every line of s with n spaces. Useful for embedding
// multi-line documents inside a prompt section.
func indent(n int, s string) string {
	if s == "" {
		return s
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

var funcs = template.FuncMap{
	"join":    strings.Join,
	"indent":  indent,
	"trim":    strings.TrimSpace,
	"upper":   strings.ToUpper,
	"default": stringOrDefault,
}

func stringOrDefault(def, s string) string {
	if s != "" {
		return s
	}
	return def
}

// Render executes a Go template string with the given data. Referencing an
// undefined key is an error so prompt templates fail loudly instead of
// silently dropping sections.
//
// Available template functions:
//   - join: join a string slice with a separator
//   - indent: indent every line by n spaces
//   - trim: strip surrounding whitespace
//   - upper: uppercase
//   - default: substitute a fallback for an empty string (default "x" .Field)
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
