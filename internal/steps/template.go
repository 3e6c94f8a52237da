package steps

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// funcs is the hermetic sprig set: no environment, clock, or randomness.
var funcs = sprig.HermeticTxtFuncMap()

// render executes text as a Go template over data. Missing keys fail the
// render instead of producing "<no value>".
func render(name, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.
		New(name).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: parse template %s: %w", ErrInvalidConfig, name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
