package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/atlas-erp/atlas/workflow"
)

// Transformation reshapes its merged input without side effects. Config:
//
//	passthrough: true                       copy the input first
//	select:      {"customer": "order.customer.name"}   gjson paths
//	template:    {"summary": "{{ .order.id | upper }}"} sprig templates
//	json:        true                       parse rendered templates as JSON
//
// Template keys are applied after select keys.
type Transformation struct{}

func (Transformation) Execute(_ context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	selects, err := configStringMap(node.Config, "select")
	if err != nil {
		return nil, err
	}
	templates, err := configStringMap(node.Config, "template")
	if err != nil {
		return nil, err
	}

	passthrough := configBool(node.Config, "passthrough")
	if len(selects) == 0 && len(templates) == 0 && !passthrough {
		return nil, fmt.Errorf("%w: transformation needs select, template, or passthrough", ErrInvalidConfig)
	}

	out := make(map[string]any)
	if passthrough {
		maps.Copy(out, input)
	}

	if len(selects) > 0 {
		doc, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		for key, path := range selects {
			res := gjson.GetBytes(doc, path)
			if !res.Exists() {
				out[key] = nil
				continue
			}
			out[key] = res.Value()
		}
	}

	asJSON := configBool(node.Config, "json")
	for _, key := range slices.Sorted(maps.Keys(templates)) {
		text, err := render(node.ID+"."+key, templates[key], input)
		if err != nil {
			return nil, err
		}
		if !asJSON {
			out[key] = text
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("template %s: rendered value is not JSON: %w", key, err)
		}
		out[key] = parsed
	}

	return out, nil
}
