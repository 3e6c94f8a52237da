package steps

import (
	"context"
	"fmt"
	"maps"

	"github.com/atlas-erp/atlas/workflow"
)

// Trigger passes the run input through unchanged after checking it against
// the node config:
//
//	required: ["order_id", "customer"]
//	schema:   {"order_id": "string", "amount": "number"}
//
// Schema types are string, number, boolean, object, and array.
type Trigger struct{}

func (Trigger) Execute(_ context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: trigger input must be an object", ErrInvalidInput)
	}

	required, err := configStrings(node.Config, "required")
	if err != nil {
		return nil, err
	}
	for _, key := range required {
		if _, ok := input[key]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", ErrInvalidInput, key)
		}
	}

	schema, err := configStringMap(node.Config, "schema")
	if err != nil {
		return nil, err
	}
	for key, want := range schema {
		v, ok := input[key]
		if !ok {
			continue
		}
		if got := typeOf(v); got != want {
			return nil, fmt.Errorf("%w: field %q is %s, want %s", ErrInvalidInput, key, got, want)
		}
	}

	return maps.Clone(input), nil
}

func typeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
