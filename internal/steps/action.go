package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/atlas-erp/atlas/workflow"
)

// ActionRequest is a rendered side-effecting call.
type ActionRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// ActionInvoker performs the call behind an action node.
type ActionInvoker interface {
	Invoke(ctx context.Context, req ActionRequest) (map[string]any, error)
}

// Action renders its request from the node config and merged input, then
// hands it to the configured invoker. Config:
//
//	method:  "POST" (default)
//	url:     "https://erp.local/orders/{{ .order_id }}"
//	headers: {"X-Tenant": "{{ .tenant }}"}
//	body:    "{\"id\": \"{{ .order_id }}\"}" or an object; defaults to the input
type Action struct {
	invoker ActionInvoker
}

// NewAction creates an action executor backed by invoker.
func NewAction(invoker ActionInvoker) *Action {
	return &Action{invoker: invoker}
}

func (a *Action) Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	if a.invoker == nil {
		return nil, fmt.Errorf("%w: no action invoker configured", ErrActionFailed)
	}

	req, err := buildActionRequest(node, input)
	if err != nil {
		return nil, err
	}

	return a.invoker.Invoke(ctx, req)
}

func buildActionRequest(node workflow.Node, input map[string]any) (ActionRequest, error) {
	method, err := configString(node.Config, "method")
	if err != nil {
		return ActionRequest{}, err
	}
	if method == "" {
		method = http.MethodPost
	}

	rawURL, err := configString(node.Config, "url")
	if err != nil {
		return ActionRequest{}, err
	}
	if rawURL == "" {
		return ActionRequest{}, fmt.Errorf("%w: url required", ErrInvalidConfig)
	}

	url, err := render(node.ID+".url", rawURL, input)
	if err != nil {
		return ActionRequest{}, err
	}

	headers, err := configStringMap(node.Config, "headers")
	if err != nil {
		return ActionRequest{}, err
	}
	rendered := make(map[string]string, len(headers))
	for k, v := range headers {
		if rendered[k], err = render(node.ID+".headers."+k, v, input); err != nil {
			return ActionRequest{}, err
		}
	}

	body, err := actionBody(node, input)
	if err != nil {
		return ActionRequest{}, err
	}

	return ActionRequest{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: rendered,
		Body:    body,
	}, nil
}

func actionBody(node workflow.Node, input map[string]any) (any, error) {
	switch body := node.Config["body"].(type) {
	case nil:
		return input, nil
	case string:
		text, err := render(node.ID+".body", body, input)
		if err != nil {
			return nil, err
		}
		var parsed any
		if json.Unmarshal([]byte(text), &parsed) == nil {
			return parsed, nil
		}
		return text, nil
	default:
		return body, nil
	}
}
