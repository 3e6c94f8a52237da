package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPActions invokes actions as outbound HTTP calls.
type HTTPActions struct {
	client *resty.Client
}

// NewHTTPActions creates an action invoker with the given per-call timeout.
func NewHTTPActions(timeout time.Duration) *HTTPActions {
	return &HTTPActions{
		client: resty.New().SetTimeout(timeout),
	}
}

// Invoke sends req. JSON object responses become the output directly; any
// other body is wrapped as {"status": code, "body": ...}.
func (h *HTTPActions) Invoke(ctx context.Context, req ActionRequest) (map[string]any, error) {
	r := h.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrActionFailed, req.Method, req.URL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf(
			"%w: %s %s returned %d: %s",
			ErrActionFailed, req.Method, req.URL,
			resp.StatusCode(), strings.TrimSpace(string(resp.Body())),
		)
	}

	body := resp.Body()

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
		return obj, nil
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		value = string(body)
	}

	return map[string]any{
		"status": resp.StatusCode(),
		"body":   value,
	}, nil
}

// KnowledgeClient queries a knowledge graph service over HTTP.
type KnowledgeClient struct {
	client *resty.Client
}

// NewKnowledgeClient creates a client for the service at baseURL.
func NewKnowledgeClient(baseURL string, timeout time.Duration) *KnowledgeClient {
	return &KnowledgeClient{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(timeout),
	}
}

// Query posts q to /query and decodes {"nodes": [...]}.
func (k *KnowledgeClient) Query(ctx context.Context, q GraphQuery) ([]GraphNode, error) {
	var result struct {
		Nodes []GraphNode `json:"nodes"`
	}

	resp, err := k.client.R().
		SetContext(ctx).
		SetBody(q).
		SetResult(&result).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrQueryFailed, resp.StatusCode())
	}

	return result.Nodes, nil
}
