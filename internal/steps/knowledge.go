package steps

import (
	"context"
	"fmt"

	"github.com/atlas-erp/atlas/workflow"
)

const defaultQueryLimit = 10

// GraphQuery is a lookup against the knowledge graph.
type GraphQuery struct {
	Type  string `json:"type,omitempty"`
	Text  string `json:"text,omitempty"`
	Limit int    `json:"limit"`
}

// GraphNode is a knowledge graph entity returned by a query.
type GraphNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// KnowledgeGraph answers knowledge queries.
type KnowledgeGraph interface {
	Query(ctx context.Context, q GraphQuery) ([]GraphNode, error)
}

// KnowledgeQuery looks up graph entities. Config:
//
//	type:  "Supplier"
//	text:  "{{ .supplier_name }}"
//	limit: 10
//
// Output is {"nodes": [...], "count": n}.
type KnowledgeQuery struct {
	graph KnowledgeGraph
}

// NewKnowledgeQuery creates a knowledge query executor backed by graph.
func NewKnowledgeQuery(graph KnowledgeGraph) *KnowledgeQuery {
	return &KnowledgeQuery{graph: graph}
}

func (k *KnowledgeQuery) Execute(ctx context.Context, node workflow.Node, input map[string]any) (map[string]any, error) {
	if k.graph == nil {
		return nil, fmt.Errorf("%w: no knowledge graph configured", ErrQueryFailed)
	}

	q, err := buildGraphQuery(node, input)
	if err != nil {
		return nil, err
	}

	nodes, err := k.graph.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	list, err := normalize(nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if list == nil {
		list = []any{}
	}

	return map[string]any{
		"nodes": list,
		"count": len(nodes),
	}, nil
}

func buildGraphQuery(node workflow.Node, input map[string]any) (GraphQuery, error) {
	typ, err := configString(node.Config, "type")
	if err != nil {
		return GraphQuery{}, err
	}

	text, err := configString(node.Config, "text")
	if err != nil {
		return GraphQuery{}, err
	}
	if text, err = render(node.ID+".text", text, input); err != nil {
		return GraphQuery{}, err
	}

	limit, err := configInt(node.Config, "limit", defaultQueryLimit)
	if err != nil {
		return GraphQuery{}, err
	}
	if limit <= 0 {
		return GraphQuery{}, fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}

	return GraphQuery{Type: typ, Text: text, Limit: limit}, nil
}
