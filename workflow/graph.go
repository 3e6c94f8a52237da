package workflow

import (
	"fmt"
	"slices"
)

// Plan is the validated, level-ordered form of a definition. Levels hold
// node ids whose predecessors all sit in earlier levels; ids within a level
// keep declaration order.
type Plan struct {
	Levels [][]string

	nodes  map[string]Node
	order  map[string]int
	preds  map[string][]string
	succs  map[string][]string
	roots  []string
	leaves []string
}

// Validate reports whether def can be executed. All failures wrap
// ErrDefinitionInvalid.
func Validate(def *Definition) error {
	_, err := Compile(def)
	return err
}

// Compile validates def and computes its execution levels with Kahn's
// algorithm. Cycles, duplicate ids, unknown kinds, dangling connections,
// and empty definitions are rejected.
func Compile(def *Definition) (*Plan, error) {
	if def == nil || len(def.Nodes) == 0 {
		return nil, fmt.Errorf("%w: definition has no nodes", ErrDefinitionInvalid)
	}

	if r := def.Config.Retry; r != nil {
		if r.MaximumAttempts < 0 {
			return nil, fmt.Errorf("%w: retry maximum_attempts must not be negative", ErrDefinitionInvalid)
		}
		if r.BackoffCoefficient != 0 && r.BackoffCoefficient < 1 {
			return nil, fmt.Errorf("%w: retry backoff_coefficient must be at least 1", ErrDefinitionInvalid)
		}
		if _, _, err := r.Intervals(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDefinitionInvalid, err)
		}
	}

	p := &Plan{
		nodes: make(map[string]Node, len(def.Nodes)),
		order: make(map[string]int, len(def.Nodes)),
		preds: make(map[string][]string),
		succs: make(map[string][]string),
	}

	for i, n := range def.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrDefinitionInvalid, i)
		}
		if _, dup := p.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrDefinitionInvalid, n.ID)
		}
		if !n.Kind.Valid() {
			return nil, fmt.Errorf("%w: node %q has unknown kind %q", ErrDefinitionInvalid, n.ID, n.Kind)
		}
		p.nodes[n.ID] = n
		p.order[n.ID] = i
	}

	indegree := make(map[string]int, len(def.Nodes))
	for _, c := range def.Connections {
		if _, ok := p.nodes[c.Source]; !ok {
			return nil, fmt.Errorf("%w: connection source %q does not exist", ErrDefinitionInvalid, c.Source)
		}
		if _, ok := p.nodes[c.Target]; !ok {
			return nil, fmt.Errorf("%w: connection target %q does not exist", ErrDefinitionInvalid, c.Target)
		}
		p.preds[c.Target] = append(p.preds[c.Target], c.Source)
		p.succs[c.Source] = append(p.succs[c.Source], c.Target)
		indegree[c.Target]++
	}

	var level []string
	for _, n := range def.Nodes {
		if indegree[n.ID] == 0 {
			level = append(level, n.ID)
			p.roots = append(p.roots, n.ID)
		}
		if len(p.succs[n.ID]) == 0 {
			p.leaves = append(p.leaves, n.ID)
		}
	}

	visited := 0
	for len(level) > 0 {
		p.Levels = append(p.Levels, level)
		visited += len(level)

		var next []string
		for _, id := range level {
			for _, succ := range p.succs[id] {
				indegree[succ]--
				if indegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		slices.SortFunc(next, func(a, b string) int {
			return p.order[a] - p.order[b]
		})
		level = next
	}

	if visited != len(def.Nodes) {
		return nil, fmt.Errorf("%w: cycle detected among %v", ErrDefinitionInvalid, p.cyclic(indegree))
	}

	return p, nil
}

// Node returns the node with the given id.
func (p *Plan) Node(id string) Node {
	return p.nodes[id]
}

// Size returns the number of nodes in the plan.
func (p *Plan) Size() int {
	return len(p.nodes)
}

// Roots returns the nodes without incoming connections.
func (p *Plan) Roots() []string {
	return p.roots
}

// Terminals returns the nodes without outgoing connections.
func (p *Plan) Terminals() []string {
	return p.leaves
}

// Predecessors returns the sources of connections into id, in connection order.
func (p *Plan) Predecessors(id string) []string {
	return p.preds[id]
}

// IsRoot reports whether id has no incoming connections.
func (p *Plan) IsRoot(id string) bool {
	return len(p.preds[id]) == 0
}

func (p *Plan) cyclic(indegree map[string]int) []string {
	var ids []string
	for id, deg := range indegree {
		if deg > 0 {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		return p.order[a] - p.order[b]
	})
	return ids
}
