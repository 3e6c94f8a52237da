package workflow_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/atlas-erp/atlas/workflow"
)

func node(id string, kind workflow.Kind) workflow.Node {
	return workflow.Node{ID: id, Kind: kind, Name: id}
}

func edge(source, target string) workflow.Connection {
	return workflow.Connection{Source: source, Target: target}
}

func TestCompileRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  *workflow.Definition
	}{
		{
			name: "nil definition",
			def:  nil,
		},
		{
			name: "no nodes",
			def:  &workflow.Definition{},
		},
		{
			name: "missing node id",
			def: &workflow.Definition{
				Nodes: []workflow.Node{node("", workflow.KindTrigger)},
			},
		},
		{
			name: "duplicate node id",
			def: &workflow.Definition{
				Nodes: []workflow.Node{
					node("a", workflow.KindTrigger),
					node("a", workflow.KindAction),
				},
			},
		},
		{
			name: "unknown kind",
			def: &workflow.Definition{
				Nodes: []workflow.Node{node("a", "webhook")},
			},
		},
		{
			name: "dangling source",
			def: &workflow.Definition{
				Nodes:       []workflow.Node{node("a", workflow.KindTrigger)},
				Connections: []workflow.Connection{edge("ghost", "a")},
			},
		},
		{
			name: "dangling target",
			def: &workflow.Definition{
				Nodes:       []workflow.Node{node("a", workflow.KindTrigger)},
				Connections: []workflow.Connection{edge("a", "ghost")},
			},
		},
		{
			name: "two node cycle",
			def: &workflow.Definition{
				Nodes: []workflow.Node{
					node("a", workflow.KindAction),
					node("b", workflow.KindAction),
				},
				Connections: []workflow.Connection{edge("a", "b"), edge("b", "a")},
			},
		},
		{
			name: "self loop",
			def: &workflow.Definition{
				Nodes:       []workflow.Node{node("a", workflow.KindAction)},
				Connections: []workflow.Connection{edge("a", "a")},
			},
		},
		{
			name: "cycle behind a root",
			def: &workflow.Definition{
				Nodes: []workflow.Node{
					node("t", workflow.KindTrigger),
					node("a", workflow.KindAction),
					node("b", workflow.KindTransformation),
				},
				Connections: []workflow.Connection{
					edge("t", "a"),
					edge("a", "b"),
					edge("b", "a"),
				},
			},
		},
		{
			name: "unparseable retry interval",
			def: &workflow.Definition{
				Nodes:  []workflow.Node{node("t", workflow.KindTrigger)},
				Config: workflow.Config{Retry: &workflow.RetryConfig{InitialInterval: "soon"}},
			},
		},
		{
			name: "negative retry interval",
			def: &workflow.Definition{
				Nodes:  []workflow.Node{node("t", workflow.KindTrigger)},
				Config: workflow.Config{Retry: &workflow.RetryConfig{MaximumInterval: "-5s"}},
			},
		},
		{
			name: "retry maximum below initial",
			def: &workflow.Definition{
				Nodes: []workflow.Node{node("t", workflow.KindTrigger)},
				Config: workflow.Config{Retry: &workflow.RetryConfig{
					InitialInterval: "10s",
					MaximumInterval: "1s",
				}},
			},
		},
		{
			name: "retry backoff below one",
			def: &workflow.Definition{
				Nodes:  []workflow.Node{node("t", workflow.KindTrigger)},
				Config: workflow.Config{Retry: &workflow.RetryConfig{BackoffCoefficient: 0.5}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Compile(tt.def)
			if !errors.Is(err, workflow.ErrDefinitionInvalid) {
				t.Errorf("err = %v, want ErrDefinitionInvalid", err)
			}
		})
	}
}

func TestCompileLevels(t *testing.T) {
	def := &workflow.Definition{
		Nodes: []workflow.Node{
			node("report", workflow.KindTransformation),
			node("lookup", workflow.KindKnowledgeQuery),
			node("start", workflow.KindTrigger),
			node("notify", workflow.KindAction),
			node("enrich", workflow.KindAction),
		},
		Connections: []workflow.Connection{
			edge("start", "lookup"),
			edge("start", "enrich"),
			edge("lookup", "report"),
			edge("enrich", "report"),
			edge("report", "notify"),
		},
	}

	plan, err := workflow.Compile(def)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	want := [][]string{
		{"start"},
		{"lookup", "enrich"},
		{"report"},
		{"notify"},
	}

	if len(plan.Levels) != len(want) {
		t.Fatalf("levels = %v, want %v", plan.Levels, want)
	}
	for i := range want {
		if !slices.Equal(plan.Levels[i], want[i]) {
			t.Errorf("level %d = %v, want %v", i, plan.Levels[i], want[i])
		}
	}

	if got := plan.Roots(); !slices.Equal(got, []string{"start"}) {
		t.Errorf("roots = %v, want [start]", got)
	}
	if got := plan.Terminals(); !slices.Equal(got, []string{"notify"}) {
		t.Errorf("terminals = %v, want [notify]", got)
	}
	if got := plan.Predecessors("report"); !slices.Equal(got, []string{"lookup", "enrich"}) {
		t.Errorf("predecessors = %v, want [lookup enrich]", got)
	}
}

func TestCompileToleratesMultipleRoots(t *testing.T) {
	def := &workflow.Definition{
		Nodes: []workflow.Node{
			node("a", workflow.KindAction),
			node("b", workflow.KindTransformation),
			node("c", workflow.KindTrigger),
		},
	}

	plan, err := workflow.Compile(def)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if len(plan.Levels) != 1 {
		t.Fatalf("levels = %d, want 1", len(plan.Levels))
	}
	if !slices.Equal(plan.Levels[0], []string{"a", "b", "c"}) {
		t.Errorf("level = %v, want declaration order", plan.Levels[0])
	}
	if !slices.Equal(plan.Terminals(), []string{"a", "b", "c"}) {
		t.Errorf("terminals = %v", plan.Terminals())
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range workflow.Kinds() {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if workflow.Kind("loop").Valid() {
		t.Error("loop should not be valid")
	}
}
