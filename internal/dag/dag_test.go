package dag

import (
	"slices"
	"testing"
)

// retailGraph mirrors a small pipeline:
// customers_raw -> customers -> customer_summary <- orders <- orders_raw
// orders -> daily_sales
func retailGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	g.AddNode("customers_raw", KindSource)
	g.AddNode("orders_raw", KindSource)
	g.AddNode("customers", KindEntity)
	g.AddNode("orders", KindEntity)
	g.AddNode("customer_summary", KindAggregate)
	g.AddNode("daily_sales", KindAggregate)

	for _, e := range [][2]string{
		{"customers_raw", "customers"},
		{"orders_raw", "orders"},
		{"customers", "customer_summary"},
		{"orders", "customer_summary"},
		{"orders", "daily_sales"},
	} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("failed to add edge %v: %v", e, err)
		}
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := retailGraph(t)

	if g.NodeCount() != 6 {
		t.Errorf("expected 6 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 5 {
		t.Errorf("expected 5 edges, got %d", g.EdgeCount())
	}

	// Duplicate edges are ignored
	if err := g.AddEdge("orders", "daily_sales"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.EdgeCount() != 5 {
		t.Errorf("expected duplicate edge to be ignored, got %d edges", g.EdgeCount())
	}
}

func TestGraph_AddNode_UpdatesKind(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindSource)
	g.AddNode("a", KindEntity)

	n, ok := g.Node("a")
	if !ok {
		t.Fatal("expected node a")
	}
	if n.Kind != KindEntity {
		t.Errorf("expected kind entity, got %s", n.Kind)
	}
	if g.NodeCount() != 1 {
		t.Errorf("expected 1 node, got %d", g.NodeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindSource)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindEntity)

	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := retailGraph(t)

	parents := g.Parents("customer_summary")
	if len(parents) != 2 {
		t.Errorf("expected customer_summary to have 2 parents, got %d", len(parents))
	}
	children := g.Children("orders")
	if len(children) != 2 {
		t.Errorf("expected orders to have 2 children, got %d", len(children))
	}
}

func TestGraph_NodesOf(t *testing.T) {
	g := retailGraph(t)

	got := g.NodesOf(KindAggregate)
	want := []string{"customer_summary", "daily_sales"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := retailGraph(t)
	if hasCycle, path := g.HasCycle(); hasCycle {
		t.Errorf("expected no cycle, but found: %v", path)
	}

	g = NewGraph()
	g.AddNode("a", KindEntity)
	g.AddNode("b", KindEntity)
	g.AddNode("c", KindEntity)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "c")
	_ = g.AddEdge("c", "a")

	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Error("expected cycle to be detected")
	}
	if len(path) == 0 {
		t.Error("expected cycle path to be non-empty")
	}
	if _, err := g.Levels(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_Levels(t *testing.T) {
	g := retailGraph(t)

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("failed to compute levels: %v", err)
	}

	want := [][]string{
		{"customers_raw", "orders_raw"},
		{"customers", "orders"},
		{"customer_summary", "daily_sales"},
	}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %d: %v", len(want), len(levels), levels)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("level %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestGraph_Levels_Empty(t *testing.T) {
	levels, err := NewGraph().Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 0 {
		t.Errorf("expected no levels, got %v", levels)
	}
}

func TestGraph_Downstream(t *testing.T) {
	g := retailGraph(t)

	tests := []struct {
		name string
		from []string
		want []string
	}{
		{"customers source", []string{"customers_raw"}, []string{"customer_summary", "customers"}},
		{"orders source", []string{"orders_raw"}, []string{"customer_summary", "daily_sales", "orders"}},
		{"leaf", []string{"daily_sales"}, []string{}},
		{"unknown", []string{"refunds_raw"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Downstream(tt.from...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGraph_Upstream(t *testing.T) {
	g := retailGraph(t)

	got := g.Upstream("customer_summary")
	want := []string{"customers", "customers_raw", "orders", "orders_raw"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
