package pipeline

import (
	"fmt"

	"github.com/leapstack-labs/leapetl/internal/dag"
)

// Graph builds the dependency graph of the pipeline. Sources are keyed by
// name, entities by name and aggregates by target table.
func (p *Pipeline) Graph() (*dag.Graph, error) {
	g := dag.NewGraph()

	for _, src := range p.Sources() {
		g.AddNode(src, dag.KindSource)
	}
	for _, e := range p.Entities {
		if n, ok := g.Node(e.Name); ok && n.Kind == dag.KindSource {
			return nil, fmt.Errorf("entity %s: name collides with a raw source", e.Name)
		}
		g.AddNode(e.Name, dag.KindEntity)
		if err := g.AddEdge(e.Source, e.Name); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
	}
	for _, agg := range p.Aggregates {
		if _, ok := g.Node(agg.Target); ok {
			return nil, fmt.Errorf("aggregate %s: target %q is already defined", agg.Name, agg.Target)
		}
		g.AddNode(agg.Target, dag.KindAggregate)

		inputs := []string{agg.Source}
		if agg.Join != nil {
			inputs = append(inputs, agg.Join.Table)
		}
		for _, in := range inputs {
			if err := g.AddEdge(in, agg.Target); err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", agg.Name, err)
			}
		}
	}

	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("pipeline has a dependency cycle: %v", path)
	}
	return g, nil
}
