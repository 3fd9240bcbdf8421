package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
	"github.com/leapstack-labs/leapetl/internal/dag"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// DAGOptions holds options for the dag command.
type DAGOptions struct {
	From []string
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	opts := &DAGOptions{}

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the pipeline dependency graph",
		Long: `Display how raw sources feed curated entities and how entities feed
publish aggregates, grouped by build level.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the whole graph
  leapetl dag

  # Only what a change to orders_raw reaches
  leapetl dag --from orders_raw

  # Output as JSON
  leapetl dag --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.From, "from", nil, "Limit the graph to these nodes and everything downstream of them")

	return cmd
}

func runDAG(cmd *cobra.Command, opts *DAGOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer

	p, err := pipeline.Load(cmdCtx.Cfg.PipelinePath)
	if err != nil {
		return err
	}
	graph, err := p.Graph()
	if err != nil {
		return err
	}

	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to get build levels: %w", err)
	}
	if len(opts.From) > 0 {
		for _, id := range opts.From {
			if _, ok := graph.Node(id); !ok {
				return fmt.Errorf("unknown node %q", id)
			}
		}
		levels = keepLevels(levels, append(graph.Downstream(opts.From...), opts.From...))
	}

	res := toDAGOutput(p.Name, graph, levels)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(res)
	case output.ModeMarkdown:
		dagMarkdown(r, res)
	default:
		dagText(r, res)
	}
	return nil
}

// keepLevels filters levels down to ids, dropping levels left empty.
func keepLevels(levels [][]string, ids []string) [][]string {
	var out [][]string
	for _, level := range levels {
		var kept []string
		for _, id := range level {
			if slices.Contains(ids, id) {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func toDAGOutput(name string, graph *dag.Graph, levels [][]string) output.DAGOutput {
	res := output.DAGOutput{
		Pipeline:   name,
		Levels:     make([]output.DAGLevel, 0, len(levels)),
		TotalNodes: graph.NodeCount(),
		TotalEdges: graph.EdgeCount(),
	}
	for i, level := range levels {
		l := output.DAGLevel{Level: i, Nodes: make([]output.DAGNode, 0, len(level))}
		for _, id := range level {
			n, _ := graph.Node(id)
			l.Nodes = append(l.Nodes, output.DAGNode{
				Name:      id,
				Kind:      string(n.Kind),
				DependsOn: graph.Parents(id),
				UsedBy:    graph.Children(id),
			})
		}
		res.Levels = append(res.Levels, l)
	}
	return res
}

// dagText outputs the graph in styled text format.
func dagText(r *output.Renderer, res output.DAGOutput) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")
	for _, level := range res.Levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", level.Level)))
		for _, n := range level.Nodes {
			r.Printf("  %s %s\n", styles.Bold.Render(n.Name), styles.Muted.Render("("+n.Kind+")"))
			if len(n.DependsOn) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(n.DependsOn, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}
	r.Muted(fmt.Sprintf("Total: %d nodes, %d dependencies", res.TotalNodes, res.TotalEdges))
}

// dagMarkdown outputs the graph in markdown format.
func dagMarkdown(r *output.Renderer, res output.DAGOutput) {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for _, level := range res.Levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", level.Level)))
		for _, n := range level.Nodes {
			r.Printf("- %s (%s)\n", n.Name, n.Kind)
			if len(n.DependsOn) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(n.DependsOn, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Nodes", fmt.Sprintf("%d", res.TotalNodes)))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", res.TotalEdges)))
}
