package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <table>",
		Short: "Print the rows of a curated or publish table",
		Long: `Print the rows of an entity or aggregate table ordered by business key.

The table must be declared in the pipeline.`,
		Example: `  # Curated customers
  leapetl show customers

  # First 10 rows of an aggregate as JSON
  leapetl show daily_sales -n 10 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of rows (0 for all)")

	return cmd
}

func runShow(cmd *cobra.Command, name string, limit int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	tbl, err := cmdCtx.Engine.Tables().Table(name)
	if err != nil {
		return err
	}
	schema := tbl.Schema()
	cols := schema.ColumnNames()

	out := output.TableOutput{Table: name, Columns: cols}
	var rows [][]string
	for rec, err := range tbl.Scan(cmd.Context()) {
		if err != nil {
			return fmt.Errorf("scan %s: %w", name, err)
		}
		out.Total++
		if limit > 0 && out.Total > limit {
			continue
		}
		row := make([]string, len(cols))
		jsonRow := make(map[string]any, len(cols))
		for i, c := range schema.Columns {
			row[i] = formatValue(rec[c.Name], c.Type)
			if rec[c.Name] == nil {
				jsonRow[c.Name] = nil
			} else {
				jsonRow[c.Name] = row[i]
			}
		}
		rows = append(rows, row)
		out.Rows = append(out.Rows, jsonRow)
	}

	if r.EffectiveMode() == output.ModeJSON {
		if out.Rows == nil {
			out.Rows = []map[string]any{}
		}
		return r.JSON(out)
	}

	r.Header(1, name)
	r.Table(cols, rows)
	if limit > 0 && out.Total > limit {
		r.Muted(fmt.Sprintf("%d of %d rows", limit, out.Total))
	}
	return nil
}

// formatValue renders a table value for display. Dates print without a time.
func formatValue(v any, typ core.FieldType) string {
	if v == nil {
		return "NULL"
	}
	if t, ok := core.Canonical(v).(time.Time); ok && typ == core.TypeDate {
		return t.Format(time.DateOnly)
	}
	s, err := core.ToString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
