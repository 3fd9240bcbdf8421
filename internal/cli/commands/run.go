package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
	"github.com/leapstack-labs/leapetl/internal/engine"
	"github.com/leapstack-labs/leapetl/internal/source"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	// Sources overrides configured source files, keyed by source name.
	Sources map[string]string
	// Delimiter is the CSV field separator.
	Delimiter string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline on a raw batch",
		Long: `Read one batch per raw source, land it in the RAW layer, conform it
into the CURATED entities and refresh the PUBLISH aggregates.

Source files come from the sources section of leapetl.yaml and can be
overridden with --source. Running the same batch twice leaves the
CURATED and PUBLISH tables unchanged, except for columns derived from the
current date such as days_since_signup. RAW is append-only and keeps a
copy of every run's batch.`,
		Example: `  # Run with the configured sources
  leapetl run

  # Use a different orders file
  leapetl run --source orders_raw=data/orders_2024-03-01.csv

  # Run against production with JSON output for CI/CD integration
  leapetl run -t prod --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringToStringVar(&opts.Sources, "source", nil, "Source file override as name=path (repeatable)")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", ",", "CSV field separator")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	comma, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	cfg := cmdCtx.Cfg
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	var srcs []core.RecordSource
	for _, name := range eng.Pipeline().Sources() {
		path, ok := opts.Sources[name]
		if !ok {
			if path, err = cfg.SourcePath(name); err != nil {
				return err
			}
		}
		srcs = append(srcs, source.NewCSV(name, path, source.WithComma(comma)))
	}

	start := time.Now()
	batches, err := engine.ReadBatches(ctx, srcs...)
	if err != nil {
		return err
	}

	cmdCtx.Logger.Info("running pipeline", "pipeline", eng.Pipeline().Name, "environment", cfg.Environment, "sources", len(batches))
	res, runErr := eng.Run(ctx, batches)
	if res == nil {
		return runErr
	}

	out := toRunOutput(eng.Pipeline().Name, res, time.Since(start))
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	case output.ModeMarkdown:
		runMarkdown(r, out)
	default:
		runText(r, out)
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return runes[0], nil
}

func toRunOutput(pipeline string, res *engine.Result, elapsed time.Duration) output.RunOutput {
	out := output.RunOutput{
		Pipeline:   pipeline,
		Unchanged:  res.Unchanged,
		Entities:   make([]output.EntityOutput, 0, len(res.Entities)),
		Aggregates: make([]output.AggregateOutput, 0, len(res.Aggregates)),
		DurationMS: elapsed.Milliseconds(),
	}
	if run := res.Run; run != nil {
		out.RunID = run.ID
		out.Environment = run.Environment
		out.Status = string(run.Status)
		out.BatchHash = run.BatchHash
		out.Error = run.Error
	}
	for _, er := range res.Entities {
		eo := output.EntityOutput{
			Entity:     er.Entity,
			Read:       er.Read,
			Landed:     er.Landed,
			Duplicates: er.Duplicates,
			Inserted:   er.Merge.Inserted,
			Updated:    er.Merge.Updated,
		}
		for _, rej := range er.Rejected {
			eo.Rejected = append(eo.Rejected, output.RejectionOutput{Position: rej.Position, Error: rej.Err.Error()})
		}
		out.Entities = append(out.Entities, eo)
	}
	for _, ar := range res.Aggregates {
		out.Aggregates = append(out.Aggregates, output.AggregateOutput{
			Aggregate: ar.Aggregate,
			Table:     ar.Table,
			Inserted:  ar.Merge.Inserted,
			Updated:   ar.Merge.Updated,
			Deleted:   ar.Merge.Deleted,
		})
	}
	return out
}

func entityRows(out output.RunOutput) [][]string {
	rows := make([][]string, 0, len(out.Entities))
	for _, e := range out.Entities {
		rows = append(rows, []string{
			e.Entity,
			strconv.Itoa(e.Read),
			strconv.FormatInt(e.Landed, 10),
			strconv.Itoa(len(e.Rejected)),
			strconv.Itoa(e.Duplicates),
			strconv.Itoa(e.Inserted),
			strconv.Itoa(e.Updated),
		})
	}
	return rows
}

func aggregateRows(out output.RunOutput) [][]string {
	rows := make([][]string, 0, len(out.Aggregates))
	for _, a := range out.Aggregates {
		rows = append(rows, []string{a.Aggregate, a.Table, strconv.Itoa(a.Inserted), strconv.Itoa(a.Updated), strconv.Itoa(a.Deleted)})
	}
	return rows
}

var (
	entityHeader    = []string{"entity", "read", "landed", "rejected", "duplicates", "inserted", "updated"}
	aggregateHeader = []string{"aggregate", "table", "inserted", "updated", "deleted"}
)

// runText outputs the run summary in styled text format.
func runText(r *output.Renderer, out output.RunOutput) {
	styles := r.Styles()

	r.Header(1, fmt.Sprintf("Run %s", out.RunID))
	r.StatusLine(out.Pipeline, out.Status, fmt.Sprintf("(%s, %dms)", out.Environment, out.DurationMS))
	for _, src := range out.Unchanged {
		r.Println(styles.Muted.Render(fmt.Sprintf("  source %s unchanged since last run", src)))
	}
	r.Println("")

	if len(out.Entities) > 0 {
		r.Header(2, "Entities")
		r.Table(entityHeader, entityRows(out))
		for _, e := range out.Entities {
			for _, rej := range e.Rejected {
				r.Printf("  %s %s\n", styles.Warning.Render(fmt.Sprintf("%s[%d]", e.Entity, rej.Position)), styles.Muted.Render(rej.Error))
			}
		}
	}
	if len(out.Aggregates) > 0 {
		r.Header(2, "Aggregates")
		r.Table(aggregateHeader, aggregateRows(out))
	}
	if out.Error != "" {
		r.Error(out.Error)
	}
}

// runMarkdown outputs the run summary in markdown format.
func runMarkdown(r *output.Renderer, out output.RunOutput) {
	r.Println(output.FormatHeader(1, "Run "+out.RunID))
	r.Println("")
	r.Println(output.FormatKeyValue("Pipeline", out.Pipeline))
	r.Println(output.FormatKeyValue("Environment", out.Environment))
	r.Println(output.FormatKeyValue("Status", out.Status))
	r.Println(output.FormatKeyValue("Batch Hash", out.BatchHash))
	if len(out.Unchanged) > 0 {
		r.Println(output.FormatKeyValue("Unchanged Sources", fmt.Sprint(out.Unchanged)))
	}
	if out.Error != "" {
		r.Println(output.FormatKeyValue("Error", out.Error))
	}
	r.Println("")

	if len(out.Entities) > 0 {
		r.Println(output.FormatHeader(2, "Entities"))
		r.Println("")
		r.Table(entityHeader, entityRows(out))
		r.Println("")
		for _, e := range out.Entities {
			for _, rej := range e.Rejected {
				r.Printf("- %s record %d: %s\n", e.Entity, rej.Position, rej.Error)
			}
		}
	}
	if len(out.Aggregates) > 0 {
		r.Println(output.FormatHeader(2, "Aggregates"))
		r.Println("")
		r.Table(aggregateHeader, aggregateRows(out))
	}
}
