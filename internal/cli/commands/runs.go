package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Long: `List recent pipeline runs, newest first.

Given a run ID, show every stage the run applied with its row counts.`,
		Example: `  # Last 20 runs
  leapetl runs

  # Stages of one run
  leapetl runs 0b8f6a52-3d0e-4c55-9d39-2f0b0b2f4a61 --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer

	store, err := openStore(cmd.Context(), cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.RunInfo, 0, len(runs))
		for _, run := range runs {
			infos = append(infos, toRunInfo(run))
		}
		return r.JSON(infos)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet")
		return nil
	}
	r.Header(1, "Runs")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Pipeline,
			run.Environment,
			string(run.Status),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			durationString(run),
		})
	}
	r.Table([]string{"id", "pipeline", "environment", "status", "started", "duration"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, runID string) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer
	ctx := cmd.Context()

	store, err := openStore(ctx, cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	stages, err := store.ListStages(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list stages: %w", err)
	}

	info := toRunInfo(run)
	for _, s := range stages {
		info.Stages = append(info.Stages, output.StageInfo{
			Table:      s.Table,
			Stage:      s.Stage,
			Status:     string(s.Status),
			RowsIn:     s.RowsIn,
			RowsOut:    s.RowsOut,
			Rejected:   s.Rejected,
			Inserted:   s.Inserted,
			Updated:    s.Updated,
			DurationMS: s.Duration().Milliseconds(),
			Error:      s.Error,
		})
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(info)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Run "+info.ID))
		r.Println("")
		r.Println(output.FormatKeyValue("Pipeline", info.Pipeline))
		r.Println(output.FormatKeyValue("Environment", info.Environment))
		r.Println(output.FormatKeyValue("Status", info.Status))
		r.Println(output.FormatKeyValue("Batch Hash", info.BatchHash))
		if info.Error != "" {
			r.Println(output.FormatKeyValue("Error", info.Error))
		}
		r.Println("")
	default:
		r.Header(1, "Run "+info.ID)
		r.StatusLine(info.Pipeline, info.Status, info.Environment)
		if info.Error != "" {
			r.Error(info.Error)
		}
	}

	rows := make([][]string, 0, len(info.Stages))
	for _, s := range info.Stages {
		rows = append(rows, []string{
			s.Table,
			s.Stage,
			s.Status,
			strconv.FormatInt(s.RowsIn, 10),
			strconv.FormatInt(s.RowsOut, 10),
			strconv.FormatInt(s.Rejected, 10),
			strconv.FormatInt(s.Inserted, 10),
			strconv.FormatInt(s.Updated, 10),
		})
	}
	r.Table([]string{"table", "stage", "status", "in", "out", "rejected", "inserted", "updated"}, rows)
	return nil
}

func toRunInfo(run *core.Run) output.RunInfo {
	return output.RunInfo{
		ID:          run.ID,
		Pipeline:    run.Pipeline,
		Environment: run.Environment,
		Status:      string(run.Status),
		BatchHash:   run.BatchHash,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func durationString(run *core.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
