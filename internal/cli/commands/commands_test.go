package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/cli/output"
	"github.com/leapstack-labs/leapetl/internal/cli/testutil"
	inttestutil "github.com/leapstack-labs/leapetl/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapetl/pkg/adapters/sqlite"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	// RAW appends on every run, so only CURATED and PUBLISH are repeatable
	assert.NotContains(t, cmd.Long, "every table unchanged")
	assert.Contains(t, cmd.Long, "RAW is append-only")
	assert.Contains(t, cmd.Long, "days_since_signup")

	// Verify flags exist (output is a global flag on root, not local)
	for _, flag := range []string{"source", "delimiter"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewValidateCommand(t *testing.T) {
	cmd := NewValidateCommand()

	assert.Equal(t, "validate", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("connect"))
}

func TestNewRunsCommand(t *testing.T) {
	cmd := NewRunsCommand()

	assert.Equal(t, "runs [run-id]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.Error(t, cmd.Args(cmd, []string{"a", "b"}))
}

func TestNewShowCommand(t *testing.T) {
	cmd := NewShowCommand()

	assert.Equal(t, "show <table>", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.Error(t, cmd.Args(cmd, nil))
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{in: ",", want: ','},
		{in: ";", want: ';'},
		{in: `\t`, want: '\t'},
		{in: "tab", want: '\t'},
		{in: "", wantErr: true},
		{in: ",,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDelimiter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// loadProject loads the config of a fresh test project with the given
// output mode and returns it.
func loadProject(t *testing.T, mode output.Mode) *config.Config {
	t.Helper()
	dir := testutil.SetupTestProject(t)

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	cfg, err := config.LoadConfigWithTarget(filepath.Join(dir, "leapetl.yaml"), "", nil)
	require.NoError(t, err)
	cfg.OutputFormat = string(mode)
	return cfg
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	ctx := context.WithValue(context.Background(), config.LoggerKey(), inttestutil.NewTestLogger(t))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRunCommand_JSON(t *testing.T) {
	loadProject(t, output.ModeJSON)

	out, err := execute(t, NewRunCommand())
	require.NoError(t, err)

	var res output.RunOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "retail", res.Pipeline)
	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, "dev", res.Environment)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.BatchHash, 16)
	assert.Empty(t, res.Unchanged)

	require.Len(t, res.Entities, 2)
	customers := res.Entities[0]
	assert.Equal(t, "customers", customers.Entity)
	assert.Equal(t, 6, customers.Read)
	assert.Equal(t, int64(6), customers.Landed)
	assert.Equal(t, 1, customers.Duplicates)
	assert.Equal(t, 4, customers.Inserted)
	require.Len(t, customers.Rejected, 1)
	assert.Equal(t, 5, customers.Rejected[0].Position)

	orders := res.Entities[1]
	assert.Equal(t, "orders", orders.Entity)
	assert.Equal(t, 5, orders.Inserted)
	require.Len(t, orders.Rejected, 1)
	assert.Equal(t, 6, orders.Rejected[0].Position)

	require.Len(t, res.Aggregates, 2)
	assert.Equal(t, "customer_summary", res.Aggregates[0].Aggregate)
	assert.Equal(t, 4, res.Aggregates[0].Inserted)
	assert.Equal(t, "daily_sales", res.Aggregates[1].Aggregate)
	assert.Equal(t, 2, res.Aggregates[1].Inserted)

	// Second run of the same batch updates in place and inserts nothing
	out, err = execute(t, NewRunCommand())
	require.NoError(t, err)
	var again output.RunOutput
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.NotEqual(t, res.RunID, again.RunID)
	assert.Equal(t, res.BatchHash, again.BatchHash)
	assert.ElementsMatch(t, []string{"customers_raw", "orders_raw"}, again.Unchanged)
	assert.Equal(t, 0, again.Entities[0].Inserted)
	assert.Equal(t, 4, again.Entities[0].Updated)
	assert.Equal(t, 0, again.Aggregates[1].Deleted)

	// Run history
	out, err = execute(t, NewRunsCommand())
	require.NoError(t, err)
	var runs []output.RunInfo
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, again.RunID, runs[0].ID, "newest first")

	out, err = execute(t, NewRunsCommand(), res.RunID)
	require.NoError(t, err)
	var info output.RunInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "completed", info.Status)
	require.NotEmpty(t, info.Stages)
	assert.Equal(t, "customers_raw", info.Stages[0].Table)
	assert.Equal(t, "land", info.Stages[0].Stage)

	// Table dump
	out, err = execute(t, NewShowCommand(), "customers", "--limit", "2")
	require.NoError(t, err)
	var tbl output.TableOutput
	require.NoError(t, json.Unmarshal([]byte(out), &tbl))
	assert.Equal(t, 4, tbl.Total)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "1", tbl.Rows[0]["customer_id"])
	assert.Equal(t, "Ada Byron", tbl.Rows[0]["full_name"])
	assert.Equal(t, "2024-02-20", tbl.Rows[1]["signup_date"])
}

func TestRunCommand_Markdown(t *testing.T) {
	loadProject(t, output.ModeMarkdown)

	out, err := execute(t, NewRunCommand())
	require.NoError(t, err)

	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Run ")
	assert.Contains(t, out, "- **Status**: completed")
	assert.Contains(t, out, "## Entities")
	assert.Contains(t, out, "## Aggregates")
	assert.Contains(t, out, "- customers record 5:")
	assert.Contains(t, out, "daily_sales")
}

func TestRunCommand_MissingSourceFile(t *testing.T) {
	cfg := loadProject(t, output.ModeJSON)
	delete(cfg.Sources, "orders_raw")

	_, err := execute(t, NewRunCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file configured for source orders_raw")
}

func TestRunCommand_SourceOverride(t *testing.T) {
	cfg := loadProject(t, output.ModeJSON)
	orders := cfg.Sources["orders_raw"]
	delete(cfg.Sources, "orders_raw")

	out, err := execute(t, NewRunCommand(), "--source", "orders_raw="+orders)
	require.NoError(t, err)

	var res output.RunOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "completed", res.Status)
}

func TestValidateCommand(t *testing.T) {
	cfg := loadProject(t, output.ModeJSON)

	out, err := execute(t, NewValidateCommand(), "--connect")
	require.NoError(t, err)

	var res output.ValidateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, "sqlite", res.Target)
	names := make([]string, 0, len(res.Checks))
	for _, c := range res.Checks {
		names = append(names, c.Name)
		assert.Equal(t, "success", c.Status, c.Name)
	}
	assert.Equal(t, []string{"config", "pipeline", "source customers_raw", "source orders_raw", "target", "connection"}, names)

	cfg.Sources["orders_raw"] = filepath.Join(cfg.ProjectRoot, "missing.csv")
	out, err = execute(t, NewValidateCommand())
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
}

func TestRunsCommand_Empty(t *testing.T) {
	loadProject(t, output.ModeMarkdown)

	out, err := execute(t, NewRunsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet")
}

func TestShowCommand_UnknownTable(t *testing.T) {
	loadProject(t, output.ModeMarkdown)

	_, err := execute(t, NewShowCommand(), "refunds")
	assert.Error(t, err)
}

func TestNewDAGCommand(t *testing.T) {
	cmd := NewDAGCommand()

	assert.Equal(t, "dag", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("from"))
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}

func TestDAGCommand_JSON(t *testing.T) {
	loadProject(t, output.ModeJSON)

	out, err := execute(t, NewDAGCommand())
	require.NoError(t, err)

	var res output.DAGOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "retail", res.Pipeline)
	assert.Equal(t, 6, res.TotalNodes)
	assert.Equal(t, 5, res.TotalEdges)
	require.Len(t, res.Levels, 3)
	assert.Equal(t, "source", res.Levels[0].Nodes[0].Kind)
	assert.Equal(t, "customer_summary", res.Levels[2].Nodes[0].Name)
	assert.ElementsMatch(t, []string{"customers", "orders"}, res.Levels[2].Nodes[0].DependsOn)
}

func TestDAGCommand_From(t *testing.T) {
	loadProject(t, output.ModeMarkdown)

	out, err := execute(t, NewDAGCommand(), "--from", "customers_raw")
	require.NoError(t, err)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "- customers_raw (source)")
	assert.Contains(t, out, "- customer_summary (aggregate)")
	assert.NotContains(t, out, "daily_sales")
	assert.NotContains(t, out, "- orders_raw")

	_, err = execute(t, NewDAGCommand(), "--from", "refunds_raw")
	assert.Error(t, err)
}
