// Package main provides tests for the leapetl CLI.
package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/cli"
	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if errOut.Len() > 0 {
		t.Log(errOut.String())
	}
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapetl v")
}

func TestHelpListsCommands(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"run", "validate", "runs", "show", "dag", "completion"} {
		assert.Contains(t, out, name)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, err := runCLI(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapetl")

	_, err = runCLI(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfgPath := filepath.Join(dir, "leapetl.yaml")

	out, err := runCLI(t, "--config", cfgPath, "--log-level", "warn", "-o", "json", "run")
	require.NoError(t, err)

	var res struct {
		Status   string `json:"status"`
		Entities []struct {
			Entity   string `json:"entity"`
			Inserted int    `json:"inserted"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "completed", res.Status)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, 4, res.Entities[0].Inserted)
	assert.Equal(t, 5, res.Entities[1].Inserted)

	out, err = runCLI(t, "--config", cfgPath, "-o", "markdown", "show", "daily_sales")
	require.NoError(t, err)
	assert.Contains(t, out, "# daily_sales")
	assert.Contains(t, out, "2024-02-01")
	assert.Contains(t, out, "2024-02-03")

	out, err = runCLI(t, "--config", cfgPath, "-o", "markdown", "runs")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "completed"))
}

func TestInvalidLogLevel(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	_, err := runCLI(t, "--config", filepath.Join(dir, "leapetl.yaml"), "--log-level", "loud", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
