// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
)

// ProjectConfig is the leapetl.yaml written by SetupTestProject. The
// warehouse and state live next to it in SQLite files.
const ProjectConfig = `pipeline: pipeline.yaml
state_path: .leapetl/state.db
target:
  type: sqlite
  database: .leapetl/warehouse.db
sources:
  customers_raw: data/customers_raw.csv
  orders_raw: data/orders_raw.csv
`

// SetupTestProject creates a temporary project holding the example
// pipeline, its CSV batches and a leapetl.yaml targeting SQLite.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	src := ExamplesDir(t)
	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "data"), 0750); err != nil {
		t.Fatalf("failed to create data directory: %v", err)
	}
	for _, name := range []string{"pipeline.yaml", "data/customers_raw.csv", "data/orders_raw.csv"} {
		copyFile(t, filepath.Join(src, name), filepath.Join(tmpDir, name))
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "leapetl.yaml"), []byte(ProjectConfig), 0600); err != nil {
		t.Fatalf("failed to create leapetl.yaml: %v", err)
	}

	return tmpDir
}

func copyFile(t *testing.T, from, to string) {
	t.Helper()
	data, err := os.ReadFile(from) //nolint:gosec // test fixture path
	if err != nil {
		t.Fatalf("failed to read %s: %v", from, err)
	}
	if err := os.WriteFile(to, data, 0600); err != nil {
		t.Fatalf("failed to write %s: %v", to, err)
	}
}

// ExamplesDir returns the path to the repository's examples directory.
func ExamplesDir(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	// Walk up until the module root
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "examples")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("module root not found above %s", wd)
			return ""
		}
		dir = parent
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
