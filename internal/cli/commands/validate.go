package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapetl/internal/config"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	// Connect also opens the warehouse target.
	Connect bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and pipeline definition",
		Long: `Validate leapetl.yaml and the pipeline it points to without running anything.

Checks that the pipeline parses, that every raw source it reads has a file
and that the target adapter is known. With --connect the target is opened
as well.`,
		Example: `  # Validate the project in the current directory
  leapetl validate

  # Also check the production warehouse is reachable
  leapetl validate -t prod --connect`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Connect, "connect", false, "Also connect to the target warehouse")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	res := output.ValidateOutput{Pipeline: cfg.PipelinePath, Valid: true}
	if cfg.Target != nil {
		res.Target = cfg.Target.Type
	}
	check := func(name string, err error, detail string) {
		c := output.CheckOutput{Name: name, Status: "success", Detail: detail}
		if err != nil {
			c.Status = "failed"
			c.Detail = err.Error()
			res.Valid = false
		}
		res.Checks = append(res.Checks, c)
	}

	check("config", cfg.Validate(), "")

	p, err := pipeline.Load(cfg.PipelinePath)
	if err != nil {
		check("pipeline", err, "")
	} else {
		check("pipeline", nil, fmt.Sprintf("%s: %d entities, %d aggregates", p.Name, len(p.Entities), len(p.Aggregates)))
		for _, name := range p.Sources() {
			path, err := cfg.SourcePath(name)
			check("source "+name, err, path)
		}
	}

	check("target", intconfig.ValidateTarget(cfg.Target), res.Target)
	if opts.Connect && cfg.Target != nil {
		adp, err := connectTarget(cmd.Context(), cfg.Target, cmdCtx.Logger)
		if err == nil {
			err = adp.Close()
		}
		check("connection", err, "")
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(res); err != nil {
			return err
		}
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Validation"))
		r.Println("")
		for _, c := range res.Checks {
			line := fmt.Sprintf("- [%s] %s", checkMark(c.Status), c.Name)
			if c.Detail != "" {
				line += ": " + strings.ReplaceAll(c.Detail, "\n", " ")
			}
			r.Println(line)
		}
	default:
		r.Header(1, "Validation")
		for _, c := range res.Checks {
			r.StatusLine(c.Name, c.Status, c.Detail)
		}
	}

	if !res.Valid {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func checkMark(status string) string {
	if status == "success" {
		return "x"
	}
	return " "
}
