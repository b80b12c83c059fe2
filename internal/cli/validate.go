package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/streamsql/internal/pipeline"
)

// ValidationResult holds the outcome of a validate run.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []pipeline.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.cue|dir>",
		Short: "Validate a pipeline definition without running it",
		Long: `Validate a CUE pipeline definition without executing it.

Checks structure (required fields, literal types) and semantics:
operation kinds, dependency references, parameter types, transaction
references, and dependency cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := LoadPipeline(path)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return err
	}
	formatter.VerboseLog("Loaded pipeline %q with %d operation(s)", p.Name, len(p.Ops))

	errs := pipeline.Validate(p)
	if len(errs) > 0 {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeValidation, "pipeline validation failed", ValidationResult{Valid: false, Errors: errs})
		} else {
			fmt.Fprintf(formatter.Writer, "Invalid: %d error(s)\n", len(errs))
			for _, e := range errs {
				fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	return formatter.Success(fmt.Sprintf("Valid: %d operation(s)", len(p.Ops)))
}
