package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamsql/internal/harness"
)

// RunResult is the JSON payload of a run command.
type RunResult struct {
	Pipeline string               `json:"pipeline"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "run <pipeline.cue|dir>",
		Short: "Run a pipeline against SQLite",
		Long: `Validate and execute a CUE pipeline definition against a SQLite
database, printing the trace of every operation.

Without --db the pipeline runs against a throwaway database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], dbPath, workers, cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (default: throwaway temp database)")
	cmd.Flags().IntVar(&workers, "workers", 0, "scheduler worker count (default: engine default)")
	return cmd
}

func runRun(opts *RootOptions, path, dbPath string, workers int, cmd *cobra.Command) error {
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
	formatter.VerboseLog("Running pipeline %q (%d operations)", p.Name, len(p.Ops))

	res, err := harness.ExecutePipeline(p, dbPath, workers)
	if err != nil {
		_ = formatter.Error(ErrCodeExecution, err.Error(), nil)
		return WrapExitError(ExitCommandError, "executing pipeline", err)
	}

	pass := res.Pass
	for _, ev := range res.Trace {
		if ev.Err != "" {
			pass = false
		}
	}

	out := RunResult{Pipeline: p.Name, Pass: pass, Trace: res.Trace, Errors: res.Errors}
	if opts.Format == "json" {
		if pass {
			if err := formatter.Success(out); err != nil {
				return err
			}
		} else {
			_ = formatter.Error(ErrCodeExecution, "pipeline failed", out)
		}
	} else {
		printTextTrace(formatter, out)
	}

	if !pass {
		return NewExitError(ExitFailure, "pipeline failed")
	}
	return nil
}

func printTextTrace(f *OutputFormatter, res RunResult) {
	for _, ev := range res.Trace {
		switch {
		case ev.Err != "":
			fmt.Fprintf(f.Writer, "%-12s FAIL  %s\n", ev.Op, ev.Err)
		case ev.Kind == "select":
			fmt.Fprintf(f.Writer, "%-12s %d row(s)\n", ev.Op, len(ev.Rows))
			for _, row := range ev.Rows {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = fmt.Sprint(v)
				}
				fmt.Fprintf(f.Writer, "  %s\n", strings.Join(cells, " | "))
			}
		default:
			fmt.Fprintf(f.Writer, "%-12s %d affected\n", ev.Op, ev.Affected)
		}
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(f.Writer, "error: %s\n", msg)
	}
	if res.Pass {
		fmt.Fprintln(f.Writer, "PASS")
	} else {
		fmt.Fprintln(f.Writer, "FAIL")
	}
}
