package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Strict bool // fail when any function stays interpreted
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <module.cue|dir>...",
		Short: "Report which functions compile natively",
		Long: `Load and compile modules without emitting anything, then list every
function as compiled or interpreted together with the construct that kept it
out of native code.

Exit codes:
  0 - Modules are well formed
  1 - A function stays interpreted and --strict was given
  2 - A module failed to load or type check`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail if any function is excluded from native compilation")

	return cmd
}

func runCheck(opts *CheckOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mods, errs := loadModules(args)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	reports := make([]ModuleReport, len(mods))
	excluded := 0
	for i, m := range mods {
		reports[i] = moduleReport(m)
		excluded += reports[i].Excluded
	}

	if formatter.JSON() {
		if err := formatter.Success(reports); err != nil {
			return err
		}
	} else {
		for _, rep := range reports {
			fmt.Fprintf(formatter.Writer, "%s (%s): %d native, %d interpreted\n", rep.Module, rep.File, rep.Compiled, rep.Excluded)
			writeFunctions(formatter.Writer, rep.Functions)
		}
	}

	if opts.Strict && excluded > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d function(s) excluded from native compilation", excluded))
	}
	return nil
}
