package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/refc/internal/compiler"
)

// IROptions holds flags for the ir command.
type IROptions struct {
	*RootOptions
	Raw  bool   // also print IR before refcount insertion
	Func string // restrict to one function
}

// FunctionIR is the IR dump of one compiled function.
type FunctionIR struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	RawIR  string `json:"raw_ir,omitempty"`
	IR     string `json:"ir"`
	IRHash string `json:"ir_hash"`
}

// NewIRCommand creates the ir command.
func NewIRCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IROptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ir <module.cue|dir>...",
		Short: "Dump the IR of compiled functions",
		Long: `Print the IR of every natively compiled function after reference-count
insertion. With --raw the IR produced by the builder is printed first.

Examples:
  refc ir sample.cue
  refc ir sample.cue --func fill --raw`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIR(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "include IR before refcount insertion")
	cmd.Flags().StringVar(&opts.Func, "func", "", "only dump this function")

	return cmd
}

func runIR(opts *IROptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var copts []compiler.Option
	if opts.Raw {
		copts = append(copts, compiler.WithRawIR())
	}
	mods, errs := loadModules(args, copts...)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	var dumps []FunctionIR
	found := false
	for _, m := range mods {
		for _, f := range m.Result.Functions {
			if opts.Func != "" && f.Name != opts.Func {
				continue
			}
			found = true
			if !f.Compiled {
				formatter.VerboseLog("%s.%s is interpreted: %s", m.Source.Name, f.Name, f.Reason)
				continue
			}
			dumps = append(dumps, FunctionIR{Module: m.Source.Name, Name: f.Name, RawIR: f.RawIR, IR: f.IR, IRHash: f.IRHash})
		}
	}
	if opts.Func != "" && !found {
		return outputError(formatter, ExitCommandError, "E012", fmt.Sprintf("no function %q", opts.Func))
	}

	if formatter.JSON() {
		if dumps == nil {
			dumps = []FunctionIR{}
		}
		return formatter.Success(dumps)
	}
	for _, d := range dumps {
		writeIR(formatter.Writer, d)
	}
	return nil
}

func writeIR(w io.Writer, d FunctionIR) {
	if d.RawIR != "" {
		fmt.Fprintf(w, "# %s.%s (raw)\n%s\n", d.Module, d.Name, d.RawIR)
	}
	fmt.Fprintf(w, "# %s.%s %s\n%s\n", d.Module, d.Name, d.IRHash, d.IR)
}
