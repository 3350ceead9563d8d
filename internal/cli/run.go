package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/refc/internal/harness"
	"github.com/roach88/refc/internal/host"
	"github.com/roach88/refc/internal/rt"
	"github.com/roach88/refc/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Args       string   // JSON array of arguments
	Entry      string   // interp | boundary | native
	Imports    []string // modules compiled before the target
	MaxObjects int
	MaxCells   int
	MaxDepth   int
}

// HeapStats describes the heap after a call.
type HeapStats struct {
	Live        int `json:"live"`
	Cells       int `json:"cells"`
	Allocations int `json:"allocations"`
	Leaked      int `json:"leaked"`
}

// CallResult is the outcome of one call.
type CallResult struct {
	Module string    `json:"module"`
	Func   string    `json:"func"`
	Entry  string    `json:"entry"`
	Result string    `json:"result,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	Heap   HeapStats `json:"heap"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <module.cue> <func>",
		Short: "Call a function of a module",
		Long: `Compile a module and call one of its functions.

Arguments are a JSON array of integers, booleans, null and nested arrays.
The call goes through the boundary entry by default; --entry native unboxes
the arguments and calls the native entry directly, --entry interp runs the
source under the host interpreter.

Examples:
  refc run sample.cue fact --args '[20]'
  refc run sample.cue total --args '[[1, 2, 3]]' --entry native
  refc run app.cue grow --import lib.cue --args '[5]' --max-objects 100`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "call arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Entry, "entry", string(harness.EntryBoundary), "entry to call (interp|boundary|native)")
	cmd.Flags().StringSliceVar(&opts.Imports, "import", nil, "module compiled before the target (repeatable)")
	cmd.Flags().IntVar(&opts.MaxObjects, "max-objects", 0, "limit on live heap objects (0 = unlimited)")
	cmd.Flags().IntVar(&opts.MaxCells, "max-cells", 0, "limit on list cells (0 = unlimited)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", rt.DefaultMaxDepth, "recursion limit")

	return cmd
}

func runCall(opts *RunOptions, path, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	entry := harness.Entry(opts.Entry)
	if !slices.Contains(harness.AllEntries, entry) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown entry %q: must be one of %v", opts.Entry, harness.AllEntries))
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	mods, errs := loadModules(append(slices.Clone(opts.Imports), path))
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}
	target := mods[len(mods)-1]

	s := newSession(mods, entry,
		host.WithMaxDepth(opts.MaxDepth),
		host.WithLogger(slog.Default()))
	s.rt.Heap.SetLimits(rt.Limits{MaxObjects: opts.MaxObjects, MaxCells: opts.MaxCells})

	res, err := s.call(target.Source.Name, name, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "call failed", err)
	}
	formatter.VerboseLog("heap: %d live, %d cells, %d allocations, %d leaked",
		res.Heap.Live, res.Heap.Cells, res.Heap.Allocations, res.Heap.Leaked)

	if formatter.JSON() {
		if res.Error != nil {
			if err := formatter.encode(CLIResponse{Status: "error", Error: res.Error, Data: res}); err != nil {
				return err
			}
		} else if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		writeCallResult(formatter.Writer, res)
	}
	if res.Error != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("%s raised %s", name, res.Error.Code))
	}
	return nil
}

func writeCallResult(w io.Writer, res CallResult) {
	if res.Error != nil {
		fmt.Fprintf(w, "raise %s", res.Error.Code)
		if res.Error.Message != "" {
			fmt.Fprintf(w, ": %s", res.Error.Message)
		}
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, res.Result)
}

// parseArgs decodes a JSON array of call arguments. Numbers stay exact.
func parseArgs(text string) ([]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after argument array")
	}
	return args, nil
}

// session is a set of compiled modules bound into one runtime for a single
// entry kind.
type session struct {
	rt    *host.Runtime
	mods  []*loadedModule
	entry harness.Entry
}

func newSession(mods []*loadedModule, entry harness.Entry, opts ...host.Option) *session {
	s := &session{rt: host.NewRuntime(opts...), mods: mods, entry: entry}
	for _, m := range mods {
		if entry == harness.EntryInterp {
			s.rt.LoadInterpreted(m.Source)
		} else {
			m.Result.Module.Load(s.rt)
		}
	}
	return s
}

// call invokes module.name with Go arguments. A raised exception is part of
// the result; the error is reserved for calls that cannot be made.
func (s *session) call(module, name string, args []any) (CallResult, error) {
	res := CallResult{Module: module, Func: name, Entry: string(s.entry)}
	m, ok := findModule(s.mods, module)
	if !ok {
		return res, fmt.Errorf("unknown module %q", module)
	}
	if m.Source.Func(name) == nil {
		return res, fmt.Errorf("module %s has no function %q", module, name)
	}

	h := s.rt.Heap
	before := testutil.Snapshot(h)
	f := s.rt.NewFrame()
	words := make([]rt.Word, 0, len(args))
	release := func() {
		for _, w := range words {
			h.DecRef(w)
		}
	}
	for i, a := range args {
		w, err := host.FromGo(f, a)
		if err != nil {
			release()
			return res, fmt.Errorf("argument %d: %w", i, err)
		}
		words = append(words, w)
	}

	var out rt.Word
	switch s.entry {
	case harness.EntryNative:
		fn, ok := m.Result.Module.Program.Func(name)
		if !ok {
			release()
			return res, fmt.Errorf("%s.%s has no native entry", module, name)
		}
		var ran bool
		if out, ran = harness.CallNative(f, fn, words); !ran {
			release()
			return res, fmt.Errorf("arguments do not match %s", fn.Sig)
		}
	default:
		out = s.rt.CallGeneric(f, module, name, words)
	}
	release()

	if out == rt.ErrorSentinel {
		res.Error = &CLIError{Code: "SystemError", Message: "error returned without an exception set"}
		var re *rt.Error
		if errors.As(f.TakeError(), &re) {
			res.Error = &CLIError{Code: string(re.Code), Message: re.Message}
		}
	} else {
		res.Result = host.Repr(h, out)
		h.DecRef(out)
	}

	leaked, _ := before.Leaked()
	res.Heap = HeapStats{Live: h.Live(), Cells: h.Cells(), Allocations: h.Allocations(), Leaked: leaked}
	return res, nil
}
