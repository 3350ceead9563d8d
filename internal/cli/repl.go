package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/refc/internal/harness"
	"github.com/roach88/refc/internal/host"
)

const replPrompt = "\033[32mrefc>\033[0m "

// ReplOptions holds flags for the repl command.
type ReplOptions struct {
	*RootOptions
	Entry   string
	Imports []string
	History string
}

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repl <module.cue>",
		Short: "Call functions of a module interactively",
		Long: `Load a module and read calls from the terminal, one per line:

  fact [20]
  total [[1, 2, 3]]
  lib.add [1, 2]

Commands:
  :funcs       list functions and how they run
  :ir <func>   print the refcounted IR of a compiled function
  :heap        print heap statistics
  :quit        leave`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entry, "entry", string(harness.EntryBoundary), "entry to call (interp|boundary|native)")
	cmd.Flags().StringSliceVar(&opts.Imports, "import", nil, "module compiled before the target (repeatable)")
	cmd.Flags().StringVar(&opts.History, "history", filepath.Join(".", ".refc-history"), "history file")

	return cmd
}

func runRepl(opts *ReplOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mods, errs := loadModules(append(slices.Clone(opts.Imports), path))
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}
	r, err := newRepl(mods, harness.Entry(opts.Entry))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --entry", err)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       opts.History,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start line editor", err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	return r.loop(l, cmd.OutOrStdout())
}

// lineReader is the part of readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
}

// repl evaluates call lines against a session.
type repl struct {
	s       *session
	current string // module of unqualified calls
}

func newRepl(mods []*loadedModule, entry harness.Entry) (*repl, error) {
	if !slices.Contains(harness.AllEntries, entry) {
		return nil, fmt.Errorf("unknown entry %q", entry)
	}
	s := newSession(mods, entry, host.WithLogger(slog.Default()))
	return &repl{s: s, current: mods[len(mods)-1].Source.Name}, nil
}

func (r *repl) loop(l lineReader, w io.Writer) error {
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := r.eval(line, w); quit {
			return nil
		}
	}
}

// eval runs one line and reports whether the session should end.
func (r *repl) eval(line string, w io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	name, rest, _ := strings.Cut(line, " ")
	switch name {
	case ":quit", ":q":
		return true
	case ":funcs":
		for _, m := range r.s.mods {
			writeFunctions(w, moduleReport(m).Functions)
		}
		return false
	case ":heap":
		h := r.s.rt.Heap
		fmt.Fprintf(w, "%d live, %d cells, %d allocations\n", h.Live(), h.Cells(), h.Allocations())
		return false
	case ":ir":
		r.printIR(strings.TrimSpace(rest), w)
		return false
	}
	if strings.HasPrefix(name, ":") {
		fmt.Fprintf(w, "unknown command %s\n", name)
		return false
	}

	module, fn := r.qualify(name)
	args, err := parseArgs(rest)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return false
	}
	res, err := r.s.call(module, fn, args)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return false
	}
	writeCallResult(w, res)
	if res.Heap.Leaked != 0 {
		fmt.Fprintf(w, "warning: %+d objects leaked\n", res.Heap.Leaked)
	}
	return false
}

func (r *repl) printIR(name string, w io.Writer) {
	module, fn := r.qualify(name)
	m, ok := findModule(r.s.mods, module)
	if !ok {
		fmt.Fprintf(w, "error: unknown module %q\n", module)
		return
	}
	rep, ok := m.Result.Report(fn)
	switch {
	case !ok:
		fmt.Fprintf(w, "error: module %s has no function %q\n", module, fn)
	case !rep.Compiled:
		fmt.Fprintf(w, "%s is interpreted: %s\n", fn, rep.Reason)
	default:
		fmt.Fprint(w, rep.IR)
		if !strings.HasSuffix(rep.IR, "\n") {
			fmt.Fprintln(w)
		}
	}
}

// qualify splits "module.func"; a bare name refers to the current module.
func (r *repl) qualify(name string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return r.current, name
}
