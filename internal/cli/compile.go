package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/roach88/refc/internal/compiler"
	"github.com/roach88/refc/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // directory receiving <module>.c
	XZ     bool   // write <module>.c.xz instead
	Cache  string // build cache database
}

// FunctionStatus is the outcome for one function.
type FunctionStatus struct {
	Name      string `json:"name"`
	Compiled  bool   `json:"compiled"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Pos       string `json:"pos,omitempty"`
	IncRefs   int    `json:"inc_refs,omitempty"`
	DecRefs   int    `json:"dec_refs,omitempty"`
}

// ModuleReport is the outcome for one module.
type ModuleReport struct {
	Module      string           `json:"module"`
	File        string           `json:"file"`
	Fingerprint string           `json:"fingerprint"`
	Compiled    int              `json:"compiled"`
	Excluded    int              `json:"excluded"`
	Functions   []FunctionStatus `json:"functions"`
	Output      string           `json:"output,omitempty"`
	Size        int64            `json:"size,omitempty"`
	BuildID     string           `json:"build_id,omitempty"`
	Cached      bool             `json:"cached,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <module.cue|dir>...",
		Short: "Compile modules to C",
		Long: `Compile typed modules and emit one C file per module.

Each file holds the native and boundary entry of every compiled function,
the capsule table and the module init. Modules are compiled in argument
order; a module may call natively into any module listed before it.

Examples:
  refc compile sample.cue
  refc compile lib.cue app.cue -o build --xz
  refc compile ./modules --cache refc.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.XZ, "xz", false, "compress emitted C with xz")
	cmd.Flags().StringVar(&opts.Cache, "cache", "", "record builds in this SQLite cache")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mods, errs := loadModules(args, compiler.WithC())
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	var st *store.Store
	if opts.Cache != "" {
		var err error
		if st, err = store.Open(opts.Cache); err != nil {
			return WrapExitError(ExitCommandError, "failed to open cache", err)
		}
		defer st.Close()
	}

	if err := os.MkdirAll(opts.Output, 0755); err != nil {
		return outputError(formatter, ExitCommandError, "E007", fmt.Sprintf("creating output directory: %v", err))
	}

	reports := make([]ModuleReport, 0, len(mods))
	for _, m := range mods {
		rep := moduleReport(m)
		formatter.VerboseLog("Compiled %s: %d native, %d interpreted", rep.Module, rep.Compiled, rep.Excluded)

		path, size, err := writeC(opts.Output, rep.Module, m.Result.C, opts.XZ)
		if err != nil {
			return outputError(formatter, ExitCommandError, "E007", fmt.Sprintf("writing output file: %v", err))
		}
		rep.Output, rep.Size = path, size

		if st != nil {
			b, cached, err := recordBuild(ctx, st, m)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to record build", err)
			}
			rep.BuildID, rep.Cached = b.ID, cached
		}
		reports = append(reports, rep)
	}

	if formatter.JSON() {
		return formatter.Success(reports)
	}
	writeCompileText(formatter.Writer, reports)
	return nil
}

func moduleReport(m *loadedModule) ModuleReport {
	res := m.Result
	rep := ModuleReport{
		Module:      res.Module.Name,
		File:        m.Path,
		Fingerprint: res.Module.Capsule.Fingerprint,
		Compiled:    res.Compiled(),
		Excluded:    len(res.Diagnostics),
		Functions:   make([]FunctionStatus, 0, len(res.Functions)),
	}
	for _, f := range res.Functions {
		fs := FunctionStatus{Name: f.Name, Compiled: f.Compiled, Signature: f.Signature, Reason: f.Reason}
		if f.Compiled {
			fs.IncRefs, fs.DecRefs = f.Stats.IncRefs, f.Stats.DecRefs
		} else if f.Pos.IsValid() {
			fs.Pos = f.Pos.String()
		}
		rep.Functions = append(rep.Functions, fs)
	}
	return rep
}

// writeC writes the emitted C of module into dir and returns the path and
// the number of bytes written.
func writeC(dir, module string, src []byte, compress bool) (string, int64, error) {
	path := filepath.Join(dir, module+".c")
	if compress {
		path += ".xz"
	}
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	var w io.Writer = cw
	var xw *xz.Writer
	if compress {
		if xw, err = xz.NewWriter(cw); err != nil {
			return "", 0, fmt.Errorf("xz: %w", err)
		}
		w = xw
	}
	if _, err := w.Write(src); err != nil {
		return "", 0, err
	}
	if xw != nil {
		if err := xw.Close(); err != nil {
			return "", 0, fmt.Errorf("xz: %w", err)
		}
	}
	return path, cw.n, f.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// recordBuild returns the cached build for an unchanged module, or records a
// new one.
func recordBuild(ctx context.Context, st *store.Store, m *loadedModule) (store.Build, bool, error) {
	b, err := st.BuildForSource(ctx, m.Hash)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Build{}, false, err
	}
	b, err = st.SaveResult(ctx, m.Result, m.Hash)
	return b, false, err
}

func writeCompileText(w io.Writer, reports []ModuleReport) {
	fmt.Fprintf(w, "✓ Compiled %d module(s)\n\n", len(reports))
	for _, rep := range reports {
		fmt.Fprintf(w, "%s: %d native, %d interpreted", rep.Module, rep.Compiled, rep.Excluded)
		if rep.Output != "" {
			fmt.Fprintf(w, " → %s (%s)", rep.Output, units.HumanSize(float64(rep.Size)))
		}
		fmt.Fprintln(w)
		if rep.BuildID != "" {
			state := "recorded"
			if rep.Cached {
				state = "cached"
			}
			fmt.Fprintf(w, "  build %s (%s)\n", rep.BuildID, state)
		}
		writeFunctions(w, rep.Functions)
		fmt.Fprintln(w)
	}
}

func writeFunctions(w io.Writer, fns []FunctionStatus) {
	for _, f := range fns {
		if f.Compiled {
			fmt.Fprintf(w, "  ✓ %s\n", f.Signature)
			continue
		}
		fmt.Fprintf(w, "  ✗ %s (interpreted): %s\n", f.Name, f.Reason)
	}
}

// outputError reports a single error and returns it with the given exit
// code.
func outputError(formatter *OutputFormatter, exit int, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(exit, fmt.Sprintf("%s: %s", code, message), nil)
}
