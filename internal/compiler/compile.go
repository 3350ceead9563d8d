// Package compiler drives a module through the pipeline: IR building with
// per-function exclusion, reference-count insertion and verification,
// lowering to native and boundary entries, and optional C emission.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/codegen"
	"github.com/roach88/refc/internal/extmod"
	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/irbuild"
	"github.com/roach88/refc/internal/refcount"
)

// Options controls one compilation.
type Options struct {
	// ModuleName overrides the name declared by the source module.
	ModuleName string
	// EmitC renders the C form of the module into Result.C.
	EmitC bool
	// Imports are capsules of modules compiled earlier; calls into them
	// become direct native calls.
	Imports []*extmod.Capsule
	// KeepRawIR stores each function's IR text before refcount insertion.
	KeepRawIR bool
}

// Option adjusts Options.
type Option func(*Options)

// WithCapsule adds an imported capsule.
func WithCapsule(c *extmod.Capsule) Option {
	return func(o *Options) { o.Imports = append(o.Imports, c) }
}

// WithC requests C emission.
func WithC() Option {
	return func(o *Options) { o.EmitC = true }
}

// WithRawIR keeps the IR text from before refcount insertion.
func WithRawIR() Option {
	return func(o *Options) { o.KeepRawIR = true }
}

// NewOptions applies opts to the zero Options.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FunctionReport describes the outcome for one source function.
type FunctionReport struct {
	Name     string
	Compiled bool
	// Reason and Pos are set for excluded functions.
	Reason string
	Pos    ast.Pos

	Signature   string
	Fingerprint string // of the native signature
	IRHash      string // of the refcounted body
	Ops         int
	Stats       refcount.Stats
	RawIR       string
	IR          string
}

// Result is a compiled module plus its diagnostics.
type Result struct {
	Module      *extmod.Module
	C           []byte
	Functions   []FunctionReport
	Diagnostics []*irbuild.UnsupportedFeature
}

// Compiled returns the number of natively compiled functions.
func (r *Result) Compiled() int { return len(r.Module.Program.Funcs()) }

// Report returns the report for name.
func (r *Result) Report(name string) (FunctionReport, bool) {
	for _, f := range r.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionReport{}, false
}

// InternalError reports a defect in the compiler itself: malformed IR, an
// unbalanced refcount placement or an unlinkable call.
type InternalError struct {
	Module string
	Func   string
	Err    error
}

func (e *InternalError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("internal compiler error in %s.%s: %v", e.Module, e.Func, e.Err)
	}
	return fmt.Sprintf("internal compiler error in %s: %v", e.Module, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Compile compiles src. Unsupported constructs never fail the compilation;
// they exclude functions and are reported in Result.Diagnostics.
func Compile(src *ast.Module, opts Options) (*Result, error) {
	m := src
	if opts.ModuleName != "" && opts.ModuleName != src.Name {
		clone := *src
		clone.Name = opts.ModuleName
		m = &clone
	}

	var (
		resolver irbuild.Resolver
		linker   codegen.Linker
	)
	if len(opts.Imports) > 0 {
		im, err := extmod.NewImports(opts.Imports...)
		if err != nil {
			return nil, err
		}
		resolver, linker = im, im
	}

	built := irbuild.BuildModule(m, resolver)
	res := &Result{Diagnostics: built.Excluded}
	reports := make(map[string]*FunctionReport, len(m.Funcs))

	for _, fn := range built.Functions {
		rep := &FunctionReport{Name: fn.Name(), Compiled: true, Signature: fn.Sig.String()}
		if errs := ir.Validate(fn); len(errs) > 0 {
			return nil, &InternalError{Module: m.Name, Func: fn.Name(), Err: errs[0]}
		}
		if opts.KeepRawIR {
			rep.RawIR = ir.Format(fn)
		}
		st, err := refcount.Run(fn)
		if err != nil {
			return nil, &InternalError{Module: m.Name, Func: fn.Name(), Err: err}
		}
		if errs := ir.Validate(fn); len(errs) > 0 {
			return nil, &InternalError{Module: m.Name, Func: fn.Name(), Err: errs[0]}
		}
		rep.Stats = st
		rep.IR = ir.Format(fn)
		rep.Ops = ir.CountOps(fn, func(ir.Op) bool { return true })
		rep.Fingerprint = ir.SignatureFingerprint(fn.Sig)
		rep.IRHash = ir.FunctionFingerprint(fn)
		reports[fn.Name()] = rep
		slog.Debug("function built",
			"module", m.Name,
			"func", fn.Name(),
			"ops", rep.Ops,
			"inc_refs", st.IncRefs,
			"dec_refs", st.DecRefs)
	}
	for _, uf := range built.Excluded {
		reports[uf.Func] = &FunctionReport{Name: uf.Func, Reason: uf.Error(), Pos: uf.Pos}
	}
	for _, def := range m.Funcs {
		if rep, ok := reports[def.Name]; ok {
			res.Functions = append(res.Functions, *rep)
		}
	}

	prog, err := codegen.Lower(m.Name, built.Functions, linker)
	if err != nil {
		return nil, &InternalError{Module: m.Name, Err: err}
	}
	res.Module = extmod.New(m, prog, built.Excluded)
	if opts.EmitC {
		res.C = codegen.EmitC(prog)
	}

	slog.Info("module compiled",
		"module", m.Name,
		"compiled", len(built.Functions),
		"excluded", len(built.Excluded),
		"fingerprint", res.Module.Capsule.Fingerprint)
	return res, nil
}
