package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/refc/internal/codegen"
	"github.com/roach88/refc/internal/compiler"
	"github.com/roach88/refc/internal/extmod"
	"github.com/roach88/refc/internal/frontend"
	"github.com/roach88/refc/internal/host"
	"github.com/roach88/refc/internal/rt"
	"github.com/roach88/refc/internal/testutil"
)

// Harness executes calls against one set of compiled modules. The
// interpreter and the compiled modules live on separate runtimes so a leak
// on one side cannot mask the other.
type Harness struct {
	interp   *host.Runtime
	compiled *host.Runtime
	result   *Result
	first    string // default module of calls
	seq      int
	logger   *slog.Logger
}

// outcome is what one entry produced for a call.
type outcome struct {
	repr  string
	code  rt.ErrorCode
	msg   string
	ran   bool
	leaks []string
}

// abortPanic carries an rt.Abort out of a call.
type abortPanic string

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Load and compile every module, importing earlier capsules
// 2. Load the sources interpreted on one runtime and the compiled modules on another
// 3. Run every call on its entries, comparing outcome and heap balance
// 4. Evaluate assertions
//
// An error is returned when the scenario cannot be set up; call mismatches
// are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with diagnostics written to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	h := &Harness{
		interp:   host.NewRuntime(host.WithLogger(logger)),
		compiled: host.NewRuntime(host.WithLogger(logger)),
		result:   NewResult(),
		logger:   logger,
	}
	if err := h.load(scenario.Modules); err != nil {
		return nil, err
	}

	prev := rt.SetAbortHandler(func(msg string) { panic(abortPanic(msg)) })
	defer rt.SetAbortHandler(prev)

	for i, c := range scenario.Calls {
		h.call(i, c)
	}
	for _, a := range scenario.Assertions {
		if err := h.assert(a); err != nil {
			h.result.AddError("%s", err.Error())
		}
	}

	logger.Info("scenario finished",
		"scenario", scenario.Name,
		"calls", len(scenario.Calls),
		"events", len(h.result.Trace),
		"pass", h.result.Pass)
	return h.result, nil
}

func (h *Harness) load(paths []string) error {
	var caps []*extmod.Capsule
	for _, p := range paths {
		src, err := frontend.LoadFile(p)
		if err != nil {
			return fmt.Errorf("load module %s: %w", p, err)
		}
		opts := compiler.NewOptions(compiler.WithC())
		opts.Imports = append(opts.Imports, caps...)
		res, err := compiler.Compile(src, opts)
		if err != nil {
			return fmt.Errorf("compile module %s: %w", p, err)
		}
		if _, dup := h.result.Modules[src.Name]; dup {
			return fmt.Errorf("module %s is listed twice", src.Name)
		}
		h.result.Modules[src.Name] = res
		if h.first == "" {
			h.first = src.Name
		}
		caps = append(caps, res.Module.Capsule)

		h.interp.LoadInterpreted(src)
		res.Module.Load(h.compiled)
	}
	return nil
}

func (h *Harness) call(index int, c Call) {
	module := c.Module
	if module == "" {
		module = h.first
	}
	res, ok := h.result.Modules[module]
	if !ok {
		h.result.AddError("calls[%d]: unknown module %q", index, module)
		return
	}
	if res.Module.Source.Func(c.Func) == nil {
		h.result.AddError("calls[%d]: module %s has no function %q", index, module, c.Func)
		return
	}

	args := make([]any, len(c.Args))
	reprs := make([]string, len(c.Args))
	for i := range c.Args {
		v, _ := nodeValue(&c.Args[i]) // validated on load
		args[i] = v
		reprs[i] = host.ReprGo(v)
	}
	want := expectation(c.Expect)

	entries := c.Entries
	explicit := len(entries) > 0
	if !explicit {
		entries = AllEntries
	}
	qualified := module + "." + c.Func
	for _, entry := range entries {
		if entry == EntryNative && !res.Module.IsCompiled(c.Func) {
			if explicit {
				h.result.AddError("calls[%d]: %s has no native entry", index, qualified)
			}
			continue
		}
		got, err := h.invoke(entry, res, module, c.Func, args)
		if err != nil {
			h.result.AddError("calls[%d] %s on %s: %v", index, qualified, entry, err)
			continue
		}
		if !got.ran {
			continue
		}

		h.seq++
		ev := TraceEvent{Seq: h.seq, Func: qualified, Entry: entry, Args: strings.Join(reprs, ", ")}
		if got.code != "" {
			ev.Error = string(got.code)
		} else {
			ev.Result = got.repr
		}
		h.result.Trace = append(h.result.Trace, ev)

		if g := got.describe(); g != want {
			if got.msg != "" {
				g += " (" + got.msg + ")"
			}
			h.result.AddError("calls[%d] %s(%s) on %s: got %s, want %s", index, qualified, ev.Args, entry, g, want)
		}
		for _, leak := range got.leaks {
			h.result.AddError("calls[%d] %s on %s: %s", index, qualified, entry, leak)
		}
	}
}

func expectation(e Expect) string {
	if e.Error != "" {
		return "raise " + e.Error
	}
	v, _ := nodeValue(&e.Result)
	return host.ReprGo(v)
}

func (o outcome) describe() string {
	if o.code != "" {
		return "raise " + string(o.code)
	}
	return o.repr
}

// invoke runs one call on one entry. The arguments are built and released
// inside the heap snapshot, so any reference left behind is a leak.
func (h *Harness) invoke(entry Entry, res *compiler.Result, module, name string, args []any) (out outcome, err error) {
	r := h.compiled
	if entry == EntryInterp {
		r = h.interp
	}
	before := testutil.Snapshot(r.Heap)
	f := r.NewFrame()

	defer func() {
		if p := recover(); p != nil {
			msg, ok := p.(abortPanic)
			if !ok {
				panic(p)
			}
			// The heap is no longer trustworthy after an abort.
			err = fmt.Errorf("aborted: %s", msg)
		}
	}()

	words := make([]rt.Word, 0, len(args))
	for _, a := range args {
		w, err := host.FromGo(f, a)
		if err != nil {
			releaseAll(r.Heap, words)
			return out, fmt.Errorf("argument %d: %w", len(words)+1, err)
		}
		words = append(words, w)
	}

	var w rt.Word
	switch entry {
	case EntryInterp, EntryBoundary:
		w = r.CallGeneric(f, module, name, words)
		out.ran = true
	case EntryNative:
		fn, _ := res.Module.Program.Func(name)
		w, out.ran = CallNative(f, fn, words)
	}
	releaseAll(r.Heap, words)

	if out.ran {
		if w == rt.ErrorSentinel {
			out.code, out.msg = pending(f)
		} else {
			out.repr = host.Repr(r.Heap, w)
			r.Heap.DecRef(w)
		}
	}
	if f.Depth != 0 {
		out.leaks = append(out.leaks, fmt.Sprintf("frame depth %d after return", f.Depth))
	}
	if objects, cells := before.Leaked(); objects != 0 || cells != 0 {
		out.leaks = append(out.leaks, fmt.Sprintf("heap imbalance: %+d objects, %+d list cells", objects, cells))
	}
	if out.ran {
		h.logger.Debug("call",
			"func", module+"."+name,
			"entry", entry,
			"result", out.describe())
	}
	return out, nil
}

func pending(f *rt.Frame) (rt.ErrorCode, string) {
	var re *rt.Error
	if !errors.As(f.TakeError(), &re) {
		return "SystemError", "error returned without an exception set"
	}
	return re.Code, re.Message
}

// CallNative drives the native entry directly: arguments are unboxed to
// their native form and the result is boxed back. It does not run when an
// argument does not match its parameter type, since native code trusts its
// caller.
func CallNative(f *rt.Frame, fn *codegen.Func, args []rt.Word) (rt.Word, bool) {
	params := fn.Sig.Params
	if len(args) != len(params) {
		return rt.ErrorSentinel, false
	}
	for i, p := range params {
		if !rt.CheckType(f.Heap, args[i], p) {
			return rt.ErrorSentinel, false
		}
	}
	native := make([]rt.Word, len(args))
	for i, p := range params {
		native[i] = rt.Unbox(f, p, args[i])
		if native[i] == rt.ErrorSentinel {
			releaseAll(f.Heap, native[:i])
			return rt.ErrorSentinel, true
		}
	}
	res := fn.Native(f, native)
	releaseAll(f.Heap, native)
	if res == rt.ErrorSentinel {
		return res, true
	}
	boxed := rt.Box(f, fn.Sig.Return, res)
	f.Heap.DecRef(res)
	return boxed, true
}

func releaseAll(h *rt.Heap, ws []rt.Word) {
	for _, w := range ws {
		h.DecRef(w)
	}
}
