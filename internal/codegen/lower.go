// Package codegen turns reference-counted IR into executable code.
//
// Every function gets two entry points. The native entry takes and returns
// unboxed words and is what compiled code calls directly. The boundary entry
// implements the host's generic calling protocol: it validates arguments,
// unboxes them, calls the native entry and boxes the result.
//
// Lowering produces Go closures over a per-call register file; EmitC renders
// the same program as C text for inspection.
package codegen

import (
	"fmt"
	"sort"

	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/rt"
	"github.com/roach88/refc/internal/types"
)

// NativeFunc is a native entry. Arguments are borrowed; the result is owned,
// or rt.ErrorSentinel with an exception pending on f.
type NativeFunc func(f *rt.Frame, args []rt.Word) rt.Word

// Linker resolves direct calls into other compiled modules.
type Linker interface {
	NativeEntry(sig ir.Signature) (NativeFunc, bool)
}

// LinkError reports a direct call that could not be bound.
type LinkError struct {
	Caller string
	Target ir.Signature
	Reason string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %s", e.Caller, e.Target, e.Reason)
}

// Program is one lowered module.
type Program struct {
	Module string
	funcs  []*Func
	byName map[string]*Func
}

// Func is one lowered function.
type Func struct {
	Sig ir.Signature
	IR  *ir.Function

	nvals  int
	blocks []block
}

type frame struct {
	f    *rt.Frame
	h    *rt.Heap
	regs []rt.Word
}

type instr func(fr *frame)

// term returns the index of the next block, or done with the result.
type term func(fr *frame) (next int, result rt.Word, done bool)

type block struct {
	instrs []instr
	term   term
}

// Lower lowers the functions of one module. Every function must already be
// reference counted. Direct calls resolve first within the module and then
// through imports, which may be nil.
func Lower(module string, fns []*ir.Function, imports Linker) (*Program, error) {
	p := &Program{Module: module, byName: make(map[string]*Func, len(fns))}
	for _, fn := range fns {
		if !fn.RefCounted {
			return nil, fmt.Errorf("lower %s: function has not been reference counted", fn.Name())
		}
		if fn.Sig.Module != module {
			return nil, fmt.Errorf("lower %s: function belongs to module %q", fn.Name(), fn.Sig.Module)
		}
		lf := &Func{Sig: fn.Sig, IR: fn, nvals: fn.NumValues()}
		p.funcs = append(p.funcs, lf)
		p.byName[fn.Sig.Name] = lf
	}
	for _, lf := range p.funcs {
		l := &lowerer{prog: p, imports: imports, fn: lf.IR}
		blocks, err := l.lower()
		if err != nil {
			return nil, err
		}
		lf.blocks = blocks
	}
	return p, nil
}

// Funcs returns the lowered functions in definition order.
func (p *Program) Funcs() []*Func { return p.funcs }

// Func returns the lowered function called name.
func (p *Program) Func(name string) (*Func, bool) {
	f, ok := p.byName[name]
	return f, ok
}

// Names returns the function names in sorted order.
func (p *Program) Names() []string {
	names := make([]string, 0, len(p.byName))
	for n := range p.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NativeEntry implements Linker for modules importing p. The signature must
// match exactly.
func (p *Program) NativeEntry(sig ir.Signature) (NativeFunc, bool) {
	f, ok := p.byName[sig.Name]
	if !ok || sig.Module != p.Module || !sameSignature(f.Sig, sig) {
		return nil, false
	}
	return f.Native, true
}

func sameSignature(a, b ir.Signature) bool {
	if len(a.Params) != len(b.Params) || !a.Return.Equal(b.Return) {
		return false
	}
	for i := range a.Params {
		if !a.Params[i].Equal(b.Params[i]) {
			return false
		}
	}
	return true
}

// Native runs the native entry.
func (fn *Func) Native(f *rt.Frame, args []rt.Word) rt.Word {
	if len(args) != len(fn.Sig.Params) {
		rt.Abort(f.Heap, fmt.Sprintf("native call of %s with %d arguments", fn.Sig.QualifiedName(), len(args)), rt.None)
	}
	if !f.Enter() {
		return rt.ErrorSentinel
	}
	defer f.Leave()

	fr := &frame{f: f, h: f.Heap, regs: make([]rt.Word, fn.nvals)}
	copy(fr.regs, args)
	b := 0
	for {
		blk := &fn.blocks[b]
		for _, in := range blk.instrs {
			in(fr)
		}
		next, res, done := blk.term(fr)
		if done {
			return res
		}
		b = next
	}
}

type lowerer struct {
	prog    *Program
	imports Linker
	fn      *ir.Function
	index   map[*ir.BasicBlock]int
}

func (l *lowerer) lower() ([]block, error) {
	l.index = make(map[*ir.BasicBlock]int, len(l.fn.Blocks))
	for i, b := range l.fn.Blocks {
		l.index[b] = i
	}
	out := make([]block, len(l.fn.Blocks))
	for i, b := range l.fn.Blocks {
		body := b.Body()
		out[i].instrs = make([]instr, 0, len(body))
		for _, op := range body {
			in, err := l.op(op)
			if err != nil {
				return nil, err
			}
			out[i].instrs = append(out[i].instrs, in)
		}
		t, err := l.term(b.Terminator())
		if err != nil {
			return nil, err
		}
		out[i].term = t
	}
	return out, nil
}

func ids(vs []*ir.Value) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}

func gather(fr *frame, ids []int) []rt.Word {
	out := make([]rt.Word, len(ids))
	for i, id := range ids {
		out[i] = fr.regs[id]
	}
	return out
}

func (l *lowerer) op(op ir.Op) (instr, error) {
	switch o := op.(type) {
	case *ir.LoadInt:
		d := o.Dst.ID
		if ir.IsShortLiteral(o.Value) {
			w := rt.FromShort(o.Value.Int64())
			return func(fr *frame) { fr.regs[d] = w }, nil
		}
		v := o.Value
		return func(fr *frame) { fr.regs[d] = rt.IntFromBig(fr.f, v) }, nil
	case *ir.LoadBool:
		d, w := o.Dst.ID, rt.NativeBool(o.Value)
		return func(fr *frame) { fr.regs[d] = w }, nil
	case *ir.LoadNone:
		d := o.Dst.ID
		return func(fr *frame) { fr.regs[d] = rt.None }, nil
	case *ir.BinaryOp:
		return binary(o)
	case *ir.UnaryOp:
		d, x := o.Dst.ID, o.X.ID
		if o.Op == ir.Not {
			return func(fr *frame) { fr.regs[d] = fr.regs[x] ^ rt.NativeTrue }, nil
		}
		return func(fr *frame) { fr.regs[d] = rt.IntNeg(fr.f, fr.regs[x]) }, nil
	case *ir.Compare:
		return compare(o)
	case *ir.Call:
		return l.call(o)
	case *ir.CallGeneric:
		d, args, module, name := o.Dst.ID, ids(o.Args), o.Module, o.Name
		return func(fr *frame) {
			fr.regs[d] = fr.f.CallGeneric(module, name, gather(fr, args))
		}, nil
	case *ir.ListNew:
		d, items := o.Dst.ID, ids(o.Items)
		return func(fr *frame) { fr.regs[d] = rt.ListNew(fr.f, gather(fr, items)) }, nil
	case *ir.ListGet:
		d, ls, i := o.Dst.ID, o.List.ID, o.Index.ID
		return func(fr *frame) { fr.regs[d] = rt.ListGet(fr.f, fr.regs[ls], fr.regs[i]) }, nil
	case *ir.ListSet:
		d, ls, i, v := o.Dst.ID, o.List.ID, o.Index.ID, o.Item.ID
		return func(fr *frame) { fr.regs[d] = rt.ListSet(fr.f, fr.regs[ls], fr.regs[i], fr.regs[v]) }, nil
	case *ir.ListAppend:
		d, ls, v := o.Dst.ID, o.List.ID, o.Item.ID
		return func(fr *frame) { fr.regs[d] = rt.ListAppend(fr.f, fr.regs[ls], fr.regs[v]) }, nil
	case *ir.ListLen:
		d, ls := o.Dst.ID, o.List.ID
		return func(fr *frame) { fr.regs[d] = rt.ListLen(fr.h, fr.regs[ls]) }, nil
	case *ir.ListRepeat:
		d, ls, n := o.Dst.ID, o.List.ID, o.Count.ID
		return func(fr *frame) { fr.regs[d] = rt.ListRepeat(fr.f, fr.regs[ls], fr.regs[n]) }, nil
	case *ir.Box:
		d, s, t := o.Dst.ID, o.Src.ID, o.Src.Type
		return func(fr *frame) { fr.regs[d] = rt.Box(fr.f, t, fr.regs[s]) }, nil
	case *ir.Unbox:
		d, s, t := o.Dst.ID, o.Src.ID, o.Dst.Type
		return func(fr *frame) { fr.regs[d] = rt.Unbox(fr.f, t, fr.regs[s]) }, nil
	case *ir.Assign:
		d, s := o.Dst.ID, o.Src.ID
		return func(fr *frame) { fr.regs[d] = fr.regs[s] }, nil
	case *ir.IncRef:
		v := o.V.ID
		return func(fr *frame) { fr.h.IncRef(fr.regs[v]) }, nil
	case *ir.DecRef:
		v := o.V.ID
		return func(fr *frame) { fr.h.DecRef(fr.regs[v]) }, nil
	}
	return nil, fmt.Errorf("lower %s: unexpected op %T", l.fn.Name(), op)
}

func binary(o *ir.BinaryOp) (instr, error) {
	var prim func(f *rt.Frame, a, b rt.Word) rt.Word
	switch o.Op {
	case ir.Add:
		prim = rt.IntAdd
	case ir.Sub:
		prim = rt.IntSub
	case ir.Mul:
		prim = rt.IntMul
	case ir.FloorDiv:
		prim = rt.IntFloorDiv
	case ir.Mod:
		prim = rt.IntMod
	default:
		return nil, fmt.Errorf("unknown binary operator %d", o.Op)
	}
	d, a, b := o.Dst.ID, o.Left.ID, o.Right.ID
	return func(fr *frame) { fr.regs[d] = prim(fr.f, fr.regs[a], fr.regs[b]) }, nil
}

func compare(o *ir.Compare) (instr, error) {
	d, a, b := o.Dst.ID, o.Left.ID, o.Right.ID
	if o.Left.Type.Kind == types.KindBool {
		// Native bools are 0 and 1, so word order is value order.
		var test func(x, y rt.Word) bool
		switch o.Op {
		case ir.Lt:
			test = func(x, y rt.Word) bool { return x < y }
		case ir.Le:
			test = func(x, y rt.Word) bool { return x <= y }
		case ir.Gt:
			test = func(x, y rt.Word) bool { return x > y }
		case ir.Ge:
			test = func(x, y rt.Word) bool { return x >= y }
		case ir.Eq:
			test = func(x, y rt.Word) bool { return x == y }
		case ir.Ne:
			test = func(x, y rt.Word) bool { return x != y }
		default:
			return nil, fmt.Errorf("unknown comparison %d", o.Op)
		}
		return func(fr *frame) { fr.regs[d] = rt.NativeBool(test(fr.regs[a], fr.regs[b])) }, nil
	}

	var test func(h *rt.Heap, x, y rt.Word) bool
	switch o.Op {
	case ir.Lt:
		test = rt.IntLt
	case ir.Le:
		test = rt.IntLe
	case ir.Gt:
		test = func(h *rt.Heap, x, y rt.Word) bool { return rt.IntLt(h, y, x) }
	case ir.Ge:
		test = func(h *rt.Heap, x, y rt.Word) bool { return rt.IntLe(h, y, x) }
	case ir.Eq:
		test = rt.IntEq
	case ir.Ne:
		test = func(h *rt.Heap, x, y rt.Word) bool { return !rt.IntEq(h, x, y) }
	default:
		return nil, fmt.Errorf("unknown comparison %d", o.Op)
	}
	return func(fr *frame) { fr.regs[d] = rt.NativeBool(test(fr.h, fr.regs[a], fr.regs[b])) }, nil
}

func (l *lowerer) call(o *ir.Call) (instr, error) {
	d, args := o.Dst.ID, ids(o.Args)
	if o.Target.Module == l.prog.Module {
		callee, ok := l.prog.byName[o.Target.Name]
		if !ok {
			return nil, &LinkError{Caller: l.fn.Name(), Target: o.Target, Reason: "no such function in module"}
		}
		if !sameSignature(callee.Sig, o.Target) {
			return nil, &LinkError{Caller: l.fn.Name(), Target: o.Target, Reason: "signature mismatch with " + callee.Sig.String()}
		}
		return func(fr *frame) { fr.regs[d] = callee.Native(fr.f, gather(fr, args)) }, nil
	}
	if l.imports == nil {
		return nil, &LinkError{Caller: l.fn.Name(), Target: o.Target, Reason: "no imports available"}
	}
	native, ok := l.imports.NativeEntry(o.Target)
	if !ok {
		return nil, &LinkError{Caller: l.fn.Name(), Target: o.Target, Reason: "not exported by any imported module"}
	}
	return func(fr *frame) { fr.regs[d] = native(fr.f, gather(fr, args)) }, nil
}

func (l *lowerer) term(t ir.Terminator) (term, error) {
	switch o := t.(type) {
	case *ir.Goto:
		next := l.index[o.Target]
		return func(*frame) (int, rt.Word, bool) { return next, 0, false }, nil
	case *ir.Branch:
		c, then, els := o.Cond.ID, l.index[o.Then], l.index[o.Else]
		if o.Kind == ir.BranchIsError {
			return func(fr *frame) (int, rt.Word, bool) {
				if fr.regs[c] == rt.ErrorSentinel {
					return then, 0, false
				}
				return els, 0, false
			}, nil
		}
		return func(fr *frame) (int, rt.Word, bool) {
			if fr.regs[c] != rt.NativeFalse {
				return then, 0, false
			}
			return els, 0, false
		}, nil
	case *ir.Return:
		if o.IsError() {
			return func(*frame) (int, rt.Word, bool) { return 0, rt.ErrorSentinel, true }, nil
		}
		v := o.Value.ID
		return func(fr *frame) (int, rt.Word, bool) { return 0, fr.regs[v], true }, nil
	case *ir.Unreachable:
		msg := fmt.Sprintf("unreachable code reached in %s", l.fn.Name())
		if o.Reason != "" {
			msg += ": " + o.Reason
		}
		return func(fr *frame) (int, rt.Word, bool) {
			rt.Abort(fr.h, msg, rt.None)
			return 0, rt.ErrorSentinel, true
		}, nil
	}
	return nil, fmt.Errorf("lower %s: unexpected terminator %T", l.fn.Name(), t)
}
