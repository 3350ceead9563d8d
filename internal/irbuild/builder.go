// Package irbuild translates type-checked functions into IR.
//
// The builder is a faithful, total function over the supported subset and
// performs no optimization. Anything else fails with *UnsupportedFeature.
package irbuild

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/types"
)

type loop struct {
	header, exit *ir.BasicBlock
}

type builder struct {
	module   string
	def      *ast.FuncDef
	fn       *ir.Function
	resolver Resolver

	cur      *ir.BasicBlock // nil after a terminator
	vars     map[string]*ir.Value
	defined  map[string]bool
	names    map[string]bool
	errBlock *ir.BasicBlock
	loops    []loop
	pos      ast.Pos
}

// Build translates one function of module into IR. Calls bind to native
// entries where r allows it and go through the host otherwise.
func Build(module string, def *ast.FuncDef, r Resolver) (*ir.Function, error) {
	b := &builder{
		module:   module,
		def:      def,
		resolver: r,
		vars:     map[string]*ir.Value{},
		defined:  map[string]bool{},
		names:    map[string]bool{},
		pos:      def.Pos,
	}
	if def.Rejected != nil {
		return nil, b.unsupported(def.Rejected)
	}
	if err := b.begin(); err != nil {
		return nil, err
	}
	if err := b.stmts(def.Body); err != nil {
		return nil, err
	}
	if b.cur != nil {
		b.fallOff()
	}
	b.fn.RemoveUnreachable()
	if errs := ir.Validate(b.fn); len(errs) > 0 {
		return nil, fmt.Errorf("irbuild: %s: invalid IR: %w", b.fn.Sig.QualifiedName(), errs[0])
	}
	return b.fn, nil
}

func (b *builder) begin() error {
	params, ret := b.def.Signature()
	names := make([]string, len(b.def.Params))
	for i, p := range b.def.Params {
		if !p.Type.IsValid() {
			return b.unsupportedAt(p.Pos, "parameter type", fmt.Sprintf("parameter %q has no supported type", p.Name))
		}
		names[i] = p.Name
		b.names[p.Name] = true
	}
	if !ret.IsValid() {
		return b.unsupportedAt(b.def.Pos, "return type", "")
	}
	for name := range b.def.Locals {
		b.names[name] = true
	}

	sig := ir.Signature{Module: b.module, Name: b.def.Name, Params: params, Return: ret}
	b.fn = ir.NewFunction(sig, names)
	b.cur = b.fn.NewBlock()

	// Params are borrowed and never written; a param the body assigns gets
	// a local register initialised from it.
	assigned := map[string]bool{}
	collectAssigned(b.def.Body, assigned)
	for i, p := range b.def.Params {
		v := b.fn.Params[i]
		b.vars[p.Name] = v
		b.defined[p.Name] = true
		if assigned[p.Name] {
			reg := b.fn.NewRegister(b.uniqueName(p.Name+"_local"), p.Type)
			b.emit(&ir.Assign{Dst: reg, Src: v})
			b.vars[p.Name] = reg
		}
	}
	for _, name := range slices.Sorted(maps.Keys(b.def.Locals)) {
		if _, isParam := b.vars[name]; isParam {
			continue
		}
		t := b.def.Locals[name]
		if !t.IsValid() {
			return b.unsupportedAt(b.def.Pos, "local variable type", fmt.Sprintf("local %q has no supported type", name))
		}
		b.vars[name] = b.fn.NewRegister(name, t)
	}
	return nil
}

func collectAssigned(stmts []ast.Stmt, out map[string]bool) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.Assign:
			out[s.Target] = true
		case *ast.If:
			collectAssigned(s.Then, out)
			collectAssigned(s.Else, out)
		case *ast.While:
			collectAssigned(s.Body, out)
		}
	}
}

func (b *builder) uniqueName(base string) string {
	name := base
	for i := 1; b.names[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	b.names[name] = true
	return name
}

// block returns the current block, opening a fresh one after a terminator
// so that statements following return/break still build. Such blocks are
// unreachable and removed at the end.
func (b *builder) block() *ir.BasicBlock {
	if b.cur == nil {
		b.cur = b.fn.NewBlock()
	}
	return b.cur
}

func (b *builder) temp(t types.RType) *ir.Value { return b.fn.NewTemp(t) }

// emit appends op and, if it can fail, an error check on its result.
func (b *builder) emit(op ir.Op) {
	ir.SetLine(op, b.pos.Line)
	blk := b.block()
	blk.Ops = append(blk.Ops, op)
	if op.CanFail() {
		next := b.fn.NewBlock()
		b.terminate(&ir.Branch{Kind: ir.BranchIsError, Cond: op.Dest(), Then: b.errorBlock(), Else: next})
		b.cur = next
	}
}

func (b *builder) terminate(t ir.Terminator) {
	ir.SetLine(t, b.pos.Line)
	blk := b.block()
	blk.Ops = append(blk.Ops, t)
	b.cur = nil
}

func (b *builder) errorBlock() *ir.BasicBlock {
	if b.errBlock == nil {
		b.errBlock = b.fn.NewBlock()
		b.errBlock.Ops = append(b.errBlock.Ops, &ir.Return{})
	}
	return b.errBlock
}

func (b *builder) fallOff() {
	if b.fn.Sig.Return.Kind == types.KindNone {
		v := b.temp(types.None)
		b.emit(&ir.LoadNone{Dst: v})
		b.terminate(&ir.Return{Value: v})
		return
	}
	b.terminate(&ir.Unreachable{Reason: "missing return statement"})
}

func (b *builder) unsupported(u *ast.Unsupported) error {
	return &UnsupportedFeature{Module: b.module, Func: b.def.Name, Construct: u.Construct, Reason: u.Reason, Pos: u.Pos}
}

func (b *builder) unsupportedAt(pos ast.Pos, construct, reason string) error {
	return &UnsupportedFeature{Module: b.module, Func: b.def.Name, Construct: construct, Reason: reason, Pos: pos}
}

// coerce converts v to type t, boxing into object or unboxing out of it.
func (b *builder) coerce(v *ir.Value, t types.RType) (*ir.Value, error) {
	switch {
	case v.Type.Equal(t):
		return v, nil
	case t.Kind == types.KindObject:
		dst := b.temp(types.Object)
		b.emit(&ir.Box{Dst: dst, Src: v})
		return dst, nil
	case v.Type.Kind == types.KindObject:
		dst := b.temp(t)
		b.emit(&ir.Unbox{Dst: dst, Src: v})
		return dst, nil
	}
	return nil, b.unsupportedAt(b.pos, "implicit conversion", fmt.Sprintf("%s to %s", v.Type, t))
}

func asUnsupported(module, fn string, err error) *UnsupportedFeature {
	var uf *UnsupportedFeature
	if errors.As(err, &uf) {
		return uf
	}
	return &UnsupportedFeature{Module: module, Func: fn, Construct: "function", Reason: err.Error()}
}
