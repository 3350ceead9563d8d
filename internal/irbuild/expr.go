package irbuild

import (
	"fmt"
	"math/big"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/types"
)

var binaryKinds = map[ast.BinaryOperator]ir.BinaryKind{
	ast.Add:      ir.Add,
	ast.Sub:      ir.Sub,
	ast.Mul:      ir.Mul,
	ast.FloorDiv: ir.FloorDiv,
	ast.Mod:      ir.Mod,
}

var compareKinds = map[ast.CompareOperator]ir.CompareKind{
	ast.Lt: ir.Lt,
	ast.Le: ir.Le,
	ast.Gt: ir.Gt,
	ast.Ge: ir.Ge,
	ast.Eq: ir.Eq,
	ast.Ne: ir.Ne,
}

func (b *builder) expr(e ast.Expr) (*ir.Value, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		dst := b.temp(types.Int)
		b.emit(&ir.LoadInt{Dst: dst, Value: e.Value})
		return dst, nil
	case *ast.BoolLit:
		dst := b.temp(types.Bool)
		b.emit(&ir.LoadBool{Dst: dst, Value: e.Value})
		return dst, nil
	case *ast.NoneLit:
		dst := b.temp(types.None)
		b.emit(&ir.LoadNone{Dst: dst})
		return dst, nil
	case *ast.Name:
		return b.name(e)
	case *ast.BinOp:
		return b.binOp(e)
	case *ast.UnaryOp:
		return b.unaryOp(e)
	case *ast.Compare:
		return b.compare(e)
	case *ast.BoolOp:
		return b.boolOp(e)
	case *ast.Call:
		return b.call(e)
	case *ast.ListLit:
		return b.listLit(e)
	case *ast.Index:
		l, err := b.list(e.List, "indexing")
		if err != nil {
			return nil, err
		}
		i, err := b.index(e.Index)
		if err != nil {
			return nil, err
		}
		obj := b.temp(types.Object)
		b.emit(&ir.ListGet{Dst: obj, List: l, Index: i})
		return b.coerce(obj, l.Type.ElemType())
	case *ast.Len:
		l, err := b.list(e.X, "len()")
		if err != nil {
			return nil, err
		}
		dst := b.temp(types.Int)
		b.emit(&ir.ListLen{Dst: dst, List: l})
		return dst, nil
	case *ast.Append:
		return b.append(e)
	case *ast.UnsupportedExpr:
		return nil, b.unsupported(&e.Unsupported)
	}
	return nil, b.unsupportedAt(e.Position(), fmt.Sprintf("expression %T", e), "")
}

func (b *builder) name(e *ast.Name) (*ir.Value, error) {
	v, ok := b.vars[e.Id]
	if !ok {
		return nil, b.unsupportedAt(e.Pos, "non-local name", fmt.Sprintf("%q is not a parameter or local", e.Id))
	}
	if !b.defined[e.Id] {
		return nil, b.unsupportedAt(e.Pos, "possibly undefined local", fmt.Sprintf("%q may be read before assignment", e.Id))
	}
	return v, nil
}

func (b *builder) list(e ast.Expr, what string) (*ir.Value, error) {
	l, err := b.expr(e)
	if err != nil {
		return nil, err
	}
	if !l.Type.IsList() {
		return nil, b.unsupportedAt(e.Position(), what, fmt.Sprintf("operand has type %s", l.Type))
	}
	return l, nil
}

func (b *builder) index(e ast.Expr) (*ir.Value, error) {
	i, err := b.expr(e)
	if err != nil {
		return nil, err
	}
	if i.Type.Kind != types.KindInt {
		return nil, b.unsupportedAt(e.Position(), "list index", fmt.Sprintf("index has type %s", i.Type))
	}
	return i, nil
}

func (b *builder) operands(l, r ast.Expr) (*ir.Value, *ir.Value, error) {
	lv, err := b.expr(l)
	if err != nil {
		return nil, nil, err
	}
	rv, err := b.expr(r)
	if err != nil {
		return nil, nil, err
	}
	return lv, rv, nil
}

func (b *builder) binOp(e *ast.BinOp) (*ir.Value, error) {
	lv, rv, err := b.operands(e.Left, e.Right)
	if err != nil {
		return nil, err
	}
	if e.IsRepeat() {
		if !lv.Type.IsList() {
			lv, rv = rv, lv
		}
		if rv.Type.Kind != types.KindInt {
			return nil, b.unsupportedAt(e.Pos, "list repeat", fmt.Sprintf("count has type %s", rv.Type))
		}
		dst := b.temp(lv.Type)
		b.emit(&ir.ListRepeat{Dst: dst, List: lv, Count: rv})
		return dst, nil
	}
	kind, ok := binaryKinds[e.Op]
	if !ok {
		return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("operator %s", e.Op), "")
	}
	if lv.Type.Kind != types.KindInt || rv.Type.Kind != types.KindInt {
		return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("operator %s", e.Op), fmt.Sprintf("operands %s and %s", lv.Type, rv.Type))
	}
	dst := b.temp(types.Int)
	b.emit(&ir.BinaryOp{Dst: dst, Op: kind, Left: lv, Right: rv})
	return dst, nil
}

func (b *builder) unaryOp(e *ast.UnaryOp) (*ir.Value, error) {
	switch e.Op {
	case ast.Not:
		x, err := b.truthy(e.X)
		if err != nil {
			return nil, err
		}
		dst := b.temp(types.Bool)
		b.emit(&ir.UnaryOp{Dst: dst, Op: ir.Not, X: x})
		return dst, nil
	case ast.Neg:
		x, err := b.expr(e.X)
		if err != nil {
			return nil, err
		}
		if x.Type.Kind != types.KindInt {
			return nil, b.unsupportedAt(e.Pos, "unary -", fmt.Sprintf("operand has type %s", x.Type))
		}
		dst := b.temp(types.Int)
		b.emit(&ir.UnaryOp{Dst: dst, Op: ir.Neg, X: x})
		return dst, nil
	}
	return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("operator %s", e.Op), "")
}

func (b *builder) compare(e *ast.Compare) (*ir.Value, error) {
	kind, ok := compareKinds[e.Op]
	if !ok {
		return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("comparison %s", e.Op), "")
	}
	lv, rv, err := b.operands(e.Left, e.Right)
	if err != nil {
		return nil, err
	}
	scalar := lv.Type.Kind == types.KindInt || lv.Type.Kind == types.KindBool
	if !scalar || !lv.Type.Equal(rv.Type) {
		return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("comparison %s", e.Op), fmt.Sprintf("operands %s and %s", lv.Type, rv.Type))
	}
	dst := b.temp(types.Bool)
	b.emit(&ir.Compare{Dst: dst, Op: kind, Left: lv, Right: rv})
	return dst, nil
}

// boolOp lowers and/or to branches so the right operand is evaluated only
// when the left one does not decide the result.
func (b *builder) boolOp(e *ast.BoolOp) (*ir.Value, error) {
	if e.Op != ast.And && e.Op != ast.Or {
		return nil, b.unsupportedAt(e.Pos, fmt.Sprintf("operator %s", e.Op), "")
	}
	res := b.fn.NewRegister(b.uniqueName("__"+string(e.Op)), types.Bool)
	l, err := b.truthy(e.Left)
	if err != nil {
		return nil, err
	}
	b.emit(&ir.Assign{Dst: res, Src: l})
	right := b.fn.NewBlock()
	done := b.fn.NewBlock()
	if e.Op == ast.And {
		b.terminate(&ir.Branch{Kind: ir.BranchBool, Cond: l, Then: right, Else: done})
	} else {
		b.terminate(&ir.Branch{Kind: ir.BranchBool, Cond: l, Then: done, Else: right})
	}
	b.cur = right
	r, err := b.truthy(e.Right)
	if err != nil {
		return nil, err
	}
	b.emit(&ir.Assign{Dst: res, Src: r})
	b.terminate(&ir.Goto{Target: done})
	b.cur = done
	return res, nil
}

// truthy evaluates e as a condition.
func (b *builder) truthy(e ast.Expr) (*ir.Value, error) {
	v, err := b.expr(e)
	if err != nil {
		return nil, err
	}
	switch v.Type.Kind {
	case types.KindBool:
		return v, nil
	case types.KindInt:
		return b.nonZero(v), nil
	case types.KindList:
		n := b.temp(types.Int)
		b.emit(&ir.ListLen{Dst: n, List: v})
		return b.nonZero(n), nil
	case types.KindNone:
		dst := b.temp(types.Bool)
		b.emit(&ir.LoadBool{Dst: dst})
		return dst, nil
	}
	return nil, b.unsupportedAt(e.Position(), "truth value", fmt.Sprintf("operand has type %s", v.Type))
}

func (b *builder) nonZero(v *ir.Value) *ir.Value {
	zero := b.temp(types.Int)
	b.emit(&ir.LoadInt{Dst: zero, Value: new(big.Int)})
	dst := b.temp(types.Bool)
	b.emit(&ir.Compare{Dst: dst, Op: ir.Ne, Left: v, Right: zero})
	return dst
}

func (b *builder) call(e *ast.Call) (*ir.Value, error) {
	module := e.Module
	if module == "" {
		module = b.module
	}
	args := make([]*ir.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := b.expr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	var dst *ir.Value
	if sig, ok := b.resolver.Native(module, e.Func); ok {
		if len(args) != len(sig.Params) {
			return nil, b.unsupportedAt(e.Pos, "call", fmt.Sprintf("%s takes %d arguments, got %d", sig.QualifiedName(), len(sig.Params), len(args)))
		}
		for i, a := range args {
			v, err := b.coerce(a, sig.Params[i])
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		dst = b.temp(sig.Return)
		b.emit(&ir.Call{Dst: dst, Target: sig, Args: args})
	} else {
		for i, a := range args {
			v, err := b.coerce(a, types.Object)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		dst = b.temp(types.Object)
		b.emit(&ir.CallGeneric{Dst: dst, Module: module, Name: e.Func, Args: args})
	}
	if !e.Typ.IsValid() {
		return dst, nil
	}
	return b.coerce(dst, e.Typ)
}

func (b *builder) listLit(e *ast.ListLit) (*ir.Value, error) {
	t := e.Typ
	if !t.IsList() || !t.IsValid() {
		t = types.List(types.Object)
	}
	items := make([]*ir.Value, len(e.Elems))
	for i, el := range e.Elems {
		v, err := b.expr(el)
		if err != nil {
			return nil, err
		}
		if !v.Type.AssignableTo(t.ElemType()) {
			return nil, b.unsupportedAt(el.Position(), "list element", fmt.Sprintf("%s in %s", v.Type, t))
		}
		items[i] = v
	}
	for i, v := range items {
		boxed, err := b.coerce(v, types.Object)
		if err != nil {
			return nil, err
		}
		items[i] = boxed
	}
	dst := b.temp(t)
	b.emit(&ir.ListNew{Dst: dst, Items: items})
	return dst, nil
}

func (b *builder) append(e *ast.Append) (*ir.Value, error) {
	l, err := b.list(e.List, "append()")
	if err != nil {
		return nil, err
	}
	v, err := b.expr(e.Item)
	if err != nil {
		return nil, err
	}
	if !v.Type.AssignableTo(l.Type.ElemType()) {
		return nil, b.unsupportedAt(e.Pos, "append()", fmt.Sprintf("%s appended to %s", v.Type, l.Type))
	}
	item, err := b.coerce(v, types.Object)
	if err != nil {
		return nil, err
	}
	dst := b.temp(types.None)
	b.emit(&ir.ListAppend{Dst: dst, List: l, Item: item})
	return dst, nil
}
