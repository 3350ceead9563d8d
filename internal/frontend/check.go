package frontend

import (
	"fmt"
	"math/big"

	"cuelang.org/go/cue"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/types"
)

// checker resolves the static type of every expression of one function.
// Locals take the type of their declaration or, failing that, of their
// first assignment in source order.
type checker struct {
	module string
	def    *ast.FuncDef
	sigs   map[string]*ast.FuncDef
	scope  map[string]types.RType
}

func newChecker(module string, def *ast.FuncDef, sigs map[string]*ast.FuncDef) *checker {
	c := &checker{module: module, def: def, sigs: sigs, scope: map[string]types.RType{}}
	for _, p := range def.Params {
		c.scope[p.Name] = p.Type
	}
	for name, t := range def.Locals {
		if _, isParam := c.scope[name]; !isParam {
			c.scope[name] = t
		}
	}
	return c
}

func (c *checker) field(format string, args ...any) string {
	return fieldf(c.def.Name, format, args...)
}

func (c *checker) errorf(v cue.Value, kind, format string, args ...any) error {
	return &CompileError{Field: c.field("%s", kind), Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

func (c *checker) function(v cue.Value) error {
	bv := v.LookupPath(cue.ParsePath("body"))
	if !bv.Exists() {
		if c.def.Rejected != nil {
			return nil
		}
		return &CompileError{Field: c.field("body"), Message: "function body is required", Pos: v.Pos()}
	}
	body, err := c.block(bv)
	if err != nil {
		return err
	}
	c.def.Body = body
	return nil
}

func (c *checker) block(v cue.Value) ([]ast.Stmt, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ast.Stmt
	for iter.Next() {
		s, err := c.stmt(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// opaque reports whether x is outside the subset. Its type is unknown, so
// checks involving it are left to the compiler, which excludes the function.
func opaque(x ast.Expr) bool {
	_, ok := x.(*ast.UnsupportedExpr)
	return ok
}

func has(v cue.Value, key string) (cue.Value, bool) {
	f := v.LookupPath(cue.ParsePath(key))
	return f, f.Exists()
}

func (c *checker) stmt(v cue.Value) (ast.Stmt, error) {
	pos := position(v.Pos())
	if s, err := v.String(); err == nil {
		switch s {
		case "pass":
			return &ast.Pass{Pos: pos}, nil
		case "break":
			return &ast.Break{Pos: pos}, nil
		case "continue":
			return &ast.Continue{Pos: pos}, nil
		case "return":
			return c.ret(v, nil, pos)
		}
		return nil, c.errorf(v, "body", "unknown statement %q", s)
	}

	if tv, ok := has(v, "assign"); ok {
		target, err := tv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		val, err := c.required(v, "value")
		if err != nil {
			return nil, err
		}
		x, err := c.expr(val)
		if err != nil {
			return nil, err
		}
		if err := c.bind(tv, target, x.Type()); err != nil {
			return nil, err
		}
		return &ast.Assign{Target: target, Value: x, Pos: pos}, nil
	}
	if lv, ok := has(v, "store"); ok {
		l, err := c.expr(lv)
		if err != nil {
			return nil, err
		}
		at, err := c.requiredExpr(v, "at")
		if err != nil {
			return nil, err
		}
		val, err := c.requiredExpr(v, "value")
		if err != nil {
			return nil, err
		}
		return &ast.IndexAssign{List: l, Index: at, Value: val, Pos: pos}, nil
	}
	if cv, ok := has(v, "cond"); ok {
		cond, err := c.expr(cv)
		if err != nil {
			return nil, err
		}
		s := &ast.If{Cond: cond, Pos: pos}
		if tv, ok := has(v, "then"); ok {
			if s.Then, err = c.block(tv); err != nil {
				return nil, err
			}
		}
		if ev, ok := has(v, "else"); ok {
			if s.Else, err = c.block(ev); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if wv, ok := has(v, "while"); ok {
		cond, err := c.expr(wv)
		if err != nil {
			return nil, err
		}
		s := &ast.While{Cond: cond, Pos: pos}
		if bv, ok := has(v, "body"); ok {
			if s.Body, err = c.block(bv); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	if ev, ok := has(v, "eval"); ok {
		x, err := c.expr(ev)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: x, Pos: pos}, nil
	}
	if rv, ok := has(v, "return"); ok {
		if rv.Kind() == cue.NullKind {
			return c.ret(v, nil, pos)
		}
		x, err := c.expr(rv)
		if err != nil {
			return nil, err
		}
		return c.ret(rv, x, pos)
	}
	if uv, ok := has(v, "unsupported"); ok {
		us, err := c.unsupported(v, uv)
		if err != nil {
			return nil, err
		}
		return &ast.UnsupportedStmt{Unsupported: *us}, nil
	}
	return nil, c.errorf(v, "body", "unknown statement")
}

func (c *checker) ret(v cue.Value, x ast.Expr, pos ast.Pos) (ast.Stmt, error) {
	t := types.None
	if x != nil {
		t = x.Type()
	}
	if !t.AssignableTo(c.def.Return) && !opaque(x) {
		return nil, c.errorf(v, "type", "returning %s from function declared to return %s", t, c.def.Return)
	}
	return &ast.Return{Value: x, Pos: pos}, nil
}

// bind records the type of an assignment target.
func (c *checker) bind(v cue.Value, name string, t types.RType) error {
	prev, ok := c.scope[name]
	if !ok {
		c.scope[name] = t
		c.def.Locals[name] = t
		return nil
	}
	if !t.AssignableTo(prev) {
		return c.errorf(v, "type", "cannot assign %s to %q of type %s", t, name, prev)
	}
	return nil
}

func (c *checker) required(v cue.Value, key string) (cue.Value, error) {
	f, ok := has(v, key)
	if !ok {
		return f, c.errorf(v, "body", "%s is required", key)
	}
	return f, nil
}

func (c *checker) requiredExpr(v cue.Value, key string) (ast.Expr, error) {
	f, err := c.required(v, key)
	if err != nil {
		return nil, err
	}
	return c.expr(f)
}

func (c *checker) unsupported(v, construct cue.Value) (*ast.Unsupported, error) {
	s, err := construct.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	us := &ast.Unsupported{Construct: s, Reason: "not in the compiled subset", Pos: position(v.Pos())}
	if rv, ok := has(v, "reason"); ok {
		if us.Reason, err = rv.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return us, nil
}

var (
	binaryOps  = map[string]ast.BinaryOperator{"+": ast.Add, "-": ast.Sub, "*": ast.Mul, "//": ast.FloorDiv, "%": ast.Mod}
	compareOps = map[string]ast.CompareOperator{"<": ast.Lt, "<=": ast.Le, ">": ast.Gt, ">=": ast.Ge, "==": ast.Eq, "!=": ast.Ne}
	boolOps    = map[string]ast.BoolOperator{"and": ast.And, "or": ast.Or}
)

func (c *checker) expr(v cue.Value) (ast.Expr, error) {
	pos := position(v.Pos())
	switch v.Kind() {
	case cue.IntKind:
		i, err := v.Int(new(big.Int))
		if err != nil {
			return nil, formatCUEError(err)
		}
		return &ast.IntLit{Value: i, Pos: pos}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return &ast.BoolLit{Value: b, Pos: pos}, nil
	case cue.NullKind:
		return &ast.NoneLit{Pos: pos}, nil
	case cue.StringKind:
		id, _ := v.String()
		t, ok := c.scope[id]
		if !ok {
			return nil, c.errorf(v, "name", "name %q is not defined", id)
		}
		return &ast.Name{Id: id, Typ: t, Pos: pos}, nil
	case cue.StructKind:
		return c.compound(v, pos)
	case cue.FloatKind:
		return &ast.UnsupportedExpr{Unsupported: ast.Unsupported{Construct: "float literal", Reason: "floats are not in the compiled subset", Pos: pos}}, nil
	}
	return nil, c.errorf(v, "body", "cannot use %v as an expression", v.Kind())
}

func (c *checker) compound(v cue.Value, pos ast.Pos) (ast.Expr, error) {
	if ov, ok := has(v, "op"); ok {
		return c.operator(v, ov, pos)
	}
	if fv, ok := has(v, "call"); ok {
		return c.call(v, fv, pos)
	}
	if lv, ok := has(v, "list"); ok {
		return c.list(v, lv, pos)
	}
	if lv, ok := has(v, "get"); ok {
		l, err := c.listExpr(lv)
		if err != nil {
			return nil, err
		}
		at, err := c.requiredExpr(v, "at")
		if err != nil {
			return nil, err
		}
		return &ast.Index{List: l, Index: at, Typ: l.Type().ElemType(), Pos: pos}, nil
	}
	if lv, ok := has(v, "len"); ok {
		l, err := c.listExpr(lv)
		if err != nil {
			return nil, err
		}
		return &ast.Len{X: l, Pos: pos}, nil
	}
	if lv, ok := has(v, "append"); ok {
		l, err := c.listExpr(lv)
		if err != nil {
			return nil, err
		}
		item, err := c.requiredExpr(v, "item")
		if err != nil {
			return nil, err
		}
		return &ast.Append{List: l, Item: item, Pos: pos}, nil
	}
	if uv, ok := has(v, "unsupported"); ok {
		us, err := c.unsupported(v, uv)
		if err != nil {
			return nil, err
		}
		return &ast.UnsupportedExpr{Unsupported: *us}, nil
	}
	return nil, c.errorf(v, "body", "unknown expression")
}

func (c *checker) listExpr(v cue.Value) (ast.Expr, error) {
	l, err := c.expr(v)
	if err != nil {
		return nil, err
	}
	if _, ok := l.(*ast.UnsupportedExpr); ok {
		return l, nil
	}
	if !l.Type().IsList() {
		return nil, c.errorf(v, "type", "expected a list, got %s", l.Type())
	}
	return l, nil
}

func (c *checker) operator(v, ov cue.Value, pos ast.Pos) (ast.Expr, error) {
	op, err := ov.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if xv, ok := has(v, "x"); ok {
		x, err := c.expr(xv)
		if err != nil {
			return nil, err
		}
		switch op {
		case "not":
			return &ast.UnaryOp{Op: ast.Not, X: x, Typ: types.Bool, Pos: pos}, nil
		case "-":
			if opaque(x) {
				return x, nil
			}
			if !x.Type().Equal(types.Int) {
				return nil, c.errorf(v, "type", "bad operand type for unary -: %s", x.Type())
			}
			return &ast.UnaryOp{Op: ast.Neg, X: x, Typ: types.Int, Pos: pos}, nil
		}
		return nil, c.errorf(ov, "body", "unknown unary operator %q", op)
	}

	l, err := c.requiredExpr(v, "l")
	if err != nil {
		return nil, err
	}
	r, err := c.requiredExpr(v, "r")
	if err != nil {
		return nil, err
	}
	if bop, ok := boolOps[op]; ok {
		return &ast.BoolOp{Op: bop, Left: l, Right: r, Pos: pos}, nil
	}
	if cop, ok := compareOps[op]; ok {
		return &ast.Compare{Op: cop, Left: l, Right: r, Pos: pos}, nil
	}
	bop, ok := binaryOps[op]
	if !ok {
		return nil, c.errorf(ov, "body", "unknown operator %q", op)
	}
	if opaque(l) {
		return l, nil
	}
	if opaque(r) {
		return r, nil
	}
	lt, rt := l.Type(), r.Type()
	switch {
	case lt.Equal(types.Int) && rt.Equal(types.Int):
		return &ast.BinOp{Op: bop, Left: l, Right: r, Typ: types.Int, Pos: pos}, nil
	case bop == ast.Mul && lt.IsList() && rt.Equal(types.Int):
		return &ast.BinOp{Op: bop, Left: l, Right: r, Typ: lt, Pos: pos}, nil
	case bop == ast.Mul && lt.Equal(types.Int) && rt.IsList():
		return &ast.BinOp{Op: bop, Left: l, Right: r, Typ: rt, Pos: pos}, nil
	}
	return nil, c.errorf(v, "type", "unsupported operand types for %s: %s and %s", op, lt, rt)
}

func (c *checker) call(v, fv cue.Value, pos ast.Pos) (ast.Expr, error) {
	name, err := fv.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	call := &ast.Call{Func: name, Pos: pos}
	if mv, ok := has(v, "module"); ok {
		if call.Module, err = mv.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if call.Module == c.module {
			call.Module = ""
		}
	}
	if av, ok := has(v, "args"); ok {
		iter, err := av.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			a, err := c.expr(iter.Value())
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, a)
		}
	}

	if call.Module == "" {
		target, ok := c.sigs[name]
		if !ok {
			return nil, c.errorf(fv, "name", "function %q is not defined in module %s", name, c.module)
		}
		if len(call.Args) != len(target.Params) {
			return nil, c.errorf(v, "type", "%s() takes %d arguments but %d were given", name, len(target.Params), len(call.Args))
		}
		for i, a := range call.Args {
			if !a.Type().AssignableTo(target.Params[i].Type) && !opaque(a) {
				return nil, c.errorf(v, "type", "argument %d of %s() must be %s, not %s", i+1, name, target.Params[i].Type, a.Type())
			}
		}
		call.Typ = target.Return
		return call, nil
	}

	rv, ok := has(v, "returns")
	if !ok {
		return nil, c.errorf(v, "type", "call into module %s needs a declared return type", call.Module)
	}
	t, err := parseType(rv, c.field("call"))
	if err != nil {
		return nil, err
	}
	call.Typ = t
	return call, nil
}

func (c *checker) list(v, lv cue.Value, pos ast.Pos) (ast.Expr, error) {
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var elems []ast.Expr
	for iter.Next() {
		e, err := c.expr(iter.Value())
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}

	var elem types.RType
	if ev, ok := has(v, "elem"); ok {
		if elem, err = parseType(ev, c.field("list")); err != nil {
			return nil, err
		}
	} else if len(elems) > 0 {
		elem = elems[0].Type()
	} else {
		return nil, c.errorf(v, "type", "empty list needs an elem type")
	}
	for _, e := range elems {
		if !e.Type().AssignableTo(elem) && !opaque(e) {
			return nil, c.errorf(v, "type", "list[%s] cannot hold %s", elem, e.Type())
		}
	}
	return &ast.ListLit{Elems: elems, Typ: types.List(elem), Pos: pos}, nil
}
