// Package testutil provides builders for typed ASTs used across package
// tests, and a few canonical sample modules.
package testutil

import (
	"math/big"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/types"
)

// Func builds a function definition. Locals are inferred from the
// assignment statements in body, so tests only spell out expressions.
func Func(name string, params []ast.Param, ret types.RType, body ...ast.Stmt) *ast.FuncDef {
	def := &ast.FuncDef{Name: name, Params: params, Return: ret, Body: body, Locals: map[string]types.RType{}}
	isParam := map[string]bool{}
	for _, p := range params {
		isParam[p.Name] = true
	}
	var walk func([]ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			switch s := s.(type) {
			case *ast.Assign:
				if !isParam[s.Target] {
					def.Locals[s.Target] = s.Value.Type()
				}
			case *ast.If:
				walk(s.Then)
				walk(s.Else)
			case *ast.While:
				walk(s.Body)
			}
		}
	}
	walk(body)
	return def
}

// Params builds a parameter list from alternating names and types.
func Params(nameTypes ...any) []ast.Param {
	var ps []ast.Param
	for i := 0; i+1 < len(nameTypes); i += 2 {
		ps = append(ps, ast.Param{Name: nameTypes[i].(string), Type: nameTypes[i+1].(types.RType)})
	}
	return ps
}

// Module builds a module.
func Module(name string, funcs ...*ast.FuncDef) *ast.Module {
	return &ast.Module{Name: name, Funcs: funcs}
}

func Int(v int64) *ast.IntLit { return &ast.IntLit{Value: big.NewInt(v)} }

// BigInt parses a decimal literal.
func BigInt(s string) *ast.IntLit {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("testutil: bad integer literal " + s)
	}
	return &ast.IntLit{Value: v}
}

func Bool(v bool) *ast.BoolLit { return &ast.BoolLit{Value: v} }

func None() *ast.NoneLit { return &ast.NoneLit{} }

func Name(id string, t types.RType) *ast.Name { return &ast.Name{Id: id, Typ: t} }

// Bin builds an arithmetic expression, or a list repeat when op is * and
// one side is a list.
func Bin(op ast.BinaryOperator, l, r ast.Expr) *ast.BinOp {
	t := types.Int
	if op == ast.Mul && l.Type().IsList() {
		t = l.Type()
	} else if op == ast.Mul && r.Type().IsList() {
		t = r.Type()
	}
	return &ast.BinOp{Op: op, Left: l, Right: r, Typ: t}
}

func Cmp(op ast.CompareOperator, l, r ast.Expr) *ast.Compare {
	return &ast.Compare{Op: op, Left: l, Right: r}
}

func And(l, r ast.Expr) *ast.BoolOp { return &ast.BoolOp{Op: ast.And, Left: l, Right: r} }

func Or(l, r ast.Expr) *ast.BoolOp { return &ast.BoolOp{Op: ast.Or, Left: l, Right: r} }

func Not(x ast.Expr) *ast.UnaryOp { return &ast.UnaryOp{Op: ast.Not, X: x, Typ: types.Bool} }

func Neg(x ast.Expr) *ast.UnaryOp { return &ast.UnaryOp{Op: ast.Neg, X: x, Typ: types.Int} }

// Call calls fn in the current module.
func Call(fn string, ret types.RType, args ...ast.Expr) *ast.Call {
	return &ast.Call{Func: fn, Args: args, Typ: ret}
}

// CallIn calls fn in another module.
func CallIn(module, fn string, ret types.RType, args ...ast.Expr) *ast.Call {
	return &ast.Call{Module: module, Func: fn, Args: args, Typ: ret}
}

// List builds a list literal of type t.
func List(t types.RType, elems ...ast.Expr) *ast.ListLit {
	return &ast.ListLit{Elems: elems, Typ: t}
}

func Index(l, i ast.Expr) *ast.Index {
	return &ast.Index{List: l, Index: i, Typ: l.Type().ElemType()}
}

func Len(x ast.Expr) *ast.Len { return &ast.Len{X: x} }

func Append(l, item ast.Expr) *ast.Append { return &ast.Append{List: l, Item: item} }

func Assign(target string, v ast.Expr) *ast.Assign { return &ast.Assign{Target: target, Value: v} }

func SetItem(l, i, v ast.Expr) *ast.IndexAssign {
	return &ast.IndexAssign{List: l, Index: i, Value: v}
}

func If(cond ast.Expr, then []ast.Stmt, els ...ast.Stmt) *ast.If {
	return &ast.If{Cond: cond, Then: then, Else: els}
}

func While(cond ast.Expr, body ...ast.Stmt) *ast.While { return &ast.While{Cond: cond, Body: body} }

func Return(v ast.Expr) *ast.Return { return &ast.Return{Value: v} }

func Expr(x ast.Expr) *ast.ExprStmt { return &ast.ExprStmt{X: x} }

func Break() *ast.Break { return &ast.Break{} }

func Continue() *ast.Continue { return &ast.Continue{} }

func Pass() *ast.Pass { return &ast.Pass{} }

// Unsupported builds a statement outside the subset at the given line.
func Unsupported(construct string, line int) *ast.UnsupportedStmt {
	return &ast.UnsupportedStmt{Unsupported: ast.Unsupported{
		Construct: construct,
		Reason:    "not in the compiled subset",
		Pos:       ast.Pos{File: "test.cue", Line: line, Col: 1},
	}}
}
