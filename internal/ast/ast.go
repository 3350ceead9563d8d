// Package ast is the typed-source input contract.
//
// A Module is what the type checker hands to the compiler: functions whose
// parameter, return and expression types are fully resolved, or explicit
// Unsupported markers where the checker met a construct outside the subset.
// Nothing in this package validates types; that already happened upstream.
package ast

import (
	"fmt"
	"math/big"

	"github.com/roach88/refc/internal/types"
)

// Pos is a source location.
type Pos struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

// IsValid reports whether the position carries a line.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		if p.File != "" {
			return p.File
		}
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Module is one compilation unit as seen by the host import system.
type Module struct {
	Name  string
	Funcs []*FuncDef
	// Unsupported holds module-level constructs outside the subset. Any entry
	// excludes the whole module from native compilation.
	Unsupported []*Unsupported
	Pos         Pos
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *FuncDef {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Param is a function parameter with its declared type.
type Param struct {
	Name string
	Type types.RType
	Pos  Pos
}

// FuncDef is a type-checked function definition.
type FuncDef struct {
	Name   string
	Params []Param
	Return types.RType
	Body   []Stmt
	// Locals maps local variable names to their declared types.
	Locals map[string]types.RType
	// Rejected is set when the checker refused the whole function.
	Rejected *Unsupported
	Pos      Pos
}

// Signature returns the parameter types and return type.
func (f *FuncDef) Signature() ([]types.RType, types.RType) {
	params := make([]types.RType, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return params, f.Return
}

// Unsupported marks a construct the checker recognised but the subset excludes.
type Unsupported struct {
	Construct string
	Reason    string
	Pos       Pos
}

// Node is implemented by statements and expressions.
type Node interface {
	Position() Pos
}

// Stmt is a statement.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression with a resolved static type.
type Expr interface {
	Node
	Type() types.RType
	expr()
}

type (
	// Assign binds a local variable: Target = Value.
	Assign struct {
		Target string
		Value  Expr
		Pos    Pos
	}

	// IndexAssign stores into a list slot: List[Index] = Value.
	IndexAssign struct {
		List  Expr
		Index Expr
		Value Expr
		Pos   Pos
	}

	// If is a two-way conditional. Else may be empty.
	If struct {
		Cond Expr
		Then []Stmt
		Else []Stmt
		Pos  Pos
	}

	// While re-evaluates Cond before every iteration.
	While struct {
		Cond Expr
		Body []Stmt
		Pos  Pos
	}

	// ExprStmt evaluates X for its effects.
	ExprStmt struct {
		X   Expr
		Pos Pos
	}

	// Return leaves the function. Value is nil for a bare return.
	Return struct {
		Value Expr
		Pos   Pos
	}

	Pass     struct{ Pos Pos }
	Break    struct{ Pos Pos }
	Continue struct{ Pos Pos }

	// UnsupportedStmt is a statement the subset does not cover.
	UnsupportedStmt struct {
		Unsupported
	}
)

func (s *Assign) Position() Pos          { return s.Pos }
func (s *IndexAssign) Position() Pos     { return s.Pos }
func (s *If) Position() Pos              { return s.Pos }
func (s *While) Position() Pos           { return s.Pos }
func (s *ExprStmt) Position() Pos        { return s.Pos }
func (s *Return) Position() Pos          { return s.Pos }
func (s *Pass) Position() Pos            { return s.Pos }
func (s *Break) Position() Pos           { return s.Pos }
func (s *Continue) Position() Pos        { return s.Pos }
func (s *UnsupportedStmt) Position() Pos { return s.Pos }

func (*Assign) stmt()          {}
func (*IndexAssign) stmt()     {}
func (*If) stmt()              {}
func (*While) stmt()           {}
func (*ExprStmt) stmt()        {}
func (*Return) stmt()          {}
func (*Pass) stmt()            {}
func (*Break) stmt()           {}
func (*Continue) stmt()        {}
func (*UnsupportedStmt) stmt() {}

// BinaryOperator is an arithmetic operator.
type BinaryOperator string

const (
	Add      BinaryOperator = "+"
	Sub      BinaryOperator = "-"
	Mul      BinaryOperator = "*"
	FloorDiv BinaryOperator = "//"
	Mod      BinaryOperator = "%"
)

// CompareOperator is a comparison operator.
type CompareOperator string

const (
	Lt CompareOperator = "<"
	Le CompareOperator = "<="
	Gt CompareOperator = ">"
	Ge CompareOperator = ">="
	Eq CompareOperator = "=="
	Ne CompareOperator = "!="
)

// BoolOperator is a short-circuit operator.
type BoolOperator string

const (
	And BoolOperator = "and"
	Or  BoolOperator = "or"
)

// UnaryOperator is a prefix operator.
type UnaryOperator string

const (
	Neg UnaryOperator = "-"
	Not UnaryOperator = "not"
)

type (
	IntLit struct {
		Value *big.Int
		Pos   Pos
	}

	BoolLit struct {
		Value bool
		Pos   Pos
	}

	NoneLit struct{ Pos Pos }

	// Name reads a parameter or local variable.
	Name struct {
		Id  string
		Typ types.RType
		Pos Pos
	}

	// BinOp is integer arithmetic, or list repeat when one side is a list
	// and Op is Mul.
	BinOp struct {
		Op    BinaryOperator
		Left  Expr
		Right Expr
		Typ   types.RType
		Pos   Pos
	}

	UnaryOp struct {
		Op  UnaryOperator
		X   Expr
		Typ types.RType
		Pos Pos
	}

	Compare struct {
		Op    CompareOperator
		Left  Expr
		Right Expr
		Pos   Pos
	}

	// BoolOp evaluates Right only when Left does not decide the result.
	BoolOp struct {
		Op    BoolOperator
		Left  Expr
		Right Expr
		Pos   Pos
	}

	// Call invokes Module.Func. An empty Module means the current module.
	Call struct {
		Module string
		Func   string
		Args   []Expr
		Typ    types.RType
		Pos    Pos
	}

	ListLit struct {
		Elems []Expr
		Typ   types.RType
		Pos   Pos
	}

	Index struct {
		List  Expr
		Index Expr
		Typ   types.RType
		Pos   Pos
	}

	Len struct {
		X   Expr
		Pos Pos
	}

	// Append is list.append(item); its value is None.
	Append struct {
		List Expr
		Item Expr
		Pos  Pos
	}

	// UnsupportedExpr is an expression the subset does not cover.
	UnsupportedExpr struct {
		Unsupported
	}
)

func (e *IntLit) Position() Pos          { return e.Pos }
func (e *BoolLit) Position() Pos         { return e.Pos }
func (e *NoneLit) Position() Pos         { return e.Pos }
func (e *Name) Position() Pos            { return e.Pos }
func (e *BinOp) Position() Pos           { return e.Pos }
func (e *UnaryOp) Position() Pos         { return e.Pos }
func (e *Compare) Position() Pos         { return e.Pos }
func (e *BoolOp) Position() Pos          { return e.Pos }
func (e *Call) Position() Pos            { return e.Pos }
func (e *ListLit) Position() Pos         { return e.Pos }
func (e *Index) Position() Pos           { return e.Pos }
func (e *Len) Position() Pos             { return e.Pos }
func (e *Append) Position() Pos          { return e.Pos }
func (e *UnsupportedExpr) Position() Pos { return e.Pos }

func (*IntLit) Type() types.RType          { return types.Int }
func (*BoolLit) Type() types.RType         { return types.Bool }
func (*NoneLit) Type() types.RType         { return types.None }
func (e *Name) Type() types.RType          { return e.Typ }
func (e *BinOp) Type() types.RType         { return e.Typ }
func (e *UnaryOp) Type() types.RType       { return e.Typ }
func (*Compare) Type() types.RType         { return types.Bool }
func (*BoolOp) Type() types.RType          { return types.Bool }
func (e *Call) Type() types.RType          { return e.Typ }
func (e *ListLit) Type() types.RType       { return e.Typ }
func (e *Index) Type() types.RType         { return e.Typ }
func (*Len) Type() types.RType             { return types.Int }
func (*Append) Type() types.RType          { return types.None }
func (*UnsupportedExpr) Type() types.RType { return types.Object }

func (*IntLit) expr()          {}
func (*BoolLit) expr()         {}
func (*NoneLit) expr()         {}
func (*Name) expr()            {}
func (*BinOp) expr()           {}
func (*UnaryOp) expr()         {}
func (*Compare) expr()         {}
func (*BoolOp) expr()          {}
func (*Call) expr()            {}
func (*ListLit) expr()         {}
func (*Index) expr()           {}
func (*Len) expr()             {}
func (*Append) expr()          {}
func (*UnsupportedExpr) expr() {}

// IsRepeat reports whether b is list repetition rather than arithmetic.
func (b *BinOp) IsRepeat() bool {
	return b.Op == Mul && (b.Left.Type().IsList() || b.Right.Type().IsList())
}
