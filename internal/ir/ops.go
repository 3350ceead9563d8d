package ir

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/refc/internal/types"
)

// Op is a single IR operation.
type Op interface {
	// Dest returns the value defined or written by the op, or nil.
	Dest() *Value
	// Operands returns the values read by the op, in a fixed order.
	Operands() []*Value
	// Steals reports whether the operand at position i is consumed.
	Steals(i int) bool
	// CanFail reports whether the op may produce ErrorSentinel.
	CanFail() bool
	String() string

	meta() *Meta
}

// Terminator ends a basic block.
type Terminator interface {
	Op
	Successors() []*BasicBlock
	// Retarget replaces every edge to from with an edge to to.
	Retarget(from, to *BasicBlock)
}

// Meta carries per-op annotations.
type Meta struct {
	// Line is the source line the op was built from, or 0.
	Line int
	// Uses holds one ownership classification per operand once reference
	// counting has run.
	Uses []Ownership
}

func (m *Meta) meta() *Meta { return m }

// UsesOf returns the per-operand ownership classification of op.
func UsesOf(op Op) []Ownership { return op.meta().Uses }

// SetUses records the per-operand ownership classification of op.
func SetUses(op Op, uses []Ownership) { op.meta().Uses = uses }

// LineOf returns the source line of op.
func LineOf(op Op) int { return op.meta().Line }

// SetLine records the source line of op.
func SetLine(op Op, line int) { op.meta().Line = line }

type noSteal struct{}

func (noSteal) Steals(int) bool { return false }

// BinaryKind is an integer arithmetic operator.
type BinaryKind uint8

const (
	Add BinaryKind = iota
	Sub
	Mul
	FloorDiv
	Mod
)

func (k BinaryKind) String() string { return [...]string{"+", "-", "*", "//", "%"}[k] }

// UnaryKind is a unary operator.
type UnaryKind uint8

const (
	Neg UnaryKind = iota
	Not
)

// CompareKind is a comparison operator.
type CompareKind uint8

const (
	Lt CompareKind = iota
	Le
	Gt
	Ge
	Eq
	Ne
)

func (k CompareKind) String() string { return [...]string{"<", "<=", ">", ">=", "==", "!="}[k] }

// LoadInt loads an integer literal. Literals outside the short range
// allocate and can fail.
type LoadInt struct {
	Meta
	noSteal
	Dst   *Value
	Value *big.Int
}

func (o *LoadInt) Dest() *Value       { return o.Dst }
func (o *LoadInt) Operands() []*Value { return nil }
func (o *LoadInt) CanFail() bool      { return !IsShortLiteral(o.Value) }
func (o *LoadInt) String() string     { return fmt.Sprintf("%s = %s", o.Dst, o.Value) }

// IsShortLiteral reports whether v is encoded without allocation.
func IsShortLiteral(v *big.Int) bool {
	const shortMax, shortMin = 1<<62 - 1, -1 << 62
	return v.IsInt64() && v.Int64() >= shortMin && v.Int64() <= shortMax
}

// LoadBool loads a native bool.
type LoadBool struct {
	Meta
	noSteal
	Dst   *Value
	Value bool
}

func (o *LoadBool) Dest() *Value       { return o.Dst }
func (o *LoadBool) Operands() []*Value { return nil }
func (o *LoadBool) CanFail() bool      { return false }
func (o *LoadBool) String() string {
	if o.Value {
		return fmt.Sprintf("%s = True", o.Dst)
	}
	return fmt.Sprintf("%s = False", o.Dst)
}

// LoadNone loads the none singleton.
type LoadNone struct {
	Meta
	noSteal
	Dst *Value
}

func (o *LoadNone) Dest() *Value       { return o.Dst }
func (o *LoadNone) Operands() []*Value { return nil }
func (o *LoadNone) CanFail() bool      { return false }
func (o *LoadNone) String() string     { return fmt.Sprintf("%s = None", o.Dst) }

// BinaryOp is integer arithmetic with overflow fallback.
type BinaryOp struct {
	Meta
	noSteal
	Dst         *Value
	Op          BinaryKind
	Left, Right *Value
}

func (o *BinaryOp) Dest() *Value       { return o.Dst }
func (o *BinaryOp) Operands() []*Value { return []*Value{o.Left, o.Right} }
func (o *BinaryOp) CanFail() bool      { return true }
func (o *BinaryOp) String() string {
	return fmt.Sprintf("%s = %s %s %s", o.Dst, o.Left, o.Op, o.Right)
}

// UnaryOp is integer negation or boolean not.
type UnaryOp struct {
	Meta
	noSteal
	Dst *Value
	Op  UnaryKind
	X   *Value
}

func (o *UnaryOp) Dest() *Value       { return o.Dst }
func (o *UnaryOp) Operands() []*Value { return []*Value{o.X} }
func (o *UnaryOp) CanFail() bool      { return o.Op == Neg }
func (o *UnaryOp) String() string {
	if o.Op == Not {
		return fmt.Sprintf("%s = not %s", o.Dst, o.X)
	}
	return fmt.Sprintf("%s = -%s", o.Dst, o.X)
}

// Compare compares two ints or two bools and produces a native bool.
type Compare struct {
	Meta
	noSteal
	Dst         *Value
	Op          CompareKind
	Left, Right *Value
}

func (o *Compare) Dest() *Value       { return o.Dst }
func (o *Compare) Operands() []*Value { return []*Value{o.Left, o.Right} }
func (o *Compare) CanFail() bool      { return false }
func (o *Compare) String() string {
	return fmt.Sprintf("%s = %s %s %s", o.Dst, o.Left, o.Op, o.Right)
}

// Call invokes the native entry of a statically resolved function. Args are
// borrowed; the result is owned.
type Call struct {
	Meta
	noSteal
	Dst    *Value
	Target Signature
	Args   []*Value
}

func (o *Call) Dest() *Value       { return o.Dst }
func (o *Call) Operands() []*Value { return o.Args }
func (o *Call) CanFail() bool      { return true }
func (o *Call) String() string {
	return fmt.Sprintf("%s = %s(%s)", o.Dst, o.Target.QualifiedName(), joinValues(o.Args))
}

// CallGeneric invokes a function through the host namespace and its
// boundary entry. Args are generic objects; the result is an owned object.
type CallGeneric struct {
	Meta
	noSteal
	Dst    *Value
	Module string
	Name   string
	Args   []*Value
}

func (o *CallGeneric) Dest() *Value       { return o.Dst }
func (o *CallGeneric) Operands() []*Value { return o.Args }
func (o *CallGeneric) CanFail() bool      { return true }
func (o *CallGeneric) String() string {
	return fmt.Sprintf("%s = host_call %s.%s(%s)", o.Dst, o.Module, o.Name, joinValues(o.Args))
}

// ListNew builds a list from generic objects. Items are borrowed.
type ListNew struct {
	Meta
	noSteal
	Dst   *Value
	Items []*Value
}

func (o *ListNew) Dest() *Value       { return o.Dst }
func (o *ListNew) Operands() []*Value { return o.Items }
func (o *ListNew) CanFail() bool      { return true }
func (o *ListNew) String() string     { return fmt.Sprintf("%s = [%s]", o.Dst, joinValues(o.Items)) }

// ListGet reads an element as an owned generic object.
type ListGet struct {
	Meta
	noSteal
	Dst         *Value
	List, Index *Value
}

func (o *ListGet) Dest() *Value       { return o.Dst }
func (o *ListGet) Operands() []*Value { return []*Value{o.List, o.Index} }
func (o *ListGet) CanFail() bool      { return true }
func (o *ListGet) String() string     { return fmt.Sprintf("%s = %s[%s]", o.Dst, o.List, o.Index) }

// ListSet stores a generic object, stealing it. Dst receives None or the
// error sentinel.
type ListSet struct {
	Meta
	Dst               *Value
	List, Index, Item *Value
}

func (o *ListSet) Dest() *Value       { return o.Dst }
func (o *ListSet) Operands() []*Value { return []*Value{o.List, o.Index, o.Item} }
func (o *ListSet) Steals(i int) bool  { return i == 2 }
func (o *ListSet) CanFail() bool      { return true }
func (o *ListSet) String() string {
	return fmt.Sprintf("%s = set_item %s[%s] := %s", o.Dst, o.List, o.Index, o.Item)
}

// ListAppend appends a generic object, borrowing it.
type ListAppend struct {
	Meta
	noSteal
	Dst        *Value
	List, Item *Value
}

func (o *ListAppend) Dest() *Value       { return o.Dst }
func (o *ListAppend) Operands() []*Value { return []*Value{o.List, o.Item} }
func (o *ListAppend) CanFail() bool      { return true }
func (o *ListAppend) String() string {
	return fmt.Sprintf("%s = append(%s, %s)", o.Dst, o.List, o.Item)
}

// ListLen reads the length of a list.
type ListLen struct {
	Meta
	noSteal
	Dst, List *Value
}

func (o *ListLen) Dest() *Value       { return o.Dst }
func (o *ListLen) Operands() []*Value { return []*Value{o.List} }
func (o *ListLen) CanFail() bool      { return false }
func (o *ListLen) String() string     { return fmt.Sprintf("%s = len(%s)", o.Dst, o.List) }

// ListRepeat builds a new list holding List's elements Count times.
type ListRepeat struct {
	Meta
	noSteal
	Dst         *Value
	List, Count *Value
}

func (o *ListRepeat) Dest() *Value       { return o.Dst }
func (o *ListRepeat) Operands() []*Value { return []*Value{o.List, o.Count} }
func (o *ListRepeat) CanFail() bool      { return true }
func (o *ListRepeat) String() string {
	return fmt.Sprintf("%s = %s * %s", o.Dst, o.List, o.Count)
}

// Box converts a native value to an owned generic object.
type Box struct {
	Meta
	noSteal
	Dst, Src *Value
}

func (o *Box) Dest() *Value       { return o.Dst }
func (o *Box) Operands() []*Value { return []*Value{o.Src} }
func (o *Box) CanFail() bool      { return o.Src.Type.Kind == types.KindInt }
func (o *Box) String() string     { return fmt.Sprintf("%s = box(%s, %s)", o.Dst, o.Src.Type, o.Src) }

// Unbox converts a generic object to the native representation of Dst's
// type, raising TypeError on mismatch.
type Unbox struct {
	Meta
	noSteal
	Dst, Src *Value
}

func (o *Unbox) Dest() *Value       { return o.Dst }
func (o *Unbox) Operands() []*Value { return []*Value{o.Src} }
func (o *Unbox) CanFail() bool      { return o.Dst.Type.Kind != types.KindObject }
func (o *Unbox) String() string     { return fmt.Sprintf("%s = unbox(%s, %s)", o.Dst, o.Dst.Type, o.Src) }

// Assign writes Src into the register Dst, stealing Src.
type Assign struct {
	Meta
	Dst, Src *Value
}

func (o *Assign) Dest() *Value       { return o.Dst }
func (o *Assign) Operands() []*Value { return []*Value{o.Src} }
func (o *Assign) Steals(int) bool    { return true }
func (o *Assign) CanFail() bool      { return false }
func (o *Assign) String() string     { return fmt.Sprintf("%s = %s", o.Dst, o.Src) }

// IncRef adds a reference to V.
type IncRef struct {
	Meta
	noSteal
	V *Value
}

func (o *IncRef) Dest() *Value       { return nil }
func (o *IncRef) Operands() []*Value { return []*Value{o.V} }
func (o *IncRef) CanFail() bool      { return false }
func (o *IncRef) String() string     { return "inc_ref " + o.V.String() }

// DecRef releases a reference to V.
type DecRef struct {
	Meta
	V *Value
}

func (o *DecRef) Dest() *Value       { return nil }
func (o *DecRef) Operands() []*Value { return []*Value{o.V} }
func (o *DecRef) Steals(int) bool    { return true }
func (o *DecRef) CanFail() bool      { return false }
func (o *DecRef) String() string     { return "dec_ref " + o.V.String() }

// Goto jumps unconditionally.
type Goto struct {
	Meta
	noSteal
	Target *BasicBlock
}

func (o *Goto) Dest() *Value                  { return nil }
func (o *Goto) Operands() []*Value            { return nil }
func (o *Goto) CanFail() bool                 { return false }
func (o *Goto) String() string                { return "goto " + o.Target.String() }
func (o *Goto) Successors() []*BasicBlock     { return []*BasicBlock{o.Target} }
func (o *Goto) Retarget(from, to *BasicBlock) { retarget(&o.Target, from, to) }

// BranchKind selects what a Branch tests.
type BranchKind uint8

const (
	// BranchBool tests a native bool.
	BranchBool BranchKind = iota
	// BranchIsError tests whether a value is the error sentinel; Then is
	// the error path.
	BranchIsError
)

// Branch transfers control to Then or Else.
type Branch struct {
	Meta
	noSteal
	Kind       BranchKind
	Cond       *Value
	Then, Else *BasicBlock
}

func (o *Branch) Dest() *Value       { return nil }
func (o *Branch) Operands() []*Value { return []*Value{o.Cond} }
func (o *Branch) CanFail() bool      { return false }
func (o *Branch) String() string {
	cond := o.Cond.String()
	if o.Kind == BranchIsError {
		cond = "is_error(" + cond + ")"
	}
	return fmt.Sprintf("if %s goto %s else goto %s", cond, o.Then, o.Else)
}
func (o *Branch) Successors() []*BasicBlock { return []*BasicBlock{o.Then, o.Else} }
func (o *Branch) Retarget(from, to *BasicBlock) {
	retarget(&o.Then, from, to)
	retarget(&o.Else, from, to)
}

// Return returns Value, stealing it. A nil Value returns the error sentinel.
type Return struct {
	Meta
	Value *Value
}

func (o *Return) Dest() *Value { return nil }
func (o *Return) Operands() []*Value {
	if o.Value == nil {
		return nil
	}
	return []*Value{o.Value}
}
func (o *Return) Steals(int) bool           { return true }
func (o *Return) CanFail() bool             { return false }
func (o *Return) Successors() []*BasicBlock { return nil }
func (o *Return) Retarget(_, _ *BasicBlock) {}
func (o *Return) IsError() bool             { return o.Value == nil }
func (o *Return) String() string {
	if o.Value == nil {
		return "return <error>"
	}
	return "return " + o.Value.String()
}

// Unreachable marks a point control can never reach in a well-typed
// program. Reaching it aborts the process.
type Unreachable struct {
	Meta
	noSteal
	Reason string
}

func (o *Unreachable) Dest() *Value              { return nil }
func (o *Unreachable) Operands() []*Value        { return nil }
func (o *Unreachable) CanFail() bool             { return false }
func (o *Unreachable) String() string            { return "unreachable" }
func (o *Unreachable) Successors() []*BasicBlock { return nil }
func (o *Unreachable) Retarget(_, _ *BasicBlock) {}

func retarget(slot **BasicBlock, from, to *BasicBlock) {
	if *slot == from {
		*slot = to
	}
}

func joinValues(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
