package ir

import (
	"fmt"
	"strings"

	"github.com/roach88/refc/internal/types"
)

// ValueKind classifies how a Value is defined.
type ValueKind uint8

const (
	// Temp is defined by exactly one Op.
	Temp ValueKind = iota
	// Register is a local variable written by Assign ops.
	Register
	// Param is a function parameter. Params are borrowed from the caller
	// and never written.
	Param
)

// Value is a typed virtual register.
type Value struct {
	ID   int
	Name string
	Kind ValueKind
	Type types.RType
}

func (v *Value) String() string {
	if v.Kind == Temp {
		return fmt.Sprintf("r%d", v.ID)
	}
	return v.Name
}

// IsRefCounted reports whether the value takes part in reference counting.
func (v *Value) IsRefCounted() bool { return v.Type.IsRefCounted() }

// Ownership classifies a use of a value.
type Ownership uint8

const (
	// Borrowed uses read a value without affecting its reference count.
	Borrowed Ownership = iota
	// Owned uses consume a reference.
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Signature is the native calling convention of a function.
type Signature struct {
	Module string
	Name   string
	Params []types.RType
	Return types.RType
}

// QualifiedName returns module.name.
func (s Signature) QualifiedName() string { return s.Module + "." + s.Name }

func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", s.QualifiedName(), strings.Join(params, ", "), s.Return)
}

func (s Signature) canonical() map[string]any {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	return map[string]any{
		"module":  s.Module,
		"name":    s.Name,
		"params":  params,
		"returns": s.Return.String(),
	}
}

// BasicBlock is a straight-line sequence of ops ending in one Terminator.
type BasicBlock struct {
	Label int
	Ops   []Op
}

// Terminator returns the final op of the block, or nil if the block is not
// terminated yet.
func (b *BasicBlock) Terminator() Terminator {
	if len(b.Ops) == 0 {
		return nil
	}
	t, _ := b.Ops[len(b.Ops)-1].(Terminator)
	return t
}

// Body returns the ops before the terminator.
func (b *BasicBlock) Body() []Op {
	if b.Terminator() == nil {
		return b.Ops
	}
	return b.Ops[:len(b.Ops)-1]
}

// Successors returns the blocks control may transfer to.
func (b *BasicBlock) Successors() []*BasicBlock {
	if t := b.Terminator(); t != nil {
		return t.Successors()
	}
	return nil
}

func (b *BasicBlock) String() string { return fmt.Sprintf("L%d", b.Label) }

// Function is the IR of one compiled function. Blocks[0] is the entry.
type Function struct {
	Sig    Signature
	Params []*Value
	Blocks []*BasicBlock

	// Values lists every temp and register in definition order.
	Values []*Value

	// RefCounted is set once reference-count ops have been inserted.
	RefCounted bool

	nextID    int
	nextLabel int
}

// NewFunction creates an empty function for sig with one param per
// signature entry.
func NewFunction(sig Signature, paramNames []string) *Function {
	fn := &Function{Sig: sig}
	for i, name := range paramNames {
		fn.Params = append(fn.Params, &Value{ID: fn.nextID, Name: name, Kind: Param, Type: sig.Params[i]})
		fn.nextID++
	}
	return fn
}

// Name returns the unqualified function name.
func (fn *Function) Name() string { return fn.Sig.Name }

// Entry returns the entry block.
func (fn *Function) Entry() *BasicBlock { return fn.Blocks[0] }

// NewBlock appends a new empty block.
func (fn *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{Label: fn.nextLabel}
	fn.nextLabel++
	fn.Blocks = append(fn.Blocks, b)
	return b
}

// NewTemp allocates a temp of type t.
func (fn *Function) NewTemp(t types.RType) *Value {
	v := &Value{ID: fn.nextID, Kind: Temp, Type: t}
	fn.nextID++
	fn.Values = append(fn.Values, v)
	return v
}

// NewRegister allocates a local-variable register.
func (fn *Function) NewRegister(name string, t types.RType) *Value {
	v := &Value{ID: fn.nextID, Name: name, Kind: Register, Type: t}
	fn.nextID++
	fn.Values = append(fn.Values, v)
	return v
}

// NumValues returns one more than the largest value ID.
func (fn *Function) NumValues() int { return fn.nextID }

// Predecessors maps each block to the blocks that branch to it, in block
// order.
func (fn *Function) Predecessors() map[*BasicBlock][]*BasicBlock {
	preds := make(map[*BasicBlock][]*BasicBlock, len(fn.Blocks))
	for _, b := range fn.Blocks {
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b)
		}
	}
	return preds
}

// RemoveUnreachable drops blocks not reachable from the entry.
func (fn *Function) RemoveUnreachable() {
	seen := map[*BasicBlock]bool{}
	stack := []*BasicBlock{fn.Entry()}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[b] {
			continue
		}
		seen[b] = true
		stack = append(stack, b.Successors()...)
	}
	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if seen[b] {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
}
