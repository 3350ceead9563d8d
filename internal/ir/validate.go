package ir

import (
	"fmt"

	"github.com/roach88/refc/internal/types"
)

// Validation error codes (E200-E299)
const (
	ErrNoBlocks           = "E200" // function has no blocks
	ErrMissingTerminator  = "E201" // block does not end in a terminator
	ErrMisplacedTerm      = "E202" // terminator before the end of a block
	ErrMultipleDefinition = "E203" // temp defined more than once
	ErrUndefinedValue     = "E204" // operand is never defined
	ErrForeignBlock       = "E205" // successor is not part of the function
	ErrTypeMismatch       = "E206" // operand or result type is wrong for the op
	ErrAssignTarget       = "E207" // assign to something other than a register
	ErrRefCountNonHeap    = "E208" // inc/dec on a value that is never heap managed
)

// ValidationError describes one structural defect.
type ValidationError struct {
	Block   int    `json:"block"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s] L%d: %s: %s", e.Code, e.Block, e.Op, e.Message)
	}
	return fmt.Sprintf("[%s] L%d: %s", e.Code, e.Block, e.Message)
}

// Validate checks the structural invariants of fn.
// Returns all errors found (does not fail-fast).
func Validate(fn *Function) []ValidationError {
	var errs []ValidationError
	if len(fn.Blocks) == 0 {
		return []ValidationError{{Message: "function has no blocks", Code: ErrNoBlocks}}
	}

	inFunc := make(map[*BasicBlock]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		inFunc[b] = true
	}
	defined := make(map[*Value]bool)
	for _, p := range fn.Params {
		defined[p] = true
	}
	for _, v := range fn.Values {
		if v.Kind == Register {
			defined[v] = true
		}
	}

	// First pass: definitions.
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			dst := op.Dest()
			if dst == nil || dst.Kind != Temp {
				continue
			}
			if defined[dst] {
				errs = append(errs, ValidationError{
					Block: b.Label, Op: op.String(), Code: ErrMultipleDefinition,
					Message: fmt.Sprintf("temp %s defined more than once", dst),
				})
			}
			defined[dst] = true
		}
	}

	for _, b := range fn.Blocks {
		if b.Terminator() == nil {
			errs = append(errs, ValidationError{
				Block: b.Label, Code: ErrMissingTerminator,
				Message: "block does not end in a terminator",
			})
		}
		for i, op := range b.Ops {
			if _, ok := op.(Terminator); ok && i != len(b.Ops)-1 {
				errs = append(errs, ValidationError{
					Block: b.Label, Op: op.String(), Code: ErrMisplacedTerm,
					Message: "terminator is not the last op of its block",
				})
			}
			for _, v := range op.Operands() {
				if !defined[v] {
					errs = append(errs, ValidationError{
						Block: b.Label, Op: op.String(), Code: ErrUndefinedValue,
						Message: fmt.Sprintf("operand %s is never defined", v),
					})
				}
			}
			if msg := checkTypes(op, fn.Sig.Return); msg != "" {
				errs = append(errs, ValidationError{
					Block: b.Label, Op: op.String(), Code: ErrTypeMismatch, Message: msg,
				})
			}
			switch o := op.(type) {
			case *Assign:
				if o.Dst.Kind != Register {
					errs = append(errs, ValidationError{
						Block: b.Label, Op: op.String(), Code: ErrAssignTarget,
						Message: fmt.Sprintf("assign target %s is not a register", o.Dst),
					})
				}
			case *IncRef, *DecRef:
				if v := op.Operands()[0]; !v.IsRefCounted() {
					errs = append(errs, ValidationError{
						Block: b.Label, Op: op.String(), Code: ErrRefCountNonHeap,
						Message: fmt.Sprintf("%s has type %s which is never heap managed", v, v.Type),
					})
				}
			}
		}
		for _, s := range b.Successors() {
			if !inFunc[s] {
				errs = append(errs, ValidationError{
					Block: b.Label, Code: ErrForeignBlock,
					Message: fmt.Sprintf("successor %s is not part of the function", s),
				})
			}
		}
	}
	return errs
}

func checkTypes(op Op, ret types.RType) string {
	want := func(v *Value, t types.RType) string {
		if !v.Type.Equal(t) {
			return fmt.Sprintf("%s has type %s, want %s", v, v.Type, t)
		}
		return ""
	}
	wantList := func(v *Value) string {
		if !v.Type.IsList() {
			return fmt.Sprintf("%s has type %s, want a list", v, v.Type)
		}
		return ""
	}
	first := func(msgs ...string) string {
		for _, m := range msgs {
			if m != "" {
				return m
			}
		}
		return ""
	}

	switch o := op.(type) {
	case *BinaryOp:
		return first(want(o.Left, types.Int), want(o.Right, types.Int), want(o.Dst, types.Int))
	case *UnaryOp:
		if o.Op == Not {
			return first(want(o.X, types.Bool), want(o.Dst, types.Bool))
		}
		return first(want(o.X, types.Int), want(o.Dst, types.Int))
	case *Compare:
		if !o.Left.Type.Equal(o.Right.Type) {
			return fmt.Sprintf("comparison of %s with %s", o.Left.Type, o.Right.Type)
		}
		return want(o.Dst, types.Bool)
	case *Call:
		if len(o.Args) != len(o.Target.Params) {
			return fmt.Sprintf("call passes %d args, target takes %d", len(o.Args), len(o.Target.Params))
		}
		for i, a := range o.Args {
			if m := want(a, o.Target.Params[i]); m != "" {
				return m
			}
		}
		return want(o.Dst, o.Target.Return)
	case *CallGeneric:
		for _, a := range o.Args {
			if m := want(a, types.Object); m != "" {
				return m
			}
		}
		return want(o.Dst, types.Object)
	case *ListNew:
		for _, it := range o.Items {
			if m := want(it, types.Object); m != "" {
				return m
			}
		}
		return wantList(o.Dst)
	case *ListGet:
		return first(wantList(o.List), want(o.Index, types.Int), want(o.Dst, types.Object))
	case *ListSet:
		return first(wantList(o.List), want(o.Index, types.Int), want(o.Item, types.Object), want(o.Dst, types.None))
	case *ListAppend:
		return first(wantList(o.List), want(o.Item, types.Object), want(o.Dst, types.None))
	case *ListLen:
		return first(wantList(o.List), want(o.Dst, types.Int))
	case *ListRepeat:
		return first(wantList(o.List), want(o.Count, types.Int), want(o.Dst, o.List.Type))
	case *Box:
		return want(o.Dst, types.Object)
	case *Unbox:
		return want(o.Src, types.Object)
	case *Assign:
		return want(o.Src, o.Dst.Type)
	case *Branch:
		if o.Kind == BranchBool {
			return want(o.Cond, types.Bool)
		}
	case *Return:
		if o.Value != nil {
			return want(o.Value, ret)
		}
	}
	return ""
}
