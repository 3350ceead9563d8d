package rt

import (
	"math/big"

	"github.com/roach88/refc/internal/types"
)

// BoxInt converts a native integer to a generic int object. The operand is
// borrowed; the result is a new reference.
func BoxInt(f *Frame, w Word) Word {
	if w.IsRef() {
		f.Heap.IncRef(w)
		return w
	}
	return NewIntObject(f, big.NewInt(w.Short()))
}

// NewIntObject returns an owned generic int object holding b. Values in the
// small-int cache share one immortal object.
func NewIntObject(f *Frame, b *big.Int) Word {
	if b.IsInt64() && b.Int64() >= SmallIntMin && b.Int64() <= SmallIntMax {
		return refWord(smallIntBase + int(b.Int64()) - SmallIntMin)
	}
	return f.Heap.alloc(f, &Object{Type: TypeInt, Int: new(big.Int).Set(b)})
}

// UnboxInt converts a generic object to a native integer. Bool objects are
// accepted as 0 and 1.
func UnboxInt(f *Frame, w Word) Word {
	o := f.Heap.deref(w)
	switch o.Type {
	case TypeInt:
		if o.Int.IsInt64() && FitsShort(o.Int.Int64()) {
			return FromShort(o.Int.Int64())
		}
		f.Heap.IncRef(w)
		return w
	case TypeBool:
		if o.Bool {
			return FromShort(1)
		}
		return FromShort(0)
	}
	return f.Raise(ErrType, "int object expected; got %s", o.Type)
}

// BoxBool converts a native bool to one of the immortal bool objects.
func BoxBool(w Word) Word {
	if w == NativeFalse {
		return False
	}
	return True
}

// UnboxBool converts a generic bool object to a native bool.
func UnboxBool(f *Frame, w Word) Word {
	o := f.Heap.deref(w)
	if o.Type != TypeBool {
		return f.Raise(ErrType, "bool object expected; got %s", o.Type)
	}
	return NativeBool(o.Bool)
}

// UnboxNone checks that w is the none singleton.
func UnboxNone(f *Frame, w Word) Word {
	if w != None {
		return f.Raise(ErrType, "None expected; got %s", f.Heap.TypeOf(w))
	}
	return None
}

// UnboxList checks that w is a list and returns a new reference to it.
func UnboxList(f *Frame, w Word) Word {
	o := f.Heap.deref(w)
	if o.Type != TypeList {
		return f.Raise(ErrType, "list object expected; got %s", o.Type)
	}
	f.Heap.IncRef(w)
	return w
}

// Box converts a native value of static type t to a generic object.
func Box(f *Frame, t types.RType, w Word) Word {
	switch t.Kind {
	case types.KindInt:
		return BoxInt(f, w)
	case types.KindBool:
		return BoxBool(w)
	case types.KindNone:
		return None
	default:
		f.Heap.IncRef(w)
		return w
	}
}

// Unbox converts a generic object to the native representation of t,
// raising TypeError when the runtime type does not match.
func Unbox(f *Frame, t types.RType, w Word) Word {
	switch t.Kind {
	case types.KindInt:
		return UnboxInt(f, w)
	case types.KindBool:
		return UnboxBool(f, w)
	case types.KindNone:
		return UnboxNone(f, w)
	case types.KindList:
		return UnboxList(f, w)
	default:
		f.Heap.IncRef(w)
		return w
	}
}

// CheckType reports whether the generic object w is acceptable where a value
// of static type t is expected. List element types are checked lazily on
// access.
func CheckType(h *Heap, w Word, t types.RType) bool {
	if w.IsShort() {
		return false
	}
	o := h.Object(w)
	if o == nil {
		return false
	}
	switch t.Kind {
	case types.KindInt:
		return o.Type == TypeInt || o.Type == TypeBool
	case types.KindBool:
		return o.Type == TypeBool
	case types.KindNone:
		return o.Type == TypeNone
	case types.KindList:
		return o.Type == TypeList
	case types.KindObject:
		return o.Type != TypeError
	}
	return false
}
