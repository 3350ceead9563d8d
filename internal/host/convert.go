package host

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/refc/internal/rt"
)

// FromGo builds an owned generic object from a Go value. Supported inputs are
// integers, *big.Int, json.Number holding an integer, bool, nil and slices of
// supported values.
func FromGo(f *rt.Frame, v any) (rt.Word, error) {
	switch x := v.(type) {
	case nil:
		return rt.None, nil
	case bool:
		return rt.BoxBool(rt.NativeBool(x)), nil
	case int:
		return newInt(f, big.NewInt(int64(x)))
	case int64:
		return newInt(f, big.NewInt(x))
	case int32:
		return newInt(f, big.NewInt(int64(x)))
	case uint64:
		return newInt(f, new(big.Int).SetUint64(x))
	case *big.Int:
		return newInt(f, x)
	case json.Number:
		b, ok := new(big.Int).SetString(string(x), 10)
		if !ok {
			return rt.ErrorSentinel, rt.NewTypeError("non-integer number %s", x)
		}
		return newInt(f, b)
	case []any:
		items := make([]rt.Word, 0, len(x))
		defer func() {
			for _, w := range items {
				f.Heap.DecRef(w)
			}
		}()
		for _, e := range x {
			w, err := FromGo(f, e)
			if err != nil {
				return rt.ErrorSentinel, err
			}
			items = append(items, w)
		}
		return check(f, rt.ListNew(f, items))
	case []int:
		generic := make([]any, len(x))
		for i, e := range x {
			generic[i] = e
		}
		return FromGo(f, generic)
	}
	return rt.ErrorSentinel, rt.NewTypeError("cannot convert %T to a host object", v)
}

func newInt(f *rt.Frame, b *big.Int) (rt.Word, error) {
	return check(f, rt.NewIntObject(f, b))
}

func check(f *rt.Frame, w rt.Word) (rt.Word, error) {
	if w == rt.ErrorSentinel {
		return w, f.TakeError()
	}
	return w, nil
}

// ToGo converts a generic object to a Go value without consuming it. Ints
// become int64 when they fit and *big.Int otherwise; lists become []any.
func ToGo(h *rt.Heap, w rt.Word) any {
	if w.IsShort() {
		return w.Short()
	}
	o := h.Object(w)
	if o == nil {
		return nil
	}
	switch o.Type {
	case rt.TypeNone:
		return nil
	case rt.TypeBool:
		return o.Bool
	case rt.TypeInt:
		if o.Int.IsInt64() {
			return o.Int.Int64()
		}
		return new(big.Int).Set(o.Int)
	case rt.TypeList:
		out := make([]any, len(o.Items))
		for i, item := range o.Items {
			out[i] = ToGo(h, item)
		}
		return out
	}
	return fmt.Sprintf("<%s>", o.Type)
}

// Repr renders a generic object the way the host prints values.
func Repr(h *rt.Heap, w rt.Word) string {
	var sb strings.Builder
	writeRepr(&sb, h, w)
	return sb.String()
}

func writeRepr(sb *strings.Builder, h *rt.Heap, w rt.Word) {
	if w.IsShort() {
		fmt.Fprintf(sb, "%d", w.Short())
		return
	}
	o := h.Object(w)
	if o == nil {
		sb.WriteString(rt.Describe(h, w))
		return
	}
	switch o.Type {
	case rt.TypeNone:
		sb.WriteString("None")
	case rt.TypeBool:
		if o.Bool {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case rt.TypeInt:
		sb.WriteString(o.Int.String())
	case rt.TypeList:
		sb.WriteByte('[')
		for i, item := range o.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, h, item)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(rt.Describe(h, w))
	}
}

// ReprGo renders a Go value produced by ToGo in the same notation as Repr.
func ReprGo(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = ReprGo(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
