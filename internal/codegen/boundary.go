package codegen

import "github.com/roach88/refc/internal/rt"

// Call is the boundary entry. It implements the host's generic calling
// protocol: arguments are borrowed generic objects and the result is an owned
// generic object. Arity and argument types are checked before any argument
// is unboxed, so a rejected call leaves every reference count untouched.
func (fn *Func) Call(f *rt.Frame, args []rt.Word) rt.Word {
	params := fn.Sig.Params
	if len(args) != len(params) {
		return f.Raise(rt.ErrType, "%s() takes %d positional arguments but %d were given",
			fn.Sig.Name, len(params), len(args))
	}
	for i, p := range params {
		if !rt.CheckType(f.Heap, args[i], p) {
			return f.Raise(rt.ErrType, "%s() argument %d must be %s, not %s",
				fn.Sig.Name, i+1, p, typeName(f.Heap, args[i]))
		}
	}

	native := make([]rt.Word, len(args))
	for i, p := range params {
		native[i] = rt.Unbox(f, p, args[i])
		if native[i] == rt.ErrorSentinel {
			releaseNative(f.Heap, native[:i])
			return rt.ErrorSentinel
		}
	}
	res := fn.Native(f, native)
	releaseNative(f.Heap, native)
	if res == rt.ErrorSentinel {
		return res
	}
	boxed := rt.Box(f, fn.Sig.Return, res)
	f.Heap.DecRef(res)
	return boxed
}

func releaseNative(h *rt.Heap, ws []rt.Word) {
	for _, w := range ws {
		h.DecRef(w)
	}
}

func typeName(h *rt.Heap, w rt.Word) string {
	if w.IsShort() || h.Object(w) == nil {
		return "<invalid>"
	}
	return h.TypeOf(w).String()
}

