package rt

// maxListLen caps the length a single list may reach through repeat.
const maxListLen = 1 << 28

// ListNew allocates a list holding items. Items are borrowed: each receives
// a new reference owned by the list.
func ListNew(f *Frame, items []Word) Word {
	h := f.Heap
	if !h.reserveCells(f, 0, len(items)) {
		return ErrorSentinel
	}
	buf := make([]Word, len(items))
	copy(buf, items)
	w := h.alloc(f, &Object{Type: TypeList, Items: buf})
	if w == ErrorSentinel {
		h.cells -= len(items)
		return ErrorSentinel
	}
	for _, item := range buf {
		h.IncRef(item)
	}
	return w
}

// ListLen returns the length of l as a short integer.
func ListLen(h *Heap, l Word) Word {
	return FromShort(int64(len(h.list(l).Items)))
}

// ListGet returns a new reference to l[i].
func ListGet(f *Frame, l, i Word) Word {
	o := f.Heap.list(l)
	idx, ok := listIndex(o, i)
	if !ok {
		return f.Raise(ErrIndex, "list index out of range")
	}
	item := o.Items[idx]
	f.Heap.IncRef(item)
	return item
}

// ListSet stores item at l[i] and releases the displaced element. The item
// reference is stolen whether or not the store succeeds. It returns None or
// ErrorSentinel.
func ListSet(f *Frame, l, i, item Word) Word {
	o := f.Heap.list(l)
	idx, ok := listIndex(o, i)
	if !ok {
		f.Heap.DecRef(item)
		return f.Raise(ErrIndex, "list assignment index out of range")
	}
	old := o.Items[idx]
	o.Items[idx] = item
	f.Heap.DecRef(old)
	return None
}

// ListAppend adds a new reference to item at the end of l. It returns None
// or ErrorSentinel.
func ListAppend(f *Frame, l, item Word) Word {
	h := f.Heap
	o := h.list(l)
	n := len(o.Items)
	if n == cap(o.Items) {
		newCap := growCap(n + 1)
		if !h.reserveCells(f, cap(o.Items), newCap) {
			return ErrorSentinel
		}
		buf := make([]Word, n, newCap)
		copy(buf, o.Items)
		o.Items = buf
	}
	h.IncRef(item)
	o.Items = append(o.Items, item)
	return None
}

// ListRepeat returns a new list holding the elements of l repeated n times
// in order. A non-positive short n yields an empty list; any n outside the
// short range raises OverflowError regardless of sign.
func ListRepeat(f *Frame, l, n Word) Word {
	h := f.Heap
	src := h.list(l).Items
	if !n.IsShort() {
		return f.Raise(ErrOverflow, "cannot fit repeat count into an index-sized integer")
	}
	times := n.Short()
	if times <= 0 || len(src) == 0 {
		return ListNew(f, nil)
	}
	if times > int64(maxListLen/len(src)) {
		return f.Raise(ErrMemory, "repeated list of %d x %d elements is too large", len(src), times)
	}
	total := len(src) * int(times)
	if !h.reserveCells(f, 0, total) {
		return ErrorSentinel
	}
	buf := make([]Word, 0, total)
	for range times {
		buf = append(buf, src...)
	}
	w := h.alloc(f, &Object{Type: TypeList, Items: buf})
	if w == ErrorSentinel {
		h.cells -= total
		return ErrorSentinel
	}
	for _, item := range buf {
		h.IncRef(item)
	}
	return w
}

func (h *Heap) list(l Word) *Object {
	o := h.deref(l)
	if o.Type != TypeList {
		Abort(h, "list operation on a non-list object", l)
	}
	return o
}

// listIndex resolves a possibly negative index against o.
func listIndex(o *Object, i Word) (int, bool) {
	if !i.IsShort() {
		return 0, false
	}
	idx := i.Short()
	n := int64(len(o.Items))
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, false
	}
	return int(idx), true
}

// growCap over-allocates proportionally so appends run in amortized
// constant time.
func growCap(newSize int) int {
	extra := 6
	if newSize < 9 {
		extra = 3
	}
	return newSize + newSize>>3 + extra
}
