package rt

import (
	"fmt"
	"math/big"
)

// TypeID is the type identity stored in an object header.
type TypeID uint8

const (
	TypeNone TypeID = iota + 1
	TypeError
	TypeBool
	TypeInt
	TypeList
)

func (t TypeID) String() string {
	switch t {
	case TypeNone:
		return "NoneType"
	case TypeError:
		return "error"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeList:
		return "list"
	}
	return fmt.Sprintf("type#%d", uint8(t))
}

// Object is a heap object: header plus payload.
type Object struct {
	RefCount int64
	Type     TypeID
	Immortal bool

	Int   *big.Int // TypeInt
	Bool  bool     // TypeBool
	Items []Word   // TypeList; len(Items) is the list length, cap the buffer
}

// Limits bound heap growth. Zero means unlimited.
type Limits struct {
	MaxObjects int // live mortal objects
	MaxCells   int // list buffer slots
}

// EventKind classifies a trace event.
type EventKind int

const (
	EventAlloc EventKind = iota
	EventIncRef
	EventDecRef
	EventFree
)

func (k EventKind) String() string {
	return [...]string{"alloc", "incref", "decref", "free"}[k]
}

// Event is reported to the trace hook for every refcount mutation of a mortal object.
type Event struct {
	Kind     EventKind
	Ref      Word
	RefCount int64 // count after the event
}

// Heap owns every object reachable from native code and from the host runtime.
type Heap struct {
	objects []*Object
	vacant  []int // freed slots, reused last-in first-out
	limits  Limits
	live    int
	cells   int
	allocs  int
	trace   func(Event)
}

// NewHeap creates a heap with its immortal objects in place.
func NewHeap() *Heap {
	h := &Heap{objects: make([]*Object, staticCount, staticCount+64)}
	h.objects[None.index()] = &Object{Type: TypeNone, Immortal: true, RefCount: 1}
	h.objects[ErrorSentinel.index()] = &Object{Type: TypeError, Immortal: true, RefCount: 1}
	h.objects[False.index()] = &Object{Type: TypeBool, Immortal: true, RefCount: 1}
	h.objects[True.index()] = &Object{Type: TypeBool, Bool: true, Immortal: true, RefCount: 1}
	for i := SmallIntMin; i <= SmallIntMax; i++ {
		h.objects[smallIntBase+i-SmallIntMin] = &Object{
			Type: TypeInt, Int: big.NewInt(int64(i)), Immortal: true, RefCount: 1,
		}
	}
	return h
}

// SetLimits installs allocation limits.
func (h *Heap) SetLimits(l Limits) { h.limits = l }

// SetTrace installs a hook receiving refcount events; nil disables tracing.
func (h *Heap) SetTrace(fn func(Event)) { h.trace = fn }

// Live returns the number of live mortal objects.
func (h *Heap) Live() int { return h.live }

// Allocations returns the number of objects allocated since creation.
func (h *Heap) Allocations() int { return h.allocs }

// Cells returns the number of list buffer slots in use.
func (h *Heap) Cells() int { return h.cells }

// Object returns the header behind w, or nil for short integers and freed
// references.
func (h *Heap) Object(w Word) *Object {
	if !w.IsRef() {
		return nil
	}
	i := w.index()
	if i < 0 || i >= len(h.objects) {
		return nil
	}
	return h.objects[i]
}

// RefCount returns the reference count of w, or 0 if w is not a live reference.
func (h *Heap) RefCount(w Word) int64 {
	if o := h.Object(w); o != nil {
		return o.RefCount
	}
	return 0
}

// deref returns the live object behind w or aborts.
func (h *Heap) deref(w Word) *Object {
	o := h.Object(w)
	if o == nil {
		Abort(h, "dereference of a short integer or freed object", w)
	}
	return o
}

func (h *Heap) alloc(f *Frame, o *Object) Word {
	if h.limits.MaxObjects > 0 && h.live >= h.limits.MaxObjects {
		return f.Raise(ErrMemory, "object limit of %d reached", h.limits.MaxObjects)
	}
	o.RefCount = 1
	var i int
	if n := len(h.vacant); n > 0 {
		i = h.vacant[n-1]
		h.vacant = h.vacant[:n-1]
		h.objects[i] = o
	} else {
		i = len(h.objects)
		h.objects = append(h.objects, o)
	}
	h.live++
	h.allocs++
	w := refWord(i)
	h.emit(EventAlloc, w, 1)
	return w
}

// reserveCells accounts for a list buffer growing from oldCap to newCap.
func (h *Heap) reserveCells(f *Frame, oldCap, newCap int) bool {
	delta := newCap - oldCap
	if h.limits.MaxCells > 0 && h.cells+delta > h.limits.MaxCells {
		f.Raise(ErrMemory, "cell limit of %d reached", h.limits.MaxCells)
		return false
	}
	h.cells += delta
	return true
}

// IncRef adds a reference to w. Short integers and immortal objects are
// unaffected.
func (h *Heap) IncRef(w Word) {
	if w.IsShort() {
		return
	}
	o := h.deref(w)
	if o.Immortal {
		return
	}
	o.RefCount++
	h.emit(EventIncRef, w, o.RefCount)
}

// DecRef drops a reference to w and frees the object when none remain.
func (h *Heap) DecRef(w Word) {
	if w.IsShort() {
		return
	}
	o := h.deref(w)
	if o.Immortal {
		return
	}
	if o.RefCount <= 0 {
		Abort(h, "reference count underflow", w)
	}
	o.RefCount--
	h.emit(EventDecRef, w, o.RefCount)
	if o.RefCount == 0 {
		h.free(w, o)
	}
}

func (h *Heap) free(w Word, o *Object) {
	h.objects[w.index()] = nil
	h.vacant = append(h.vacant, w.index())
	h.live--
	h.emit(EventFree, w, 0)
	if o.Type == TypeList {
		h.cells -= cap(o.Items)
		items := o.Items
		o.Items = nil
		for _, item := range items {
			h.DecRef(item)
		}
	}
}

func (h *Heap) emit(kind EventKind, w Word, rc int64) {
	if h.trace != nil {
		h.trace(Event{Kind: kind, Ref: w, RefCount: rc})
	}
}

// TypeOf returns the runtime type of a generic object word. Short words are
// reported as TypeInt.
func (h *Heap) TypeOf(w Word) TypeID {
	if w.IsShort() {
		return TypeInt
	}
	return h.deref(w).Type
}
