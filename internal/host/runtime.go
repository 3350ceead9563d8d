// Package host is the dynamic runtime that compiled modules plug into.
//
// It owns the heap, the module namespaces and the generic calling protocol
// every callable implements: arguments are borrowed generic objects and the
// result is an owned generic object, or rt.ErrorSentinel with the exception
// pending on the frame. Interpreted functions and the boundary entries of
// compiled functions are interchangeable behind this protocol.
package host

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/refc/internal/rt"
)

// Callable is anything the host can call through the generic protocol.
type Callable interface {
	Call(f *rt.Frame, args []rt.Word) rt.Word
}

// CallableFunc adapts an ordinary function to Callable.
type CallableFunc func(f *rt.Frame, args []rt.Word) rt.Word

func (fn CallableFunc) Call(f *rt.Frame, args []rt.Word) rt.Word { return fn(f, args) }

// Namespace is the attribute table of one loaded module.
type Namespace struct {
	Name    string
	entries map[string]Callable
	// Native records which entries are boundary entries of compiled code.
	native map[string]bool
}

// Set binds name in the namespace, replacing any earlier binding.
func (ns *Namespace) Set(name string, c Callable) {
	ns.entries[name] = c
	delete(ns.native, name)
}

// SetNative binds a boundary entry of a compiled function.
func (ns *Namespace) SetNative(name string, c Callable) {
	ns.entries[name] = c
	ns.native[name] = true
}

// Get returns the binding for name.
func (ns *Namespace) Get(name string) (Callable, bool) {
	c, ok := ns.entries[name]
	return c, ok
}

// IsNative reports whether name is bound to compiled code.
func (ns *Namespace) IsNative(name string) bool { return ns.native[name] }

// Names returns the bound names in sorted order.
func (ns *Namespace) Names() []string {
	names := make([]string, 0, len(ns.entries))
	for n := range ns.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Runtime is one host process: a heap plus its loaded modules.
type Runtime struct {
	Heap     *rt.Heap
	MaxDepth int

	modules map[string]*Namespace
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxDepth sets the recursion limit of frames created by the runtime.
func WithMaxDepth(n int) Option {
	return func(r *Runtime) { r.MaxDepth = n }
}

// WithHeap makes the runtime share an existing heap.
func WithHeap(h *rt.Heap) Option {
	return func(r *Runtime) { r.Heap = h }
}

// WithLogger sets the logger used for load and dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// NewRuntime creates an empty runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		MaxDepth: rt.DefaultMaxDepth,
		modules:  make(map[string]*Namespace),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Heap == nil {
		r.Heap = rt.NewHeap()
	}
	return r
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// Module returns the namespace for name, creating it on first use.
func (r *Runtime) Module(name string) *Namespace {
	ns, ok := r.modules[name]
	if !ok {
		ns = &Namespace{Name: name, entries: make(map[string]Callable), native: make(map[string]bool)}
		r.modules[name] = ns
	}
	return ns
}

// HasModule reports whether a namespace called name exists.
func (r *Runtime) HasModule(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// Modules returns the loaded module names in sorted order.
func (r *Runtime) Modules() []string {
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewFrame creates a frame over the runtime heap.
func (r *Runtime) NewFrame() *rt.Frame {
	f := rt.NewFrame(r.Heap)
	f.Host = r
	f.MaxDepth = r.MaxDepth
	return f
}

// Lookup resolves module.name through the namespaces.
func (r *Runtime) Lookup(module, name string) (Callable, error) {
	ns, ok := r.modules[module]
	if !ok {
		return nil, &rt.Error{Code: rt.ErrName, Message: fmt.Sprintf("no module named %q", module)}
	}
	c, ok := ns.Get(name)
	if !ok {
		return nil, &rt.Error{Code: rt.ErrName, Message: fmt.Sprintf("module %q has no attribute %q", module, name)}
	}
	return c, nil
}

// CallGeneric performs an ordinary host call: name lookup, then the generic
// protocol. Lookup failures raise NameError on f.
func (r *Runtime) CallGeneric(f *rt.Frame, module, name string, args []rt.Word) rt.Word {
	c, err := r.Lookup(module, name)
	if err != nil {
		return f.RaiseErr(err)
	}
	return c.Call(f, args)
}

// Invoke converts args from Go values, calls module.name on a fresh frame and
// converts the result back. Every reference it creates is released before it
// returns.
func (r *Runtime) Invoke(module, name string, args ...any) (any, error) {
	f := r.NewFrame()
	words := make([]rt.Word, 0, len(args))
	defer func() {
		for _, w := range words {
			r.Heap.DecRef(w)
		}
	}()
	for _, a := range args {
		w, err := FromGo(f, a)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	res := r.CallGeneric(f, module, name, words)
	if res == rt.ErrorSentinel {
		err := f.TakeError()
		if err == nil {
			err = &rt.Error{Code: rt.ErrType, Message: "error returned without an exception set"}
		}
		return nil, err
	}
	defer r.Heap.DecRef(res)
	return ToGo(r.Heap, res), nil
}
