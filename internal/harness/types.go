package harness

import (
	"fmt"

	"github.com/roach88/refc/internal/compiler"
)

// Entry names one way of calling a function.
type Entry string

const (
	EntryInterp   Entry = "interp"   // host interpreter over the source
	EntryBoundary Entry = "boundary" // generic protocol through the module namespace
	EntryNative   Entry = "native"   // native entry with unboxed arguments
)

// AllEntries is the default set of entries a call runs on.
var AllEntries = []Entry{EntryInterp, EntryBoundary, EntryNative}

func (e Entry) valid() bool {
	switch e {
	case EntryInterp, EntryBoundary, EntryNative:
		return true
	}
	return false
}

// TraceEvent records one executed call.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Func   string `json:"func"` // module.name
	Entry  Entry  `json:"entry"`
	Args   string `json:"args"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"` // exception class
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every call matched its expectation on every entry,
	// nothing leaked and every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the executed calls in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains mismatch messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Modules holds the compilation of every scenario module by name.
	Modules map[string]*compiler.Result `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Modules: make(map[string]*compiler.Result),
	}
}

// AddError records a failure.
func (r *Result) AddError(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Report returns the compilation report of module.name.
func (r *Result) Report(module, name string) (compiler.FunctionReport, bool) {
	res, ok := r.Modules[module]
	if !ok {
		return compiler.FunctionReport{}, false
	}
	return res.Report(name)
}
