// Package harness runs differential scenarios against compiled modules.
//
// A scenario names one or more typed modules and a list of calls. Every call
// is executed three ways: by the host interpreter, through the boundary entry
// of the compiled module, and directly through its native entry. The results
// (or raised exception classes) must agree with the scenario's expectation,
// and every call must leave the heap exactly as it found it.
//
// # Scenario Format
//
//	name: sample_lists
//	description: "List helpers agree across entries"
//	modules:
//	  - ../modules/sample.cue
//	calls:
//	  - func: total
//	    args: [[4, 5, 6]]
//	    expect:
//	      result: 15
//	  - func: swap_first
//	    args: [[]]
//	    expect:
//	      error: IndexError
//	  - func: fill
//	    args: [true]
//	    entries: [boundary]
//	    expect:
//	      result: 1
//	assertions:
//	  - type: compiled
//	    func: fill
//	  - type: interpreted
//	    func: uses_dict
//	    reason: dict display
//	  - type: ir_contains
//	    func: fill
//	    text: dec_ref l
//	  - type: trace_count
//	    func: total
//	    entry: native
//	    count: 1
//
// Module paths are relative to the scenario file. Modules are compiled in
// order and each one may call earlier ones natively. A call's module defaults
// to the first module listed.
//
// Integers are arbitrary precision; lists nest. The interpreter does not
// check argument types, so calls that pass ill-typed arguments should
// restrict themselves to the boundary entry with entries.
//
// # Assertion Types
//
//   - compiled: the function was compiled natively
//   - interpreted: the function was excluded, optionally for a reason
//   - ir_contains: the reference-counted IR of the function contains text
//   - trace_count: the function was called count times (on one entry)
//
// # Golden Files
//
// RunWithGolden compares the trace against testdata/golden/<name>.golden and
// AssertCGolden compares emitted C. Regenerate with:
//
//	go test ./internal/harness -update
package harness
