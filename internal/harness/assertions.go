package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Func     string       // module.name the assertion is about
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Calls of Func, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Func)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nCalls:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s(%s)\n", ev.Seq, ev.Entry, ev.Func, ev.Args)
		}
	}
	return buf.String()
}

// qualify resolves "name" against the first module; "module.name" is kept.
func (h *Harness) qualify(fn string) (module, name string) {
	if i := strings.LastIndexByte(fn, '.'); i >= 0 {
		return fn[:i], fn[i+1:]
	}
	return h.first, fn
}

func (h *Harness) assert(a Assertion) error {
	module, name := h.qualify(a.Func)
	qualified := module + "." + name

	if a.Type == AssertTraceCount {
		return assertTraceCount(h.result.Trace, qualified, a)
	}

	res, ok := h.result.Modules[module]
	if !ok {
		return fmt.Errorf("assertion %s %s: unknown module %q", a.Type, qualified, module)
	}
	rep, ok := res.Report(name)
	if !ok {
		return fmt.Errorf("assertion %s %s: no such function", a.Type, qualified)
	}

	switch a.Type {
	case AssertCompiled:
		if !rep.Compiled {
			return &AssertionError{Type: a.Type, Func: qualified, Expected: "compiled natively", Actual: "excluded: " + rep.Reason}
		}
	case AssertInterpreted:
		if rep.Compiled {
			return &AssertionError{Type: a.Type, Func: qualified, Expected: "excluded from compilation", Actual: "compiled natively"}
		}
		if !strings.Contains(rep.Reason, a.Reason) {
			return &AssertionError{Type: a.Type, Func: qualified,
				Expected: fmt.Sprintf("reason containing %q", a.Reason), Actual: rep.Reason}
		}
	case AssertIRContains:
		if !rep.Compiled {
			return &AssertionError{Type: a.Type, Func: qualified, Expected: "compiled IR", Actual: "excluded: " + rep.Reason}
		}
		if !strings.Contains(rep.IR, a.Text) {
			return &AssertionError{Type: a.Type, Func: qualified,
				Expected: fmt.Sprintf("IR containing %q", a.Text), Actual: "\n" + rep.IR}
		}
	}
	return nil
}

// assertTraceCount checks how often fn was called, on one entry or on all.
func assertTraceCount(trace []TraceEvent, fn string, a Assertion) error {
	var calls []TraceEvent
	for _, ev := range trace {
		if ev.Func == fn && (a.Entry == "" || ev.Entry == a.Entry) {
			calls = append(calls, ev)
		}
	}
	if len(calls) == a.Count {
		return nil
	}
	where := "all entries"
	if a.Entry != "" {
		where = string(a.Entry)
	}
	return &AssertionError{
		Type:     a.Type,
		Func:     fn,
		Expected: fmt.Sprintf("%d calls on %s", a.Count, where),
		Actual:   fmt.Sprintf("%d calls", len(calls)),
		Trace:    calls,
	}
}
