package rt

import (
	"fmt"
	"log/slog"
	"os"
)

// ExitInternalError is the process exit status after an internal
// consistency violation.
const ExitInternalError = 70

var abortHandler = func(msg string) {
	fmt.Fprintln(os.Stderr, "fatal:", msg)
	os.Exit(ExitInternalError)
}

// SetAbortHandler replaces the function invoked by Abort and returns the
// previous one. Tests install a handler that panics.
func SetAbortHandler(fn func(msg string)) func(msg string) {
	prev := abortHandler
	abortHandler = fn
	return prev
}

// Abort reports an internal consistency violation involving w and halts.
// It never returns.
func Abort(h *Heap, msg string, w Word) {
	desc := Describe(h, w)
	slog.Error("internal consistency violation", "reason", msg, "value", desc)
	abortHandler(msg + ": " + desc)
	panic("rt: abort handler returned: " + msg)
}

// Describe renders an arbitrary word for diagnostics without touching
// reference counts.
func Describe(h *Heap, w Word) string {
	if w.IsShort() {
		return fmt.Sprintf("short int %d", w.Short())
	}
	switch w {
	case None:
		return "None"
	case ErrorSentinel:
		return "<error sentinel>"
	case True:
		return "True"
	case False:
		return "False"
	}
	o := h.Object(w)
	if o == nil {
		return fmt.Sprintf("<freed or invalid reference #%d>", w.index())
	}
	switch o.Type {
	case TypeInt:
		return fmt.Sprintf("<int %s refcount=%d>", o.Int, o.RefCount)
	case TypeList:
		return fmt.Sprintf("<list len=%d refcount=%d>", len(o.Items), o.RefCount)
	}
	return fmt.Sprintf("<%s refcount=%d>", o.Type, o.RefCount)
}
