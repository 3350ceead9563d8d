package rt

import "fmt"

// DefaultMaxDepth is the default recursion limit for calls through a Frame.
const DefaultMaxDepth = 1000

// Dispatcher performs ordinary host calls by module and attribute name.
type Dispatcher interface {
	CallGeneric(f *Frame, module, name string, args []Word) Word
}

// Frame is the calling environment handed to every primitive that can fail.
// It carries the heap and the pending exception of the current call chain.
type Frame struct {
	Heap     *Heap
	Host     Dispatcher
	Err      error
	Depth    int
	MaxDepth int
}

// CallGeneric dispatches through the frame's host. Without a host every
// lookup fails with NameError.
func (f *Frame) CallGeneric(module, name string, args []Word) Word {
	if f.Host == nil {
		return f.Raise(ErrName, "no host runtime to resolve %s.%s", module, name)
	}
	return f.Host.CallGeneric(f, module, name, args)
}

// NewFrame creates a frame over h with the default recursion limit.
func NewFrame(h *Heap) *Frame {
	return &Frame{Heap: h, MaxDepth: DefaultMaxDepth}
}

// Raise records a pending exception and returns ErrorSentinel so callers can
// propagate it through the value channel.
func (f *Frame) Raise(code ErrorCode, format string, args ...any) Word {
	f.Err = &Error{Code: code, Message: fmt.Sprintf(format, args...)}
	return ErrorSentinel
}

// RaiseErr records err as the pending exception.
func (f *Frame) RaiseErr(err error) Word {
	f.Err = err
	return ErrorSentinel
}

// Enter accounts for one more call level. It raises RecursionError and
// returns false when the limit is exceeded; Leave must not be called then.
func (f *Frame) Enter() bool {
	if f.MaxDepth > 0 && f.Depth >= f.MaxDepth {
		f.Raise(ErrRecursion, "maximum recursion depth exceeded")
		return false
	}
	f.Depth++
	return true
}

// Leave undoes Enter.
func (f *Frame) Leave() { f.Depth-- }

// TakeError returns and clears the pending exception.
func (f *Frame) TakeError() error {
	err := f.Err
	f.Err = nil
	return err
}
