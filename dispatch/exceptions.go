package dispatch

import (
	"fmt"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/heap"
)

// Exception is the pending-exception slot DRT_Throw/DRT_ReThrow populate;
// with no bytecode interpreter unwinding real frames, this core models
// throwing as "record the exception, return it as a Go error" and leaves
// stack unwinding to the embedder that drives the dispatch loop.
type Exception struct {
	Name    string
	Object  *heap.HeapObject
	Rethrow bool
}

func (e *Exception) Error() string {
	if e.Rethrow {
		return fmt.Sprintf("dispatch: rethrown exception %s", e.Name)
	}
	return fmt.Sprintf("dispatch: exception %s", e.Name)
}

// NewException wraps a raw exception object under name.
func NewException(name string, obj *heap.HeapObject) *Exception {
	return &Exception{Name: name, Object: obj}
}

// Throw implements DRT_Throw (§4.5): record exc as the dispatcher's pending
// exception and return it for the caller to propagate. Looking up a handler
// for the current try-block is the caller's job (it owns the pc/try-index
// bookkeeping via code.ExceptionHandlers.Lookup).
func (d *Dispatcher) Throw(exc *Exception) error {
	d.mu.Lock()
	d.pendingThrow = exc
	d.mu.Unlock()
	return exc
}

// ReThrow implements DRT_ReThrow: like Throw, but flags the exception as a
// rethrow so a handler further up the stack can tell it apart from a fresh
// throw when deciding whether to reset a stack trace.
func (d *Dispatcher) ReThrow(exc *Exception) error {
	exc.Rethrow = true
	return d.Throw(exc)
}

// PendingException returns the most recently thrown exception, if the
// dispatcher still holds one.
func (d *Dispatcher) PendingException() (*Exception, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pendingThrow == nil {
		return nil, false
	}
	return d.pendingThrow, true
}

// ClearPendingException drops the pending exception once a handler has
// consumed it.
func (d *Dispatcher) ClearPendingException() {
	d.mu.Lock()
	d.pendingThrow = nil
	d.mu.Unlock()
}

// ReportObjectNotClosure implements DRT_ReportObjectNotClosure: obj was
// invoked as if it were a closure but its class carries no call method.
func (d *Dispatcher) ReportObjectNotClosure(obj *heap.HeapObject) error {
	name := "null"
	if obj != nil && obj.Class != nil {
		name = obj.Class.Name.Text()
	}
	return d.Throw(NewException("NoSuchMethodError", nil)).(*Exception).withMessage(
		fmt.Sprintf("object of class %s is not a closure", name))
}

// ReportClosureArgumentMismatch implements DRT_ReportClosureArgumentMismatch:
// a closure was invoked with an argument descriptor its signature cannot
// accept.
func (d *Dispatcher) ReportClosureArgumentMismatch(fn *classes.Function, desc *ArgumentDescriptor) error {
	return d.Throw(NewException("NoSuchMethodError", nil)).(*Exception).withMessage(
		fmt.Sprintf("closure %s called with %d arguments, expected %d..%d", fn.Name.Text(), desc.TotalCount, fn.NumFixed, fn.NumFixed+fn.NumOptional))
}

func (e *Exception) withMessage(msg string) *Exception {
	e.Name = msg
	return e
}

// InvokeNoSuchMethodFunction implements DRT_InvokeNoSuchMethodFunction: the
// class's own noSuchMethod override (if any), or the dispatcher's synthetic
// NoSuchMethodError otherwise.
func (d *Dispatcher) InvokeNoSuchMethodFunction(receiverClass *classes.Class, name string, desc *ArgumentDescriptor) (*classes.Function, error) {
	if fn, ok := receiverClass.WalkForMethod("noSuchMethod"); ok {
		return fn, nil
	}
	return nil, d.Throw(NewException("NoSuchMethodError", nil)).(*Exception).withMessage(
		fmt.Sprintf("no method %s matching %d/%d arguments found on %s", name, desc.PositionalCount, len(desc.Named), receiverClass.Name.Text()))
}
