package dispatch

import (
	"fmt"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/code"
)

// DeoptimizationInfo describes where execution must resume in the
// unoptimized code body after bailing out of optimized code, per §4.5's
// deoptimization entry.
type DeoptimizationInfo struct {
	NodeID       int64
	UnoptimizedPC uintptr
}

// Deoptimize implements DRT_Deoptimize: given the optimized frame's current
// AST node id, find the matching pc in the function's unoptimized code and
// hand it back so the caller can transfer control there. It also bumps the
// function's deopt counter and, past a small number of deopts, drops the
// optimized code entirely so the function stops re-entering a path that
// keeps bailing out.
func (d *Dispatcher) Deoptimize(fn *classes.Function, nodeID int64) (*DeoptimizationInfo, error) {
	unoptimized, ok := fn.UnoptimizedCode.(*code.Code)
	if !ok || unoptimized == nil {
		return nil, fmt.Errorf("dispatch: Deoptimize: %s has no unoptimized code to fall back to", fn.Name.Text())
	}
	pc, ok := unoptimized.PcDescriptorTable.GetDeoptPcAtNodeId(nodeID)
	if !ok {
		return nil, fmt.Errorf("dispatch: Deoptimize: no pc recorded for node %d", nodeID)
	}

	fn.DeoptimizationCounter++
	const maxDeoptsBeforeDisabling = 4
	if fn.DeoptimizationCounter >= maxDeoptsBeforeDisabling {
		if optimized, ok := fn.Code.(*code.Code); ok && optimized != unoptimized {
			DisableOldCode(optimized, unoptimized)
			fn.Code = unoptimized
		}
	}

	return &DeoptimizationInfo{NodeID: nodeID, UnoptimizedPC: pc}, nil
}

// FixCallersTarget implements DRT_FixCallersTarget: after lazily compiling
// a function that a caller's static call site referenced before it had
// code, patch that call site to jump straight to the now-known entry point
// instead of falling back through the resolve stub on every call.
func (d *Dispatcher) FixCallersTarget(callerCode *code.Code, target *classes.Function) error {
	targetCode, ok := target.Code.(*code.Code)
	if !ok || targetCode == nil {
		return fmt.Errorf("dispatch: FixCallersTarget: %s has no compiled code yet", target.Name.Text())
	}
	_, err := d.PatchStaticCall(callerCode, targetCode)
	return err
}
