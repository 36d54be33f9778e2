package dispatch

import (
	"encoding/binary"
	"fmt"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/code"
	"github.com/coreruntime/vmcore/heap"
)

// ResolveCompileInstanceFunction implements DRT_ResolveCompileInstanceFunction
// (§4.5): find the target function for an instance call by receiver class
// and argument descriptor. It does not compile anything: a function with no
// code yet is returned as it is. The
// per-class function cache is consulted before falling back to
// Class.WalkForMethod, matching the cache-then-walk policy in §4.5.
func (d *Dispatcher) ResolveCompileInstanceFunction(receiverClass *classes.Class, name string, desc *ArgumentDescriptor) (*classes.Function, error) {
	if fn, ok := receiverClass.CacheLookup(name, desc.PositionalCount, len(desc.Named)); ok {
		return fn, nil
	}
	fn, ok := receiverClass.WalkForMethod(name)
	if !ok {
		return nil, fmt.Errorf("dispatch: no method %s found on %s or its ancestors", name, receiverClass.Name.Text())
	}
	if !signatureAccepts(fn, desc) {
		return nil, fmt.Errorf("dispatch: %s.%s does not accept %d positional/%d named arguments", receiverClass.Name.Text(), name, desc.PositionalCount, len(desc.Named))
	}
	receiverClass.CacheStore(name, desc.PositionalCount, len(desc.Named), fn)
	return fn, nil
}

// signatureAccepts reports whether desc's shape is compatible with fn's
// fixed/optional parameter counts. Named-parameter name matching is left to
// the function's own ParameterNames, resolved one at a time.
func signatureAccepts(fn *classes.Function, desc *ArgumentDescriptor) bool {
	if desc.PositionalCount < fn.NumFixed {
		return false
	}
	if desc.PositionalCount > fn.NumFixed+fn.NumOptional {
		return false
	}
	if len(desc.Named) == 0 {
		return true
	}
	for _, n := range desc.Named {
		found := false
		for _, pn := range fn.ParameterNames {
			if pn.Text() == n.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ResolvePatchInstanceCall implements DRT_ResolvePatchInstanceCall: resolve
// the target the way ResolveCompileInstanceFunction does, then install or
// widen the inline-cache stub at the call site so future calls with the
// same receiver class skip straight to the target.
func (d *Dispatcher) ResolvePatchInstanceCall(callerCode *code.Code, callSiteID uint64, receiver *heap.HeapObject, name string, desc *ArgumentDescriptor) (*classes.Function, error) {
	if receiver == nil {
		return nil, fmt.Errorf("dispatch: ResolvePatchInstanceCall: null receiver is never installed into an IC stub")
	}
	fn, err := d.ResolveCompileInstanceFunction(receiver.Class, name, desc)
	if err != nil {
		return nil, err
	}
	target, ok := fn.Code.(*code.Code)
	if !ok || target == nil {
		return fn, nil // caller compiles lazily; nothing to install yet
	}
	d.installOrWiden(callerCode, callSiteID, receiver.Class, target)
	return fn, nil
}

// installOrWiden implements the IC-stub install/widen half of the
// protocol: a fresh call site gets a one-entry stub (monomorphic); a call
// site that already has a stub for a different receiver class gets that
// class appended (polymorphic), never replacing an existing entry and
// never storing a null-receiver entry.
func (d *Dispatcher) installOrWiden(callerCode *code.Code, callSiteID uint64, receiverClass *classes.Class, target *code.Code) {
	stub, ok := callerCode.FindICStub(callSiteID)
	if !ok {
		callerCode.InstallICStub(&code.ICStub{
			CallSiteID: callSiteID,
			Entries:    []code.ICCacheEntry{{ReceiverClass: receiverClass, Target: target}},
		})
		return
	}
	for _, e := range stub.Entries {
		if e.ReceiverClass == receiverClass {
			return // already covered, even if its target has since changed underfoot
		}
	}
	widened := &code.ICStub{
		CallSiteID: stub.CallSiteID,
		Entries:    append(append([]code.ICCacheEntry(nil), stub.Entries...), code.ICCacheEntry{ReceiverClass: receiverClass, Target: target}),
	}
	callerCode.InstallICStub(widened)
}

// LookupICStub checks an installed stub for receiverClass without
// resolving or installing anything; the inline fast path compiled code
// takes before ever calling into ResolvePatchInstanceCall.
func (d *Dispatcher) LookupICStub(callerCode *code.Code, callSiteID uint64, receiverClass *classes.Class) (*code.Code, bool) {
	stub, ok := callerCode.FindICStub(callSiteID)
	if !ok {
		return nil, false
	}
	for _, e := range stub.Entries {
		if e.ReceiverClass == receiverClass {
			return e.Target, true
		}
	}
	return nil, false
}

// PatchStaticCall implements DRT_PatchStaticCall: a static call site has no
// receiver class to key on, so the call instruction itself is patched to
// target's entry point once target is known (e.g. after lazy compilation of
// a forward-referenced function).
func (d *Dispatcher) PatchStaticCall(callerCode *code.Code, target *code.Code) (uintptr, error) {
	pc, ok := callerCode.PcDescriptorTable.GetPatchCodePc()
	if !ok {
		return 0, fmt.Errorf("dispatch: PatchStaticCall: no patchable call site recorded")
	}
	entry := target.EntryPoint()
	bytes := callerCode.Instructions.Bytes
	offset := int(pc)
	if offset+8 <= len(bytes) {
		binary.LittleEndian.PutUint64(bytes[offset:offset+8], uint64(entry))
	}
	return pc, nil
}

// DisableOldCode implements the code-replacement half of optimization
// (§4.5): every IC stub entry across old's call sites that currently
// targets old itself is retargeted to replacement, so in-flight monomorphic
// call sites stop jumping into code about to be discarded.
func DisableOldCode(old, replacement *code.Code) {
	for _, stub := range old.ICStubs {
		changed := false
		entries := append([]code.ICCacheEntry(nil), stub.Entries...)
		for i, e := range entries {
			if e.Target == old {
				entries[i].Target = replacement
				changed = true
			}
		}
		if changed {
			old.InstallICStub(&code.ICStub{CallSiteID: stub.CallSiteID, Entries: entries})
		}
	}
}

// ResolveImplicitClosureFunction implements
// DRT_ResolveImplicitClosureFunction: an implicit closure's underlying
// function is whatever it was allocated against (§4.5's tear-off path).
func (d *Dispatcher) ResolveImplicitClosureFunction(closure *heap.HeapObject) (*classes.Function, error) {
	fn, ok := ClosureFunction(closure)
	if !ok {
		return nil, fmt.Errorf("dispatch: ResolveImplicitClosureFunction: object is not a closure")
	}
	return fn, nil
}

// ResolveImplicitClosureThroughGetter implements
// DRT_ResolveImplicitClosureThroughGetter: a getter access that resolves to
// a method returns that method, for the caller to tear off into an implicit
// closure instead of invoking it; no closure object is allocated here.
func (d *Dispatcher) ResolveImplicitClosureThroughGetter(receiver *heap.HeapObject, getterName string) (*classes.Function, error) {
	if receiver == nil || receiver.Class == nil {
		return nil, fmt.Errorf("dispatch: ResolveImplicitClosureThroughGetter: null receiver")
	}
	fn, ok := receiver.Class.WalkForMethod(getterName)
	if !ok {
		return nil, fmt.Errorf("dispatch: no method %s found for tear-off on %s", getterName, receiver.Class.Name.Text())
	}
	return fn, nil
}

// InvokeImplicitClosureFunction implements DRT_InvokeImplicitClosureFunction:
// validate desc against the closure's underlying signature (dropping the
// receiver slot a direct method call would have occupied) before the caller
// jumps to its entry point.
func (d *Dispatcher) InvokeImplicitClosureFunction(closure *heap.HeapObject, desc *ArgumentDescriptor) (*classes.Function, error) {
	fn, err := d.ResolveImplicitClosureFunction(closure)
	if err != nil {
		return nil, err
	}
	desc = desc.WithoutReceiver()
	if !signatureAccepts(fn, desc) {
		return nil, d.ReportClosureArgumentMismatch(fn, desc)
	}
	return fn, nil
}
